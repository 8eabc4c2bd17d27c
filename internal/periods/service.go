package periods

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/procurement-portal/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Period, error)
	List(ctx context.Context) ([]Period, error)
}

// AdminChecker resolves whether an account may manage periods.
type AdminChecker interface {
	IsAdmin(ctx context.Context, id int64) (bool, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier publishes period events to background workers.
type Notifier interface {
	PeriodClosed(ctx context.Context, event ClosedEvent) error
}

// Observer records period metrics.
type Observer interface {
	PeriodClosed(lockedOrders int64)
}

// Service orchestrates the quarterly period lifecycle.
type Service struct {
	repo     RepositoryPort
	admins   AdminChecker
	audit    AuditPort
	notifier Notifier
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the period service.
func NewService(repo RepositoryPort, admins AdminChecker, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, admins: admins, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetNotifier wires the background notifier.
func (s *Service) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// SetObserver wires metrics.
func (s *Service) SetObserver(observer Observer) {
	s.observer = observer
}

// Current returns the period the portal should present, or nil when no
// period exists.
func (s *Service) Current(ctx context.Context) (*Period, error) {
	periods, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return SelectCurrent(periods), nil
}

// List returns every period.
func (s *Service) List(ctx context.Context) ([]Period, error) {
	return s.repo.List(ctx)
}

// Get returns a single period.
func (s *Service) Get(ctx context.Context, id int64) (Period, error) {
	return s.repo.Get(ctx, id)
}

// Close ends order collection for a period and locks all of its orders.
func (s *Service) Close(ctx context.Context, in CloseInput) (CloseResult, error) {
	if err := s.requireAdmin(ctx, in.AdminID); err != nil {
		return CloseResult{}, err
	}
	now := s.now()
	var (
		period Period
		locked int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockRegistry(ctx); err != nil {
			return err
		}
		var err error
		if in.PeriodID == 0 {
			period, err = tx.LockOpen(ctx)
		} else {
			period, err = tx.LockPeriod(ctx, in.PeriodID)
		}
		if err != nil {
			return err
		}
		switch period.Status {
		case StatusClosed:
			return ErrAlreadyClosed
		case StatusUpcoming:
			return ErrNoActivePeriod
		}
		if !period.Status.CanTransitionTo(StatusClosed) {
			return ErrInvalidTransition
		}
		if err := tx.SetStatus(ctx, period.ID, StatusClosed, now); err != nil {
			return err
		}
		locked, err = tx.LockOrders(ctx, period.ID)
		return err
	})
	if err != nil {
		if in.PeriodID == 0 && errors.Is(err, ErrNoActivePeriod) {
			return CloseResult{}, s.explainNoOpen(ctx)
		}
		return CloseResult{}, err
	}

	s.recordAudit(ctx, in.AdminID, "period.close", period.ID, map[string]any{
		"year":          period.Year,
		"quarter":       period.Quarter,
		"locked_orders": locked,
	})
	if s.notifier != nil {
		event := ClosedEvent{PeriodID: period.ID, Year: period.Year, Quarter: period.Quarter, LockedOrders: locked, ClosedBy: in.AdminID, ClosedAt: now}
		if err := s.notifier.PeriodClosed(ctx, event); err != nil {
			s.logger.Warn("enqueue period closed notification failed", slog.Int64("period_id", period.ID), slog.Any("error", err))
		}
	}
	if s.observer != nil {
		s.observer.PeriodClosed(locked)
	}
	s.logger.Info("period closed", slog.Int64("period_id", period.ID), slog.String("period", period.Label()), slog.Int64("locked_orders", locked))

	return CloseResult{
		Message:      fmt.Sprintf("Order collection for %s closed, %s orders locked", period.Label(), shared.FormatCount(locked)),
		PeriodID:     period.ID,
		LockedOrders: locked,
	}, nil
}

// Open starts order collection for an upcoming period.
func (s *Service) Open(ctx context.Context, in OpenInput) (Period, error) {
	if err := s.requireAdmin(ctx, in.AdminID); err != nil {
		return Period{}, err
	}
	if in.PeriodID <= 0 {
		return Period{}, ErrNotFound
	}
	now := s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockRegistry(ctx); err != nil {
			return err
		}
		period, err := tx.LockPeriod(ctx, in.PeriodID)
		if err != nil {
			return err
		}
		if !period.Status.CanTransitionTo(StatusOpen) {
			return ErrInvalidTransition
		}
		open, err := tx.HasOpen(ctx, period.ID)
		if err != nil {
			return err
		}
		if open {
			return ErrAnotherPeriodOpen
		}
		return tx.SetStatus(ctx, period.ID, StatusOpen, now)
	})
	if err != nil {
		return Period{}, err
	}
	s.recordAudit(ctx, in.AdminID, "period.open", in.PeriodID, nil)
	return s.repo.Get(ctx, in.PeriodID)
}

// explainNoOpen reports ErrAlreadyClosed when the period the portal presents
// has already been closed, and ErrNoActivePeriod otherwise.
func (s *Service) explainNoOpen(ctx context.Context) error {
	all, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	if current := SelectCurrent(all); current != nil && current.Status == StatusClosed {
		return ErrAlreadyClosed
	}
	return ErrNoActivePeriod
}

func (s *Service) requireAdmin(ctx context.Context, adminID int64) error {
	if s.admins == nil {
		return errors.New("periods: admin checker not configured")
	}
	ok, err := s.admins.IsAdmin(ctx, adminID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.ErrForbidden
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, periodID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "quarterly_period",
		EntityID: strconv.FormatInt(periodID, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
