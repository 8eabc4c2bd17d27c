package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurement-portal/internal/budget"
	"github.com/odyssey-erp/procurement-portal/internal/shared"
)

const approvalModule = "orders"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filter ListFilter) ([]Order, error)
	Get(ctx context.Context, id int64) (Order, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	// ShareOpenPeriod holds the open period for the rest of the transaction
	// and returns its id. It fails with ErrPeriodClosed when none is open.
	ShareOpenPeriod(ctx context.Context) (int64, error)
	LoadClient(ctx context.Context, id int64) (ClientSnapshot, error)
	LoadProducts(ctx context.Context, ids []int64) (map[int64]ProductSnapshot, error)
	InsertOrder(ctx context.Context, order Order) (int64, error)
	InsertItems(ctx context.Context, orderID int64, items []Item) error
	// LockOrder row-locks the order or fails with ErrNotFound.
	LockOrder(ctx context.Context, id int64) (Order, error)
	SetDecision(ctx context.Context, id int64, status Status, at time.Time, by *int64) error
	Ledger() budget.Store
	// Idempotency claims submission keys inside the transaction.
	Idempotency() IdempotencyPort
}

// AdminChecker resolves whether an account may decide orders.
type AdminChecker interface {
	IsAdmin(ctx context.Context, id int64) (bool, error)
}

// ApprovalPort records decision history.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// IdempotencyPort guards against replayed submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
}

// Notifier publishes order events to background workers.
type Notifier interface {
	OrderDecided(ctx context.Context, event DecidedEvent) error
}

// Observer records order metrics.
type Observer interface {
	OrderCreated()
	OrderDecided(status string)
}

// Service orchestrates order flows.
type Service struct {
	repo        RepositoryPort
	ledger      *budget.Ledger
	admins      AdminChecker
	approvals ApprovalPort
	notifier  Notifier
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the order service. approvals may be nil.
func NewService(repo RepositoryPort, ledger *budget.Ledger, admins AdminChecker, approvals ApprovalPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		ledger:    ledger,
		admins:    admins,
		approvals: approvals,
		logger:    logger,
		now:       time.Now,
	}
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

// Create submits a pending order into the open period. Prices are taken from
// the catalog and the total is checked against the client's remaining budget
// without reserving it.
func (s *Service) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	if err := in.Validate(); err != nil {
		return CreateResult{}, err
	}
	var orderID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.IdempotencyKey != "" {
			if err := tx.Idempotency().CheckAndInsert(ctx, in.IdempotencyKey, approvalModule); err != nil {
				if errors.Is(err, shared.ErrIdempotencyConflict) {
					return ErrDuplicateSubmission
				}
				return err
			}
		}
		periodID, err := tx.ShareOpenPeriod(ctx)
		if err != nil {
			return err
		}
		client, err := tx.LoadClient(ctx, in.ClientID)
		if err != nil {
			return err
		}
		items, total, err := s.buildItems(ctx, tx, in.Items)
		if err != nil {
			return err
		}
		if err := s.ledger.Check(ctx, tx.Ledger(), client.ID, total); err != nil {
			if errors.Is(err, budget.ErrAccountNotFound) {
				return ErrNotFound
			}
			return err
		}
		orderID, err = tx.InsertOrder(ctx, Order{
			ClientID:    client.ID,
			ClientName:  client.Name,
			LegalEntity: client.LegalEntity,
			Address:     client.Address,
			Total:       total,
			Status:      StatusPending,
			PeriodID:    periodID,
		})
		if err != nil {
			return err
		}
		return tx.InsertItems(ctx, orderID, items)
	})
	if err != nil {
		return CreateResult{}, err
	}

	s.recordApproval(ctx, orderID, in.ClientID, shared.ApprovalSubmit)
	if s.observer != nil {
		s.observer.OrderCreated()
	}
	return CreateResult{OrderID: orderID, Status: StatusPending}, nil
}

func (s *Service) buildItems(ctx context.Context, tx TxRepository, inputs []ItemInput) ([]Item, decimal.Decimal, error) {
	ids := make([]int64, 0, len(inputs))
	for _, in := range inputs {
		ids = append(ids, in.ProductID)
	}
	products, err := tx.LoadProducts(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, err
	}
	items := make([]Item, 0, len(inputs))
	total := decimal.Zero
	for _, in := range inputs {
		product, ok := products[in.ProductID]
		if !ok {
			return nil, decimal.Zero, fmt.Errorf("%w: %d", ErrUnknownProduct, in.ProductID)
		}
		item := Item{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    in.Quantity,
			Price:       product.Price,
			Unit:        product.Unit,
		}
		items = append(items, item)
		total = total.Add(item.LineTotal())
	}
	return items, total.Round(2), nil
}

// UpdateStatus applies an admin decision. Approval commits the order total to
// the budget ledger in the same transaction.
func (s *Service) UpdateStatus(ctx context.Context, in UpdateStatusInput) (Status, error) {
	var decidedBy *int64
	if in.AdminID != 0 {
		ok, err := s.isAdmin(ctx, in.AdminID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", shared.ErrForbidden
		}
		id := in.AdminID
		decidedBy = &id
	}
	now := s.now()
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.LockOrder(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if order.IsLocked {
			return ErrOrderLocked
		}
		if !order.Status.CanTransitionTo(in.Status) {
			return ErrInvalidTransition
		}
		if in.Status == StatusApproved {
			if _, err := s.ledger.Commit(ctx, tx.Ledger(), order.ClientID, order.Total); err != nil {
				return err
			}
		}
		return tx.SetDecision(ctx, order.ID, in.Status, now, decidedBy)
	})
	if err != nil {
		return "", err
	}

	action := shared.ApprovalReject
	if in.Status == StatusApproved {
		action = shared.ApprovalApprove
	}
	s.recordApproval(ctx, order.ID, in.AdminID, action)
	if s.notifier != nil {
		event := DecidedEvent{OrderID: order.ID, ClientID: order.ClientID, Status: in.Status, Total: order.Total, DecidedBy: decidedBy, DecidedAt: now}
		if err := s.notifier.OrderDecided(ctx, event); err != nil {
			s.logger.Warn("enqueue order decision notification failed", slog.Int64("order_id", order.ID), slog.Any("error", err))
		}
	}
	if s.observer != nil {
		s.observer.OrderDecided(string(in.Status))
	}
	s.logger.Info("order decided", slog.Int64("order_id", order.ID), slog.String("status", string(in.Status)), slog.String("total", order.Total.StringFixed(2)))
	return in.Status, nil
}

// List returns orders matching filter, newest first, with items.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	return s.repo.List(ctx, filter)
}

// Get returns one order with items.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) isAdmin(ctx context.Context, id int64) (bool, error) {
	if s.admins == nil {
		return false, errors.New("orders: admin checker not configured")
	}
	return s.admins.IsAdmin(ctx, id)
}

func (s *Service) recordApproval(ctx context.Context, orderID, actorID int64, action shared.ApprovalAction) {
	if s.approvals == nil {
		return
	}
	if err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   shared.ApprovalRef(approvalModule, orderID),
		ActorID: actorID,
		Action:  action,
		Note:    "order " + strconv.FormatInt(orderID, 10),
		At:      s.now(),
	}); err != nil {
		s.logger.Warn("approval record failed", slog.Int64("order_id", orderID), slog.Any("error", err))
	}
}
