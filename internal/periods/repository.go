package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/procurement-portal/internal/platform/db"
	"github.com/odyssey-erp/procurement-portal/internal/shared"
)

const singleOpenIndex = "quarterly_periods_single_open"

const periodColumns = `id, year, quarter, collection_start_date, collection_end_date, quarter_start_date, quarter_end_date, status, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	// LockRegistry serialises period transitions.
	LockRegistry(ctx context.Context) error
	// LockOpen row-locks the open period or fails with ErrNoActivePeriod.
	LockOpen(ctx context.Context) (Period, error)
	// LockPeriod row-locks the period or fails with ErrNotFound.
	LockPeriod(ctx context.Context, id int64) (Period, error)
	// HasOpen reports whether a period other than exceptID is open.
	HasOpen(ctx context.Context, exceptID int64) (bool, error)
	// SetStatus moves the period to status and stamps the collection window
	// boundary that status implies.
	SetStatus(ctx context.Context, id int64, status Status, at time.Time) error
	// LockOrders flags every order of the period as locked and returns how
	// many rows it touched.
	LockOrders(ctx context.Context, periodID int64) (int64, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps fn in a READ COMMITTED transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Get loads a period by id.
func (r *Repository) Get(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM quarterly_periods WHERE id = $1`, id))
}

// List returns every period, newest quarter first.
func (r *Repository) List(ctx context.Context) ([]Period, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+periodColumns+` FROM quarterly_periods ORDER BY year DESC, quarter DESC`)
	if err != nil {
		return nil, fmt.Errorf("periods: list: %w", err)
	}
	defer rows.Close()
	var periods []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func (t *txRepo) LockRegistry(ctx context.Context) error {
	return db.AdvisoryXactLock(ctx, t.tx, shared.PeriodRegistryLockKey)
}

func (t *txRepo) LockOpen(ctx context.Context) (Period, error) {
	p, err := scanPeriod(t.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM quarterly_periods WHERE status = 'open' FOR UPDATE`))
	if errors.Is(err, ErrNotFound) {
		return Period{}, ErrNoActivePeriod
	}
	return p, err
}

func (t *txRepo) LockPeriod(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(t.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM quarterly_periods WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) HasOpen(ctx context.Context, exceptID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quarterly_periods WHERE status = 'open' AND id <> $1)`, exceptID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("periods: check open: %w", err)
	}
	return exists, nil
}

func (t *txRepo) SetStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	var err error
	switch status {
	case StatusOpen:
		_, err = t.tx.Exec(ctx, `UPDATE quarterly_periods SET status = $2, collection_start_date = $3, collection_end_date = NULL, updated_at = $3 WHERE id = $1`, id, string(status), at)
	case StatusClosed:
		_, err = t.tx.Exec(ctx, `UPDATE quarterly_periods SET status = $2, collection_end_date = $3, updated_at = $3 WHERE id = $1`, id, string(status), at)
	default:
		return ErrInvalidTransition
	}
	if err != nil {
		if db.IsUniqueViolation(err, singleOpenIndex) {
			return ErrAnotherPeriodOpen
		}
		return fmt.Errorf("periods: set status: %w", err)
	}
	return nil
}

func (t *txRepo) LockOrders(ctx context.Context, periodID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE orders SET is_locked = TRUE, updated_at = NOW() WHERE period_id = $1 AND is_locked = FALSE`, periodID)
	if err != nil {
		return 0, fmt.Errorf("periods: lock orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ShareOpen takes a shared lock on the open period inside q's transaction so
// that a concurrent close waits until the caller commits. It fails with
// ErrNoActivePeriod when no period accepts orders.
func ShareOpen(ctx context.Context, q db.Querier) (Period, error) {
	p, err := scanPeriod(q.QueryRow(ctx, `SELECT `+periodColumns+` FROM quarterly_periods WHERE status = 'open' FOR SHARE`))
	if errors.Is(err, ErrNotFound) {
		return Period{}, ErrNoActivePeriod
	}
	return p, err
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	var status string
	if err := row.Scan(&p.ID, &p.Year, &p.Quarter, &p.CollectionStartDate, &p.CollectionEndDate, &p.QuarterStartDate, &p.QuarterEndDate, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrNotFound
		}
		return Period{}, fmt.Errorf("periods: scan: %w", err)
	}
	p.Status = Status(status)
	return p, nil
}
