package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurement-portal/internal/platform/db"
	"github.com/odyssey-erp/procurement-portal/internal/shared"
)

// Repository reads ledger accounts from the clients table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Account loads the account without taking locks.
func (r *Repository) Account(ctx context.Context, clientID int64) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT id, budget_limit, budget_used FROM clients WHERE id = $1`, clientID))
}

// NewTxStore binds a Store to an open transaction.
func NewTxStore(tx pgx.Tx) Store {
	return &txStore{tx: tx}
}

type txStore struct {
	tx pgx.Tx
}

// LockAccount serialises ledger writers for the client, then row-locks it.
func (s *txStore) LockAccount(ctx context.Context, clientID int64) (Account, error) {
	if err := db.AdvisoryXactLock(ctx, s.tx, shared.LedgerLockKey(clientID)); err != nil {
		return Account{}, err
	}
	return scanAccount(s.tx.QueryRow(ctx, `SELECT id, budget_limit, budget_used FROM clients WHERE id = $1 FOR UPDATE`, clientID))
}

// AddUsed increases budget_used by amount.
func (s *txStore) AddUsed(ctx context.Context, clientID int64, amount decimal.Decimal) error {
	tag, err := s.tx.Exec(ctx, `UPDATE clients SET budget_used = budget_used + $2 WHERE id = $1`, clientID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	if err := row.Scan(&a.ClientID, &a.Limit, &a.Used); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("budget: load account: %w", err)
	}
	return a, nil
}
