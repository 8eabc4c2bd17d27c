// Package budget tracks each client's spending limit and the spend committed
// against it by approved orders.
package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurement-portal/internal/shared"
)

var (
	// ErrOverBudget indicates the amount exceeds the client's remaining budget.
	ErrOverBudget = errors.New("budget: over budget")
	// ErrAccountNotFound indicates the client has no ledger account.
	ErrAccountNotFound = errors.New("budget: account not found")
	// ErrInvalidAmount indicates a negative commit amount.
	ErrInvalidAmount = errors.New("budget: amount must not be negative")
)

// OverBudgetError carries the figures behind an ErrOverBudget rejection.
type OverBudgetError struct {
	ClientID  int64
	Total     decimal.Decimal
	Remaining decimal.Decimal
}

func (e *OverBudgetError) Error() string {
	return fmt.Sprintf("budget: order total %s exceeds remaining budget %s",
		shared.FormatAmount(e.Total), shared.FormatAmount(e.Remaining))
}

// Is makes errors.Is(err, ErrOverBudget) match.
func (e *OverBudgetError) Is(target error) bool {
	return target == ErrOverBudget
}

// Account is a client's ledger row.
type Account struct {
	ClientID int64           `json:"client_id"`
	Limit    decimal.Decimal `json:"budget_limit"`
	Used     decimal.Decimal `json:"budget_used"`
}

// Remaining returns Limit - Used.
func (a Account) Remaining() decimal.Decimal {
	return a.Limit.Sub(a.Used)
}

// Validate fails when total is strictly greater than the remaining budget. An
// order that exactly exhausts the budget is valid.
func (a Account) Validate(total decimal.Decimal) error {
	remaining := a.Remaining()
	if total.GreaterThan(remaining) {
		return &OverBudgetError{ClientID: a.ClientID, Total: total, Remaining: remaining}
	}
	return nil
}

// Reader loads accounts without locking.
type Reader interface {
	Account(ctx context.Context, clientID int64) (Account, error)
}

// Store is the transactional view of the ledger. Implementations must hold
// the account lock from LockAccount until the surrounding transaction ends.
type Store interface {
	LockAccount(ctx context.Context, clientID int64) (Account, error)
	AddUsed(ctx context.Context, clientID int64, amount decimal.Decimal) error
}

// Stage names where an over-budget rejection happened.
const (
	StageSubmit  = "submit"
	StageApprove = "approve"
)

// Observer is notified of ledger rejections.
type Observer interface {
	OverBudget(stage string)
}

// Ledger applies the budget rules on top of a Store.
type Ledger struct {
	observer Observer
}

// NewLedger constructs a Ledger. observer may be nil.
func NewLedger(observer Observer) *Ledger {
	return &Ledger{observer: observer}
}

// Check validates total against the live account at submission time. It
// never mutates the ledger.
func (l *Ledger) Check(ctx context.Context, store Store, clientID int64, total decimal.Decimal) error {
	account, err := store.LockAccount(ctx, clientID)
	if err != nil {
		return err
	}
	if err := account.Validate(total); err != nil {
		l.reject(StageSubmit)
		return err
	}
	return nil
}

// Commit re-validates amount against the live account and records it as
// used. It is the only path that increases Used and must run in the same
// transaction as the order approval.
func (l *Ledger) Commit(ctx context.Context, store Store, clientID int64, amount decimal.Decimal) (Account, error) {
	if amount.IsNegative() {
		return Account{}, ErrInvalidAmount
	}
	account, err := store.LockAccount(ctx, clientID)
	if err != nil {
		return Account{}, err
	}
	if err := account.Validate(amount); err != nil {
		l.reject(StageApprove)
		return Account{}, err
	}
	if err := store.AddUsed(ctx, clientID, amount); err != nil {
		return Account{}, fmt.Errorf("budget: commit: %w", err)
	}
	account.Used = account.Used.Add(amount)
	return account, nil
}

// Balance is the advisory view of an account served to the UI.
type Balance struct {
	Account
	Remaining decimal.Decimal `json:"remaining"`
}

// Remaining reads the account without locking. The figure is advisory; the
// authoritative check happens again at approval.
func (l *Ledger) Remaining(ctx context.Context, reader Reader, clientID int64) (Balance, error) {
	account, err := reader.Account(ctx, clientID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Account: account, Remaining: account.Remaining()}, nil
}

func (l *Ledger) reject(stage string) {
	if l == nil || l.observer == nil {
		return
	}
	l.observer.OverBudget(stage)
}
