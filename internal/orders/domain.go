// Package orders implements the order lifecycle: submission inside an open
// period, admin decisions against the budget ledger, and period locking.
package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates order decision states.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var transitions = map[Status]map[Status]bool{
	StatusPending:  {StatusApproved: true, StatusRejected: true},
	StatusApproved: {},
	StatusRejected: {},
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether an order may move from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	return transitions[s][next]
}

// Order is a client's request for goods within one quarterly period.
type Order struct {
	ID           int64           `json:"id"`
	ClientID     int64           `json:"client_id"`
	ClientName   string          `json:"client_name"`
	LegalEntity  string          `json:"legal_entity"`
	Address      string          `json:"address"`
	Total        decimal.Decimal `json:"total"`
	Status       Status          `json:"status"`
	IsLocked     bool            `json:"is_locked"`
	ApprovedAt   *time.Time      `json:"approved_at"`
	ApprovedBy   *int64          `json:"approved_by"`
	PeriodID     int64           `json:"period_id"`
	Year         int             `json:"year,omitempty"`
	Quarter      int             `json:"quarter,omitempty"`
	PeriodStatus string          `json:"period_status,omitempty"`
	Items        []Item          `json:"items"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Item is an order line. Name, price and unit are copied from the catalog
// when the order is created.
type Item struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Unit        string          `json:"unit"`
	CreatedAt   time.Time       `json:"created_at"`
}

// LineTotal returns price times quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ClientSnapshot holds the client fields copied onto a new order.
type ClientSnapshot struct {
	ID          int64
	Name        string
	LegalEntity string
	Address     string
}

// ProductSnapshot holds the catalog fields copied onto a new item.
type ProductSnapshot struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	Unit  string
}

// ItemInput is one requested line. Price is what the client saw and is not
// trusted.
type ItemInput struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

// CreateInput describes an order submission.
type CreateInput struct {
	ClientID       int64
	Items          []ItemInput
	IdempotencyKey string
}

// Validate checks the submission shape.
func (in CreateInput) Validate() error {
	if len(in.Items) == 0 {
		return ErrEmptyOrder
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	}
	return nil
}

// CreateResult is returned after a successful submission.
type CreateResult struct {
	OrderID int64  `json:"order_id"`
	Status  Status `json:"status"`
}

// UpdateStatusInput describes an admin decision. AdminID is optional.
type UpdateStatusInput struct {
	OrderID int64
	Status  Status
	AdminID int64
}

// ListFilter narrows order listings. Zero values match everything.
type ListFilter struct {
	ClientID int64
	Status   Status
	PeriodID int64
}

// DecidedEvent is published after a decision commits.
type DecidedEvent struct {
	OrderID   int64           `json:"order_id"`
	ClientID  int64           `json:"client_id"`
	Status    Status          `json:"status"`
	Total     decimal.Decimal `json:"total"`
	DecidedBy *int64          `json:"decided_by"`
	DecidedAt time.Time       `json:"decided_at"`
}
