// Package catalog serves the read-only reference data of the portal: client
// accounts, products and categories.
package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Role distinguishes ordering clients from administrators.
type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// Client is an account of the portal.
type Client struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	LegalEntity string          `json:"legal_entity"`
	Address     string          `json:"address"`
	BudgetLimit decimal.Decimal `json:"budget_limit"`
	BudgetUsed  decimal.Decimal `json:"budget_used"`
	Role        Role            `json:"role"`
	CreatedAt   time.Time       `json:"created_at"`
}

// IsAdmin reports whether the account may decide orders and manage periods.
func (c Client) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Product is a catalog entry. Stock is informational only; orders never
// decrement it.
type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	CategoryID   *int64          `json:"category_id"`
	CategoryName *string         `json:"category_name"`
	Stock        int             `json:"stock"`
	Unit         string          `json:"unit"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Category groups products.
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("catalog: not found")
