package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/procurement-portal/internal/budget"
)

// Store is the persistence port of the catalog.
type Store interface {
	ListClients(ctx context.Context) ([]Client, error)
	GetClient(ctx context.Context, id int64) (Client, error)
	ListProducts(ctx context.Context) ([]Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

// Service exposes reference data with a versioned cache in front of the
// product and category lists.
type Service struct {
	store    Store
	cache    *Cache
	ledger   *budget.Ledger
	accounts budget.Reader
	group    singleflight.Group
}

// NewService constructs the catalog service. cache may be nil.
func NewService(store Store, cache *Cache, ledger *budget.Ledger, accounts budget.Reader) *Service {
	return &Service{store: store, cache: cache, ledger: ledger, accounts: accounts}
}

// ListClients returns all accounts. Budgets change with every approval so the
// list is never cached.
func (s *Service) ListClients(ctx context.Context) ([]Client, error) {
	clients, err := s.store.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list clients: %w", err)
	}
	return clients, nil
}

// GetClient loads one account.
func (s *Service) GetClient(ctx context.Context, id int64) (Client, error) {
	return s.store.GetClient(ctx, id)
}

// IsAdmin reports whether id names an administrator. Unknown ids are not
// administrators.
func (s *Service) IsAdmin(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	client, err := s.store.GetClient(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("catalog: load actor %d: %w", id, err)
	}
	return client.IsAdmin(), nil
}

// ClientBudget returns the advisory budget balance of a client.
func (s *Service) ClientBudget(ctx context.Context, id int64) (budget.Balance, error) {
	balance, err := s.ledger.Remaining(ctx, s.accounts, id)
	if err != nil {
		if errors.Is(err, budget.ErrAccountNotFound) {
			return budget.Balance{}, ErrNotFound
		}
		return budget.Balance{}, err
	}
	return balance, nil
}

// ListProducts returns the product list through the cache.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	err := s.cached(ctx, "products", &products, func(ctx context.Context) (any, error) {
		return s.store.ListProducts(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	return products, nil
}

// ListCategories returns the category list through the cache.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	err := s.cached(ctx, "categories", &categories, func(ctx context.Context) (any, error) {
		return s.store.ListCategories(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: list categories: %w", err)
	}
	return categories, nil
}

// cached collapses concurrent misses for the same versioned key into one
// loader call. The shared load ignores the cancellation of the caller that
// started it.
func (s *Service) cached(ctx context.Context, name string, dest any, loader func(context.Context) (any, error)) error {
	key, err := s.cache.BuildKey(ctx, name)
	if err != nil {
		return err
	}
	loadCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		var raw json.RawMessage
		err := s.cache.FetchJSON(loadCtx, key, &raw, loader)
		return raw, err
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.(json.RawMessage), dest)
	}
}
