package store

import (
	"context"
	"errors"

	"mortgagemarket/internal/domain/market"
)

// Store is the typed CRUD façade over the persistence backend. It carries
// no business logic; lookups miss with market.ErrNotFound and Post fails
// with market.ErrConflict when the id is already present.
type Store interface {
	Get(ctx context.Context, kind market.Kind, id string) (market.Entity, error)
	Post(ctx context.Context, e market.Entity) error
	Put(ctx context.Context, e market.Entity) error
	GetAll(ctx context.Context, kind market.Kind) ([]market.Entity, error)
}

// UnitOfWork runs fn against a transactional Store: every write inside fn
// commits together or not at all.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(s Store) error) error
}

// PostOrPut inserts e if absent, otherwise overwrites it.
func PostOrPut(ctx context.Context, s Store, e market.Entity) error {
	_, err := s.Get(ctx, e.EntityKind(), e.EntityID())
	switch {
	case err == nil:
		return s.Put(ctx, e)
	case errors.Is(err, market.ErrNotFound):
		return s.Post(ctx, e)
	default:
		return err
	}
}
