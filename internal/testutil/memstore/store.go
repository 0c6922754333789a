package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mortgagemarket/internal/domain/market"
	"mortgagemarket/internal/domain/store"
)

// Ensure compile-time compliance
var (
	_ store.Store      = (*Store)(nil)
	_ store.UnitOfWork = (*Store)(nil)
)

// Store is an in-memory store.Store + store.UnitOfWork for tests. Writes
// inside WithinTx are buffered and discarded when fn returns an error, so
// rollback behaviour can be exercised without a database.
//
// Optional function hooks override individual methods for failure
// injection; unset hooks fall through to the in-memory maps.
type Store struct {
	mu   sync.Mutex
	data map[market.Kind]map[string]market.Entity

	GetFn  func(ctx context.Context, kind market.Kind, id string) (market.Entity, error)
	PostFn func(ctx context.Context, e market.Entity) error
	PutFn  func(ctx context.Context, e market.Entity) error
}

func New() *Store {
	return &Store{data: make(map[market.Kind]map[string]market.Entity)}
}

func (s *Store) bucket(kind market.Kind) map[string]market.Entity {
	b, ok := s.data[kind]
	if !ok {
		b = make(map[string]market.Entity)
		s.data[kind] = b
	}
	return b
}

func (s *Store) Get(ctx context.Context, kind market.Kind, id string) (market.Entity, error) {
	if s.GetFn != nil {
		return s.GetFn(ctx, kind, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.bucket(kind)[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", market.ErrNotFound, kind, id)
	}
	return clone(e), nil
}

func (s *Store) Post(ctx context.Context, e market.Entity) error {
	if s.PostFn != nil {
		return s.PostFn(ctx, e)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bucket(e.EntityKind())
	if _, exists := b[e.EntityID()]; exists {
		return fmt.Errorf("%w: %s %s already exists", market.ErrConflict, e.EntityKind(), e.EntityID())
	}
	b[e.EntityID()] = clone(e)
	return nil
}

func (s *Store) Put(ctx context.Context, e market.Entity) error {
	if s.PutFn != nil {
		return s.PutFn(ctx, e)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket(e.EntityKind())[e.EntityID()] = clone(e)
	return nil
}

func (s *Store) GetAll(ctx context.Context, kind market.Kind) ([]market.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bucket(kind)
	ids := make([]string, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]market.Entity, 0, len(b))
	for _, id := range ids {
		out = append(out, clone(b[id]))
	}
	return out, nil
}

// WithinTx buffers fn's writes in an overlay and merges them back only if
// fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	overlay := &txStore{base: s, writes: make(map[market.Kind]map[string]market.Entity)}
	if err := fn(overlay); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for kind, b := range overlay.writes {
		for id, e := range b {
			s.bucket(kind)[id] = e
		}
	}
	return nil
}

// Seed inserts entities directly, bypassing Post's conflict check.
func (s *Store) Seed(entities ...market.Entity) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		s.bucket(e.EntityKind())[e.EntityID()] = clone(e)
	}
	return s
}

// MustGet fetches an entity or panics; for test assertions after the fact.
func (s *Store) MustGet(kind market.Kind, id string) market.Entity {
	e, err := s.Get(context.Background(), kind, id)
	if err != nil {
		panic(err)
	}
	return e
}

// txStore overlays uncommitted writes on the parent store.
type txStore struct {
	base   *Store
	writes map[market.Kind]map[string]market.Entity
}

func (t *txStore) bucket(kind market.Kind) map[string]market.Entity {
	b, ok := t.writes[kind]
	if !ok {
		b = make(map[string]market.Entity)
		t.writes[kind] = b
	}
	return b
}

func (t *txStore) Get(ctx context.Context, kind market.Kind, id string) (market.Entity, error) {
	if e, ok := t.bucket(kind)[id]; ok {
		return clone(e), nil
	}
	return t.base.Get(ctx, kind, id)
}

func (t *txStore) Post(ctx context.Context, e market.Entity) error {
	if _, ok := t.bucket(e.EntityKind())[e.EntityID()]; ok {
		return fmt.Errorf("%w: %s %s already exists", market.ErrConflict, e.EntityKind(), e.EntityID())
	}
	if _, err := t.base.Get(ctx, e.EntityKind(), e.EntityID()); err == nil {
		return fmt.Errorf("%w: %s %s already exists", market.ErrConflict, e.EntityKind(), e.EntityID())
	}
	t.bucket(e.EntityKind())[e.EntityID()] = clone(e)
	return nil
}

func (t *txStore) Put(ctx context.Context, e market.Entity) error {
	t.bucket(e.EntityKind())[e.EntityID()] = clone(e)
	return nil
}

func (t *txStore) GetAll(ctx context.Context, kind market.Kind) ([]market.Entity, error) {
	all, err := t.base.GetAll(ctx, kind)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	out := make([]market.Entity, 0, len(all))
	for _, e := range all {
		if w, ok := t.bucket(kind)[e.EntityID()]; ok {
			out = append(out, clone(w))
		} else {
			out = append(out, e)
		}
		seen[e.EntityID()] = true
	}
	for id, w := range t.bucket(kind) {
		if !seen[id] {
			out = append(out, clone(w))
		}
	}
	return out, nil
}

// clone deep-copies an entity so callers cannot mutate stored state
// through returned pointers.
func clone(e market.Entity) market.Entity {
	switch v := e.(type) {
	case *market.User:
		c := *v
		c.LoanRequestIDs = append(market.IDList(nil), v.LoanRequestIDs...)
		c.MortgageIDs = append(market.IDList(nil), v.MortgageIDs...)
		c.InvestmentIDs = append(market.IDList(nil), v.InvestmentIDs...)
		c.CampaignIDs = append(market.IDList(nil), v.CampaignIDs...)
		return &c
	case *market.Profile:
		c := *v
		c.Documents = append(market.IDList(nil), v.Documents...)
		return &c
	case *market.House:
		c := *v
		return &c
	case *market.LoanRequest:
		c := *v
		c.BankIDs = append(market.IDList(nil), v.BankIDs...)
		c.BankStatus = make(market.StatusMap, len(v.BankStatus))
		for k, s := range v.BankStatus {
			c.BankStatus[k] = s
		}
		return &c
	case *market.Mortgage:
		c := *v
		c.InvestorIDs = append(market.IDList(nil), v.InvestorIDs...)
		return &c
	case *market.Investment:
		c := *v
		return &c
	case *market.Campaign:
		c := *v
		return &c
	default:
		return e
	}
}
