package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"mortgagemarket/internal/domain/market"
	"mortgagemarket/internal/domain/store"
)

// Store implements the Store Adapter contract on top of gorm, one table
// per entity kind.
type Store struct{ db *gorm.DB }

func New(db *gorm.DB) *Store { return &Store{db: db} }

// Migrate creates or updates the schema for every entity kind.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&market.User{},
		&market.Profile{},
		&market.House{},
		&market.LoanRequest{},
		&market.Mortgage{},
		&market.Investment{},
		&market.Campaign{},
	)
}

func (s *Store) Get(ctx context.Context, kind market.Kind, id string) (market.Entity, error) {
	out, ok := market.NewOfKind(kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", market.ErrValidation, kind)
	}
	res := s.db.WithContext(ctx).Where("id = ?", id).First(out)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s %s", market.ErrNotFound, kind, id)
		}
		return nil, res.Error
	}
	return out, nil
}

func (s *Store) Post(ctx context.Context, e market.Entity) error {
	var n int64
	if err := s.db.WithContext(ctx).Table(string(e.EntityKind())).
		Where("id = ?", e.EntityID()).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %s %s already present", market.ErrConflict, e.EntityKind(), e.EntityID())
	}
	return s.db.WithContext(ctx).Create(e).Error
}

func (s *Store) Put(ctx context.Context, e market.Entity) error {
	return s.db.WithContext(ctx).Save(e).Error
}

func (s *Store) GetAll(ctx context.Context, kind market.Kind) ([]market.Entity, error) {
	var out []market.Entity
	var err error
	collect := func(list any, to func(i int) market.Entity, n func() int) {
		if err = s.db.WithContext(ctx).Find(list).Error; err != nil {
			return
		}
		for i := 0; i < n(); i++ {
			out = append(out, to(i))
		}
	}
	switch kind {
	case market.KindUser:
		var rows []market.User
		collect(&rows, func(i int) market.Entity { return &rows[i] }, func() int { return len(rows) })
	case market.KindProfile:
		var rows []market.Profile
		collect(&rows, func(i int) market.Entity { return &rows[i] }, func() int { return len(rows) })
	case market.KindHouse:
		var rows []market.House
		collect(&rows, func(i int) market.Entity { return &rows[i] }, func() int { return len(rows) })
	case market.KindLoanRequest:
		var rows []market.LoanRequest
		collect(&rows, func(i int) market.Entity { return &rows[i] }, func() int { return len(rows) })
	case market.KindMortgage:
		var rows []market.Mortgage
		collect(&rows, func(i int) market.Entity { return &rows[i] }, func() int { return len(rows) })
	case market.KindInvestment:
		var rows []market.Investment
		collect(&rows, func(i int) market.Entity { return &rows[i] }, func() int { return len(rows) })
	case market.KindCampaign:
		var rows []market.Campaign
		collect(&rows, func(i int) market.Entity { return &rows[i] }, func() int { return len(rows) })
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", market.ErrValidation, kind)
	}
	return out, err
}

var _ store.Store = (*Store)(nil)
