package gormstore

import (
	"context"

	"gorm.io/gorm"

	"mortgagemarket/internal/domain/store"
)

// UoW runs engine operations inside a single gorm transaction so that a
// multi-entity mutation commits or rolls back as one.
type UoW struct{ db *gorm.DB }

func NewUoW(db *gorm.DB) *UoW { return &UoW{db: db} }

func (u *UoW) WithinTx(ctx context.Context, fn func(s store.Store) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

var _ store.UnitOfWork = (*UoW)(nil)
