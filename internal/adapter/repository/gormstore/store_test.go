package gormstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mortgagemarket/internal/domain/market"
	"mortgagemarket/internal/domain/store"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// One private in-memory db per test.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestPostGetRoundTrip(t *testing.T) {
	s := New(newTestDB(t))
	ctx := context.Background()

	u := &market.User{
		ID:             "borrower-key",
		Role:           market.RoleBorrower,
		LoanRequestIDs: market.IDList{"r1", "r2"},
		TimeAdded:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := s.Post(ctx, u); err != nil {
		t.Fatalf("Post: %v", err)
	}

	got, err := s.Get(ctx, market.KindUser, "borrower-key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	loaded := got.(*market.User)
	if loaded.Role != market.RoleBorrower {
		t.Fatalf("role=%v", loaded.Role)
	}
	// The serializer:json column must survive the round trip.
	if len(loaded.LoanRequestIDs) != 2 || !loaded.LoanRequestIDs.Contains("r2") {
		t.Fatalf("id list: %v", loaded.LoanRequestIDs)
	}
}

func TestPostConflictOnDuplicate(t *testing.T) {
	s := New(newTestDB(t))
	ctx := context.Background()

	h := &market.House{ID: "house-1", Price: 300_000}
	if err := s.Post(ctx, h); err != nil {
		t.Fatal(err)
	}
	if err := s.Post(ctx, h); !errors.Is(err, market.ErrConflict) {
		t.Fatalf("duplicate post: err=%v, want conflict", err)
	}
}

func TestGetNotFound(t *testing.T) {
	s := New(newTestDB(t))
	if _, err := s.Get(context.Background(), market.KindMortgage, "missing"); !errors.Is(err, market.ErrNotFound) {
		t.Fatalf("err=%v, want not found", err)
	}
	if _, err := s.Get(context.Background(), "bogus", "x"); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("unknown kind: err=%v, want validation", err)
	}
}

func TestPutUpserts(t *testing.T) {
	s := New(newTestDB(t))
	ctx := context.Background()

	c := &market.Campaign{ID: "c1", MortgageID: "m1", Goal: 50_000, Remaining: 50_000}
	// Put on a fresh id inserts.
	if err := s.Put(ctx, c); err != nil {
		t.Fatalf("insert via Put: %v", err)
	}
	c.Remaining = 30_000
	if err := s.Put(ctx, c); err != nil {
		t.Fatalf("update via Put: %v", err)
	}
	got, err := s.Get(ctx, market.KindCampaign, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.(*market.Campaign).Remaining != 30_000 {
		t.Fatalf("remaining=%v", got.(*market.Campaign).Remaining)
	}
}

func TestGetAll(t *testing.T) {
	s := New(newTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m := &market.Mortgage{ID: fmt.Sprintf("m%d", i), RequestID: "r1", Status: market.StatusPending}
		if err := s.Post(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	all, err := s.GetAll(ctx, market.KindMortgage)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d rows", len(all))
	}
	if _, err := s.GetAll(ctx, "bogus"); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("unknown kind: err=%v", err)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	uow := NewUoW(db)
	s := New(db)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := uow.WithinTx(ctx, func(tx store.Store) error {
		if err := tx.Post(ctx, &market.House{ID: "h1", Price: 1}); err != nil {
			return err
		}
		if err := tx.Post(ctx, &market.Campaign{ID: "c1"}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err=%v", err)
	}
	if _, err := s.Get(ctx, market.KindHouse, "h1"); !errors.Is(err, market.ErrNotFound) {
		t.Fatal("rolled-back house still visible")
	}
	if _, err := s.Get(ctx, market.KindCampaign, "c1"); !errors.Is(err, market.ErrNotFound) {
		t.Fatal("rolled-back campaign still visible")
	}
}

func TestWithinTxCommits(t *testing.T) {
	db := newTestDB(t)
	uow := NewUoW(db)
	s := New(db)
	ctx := context.Background()

	err := uow.WithinTx(ctx, func(tx store.Store) error {
		return tx.Post(ctx, &market.House{ID: "h2", Price: 2})
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, market.KindHouse, "h2"); err != nil {
		t.Fatalf("committed house missing: %v", err)
	}
}

func TestPostOrPut(t *testing.T) {
	s := New(newTestDB(t))
	ctx := context.Background()

	inv := &market.Investment{ID: "i1", Amount: 10_000, Status: market.StatusPending}
	if err := store.PostOrPut(ctx, s, inv); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	inv.Status = market.StatusAccepted
	if err := store.PostOrPut(ctx, s, inv); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err := s.Get(ctx, market.KindInvestment, "i1")
	if err != nil {
		t.Fatal(err)
	}
	if got.(*market.Investment).Status != market.StatusAccepted {
		t.Fatalf("status=%s", got.(*market.Investment).Status)
	}
}
