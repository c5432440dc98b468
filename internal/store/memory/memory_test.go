package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bakkal/backoffice/internal/domain"
	"bakkal/backoffice/internal/store"
)

func TestBatchIsAllOrNothing(t *testing.T) {
	s := New()
	ctx := context.Background()

	b := s.Batch()
	b.Set("users/u1/products/p1", map[string]any{"name": "Ekmek"}, false)
	b.Increment("users/u1/products/p1", "stock", decimal.NewFromInt(5))
	b.Update("users/u1/products/missing", map[string]any{"name": "x"})
	err := b.Commit(ctx)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, "users/u1/products/p1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no partial write, got %v", err)
	}
}

func TestIncrementCreatesMissingDocument(t *testing.T) {
	s := New()
	ctx := context.Background()

	b := s.Batch()
	b.Increment("users/u1/products/p1", "stock", decimal.NewFromInt(-3))
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b = s.Batch()
	b.Increment("users/u1/products/p1", "stock", decimal.NewFromInt(10))
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	doc, err := s.Get(ctx, "users/u1/products/p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var p domain.Product
	if err := doc.DataTo(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Stock != 7 {
		t.Fatalf("expected stock 7, got %d", p.Stock)
	}
}

func TestServerTimestampResolvesToCommitTime(t *testing.T) {
	s := New()
	fixed := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })
	ctx := context.Background()

	if err := s.Set(ctx, "users/u1/sales/s1", map[string]any{"timestamp": store.ServerTimestamp}, false); err != nil {
		t.Fatalf("set: %v", err)
	}
	doc, err := s.Get(ctx, "users/u1/sales/s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var sale domain.SaleRecord
	if err := doc.DataTo(&sale); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !sale.Timestamp.Equal(fixed) {
		t.Fatalf("expected %v, got %v", fixed, sale.Timestamp)
	}
}

func TestFailNextCommitLeavesStoreUntouched(t *testing.T) {
	s := NewSeeded("u1")
	ctx := context.Background()
	boom := errors.New("boom")
	s.FailNextCommit(boom)

	b := s.Batch()
	b.Increment(store.Doc("u1", store.Products, "8690504000017"), "stock", decimal.NewFromInt(-1))
	if err := b.Commit(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}

	doc, err := s.Get(ctx, store.Doc("u1", store.Products, "8690504000017"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var p domain.Product
	if err := doc.DataTo(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Stock != 40 {
		t.Fatalf("expected seeded stock 40, got %d", p.Stock)
	}
}

func TestListFiltersNullAndOrders(t *testing.T) {
	s := New()
	ctx := context.Background()
	coll := store.Collection("u1", store.CashDrawerSessions)

	b := s.Batch()
	b.Set(store.Join(coll, "a"), map[string]any{"end_time": nil, "rank": 2}, false)
	b.Set(store.Join(coll, "b"), map[string]any{"end_time": "2025-01-01T00:00:00Z", "rank": 1}, false)
	b.Set(store.Join(coll, "c"), map[string]any{"rank": 10}, false)
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	open, err := s.List(ctx, coll, store.Query{}.Eq("end_time", nil))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 docs without end_time, got %d", len(open))
	}

	ordered, err := s.List(ctx, coll, store.Query{OrderBy: "rank", Desc: true, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ordered) != 2 || ordered[0].ID != "c" || ordered[1].ID != "a" {
		t.Fatalf("unexpected order: %+v", ordered)
	}
}

func TestSubscribeDeliversLatestSnapshot(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	coll := store.Collection("u1", store.Products)

	ch, err := s.Subscribe(ctx, coll, store.Query{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	first := <-ch
	if len(first.Docs) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d docs", len(first.Docs))
	}

	for i := 1; i <= 3; i++ {
		b := s.Batch()
		b.Increment(store.Join(coll, "p1"), "stock", decimal.NewFromInt(1))
		if err := b.Commit(context.Background()); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	latest := <-ch
	if len(latest.Docs) != 1 {
		t.Fatalf("expected 1 doc, got %d", len(latest.Docs))
	}
	var p domain.Product
	if err := latest.Docs[0].DataTo(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Stock != 3 {
		t.Fatalf("expected coalesced snapshot with stock 3, got %d", p.Stock)
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected channel to close after cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscription did not close")
	}
}
