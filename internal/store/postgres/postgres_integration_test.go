package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bakkal/backoffice/internal/store"
)

func newIntegrationStore(t *testing.T) (*Store, string) {
	t.Helper()
	databaseURL := os.Getenv("BACKOFFICE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BACKOFFICE_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	partition := fmt.Sprintf("it-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.pool.Exec(ctx, `DELETE FROM documents WHERE collection LIKE $1`, "users/"+partition+"/%")
		_ = s.Close()
	})
	return s, partition
}

func TestBatchIncrementAndRollback(t *testing.T) {
	s, partition := newIntegrationStore(t)
	ctx := context.Background()
	path := store.Doc(partition, store.Products, "8690000000001")

	b := s.Batch()
	b.Set(path, map[string]any{"name": "Ekmek", "stock": 10}, false)
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	b = s.Batch()
	b.Increment(path, "stock", decimal.NewFromInt(-4))
	b.Update(store.Doc(partition, store.Sales, "missing"), map[string]any{"status": "cancelled"})
	if err := b.Commit(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	b = s.Batch()
	b.Increment(path, "stock", decimal.NewFromInt(-4))
	b.Increment(store.Doc(partition, store.Products, "8690000000002"), "stock", decimal.NewFromInt(3))
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	doc, err := s.Get(ctx, path)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var p struct {
		Stock int `json:"stock"`
	}
	if err := doc.DataTo(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Stock != 6 {
		t.Fatalf("expected stock 6 after rollback and decrement, got %d", p.Stock)
	}

	created, err := s.Get(ctx, store.Doc(partition, store.Products, "8690000000002"))
	if err != nil {
		t.Fatalf("get created: %v", err)
	}
	if err := created.DataTo(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Stock != 3 {
		t.Fatalf("expected increment to create doc with stock 3, got %d", p.Stock)
	}
}

func TestListFiltersOpenSessions(t *testing.T) {
	s, partition := newIntegrationStore(t)
	ctx := context.Background()
	coll := store.Collection(partition, store.CashDrawerSessions)

	b := s.Batch()
	b.Set(store.Join(coll, "open"), map[string]any{"end_time": nil, "start_time": store.ServerTimestamp}, false)
	b.Set(store.Join(coll, "closed"), map[string]any{"end_time": "2025-01-01T00:00:00Z"}, false)
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	docs, err := s.List(ctx, coll, store.Query{}.Eq("end_time", nil))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "open" {
		t.Fatalf("expected only the open session, got %+v", docs)
	}
}
