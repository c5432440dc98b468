package memory

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bakkal/backoffice/internal/domain"
	"bakkal/backoffice/internal/store"
)

type entry struct {
	data    map[string]any
	updated time.Time
}

type subscriber struct {
	collection string
	query      store.Query
	ch         chan store.Snapshot
}

type Store struct {
	mu       sync.RWMutex
	docs     map[string]map[string]entry
	subs     map[*subscriber]struct{}
	now      func() time.Time
	failNext error
}

func New() *Store {
	return &Store{
		docs: make(map[string]map[string]entry),
		subs: make(map[*subscriber]struct{}),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// NewSeeded returns a store holding a small demo catalog in partition.
func NewSeeded(partition string) *Store {
	s := New()
	products := []domain.Product{
		{Barcode: "8690504000017", Name: "Ekmek", Category: "Fırın", Stock: 40, PurchasePrice: dec("6"), SalePrice: dec("10"), CriticalStockLevel: 10},
		{Barcode: "8690504000024", Name: "Süt 1L", Category: "Süt Ürünleri", Stock: 24, PurchasePrice: dec("22.5"), SalePrice: dec("32"), CriticalStockLevel: 6},
		{Barcode: "8690504000031", Name: "Ayran 300ml", Category: "İçecek", Stock: 36, PurchasePrice: dec("8"), SalePrice: dec("14"), CriticalStockLevel: 12},
		{Barcode: "8690504000048", Name: "Çay 1kg", Category: "İçecek", Stock: 12, PurchasePrice: dec("180"), SalePrice: dec("245"), CriticalStockLevel: 3},
		{Barcode: "8690504000055", Name: "Beyaz Peynir 500g", Category: "Süt Ürünleri", Stock: 10, PurchasePrice: dec("95"), SalePrice: dec("140"), CriticalStockLevel: 4, DiscountValue: dec("10"), DiscountType: domain.DiscountFixed},
		{Barcode: "8690504000062", Name: "Makarna 500g", Category: "Bakliyat", Stock: 50, PurchasePrice: dec("12"), SalePrice: dec("19.9"), CriticalStockLevel: 15},
		{Barcode: "8690504000079", Name: "Pirinç 1kg", Category: "Bakliyat", Stock: 20, PurchasePrice: dec("48"), SalePrice: dec("69.9"), CriticalStockLevel: 5},
		{Barcode: "8690504000086", Name: "Deterjan 3kg", Category: "Temizlik", Stock: 8, PurchasePrice: dec("160"), SalePrice: dec("229"), CriticalStockLevel: 2},
	}
	now := s.now()
	batch := s.Batch()
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		data, err := store.Encode(p)
		if err != nil {
			log.Fatalf("[memory-store] failed to encode seed product %s: %v", p.Barcode, err)
		}
		batch.Set(store.Doc(partition, store.Products, p.Barcode), data, false)
	}
	discount, err := store.Encode(domain.CategoryDiscount{
		Category:      "İçecek",
		DiscountValue: dec("10"),
		DiscountType:  domain.DiscountPercentage,
		UpdatedAt:     now,
	})
	if err != nil {
		log.Fatalf("[memory-store] failed to encode seed discount: %v", err)
	}
	batch.Set(store.Doc(partition, store.CategoryDiscounts, domain.CategoryKey("İçecek")), discount, false)
	if err := batch.Commit(context.Background()); err != nil {
		log.Fatalf("[memory-store] failed to seed: %v", err)
	}
	return s
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// SetClock replaces the commit clock.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailNextCommit makes the next batch commit return err without applying anything.
func (s *Store) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Store) Get(_ context.Context, path string) (*store.Document, error) {
	collection, id, err := store.Split(path)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[collection][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, path)
	}
	doc := toDocument(collection, id, e)
	return &doc, nil
}

func (s *Store) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	b := s.Batch()
	b.Set(path, data, merge)
	return b.Commit(ctx)
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	b := s.Batch()
	b.Update(path, fields)
	return b.Commit(ctx)
}

func (s *Store) Delete(ctx context.Context, path string) error {
	b := s.Batch()
	b.Delete(path)
	return b.Commit(ctx)
}

func (s *Store) List(_ context.Context, collection string, q store.Query) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(collection, q), nil
}

func (s *Store) listLocked(collection string, q store.Query) []store.Document {
	docs := make([]store.Document, 0, len(s.docs[collection]))
	for id, e := range s.docs[collection] {
		if store.Matches(e.data, q) {
			docs = append(docs, toDocument(collection, id, e))
		}
	}
	return store.Arrange(docs, q)
}

func (s *Store) Subscribe(ctx context.Context, collection string, q store.Query) (<-chan store.Snapshot, error) {
	sub := &subscriber{collection: collection, query: q, ch: make(chan store.Snapshot, 1)}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	store.Latest(sub.ch, store.Snapshot{Collection: collection, Docs: s.listLocked(collection, q), At: s.now()})
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[sub]; ok {
			delete(s.subs, sub)
			close(sub.ch)
		}
	}()
	return sub.ch, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		delete(s.subs, sub)
		close(sub.ch)
	}
	return nil
}

func (s *Store) Batch() store.Batch {
	return &batch{store: s}
}

type batch struct {
	store.Ops
	store *Store
}

type staged struct {
	data    map[string]any
	deleted bool
}

func (b *batch) Commit(_ context.Context) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}

	at := s.now()
	pending := make(map[string]*staged)
	order := make([]string, 0, len(b.List))
	current := func(path string) (map[string]any, bool) {
		if st, ok := pending[path]; ok {
			if st.deleted {
				return nil, false
			}
			return st.data, true
		}
		collection, id, _ := store.Split(path)
		e, ok := s.docs[collection][id]
		if !ok {
			return nil, false
		}
		return cloneMap(e.data), true
	}
	put := func(path string, st *staged) {
		if _, ok := pending[path]; !ok {
			order = append(order, path)
		}
		pending[path] = st
	}

	for _, op := range b.List {
		switch op.Kind {
		case store.OpSet:
			data, err := store.Normalize(op.Data, at)
			if err != nil {
				return err
			}
			put(op.Path, &staged{data: data})
		case store.OpMerge, store.OpUpdate:
			existing, ok := current(op.Path)
			if !ok {
				if op.Kind == store.OpUpdate {
					return fmt.Errorf("%w: %s", store.ErrNotFound, op.Path)
				}
				existing = map[string]any{}
			}
			fields, err := store.Normalize(op.Data, at)
			if err != nil {
				return err
			}
			for k, v := range fields {
				existing[k] = v
			}
			put(op.Path, &staged{data: existing})
		case store.OpDelete:
			put(op.Path, &staged{deleted: true})
		case store.OpIncrement:
			existing, ok := current(op.Path)
			if !ok {
				existing = map[string]any{}
			}
			existing[op.Field] = store.AddNumber(existing[op.Field], op.Delta)
			put(op.Path, &staged{data: existing})
		}
	}

	touched := make(map[string]struct{})
	for _, path := range order {
		collection, id, _ := store.Split(path)
		touched[collection] = struct{}{}
		st := pending[path]
		if st.deleted {
			delete(s.docs[collection], id)
			continue
		}
		if s.docs[collection] == nil {
			s.docs[collection] = make(map[string]entry)
		}
		s.docs[collection][id] = entry{data: st.data, updated: at}
	}

	for sub := range s.subs {
		if _, ok := touched[sub.collection]; ok {
			store.Latest(sub.ch, store.Snapshot{Collection: sub.collection, Docs: s.listLocked(sub.collection, sub.query), At: at})
		}
	}
	return nil
}

func toDocument(collection string, id string, e entry) store.Document {
	return store.Document{
		Path:       store.Join(collection, id),
		ID:         id,
		Data:       cloneMap(e.data),
		UpdateTime: e.updated,
	}
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return t
	}
}
