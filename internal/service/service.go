package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bakkal/backoffice/internal/cache"
	"bakkal/backoffice/internal/domain"
	"bakkal/backoffice/internal/notify"
	"bakkal/backoffice/internal/store"
	"bakkal/backoffice/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DefaultPartition string
	CostMethod       domain.CostMethod
	MarkupPercent    decimal.Decimal
	DefaultVATRate   decimal.Decimal
	DiscountTTL      time.Duration
}

type Service struct {
	store     store.Store
	discounts cache.DiscountCache
	notifier  notify.Sink
	opts      Options
	now       func() time.Time
}

func New(st store.Store, discounts cache.DiscountCache, notifier notify.Sink, opts Options) *Service {
	if discounts == nil {
		discounts = cache.NoopDiscountCache{}
	}
	if notifier == nil {
		notifier = notify.LogSink{}
	}
	if opts.DefaultPartition == "" {
		opts.DefaultPartition = "default"
	}
	if opts.CostMethod != domain.CostWeighted {
		opts.CostMethod = domain.CostLast
	}
	if opts.DiscountTTL <= 0 {
		opts.DiscountTTL = 5 * time.Minute
	}

	return &Service{
		store:     st,
		discounts: discounts,
		notifier:  notifier,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// partition is the document namespace of the caller: the actor's subject, or
// the configured default when the context carries no actor.
func (s *Service) partition(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && strings.TrimSpace(actor.UserID) != "" {
		return strings.TrimSpace(actor.UserID)
	}
	return s.opts.DefaultPartition
}

// report issues the single pass/fail notification of a mutating operation.
func (s *Service) report(err error, success string, failure string) {
	if err != nil {
		s.notifier.Notify(notify.Error, fmt.Sprintf("%s: %v", failure, err))
		return
	}
	s.notifier.Notify(notify.Success, success)
}

func (s *Service) warn(message string) {
	s.notifier.Notify(notify.Warning, message)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{UserID: "system", Role: "system"}
	}
	partition := s.partition(ctx)
	entry := domain.AuditLog{
		ID:         xid.New("audit"),
		Actor:      actor.UserID,
		Role:       actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
	}
	data, err := encode(entry, "created_at")
	if err == nil {
		err = s.store.Set(ctx, store.Doc(partition, store.AuditLogs, entry.ID), data, false)
	}
	if err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return listAs[domain.AuditLog](ctx, s.store, store.Collection(s.partition(ctx), store.AuditLogs), store.Query{OrderBy: "created_at", Desc: true, Limit: limit})
}

var watchable = map[string]string{
	"products":           store.Products,
	"sales":              store.Sales,
	"purchases":          store.Purchases,
	"purchaseOrders":     store.PurchaseOrders,
	"payments":           store.Payments,
	"stockCounts":        store.StockCounts,
	"cashDrawerSessions": store.CashDrawerSessions,
	"categoryDiscounts":  store.CategoryDiscounts,
}

// Watch streams live snapshots of one of the caller's collections.
func (s *Service) Watch(ctx context.Context, name string) (<-chan store.Snapshot, error) {
	collection, ok := watchable[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrInvalidInput, name)
	}
	return s.store.Subscribe(ctx, store.Collection(s.partition(ctx), collection), store.Query{})
}

// encode converts v into document fields, replacing each named field with the
// commit timestamp.
func encode(v any, stamped ...string) (map[string]any, error) {
	data, err := store.Encode(v)
	if err != nil {
		return nil, err
	}
	for _, field := range stamped {
		data[field] = store.ServerTimestamp
	}
	return data, nil
}

func getAs[T any](ctx context.Context, st store.Store, path string) (T, error) {
	var out T
	doc, err := st.Get(ctx, path)
	if err != nil {
		return out, err
	}
	if err := doc.DataTo(&out); err != nil {
		return out, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

func listAs[T any](ctx context.Context, st store.Store, collection string, q store.Query) ([]T, error) {
	docs, err := st.List(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var item T
		if err := doc.DataTo(&item); err != nil {
			return nil, fmt.Errorf("decode %s: %w", doc.Path, err)
		}
		out = append(out, item)
	}
	return out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func money(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}
