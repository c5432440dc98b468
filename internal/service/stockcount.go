package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"bakkal/backoffice/internal/domain"
	"bakkal/backoffice/internal/store"
	"bakkal/backoffice/internal/xid"
)

// StockCount is a caller-owned handle on one count session. Scans accumulate
// in the handle until SaveSnapshot or Close persists them. A handle is not safe
// for concurrent use.
type StockCount struct {
	svc       *Service
	partition string
	session   domain.StockCountSession
}

func (s *Service) OpenStockCount(ctx context.Context, req domain.OpenCountRequest) (*StockCount, error) {
	count, err := s.openStockCount(ctx, req)
	id := ""
	if count != nil {
		id = count.session.ID
	}
	s.report(err, fmt.Sprintf("stock count %s opened", id), "open stock count failed")
	return count, err
}

func (s *Service) openStockCount(ctx context.Context, req domain.OpenCountRequest) (*StockCount, error) {
	session := domain.StockCountSession{
		ID:        xid.New("count"),
		Status:    domain.CountOpen,
		CountType: req.CountType,
		Note:      strings.TrimSpace(req.Note),
		Items:     map[string]domain.CountLine{},
	}
	switch req.CountType {
	case domain.CountFull:
	case domain.CountCategory:
		session.Categories = trimAll(req.Categories)
		if len(session.Categories) == 0 {
			return nil, fmt.Errorf("%w: category count needs at least one category", ErrInvalidInput)
		}
	case domain.CountSpecific:
		session.ProductIDs = trimAll(req.ProductIDs)
		if len(session.ProductIDs) == 0 {
			return nil, fmt.Errorf("%w: specific count needs at least one product", ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("%w: count type %q", ErrInvalidInput, req.CountType)
	}

	partition := s.partition(ctx)
	path := store.Doc(partition, store.StockCounts, session.ID)
	data, err := encode(session, "created_at")
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, path, data, false); err != nil {
		return nil, err
	}
	stored, err := getAs[domain.StockCountSession](ctx, s.store, path)
	if err != nil {
		return nil, err
	}
	return s.handle(partition, stored), nil
}

// ResumeStockCount loads a persisted session into a new handle.
func (s *Service) ResumeStockCount(ctx context.Context, id string) (*StockCount, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "/") {
		return nil, ErrInvalidInput
	}
	partition := s.partition(ctx)
	session, err := getAs[domain.StockCountSession](ctx, s.store, store.Doc(partition, store.StockCounts, id))
	if err != nil {
		return nil, err
	}
	return s.handle(partition, session), nil
}

func (s *Service) handle(partition string, session domain.StockCountSession) *StockCount {
	if session.Items == nil {
		session.Items = map[string]domain.CountLine{}
	}
	return &StockCount{svc: s, partition: partition, session: session}
}

func (s *Service) ListStockCounts(ctx context.Context) ([]domain.StockCountSession, error) {
	return listAs[domain.StockCountSession](ctx, s.store, store.Collection(s.partition(ctx), store.StockCounts), store.Query{OrderBy: "created_at", Desc: true})
}

// Session returns a copy of the handle's current state.
func (c *StockCount) Session() domain.StockCountSession {
	out := c.session
	out.Items = make(map[string]domain.CountLine, len(c.session.Items))
	for k, v := range c.session.Items {
		out.Items[k] = v
	}
	out.Categories = append([]string(nil), c.session.Categories...)
	out.ProductIDs = append([]string(nil), c.session.ProductIDs...)
	return out
}

// AddScan counts one unit of the product with the given barcode. The first
// scan of a product freezes its system quantity snapshot.
func (c *StockCount) AddScan(ctx context.Context, code string) (domain.CountLine, error) {
	if c.session.Status == domain.CountClosed {
		return domain.CountLine{}, ErrSessionClosed
	}
	code = strings.TrimSpace(code)
	if code == "" || strings.Contains(code, "/") {
		return domain.CountLine{}, ErrInvalidInput
	}
	product, err := getAs[domain.Product](ctx, c.svc.store, store.Doc(c.partition, store.Products, code))
	if err != nil {
		return domain.CountLine{}, err
	}
	if !c.inScope(product) {
		return domain.CountLine{}, fmt.Errorf("%w: %s", ErrOutOfScope, product.Barcode)
	}

	line, ok := c.session.Items[product.Barcode]
	if ok {
		line.CountedQty++
	} else {
		line = domain.CountLine{
			Name:              product.Name,
			SystemQtySnapshot: product.Stock,
			CountedQty:        1,
		}
	}
	line.LastCountedAt = c.svc.now()
	c.session.Items[product.Barcode] = line
	return line, nil
}

func (c *StockCount) inScope(p domain.Product) bool {
	switch c.session.CountType {
	case domain.CountCategory:
		category := domain.CategoryKey(p.Category)
		for _, allowed := range c.session.Categories {
			if domain.CategoryKey(allowed) == category {
				return true
			}
		}
		return false
	case domain.CountSpecific:
		for _, id := range c.session.ProductIDs {
			if id == p.Barcode {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// UpdateCount overwrites the counted quantity of an already scanned product.
// Negative quantities are clamped to zero.
func (c *StockCount) UpdateCount(productID string, qty int) (domain.CountLine, error) {
	if c.session.Status == domain.CountClosed {
		return domain.CountLine{}, ErrSessionClosed
	}
	productID = strings.TrimSpace(productID)
	line, ok := c.session.Items[productID]
	if !ok {
		return domain.CountLine{}, fmt.Errorf("%w: %s", ErrNotCounted, productID)
	}
	if qty < 0 {
		qty = 0
	}
	line.CountedQty = qty
	line.LastCountedAt = c.svc.now()
	c.session.Items[productID] = line
	return line, nil
}

// SaveSnapshot persists the scanned lines without touching stock. It refuses
// once the stored session is closed.
func (c *StockCount) SaveSnapshot(ctx context.Context) error {
	err := c.saveSnapshot(ctx)
	c.svc.report(err, fmt.Sprintf("stock count %s saved", c.session.ID), "save stock count failed")
	return err
}

func (c *StockCount) saveSnapshot(ctx context.Context) error {
	if err := c.ensureOpen(ctx); err != nil {
		return err
	}
	items, err := store.Encode(c.session.Items)
	if err != nil {
		return err
	}
	path := store.Doc(c.partition, store.StockCounts, c.session.ID)
	if err := c.svc.store.Update(ctx, path, map[string]any{
		"items":    items,
		"saved_at": store.ServerTimestamp,
	}); err != nil {
		return err
	}
	now := c.svc.now()
	c.session.SavedAt = &now
	return nil
}

// Close finalizes the session. With applyAdjustments every counted product's
// stock moves by exactly its variance in the same batch; uncounted products are
// never touched. The persisted status is re-read before the batch is built, but
// like the oversell window on FinalizeSale it is not re-checked at commit: two
// handles closing the same session at the same instant can both apply.
func (c *StockCount) Close(ctx context.Context, applyAdjustments bool) (domain.StockCountSession, error) {
	session, err := c.close(ctx, applyAdjustments)
	c.svc.report(err, fmt.Sprintf("stock count %s closed, variance %d", c.session.ID, session.TotalVariance), "close stock count failed")
	if err == nil {
		c.svc.logAudit(ctx, "stock_count_close", "stock_count", session.ID, fmt.Sprintf("lines=%d,variance=%d,applied=%t", session.TotalItems, session.TotalVariance, applyAdjustments))
	}
	return session, err
}

func (c *StockCount) close(ctx context.Context, applyAdjustments bool) (domain.StockCountSession, error) {
	if err := c.ensureOpen(ctx); err != nil {
		return domain.StockCountSession{}, err
	}

	totalCounted, totalVariance := 0, 0
	batch := c.svc.store.Batch()
	for _, id := range c.sortedIDs() {
		line := c.session.Items[id]
		totalCounted += line.CountedQty
		variance := line.Variance()
		totalVariance += variance
		if applyAdjustments && variance != 0 {
			batch.Increment(store.Doc(c.partition, store.Products, id), "stock", decimal.NewFromInt(int64(variance)))
		}
	}
	items, err := store.Encode(c.session.Items)
	if err != nil {
		return domain.StockCountSession{}, err
	}
	path := store.Doc(c.partition, store.StockCounts, c.session.ID)
	batch.Update(path, map[string]any{
		"status":              domain.CountClosed,
		"items":               items,
		"total_items":         len(c.session.Items),
		"total_counted":       totalCounted,
		"total_variance":      totalVariance,
		"adjustments_applied": applyAdjustments,
		"closed_at":           store.ServerTimestamp,
	})
	if err := batch.Commit(ctx); err != nil {
		return domain.StockCountSession{}, err
	}

	stored, err := getAs[domain.StockCountSession](ctx, c.svc.store, path)
	if err != nil {
		now := c.svc.now()
		stored = c.session
		stored.Status = domain.CountClosed
		stored.TotalItems = len(c.session.Items)
		stored.TotalCounted = totalCounted
		stored.TotalVariance = totalVariance
		stored.AdjustmentsApplied = applyAdjustments
		stored.ClosedAt = &now
	}
	c.session = stored
	if c.session.Items == nil {
		c.session.Items = map[string]domain.CountLine{}
	}
	return c.Session(), nil
}

// Variances reports every counted line ordered by product id.
func (c *StockCount) Variances() []domain.VarianceLine {
	out := make([]domain.VarianceLine, 0, len(c.session.Items))
	for _, id := range c.sortedIDs() {
		line := c.session.Items[id]
		out = append(out, domain.VarianceLine{
			ProductID:         id,
			Name:              line.Name,
			SystemQtySnapshot: line.SystemQtySnapshot,
			CountedQty:        line.CountedQty,
			Variance:          line.Variance(),
		})
	}
	return out
}

// ensureOpen fails when this handle or the stored session is closed. Another
// handle on the same session may have closed it since this one was resumed.
func (c *StockCount) ensureOpen(ctx context.Context) error {
	if c.session.Status == domain.CountClosed {
		return ErrSessionClosed
	}
	stored, err := getAs[domain.StockCountSession](ctx, c.svc.store, store.Doc(c.partition, store.StockCounts, c.session.ID))
	if err != nil {
		return err
	}
	if stored.Status == domain.CountClosed {
		c.session.Status = domain.CountClosed
		return ErrSessionClosed
	}
	return nil
}

func (c *StockCount) sortedIDs() []string {
	ids := make([]string, 0, len(c.session.Items))
	for id := range c.session.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
