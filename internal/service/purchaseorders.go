package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"bakkal/backoffice/internal/domain"
	"bakkal/backoffice/internal/store"
	"bakkal/backoffice/internal/xid"
)

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	order, err := s.createPurchaseOrder(ctx, req)
	s.report(err, fmt.Sprintf("purchase order %s created", order.ID), "create purchase order failed")
	return order, err
}

func (s *Service) createPurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	supplierID := strings.TrimSpace(req.SupplierID)
	if supplierID == "" || len(req.Items) == 0 {
		return domain.PurchaseOrder{}, ErrInvalidInput
	}
	items := make([]domain.PurchaseOrderLine, 0, len(req.Items))
	for _, line := range req.Items {
		line.ProductID = strings.TrimSpace(line.ProductID)
		if line.ProductID == "" || strings.Contains(line.ProductID, "/") {
			return domain.PurchaseOrder{}, ErrInvalidInput
		}
		if line.Qty < 1 || line.Price.IsNegative() {
			return domain.PurchaseOrder{}, fmt.Errorf("%w: line %s", ErrInvalidAmount, line.ProductID)
		}
		items = append(items, line)
	}

	order := domain.PurchaseOrder{
		ID:         xid.New("po"),
		SupplierID: supplierID,
		Status:     domain.PurchaseOrderDraft,
		Items:      items,
		Note:       strings.TrimSpace(req.Note),
	}
	path := store.Doc(s.partition(ctx), store.PurchaseOrders, order.ID)
	data, err := encode(order, "created_at")
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	if err := s.store.Set(ctx, path, data, false); err != nil {
		return domain.PurchaseOrder{}, err
	}
	return getAs[domain.PurchaseOrder](ctx, s.store, path)
}

// MarkPurchaseOrderSent moves a draft order to sent. Stock is not touched.
func (s *Service) MarkPurchaseOrderSent(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	order, err := s.markPurchaseOrderSent(ctx, id)
	s.report(err, fmt.Sprintf("purchase order %s sent", id), "mark purchase order sent failed")
	return order, err
}

func (s *Service) markPurchaseOrderSent(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	order, err := s.GetPurchaseOrder(ctx, id)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	if order.Status != domain.PurchaseOrderDraft {
		return domain.PurchaseOrder{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, domain.PurchaseOrderSent)
	}
	path := store.Doc(s.partition(ctx), store.PurchaseOrders, order.ID)
	if err := s.store.Update(ctx, path, map[string]any{
		"status":  domain.PurchaseOrderSent,
		"sent_at": store.ServerTimestamp,
	}); err != nil {
		return domain.PurchaseOrder{}, err
	}
	return getAs[domain.PurchaseOrder](ctx, s.store, path)
}

// ReceivePurchaseOrder adds every ordered quantity to stock and marks the order
// received in one batch. Lines whose product no longer exists still increment
// stock on a bare product document and are reported as warnings.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, id string) (domain.ReceiveResult, error) {
	result, err := s.receivePurchaseOrder(ctx, id)
	s.report(err, fmt.Sprintf("purchase order %s received", id), "receive purchase order failed")
	if err != nil {
		return domain.ReceiveResult{}, err
	}
	for _, barcode := range result.UnknownProducts {
		s.warn(fmt.Sprintf("%v: %s on purchase order %s was received onto a new stock-only product", ErrUnknownProduct, barcode, id))
	}
	s.logAudit(ctx, "purchase_order_receive", "purchase_order", id, fmt.Sprintf("lines=%d,unknown=%d", len(result.Order.Items), len(result.UnknownProducts)))
	return result, nil
}

func (s *Service) receivePurchaseOrder(ctx context.Context, id string) (domain.ReceiveResult, error) {
	order, err := s.GetPurchaseOrder(ctx, id)
	if err != nil {
		return domain.ReceiveResult{}, err
	}
	if order.Status == domain.PurchaseOrderReceived {
		return domain.ReceiveResult{}, ErrAlreadyReceived
	}

	partition := s.partition(ctx)
	batch := s.store.Batch()
	unknown := make([]string, 0)
	checked := make(map[string]bool, len(order.Items))
	for _, line := range order.Items {
		productPath := store.Doc(partition, store.Products, line.ProductID)
		if !checked[line.ProductID] {
			checked[line.ProductID] = true
			if _, err := s.store.Get(ctx, productPath); err != nil {
				if !isNotFound(err) {
					return domain.ReceiveResult{}, err
				}
				unknown = append(unknown, line.ProductID)
			}
		}
		// Increment creates the document when the product is gone.
		batch.Increment(productPath, "stock", decimal.NewFromInt(int64(line.Qty)))
	}

	path := store.Doc(partition, store.PurchaseOrders, order.ID)
	batch.Update(path, map[string]any{
		"status":           domain.PurchaseOrderReceived,
		"received_at":      store.ServerTimestamp,
		"unknown_products": unknown,
	})
	if err := batch.Commit(ctx); err != nil {
		return domain.ReceiveResult{}, err
	}

	stored, err := getAs[domain.PurchaseOrder](ctx, s.store, path)
	if err != nil {
		return domain.ReceiveResult{}, err
	}
	return domain.ReceiveResult{Order: stored, UnknownProducts: unknown}, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "/") {
		return domain.PurchaseOrder{}, ErrInvalidInput
	}
	return getAs[domain.PurchaseOrder](ctx, s.store, store.Doc(s.partition(ctx), store.PurchaseOrders, id))
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status domain.PurchaseOrderStatus) ([]domain.PurchaseOrder, error) {
	q := store.Query{OrderBy: "created_at", Desc: true}
	if status != "" {
		q = q.Eq("status", status)
	}
	return listAs[domain.PurchaseOrder](ctx, s.store, store.Collection(s.partition(ctx), store.PurchaseOrders), q)
}
