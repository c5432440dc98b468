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

// FinalizeSale records a sale and decrements stock for every line in one batch.
// Availability is checked against the stock read before the batch and is not
// re-validated at commit time, so concurrent sales can oversell.
func (s *Service) FinalizeSale(ctx context.Context, req domain.FinalizeSaleRequest) (domain.SaleRecord, error) {
	sale, products, err := s.finalizeSale(ctx, req)
	s.report(err, fmt.Sprintf("sale %s recorded, total %s", sale.ID, sale.Total.StringFixed(2)), "sale failed")
	if err != nil {
		return domain.SaleRecord{}, err
	}

	for _, item := range sale.Items {
		p := products[item.ProductID]
		remaining := p.Stock - item.Quantity
		if remaining <= p.CriticalStockLevel {
			s.warn(fmt.Sprintf("low stock: %s (%s) has %d left, critical level %d", p.Name, p.Barcode, remaining, p.CriticalStockLevel))
		}
	}
	return sale, nil
}

func (s *Service) finalizeSale(ctx context.Context, req domain.FinalizeSaleRequest) (domain.SaleRecord, map[string]domain.Product, error) {
	if len(req.Lines) == 0 {
		return domain.SaleRecord{}, nil, ErrEmptyCart
	}
	if !req.PaymentMethod.Valid() {
		return domain.SaleRecord{}, nil, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, req.PaymentMethod)
	}
	if req.TransactionDiscount.IsNegative() {
		return domain.SaleRecord{}, nil, fmt.Errorf("%w: negative transaction discount", ErrInvalidAmount)
	}
	lines, err := mergeLines(req.Lines)
	if err != nil {
		return domain.SaleRecord{}, nil, err
	}

	products, err := s.loadProducts(ctx, lines)
	if err != nil {
		return domain.SaleRecord{}, nil, err
	}
	for _, line := range lines {
		p := products[line.Barcode]
		if p.Stock < line.Quantity {
			return domain.SaleRecord{}, nil, &InsufficientStockError{
				ProductID: p.Barcode,
				Name:      p.Name,
				Requested: line.Quantity,
				Available: p.Stock,
			}
		}
	}

	discounts, err := s.storedCategoryDiscounts(ctx, s.partition(ctx))
	if err != nil {
		return domain.SaleRecord{}, nil, err
	}
	items, subTotal := priceLines(lines, products, discounts)

	sale := domain.SaleRecord{
		ID:                  xid.New("sale"),
		Items:               items,
		SubTotal:            subTotal,
		TransactionDiscount: req.TransactionDiscount,
		Customer:            normalizeCustomer(req.Customer),
	}
	switch req.PaymentMethod {
	case domain.PaymentCredit:
		sale.Type = domain.SaleTypeCredit
		sale.Status = domain.SaleStatusUnpaid
		sale.Total = saleTotal(subTotal, req.TransactionDiscount)
	case domain.PaymentPersonnel:
		sale.Type = domain.SaleTypePersonnel
		sale.Status = domain.SaleStatusCompleted
		sale.Total = decimal.Zero
	default:
		method := req.PaymentMethod
		sale.Type = domain.SaleTypeSale
		sale.Status = domain.SaleStatusCompleted
		sale.PaymentMethod = &method
		sale.Total = saleTotal(subTotal, req.TransactionDiscount)
	}

	partition := s.partition(ctx)
	path := store.Doc(partition, store.Sales, sale.ID)
	data, err := encode(sale, "timestamp")
	if err != nil {
		return domain.SaleRecord{}, nil, err
	}
	batch := s.store.Batch()
	batch.Set(path, data, false)
	for _, item := range sale.Items {
		batch.Increment(store.Doc(partition, store.Products, item.ProductID), "stock", decimal.NewFromInt(int64(-item.Quantity)))
	}
	if err := batch.Commit(ctx); err != nil {
		return domain.SaleRecord{}, nil, err
	}

	stored, err := getAs[domain.SaleRecord](ctx, s.store, path)
	if err != nil {
		sale.Timestamp = s.now()
		return sale, products, nil
	}
	return stored, products, nil
}

func saleTotal(subTotal decimal.Decimal, discount decimal.Decimal) decimal.Decimal {
	total := subTotal.Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

func normalizeCustomer(c *domain.CustomerInfo) *domain.CustomerInfo {
	if c == nil {
		return nil
	}
	out := domain.CustomerInfo{
		Name:  strings.TrimSpace(c.Name),
		Phone: strings.TrimSpace(c.Phone),
		Note:  strings.TrimSpace(c.Note),
	}
	if out.Name == "" && out.Phone == "" && out.Note == "" {
		return nil
	}
	return &out
}

// InstantSale sells a single unit of one product with no transaction discount.
func (s *Service) InstantSale(ctx context.Context, barcode string, method domain.PaymentMethod) (domain.SaleRecord, error) {
	return s.FinalizeSale(ctx, domain.FinalizeSaleRequest{
		Lines:         []domain.CartLine{{Barcode: barcode, Quantity: 1}},
		PaymentMethod: method,
	})
}

// CancelSale restores stock for every line of sale and marks it cancelled. The
// status check uses the record the caller passes in; pass a fresh one.
func (s *Service) CancelSale(ctx context.Context, sale domain.SaleRecord) (domain.SaleRecord, error) {
	cancelled, err := s.cancelSale(ctx, sale)
	s.report(err, fmt.Sprintf("sale %s cancelled", sale.ID), "cancel sale failed")
	if err == nil {
		s.logAudit(ctx, "sale_cancel", "sale", sale.ID, fmt.Sprintf("total=%s,items=%d", sale.Total.StringFixed(2), len(sale.Items)))
	}
	return cancelled, err
}

func (s *Service) cancelSale(ctx context.Context, sale domain.SaleRecord) (domain.SaleRecord, error) {
	if sale.Status == domain.SaleStatusCancelled || sale.Type == domain.SaleTypeCancelled {
		return domain.SaleRecord{}, ErrAlreadyCancelled
	}
	if len(sale.Items) == 0 {
		return domain.SaleRecord{}, ErrMissingItems
	}
	if strings.TrimSpace(sale.ID) == "" {
		return domain.SaleRecord{}, ErrInvalidInput
	}

	partition := s.partition(ctx)
	path := store.Doc(partition, store.Sales, sale.ID)
	batch := s.store.Batch()
	for _, item := range sale.Items {
		batch.Increment(store.Doc(partition, store.Products, item.ProductID), "stock", decimal.NewFromInt(int64(item.Quantity)))
	}
	batch.Update(path, map[string]any{
		"type":         domain.SaleTypeCancelled,
		"status":       domain.SaleStatusCancelled,
		"cancelled_at": store.ServerTimestamp,
	})
	if err := batch.Commit(ctx); err != nil {
		return domain.SaleRecord{}, err
	}
	return getAs[domain.SaleRecord](ctx, s.store, path)
}

// CancelSaleByID loads the current record and cancels it.
func (s *Service) CancelSaleByID(ctx context.Context, id string) (domain.SaleRecord, error) {
	sale, err := s.GetSale(ctx, id)
	if err != nil {
		s.report(err, "", "cancel sale failed")
		return domain.SaleRecord{}, err
	}
	return s.CancelSale(ctx, sale)
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.SaleRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "/") {
		return domain.SaleRecord{}, ErrInvalidInput
	}
	return getAs[domain.SaleRecord](ctx, s.store, store.Doc(s.partition(ctx), store.Sales, id))
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.SaleRecord, error) {
	q := store.Query{OrderBy: "timestamp", Desc: true, Limit: filter.Limit}
	if filter.Type != "" {
		q = q.Eq("type", filter.Type)
	}
	if filter.Status != "" {
		q = q.Eq("status", filter.Status)
	}
	return listAs[domain.SaleRecord](ctx, s.store, store.Collection(s.partition(ctx), store.Sales), q)
}
