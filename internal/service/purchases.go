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

var hundred = decimal.NewFromInt(100)

type costState struct {
	exists bool
	stock  int
	cost   decimal.Decimal
}

// RecordPurchase receives goods from a supplier invoice. Known products get a
// stock increment and a new purchase price; unknown barcodes become products
// priced at cost plus the configured markup.
func (s *Service) RecordPurchase(ctx context.Context, req domain.RecordPurchaseRequest) (domain.PurchaseRecord, error) {
	record, err := s.recordPurchase(ctx, req)
	s.report(err, fmt.Sprintf("purchase %s recorded, grand total %s", record.ID, record.GrandTotal.StringFixed(2)), "purchase failed")
	if err == nil {
		s.logAudit(ctx, "purchase_record", "purchase", record.ID, fmt.Sprintf("supplier=%s,lines=%d", record.Supplier, len(record.Items)))
	}
	return record, err
}

func (s *Service) recordPurchase(ctx context.Context, req domain.RecordPurchaseRequest) (domain.PurchaseRecord, error) {
	if len(req.Items) == 0 {
		return domain.PurchaseRecord{}, fmt.Errorf("%w: purchase has no lines", ErrInvalidInput)
	}
	vatRate := s.opts.DefaultVATRate
	if req.VATRate != nil {
		vatRate = *req.VATRate
	}
	if vatRate.IsNegative() || vatRate.GreaterThan(hundred) {
		return domain.PurchaseRecord{}, fmt.Errorf("%w: vat rate %s", ErrInvalidAmount, vatRate)
	}

	partition := s.partition(ctx)
	states := make(map[string]*costState)
	items := make([]domain.PurchaseLine, 0, len(req.Items))
	batch := s.store.Batch()
	subTotal := decimal.Zero

	for _, line := range req.Items {
		line.Barcode = strings.TrimSpace(line.Barcode)
		line.Name = strings.TrimSpace(line.Name)
		line.Category = strings.TrimSpace(line.Category)
		if line.Barcode == "" || strings.Contains(line.Barcode, "/") {
			return domain.PurchaseRecord{}, ErrInvalidInput
		}
		if line.Quantity < 1 || line.UnitCost.IsNegative() {
			return domain.PurchaseRecord{}, fmt.Errorf("%w: line %s", ErrInvalidAmount, line.Barcode)
		}

		path := store.Doc(partition, store.Products, line.Barcode)
		state, ok := states[line.Barcode]
		if !ok {
			state = &costState{}
			existing, err := getAs[domain.Product](ctx, s.store, path)
			switch {
			case err == nil:
				state.exists = true
				state.stock = existing.Stock
				state.cost = existing.PurchasePrice
				if line.Name == "" {
					line.Name = existing.Name
				}
			case isNotFound(err):
			default:
				return domain.PurchaseRecord{}, err
			}
			states[line.Barcode] = state
		}

		if state.exists {
			state.cost = s.nextCost(state.stock, state.cost, line.Quantity, line.UnitCost)
			batch.Update(path, map[string]any{
				"purchase_price": state.cost,
				"updated_at":     store.ServerTimestamp,
			})
		} else {
			if line.Name == "" {
				return domain.PurchaseRecord{}, fmt.Errorf("%w: new product %s needs a name", ErrInvalidInput, line.Barcode)
			}
			line.NewProduct = true
			product := domain.Product{
				Barcode:       line.Barcode,
				Name:          line.Name,
				Category:      line.Category,
				PurchasePrice: line.UnitCost,
				SalePrice:     money(line.UnitCost.Mul(hundred.Add(s.opts.MarkupPercent)).Div(hundred)),
				DiscountType:  domain.DiscountPercentage,
			}
			data, err := encode(product, "created_at", "updated_at")
			if err != nil {
				return domain.PurchaseRecord{}, err
			}
			delete(data, "stock")
			batch.Set(path, data, true)
			state.exists = true
			state.cost = line.UnitCost
		}
		batch.Increment(path, "stock", decimal.NewFromInt(int64(line.Quantity)))
		state.stock += line.Quantity

		subTotal = subTotal.Add(line.UnitCost.Mul(decimal.NewFromInt(int64(line.Quantity))))
		items = append(items, line)
	}

	subTotal = money(subTotal)
	vat := money(subTotal.Mul(vatRate).Div(hundred))
	header := req.Header
	record := domain.PurchaseRecord{
		ID:            xid.New("purchase"),
		Supplier:      strings.TrimSpace(req.Supplier),
		InvoiceNumber: strings.TrimSpace(header.InvoiceNumber),
		InvoiceDate:   header.InvoiceDate,
		Note:          strings.TrimSpace(header.Note),
		VATRate:       vatRate,
		Items:         items,
		SubTotal:      subTotal,
		VAT:           vat,
		GrandTotal:    money(subTotal.Add(vat)),
		CostMethod:    s.opts.CostMethod,
	}
	recordPath := store.Doc(partition, store.Purchases, record.ID)
	data, err := encode(record, "timestamp")
	if err != nil {
		return domain.PurchaseRecord{}, err
	}
	batch.Set(recordPath, data, false)
	if err := batch.Commit(ctx); err != nil {
		return domain.PurchaseRecord{}, err
	}

	stored, err := getAs[domain.PurchaseRecord](ctx, s.store, recordPath)
	if err != nil {
		record.Timestamp = s.now()
		return record, nil
	}
	return stored, nil
}

func (s *Service) nextCost(oldStock int, oldCost decimal.Decimal, qty int, incoming decimal.Decimal) decimal.Decimal {
	if s.opts.CostMethod == domain.CostWeighted {
		return weightedCost(oldStock, oldCost, qty, incoming)
	}
	return incoming
}

// weightedCost averages the cost of stock on hand with an incoming receipt.
// Without positive stock on hand the incoming cost wins.
func weightedCost(oldStock int, oldCost decimal.Decimal, qty int, incoming decimal.Decimal) decimal.Decimal {
	if oldStock <= 0 || qty <= 0 {
		return incoming
	}
	oldQty := decimal.NewFromInt(int64(oldStock))
	newQty := decimal.NewFromInt(int64(qty))
	total := oldQty.Mul(oldCost).Add(newQty.Mul(incoming))
	return money(total.Div(oldQty.Add(newQty)))
}

func (s *Service) GetPurchase(ctx context.Context, id string) (domain.PurchaseRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "/") {
		return domain.PurchaseRecord{}, ErrInvalidInput
	}
	return getAs[domain.PurchaseRecord](ctx, s.store, store.Doc(s.partition(ctx), store.Purchases, id))
}

func (s *Service) ListPurchases(ctx context.Context, limit int) ([]domain.PurchaseRecord, error) {
	return listAs[domain.PurchaseRecord](ctx, s.store, store.Collection(s.partition(ctx), store.Purchases), store.Query{OrderBy: "timestamp", Desc: true, Limit: limit})
}
