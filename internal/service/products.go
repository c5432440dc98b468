package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"bakkal/backoffice/internal/domain"
	"bakkal/backoffice/internal/export"
	"bakkal/backoffice/internal/pricing"
	"bakkal/backoffice/internal/store"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return listAs[domain.Product](ctx, s.store, store.Collection(s.partition(ctx), store.Products), store.Query{OrderBy: "name"})
}

func (s *Service) GetProduct(ctx context.Context, barcode string) (domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Product{}, ErrInvalidInput
	}
	return getAs[domain.Product](ctx, s.store, store.Doc(s.partition(ctx), store.Products, barcode))
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	product, err := s.createProduct(ctx, req)
	s.report(err, fmt.Sprintf("product %s created", req.Barcode), "create product failed")
	if err == nil {
		s.logAudit(ctx, "product_create", "product", product.Barcode, fmt.Sprintf("name=%s,price=%s,stock=%d", product.Name, product.SalePrice, product.Stock))
	}
	return product, err
}

func (s *Service) createProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	product, err := validateProduct(req)
	if err != nil {
		return domain.Product{}, err
	}
	partition := s.partition(ctx)
	path := store.Doc(partition, store.Products, product.Barcode)
	if _, err := s.store.Get(ctx, path); err == nil {
		return domain.Product{}, fmt.Errorf("%w: %s", ErrDuplicateProduct, product.Barcode)
	} else if !isNotFound(err) {
		return domain.Product{}, err
	}

	batch := s.store.Batch()
	if err := stageNewProduct(batch, path, product, req.InitialStock); err != nil {
		return domain.Product{}, err
	}
	if err := batch.Commit(ctx); err != nil {
		return domain.Product{}, err
	}
	return getAs[domain.Product](ctx, s.store, path)
}

func validateProduct(req domain.ProductCreateRequest) (domain.Product, error) {
	product := domain.Product{
		Barcode:            strings.TrimSpace(req.Barcode),
		Name:               strings.TrimSpace(req.Name),
		Category:           strings.TrimSpace(req.Category),
		PurchasePrice:      req.PurchasePrice,
		SalePrice:          req.SalePrice,
		CriticalStockLevel: req.CriticalStockLevel,
		DiscountValue:      req.DiscountValue,
		DiscountType:       req.DiscountType,
	}
	if product.Barcode == "" || product.Name == "" || strings.Contains(product.Barcode, "/") {
		return domain.Product{}, ErrInvalidInput
	}
	if product.PurchasePrice.IsNegative() || product.SalePrice.IsNegative() || req.InitialStock < 0 || product.CriticalStockLevel < 0 {
		return domain.Product{}, ErrInvalidAmount
	}
	if err := validateDiscount(product.DiscountValue, &product.DiscountType); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func validateDiscount(value decimal.Decimal, kind *domain.DiscountType) error {
	if value.IsNegative() {
		return ErrInvalidAmount
	}
	if *kind == "" {
		*kind = domain.DiscountPercentage
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: discount type %q", ErrInvalidInput, *kind)
	}
	if *kind == domain.DiscountPercentage && value.GreaterThan(decimal.NewFromInt(100)) {
		return ErrInvalidAmount
	}
	return nil
}

// stageNewProduct writes the product without a stock field and applies the
// opening stock as an increment in the same batch.
func stageNewProduct(batch store.Batch, path string, product domain.Product, initialStock int) error {
	data, err := encode(product, "created_at", "updated_at")
	if err != nil {
		return err
	}
	delete(data, "stock")
	batch.Set(path, data, true)
	batch.Increment(path, "stock", decimal.NewFromInt(int64(initialStock)))
	return nil
}

func (s *Service) UpdateProduct(ctx context.Context, barcode string, req domain.ProductUpdateRequest) (domain.Product, error) {
	product, err := s.updateProduct(ctx, barcode, req)
	s.report(err, fmt.Sprintf("product %s updated", barcode), "update product failed")
	if err == nil {
		s.logAudit(ctx, "product_update", "product", product.Barcode, fmt.Sprintf("name=%s,price=%s", product.Name, product.SalePrice))
	}
	return product, err
}

func (s *Service) updateProduct(ctx context.Context, barcode string, req domain.ProductUpdateRequest) (domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Product{}, ErrInvalidInput
	}
	path := store.Doc(s.partition(ctx), store.Products, barcode)
	existing, err := getAs[domain.Product](ctx, s.store, path)
	if err != nil {
		return domain.Product{}, err
	}

	fields := map[string]any{"updated_at": store.ServerTimestamp}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, ErrInvalidInput
		}
		fields["name"] = name
	}
	if req.Category != nil {
		fields["category"] = strings.TrimSpace(*req.Category)
	}
	if req.PurchasePrice != nil {
		if req.PurchasePrice.IsNegative() {
			return domain.Product{}, ErrInvalidAmount
		}
		fields["purchase_price"] = *req.PurchasePrice
	}
	if req.SalePrice != nil {
		if req.SalePrice.IsNegative() {
			return domain.Product{}, ErrInvalidAmount
		}
		fields["sale_price"] = *req.SalePrice
	}
	if req.CriticalStockLevel != nil {
		if *req.CriticalStockLevel < 0 {
			return domain.Product{}, ErrInvalidAmount
		}
		fields["critical_stock_level"] = *req.CriticalStockLevel
	}
	if req.DiscountValue != nil || req.DiscountType != nil {
		value := existing.DiscountValue
		if req.DiscountValue != nil {
			value = *req.DiscountValue
		}
		kind := existing.DiscountType
		if req.DiscountType != nil {
			kind = *req.DiscountType
		}
		if err := validateDiscount(value, &kind); err != nil {
			return domain.Product{}, err
		}
		fields["discount_value"] = value
		fields["discount_type"] = kind
	}

	if err := s.store.Update(ctx, path, fields); err != nil {
		return domain.Product{}, err
	}
	return getAs[domain.Product](ctx, s.store, path)
}

func (s *Service) DeleteProduct(ctx context.Context, barcode string) error {
	barcode = strings.TrimSpace(barcode)
	err := func() error {
		if barcode == "" {
			return ErrInvalidInput
		}
		path := store.Doc(s.partition(ctx), store.Products, barcode)
		if _, err := s.store.Get(ctx, path); err != nil {
			return err
		}
		return s.store.Delete(ctx, path)
	}()
	s.report(err, fmt.Sprintf("product %s deleted", barcode), "delete product failed")
	if err == nil {
		s.logAudit(ctx, "product_delete", "product", barcode, "")
	}
	return err
}

// ImportProducts creates every product of an xlsx sheet that does not exist yet.
// Existing barcodes are skipped and left untouched.
func (s *Service) ImportProducts(ctx context.Context, r io.Reader) (domain.ImportResult, error) {
	result, err := s.importProducts(ctx, r)
	s.report(err, fmt.Sprintf("imported %d products", len(result.Created)), "product import failed")
	return result, err
}

func (s *Service) importProducts(ctx context.Context, r io.Reader) (domain.ImportResult, error) {
	rows, err := export.ParseProductRows(r)
	if err != nil {
		return domain.ImportResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	partition := s.partition(ctx)
	result := domain.ImportResult{Created: []string{}, Skipped: []string{}}
	seen := make(map[string]struct{}, len(rows))
	batch := s.store.Batch()
	for i, row := range rows {
		product, err := validateProduct(row)
		if err != nil {
			return domain.ImportResult{}, fmt.Errorf("row %d: %w", i+2, err)
		}
		if _, dup := seen[product.Barcode]; dup {
			result.Skipped = append(result.Skipped, product.Barcode)
			continue
		}
		seen[product.Barcode] = struct{}{}

		path := store.Doc(partition, store.Products, product.Barcode)
		if _, err := s.store.Get(ctx, path); err == nil {
			result.Skipped = append(result.Skipped, product.Barcode)
			continue
		} else if !isNotFound(err) {
			return domain.ImportResult{}, err
		}
		if err := stageNewProduct(batch, path, product, row.InitialStock); err != nil {
			return domain.ImportResult{}, err
		}
		result.Created = append(result.Created, product.Barcode)
	}
	if len(result.Created) == 0 {
		return result, nil
	}
	if err := batch.Commit(ctx); err != nil {
		return domain.ImportResult{}, err
	}
	return result, nil
}

// LowStock lists products at or below their critical level, lowest stock first.
func (s *Service) LowStock(ctx context.Context) ([]domain.Product, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.Stock <= p.CriticalStockLevel {
			low = append(low, p)
		}
	}
	sort.SliceStable(low, func(i, j int) bool {
		if low[i].Stock == low[j].Stock {
			return low[i].Barcode < low[j].Barcode
		}
		return low[i].Stock < low[j].Stock
	})
	return low, nil
}

func (s *Service) ListCategoryDiscounts(ctx context.Context) ([]domain.CategoryDiscount, error) {
	partition := s.partition(ctx)
	if cached, ok, err := s.discounts.Get(ctx, partition); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: discount cache read failed partition=%s: %v", partition, err)
	}

	discounts, err := s.storedCategoryDiscounts(ctx, partition)
	if err != nil {
		return nil, err
	}
	if err := s.discounts.Set(ctx, partition, discounts, s.opts.DiscountTTL); err != nil {
		log.Printf("[service] WARN: discount cache write failed partition=%s: %v", partition, err)
	}
	return discounts, nil
}

// storedCategoryDiscounts bypasses the cache. Sales price against it so a rule
// changed by another instance applies immediately.
func (s *Service) storedCategoryDiscounts(ctx context.Context, partition string) ([]domain.CategoryDiscount, error) {
	return listAs[domain.CategoryDiscount](ctx, s.store, store.Collection(partition, store.CategoryDiscounts), store.Query{OrderBy: "category"})
}

func (s *Service) SetCategoryDiscount(ctx context.Context, req domain.CategoryDiscount) (domain.CategoryDiscount, error) {
	discount, err := s.setCategoryDiscount(ctx, req)
	s.report(err, fmt.Sprintf("category discount %s saved", req.Category), "save category discount failed")
	return discount, err
}

func (s *Service) setCategoryDiscount(ctx context.Context, req domain.CategoryDiscount) (domain.CategoryDiscount, error) {
	req.Category = strings.TrimSpace(req.Category)
	key := domain.CategoryKey(req.Category)
	if key == "" || strings.Contains(key, "/") {
		return domain.CategoryDiscount{}, ErrInvalidInput
	}
	if err := validateDiscount(req.DiscountValue, &req.DiscountType); err != nil {
		return domain.CategoryDiscount{}, err
	}
	partition := s.partition(ctx)
	data, err := encode(req, "updated_at")
	if err != nil {
		return domain.CategoryDiscount{}, err
	}
	path := store.Doc(partition, store.CategoryDiscounts, key)
	if err := s.store.Set(ctx, path, data, false); err != nil {
		return domain.CategoryDiscount{}, err
	}
	s.invalidateDiscounts(ctx, partition)
	return getAs[domain.CategoryDiscount](ctx, s.store, path)
}

func (s *Service) DeleteCategoryDiscount(ctx context.Context, category string) error {
	partition := s.partition(ctx)
	key := domain.CategoryKey(category)
	err := func() error {
		if key == "" || strings.Contains(key, "/") {
			return ErrInvalidInput
		}
		return s.store.Delete(ctx, store.Doc(partition, store.CategoryDiscounts, key))
	}()
	if err == nil {
		s.invalidateDiscounts(ctx, partition)
	}
	s.report(err, fmt.Sprintf("category discount %s removed", category), "remove category discount failed")
	return err
}

func (s *Service) invalidateDiscounts(ctx context.Context, partition string) {
	if err := s.discounts.Invalidate(ctx, partition); err != nil {
		log.Printf("[service] WARN: discount cache invalidate failed partition=%s: %v", partition, err)
	}
}

// PriceCart previews a cart at current prices without writing anything.
func (s *Service) PriceCart(ctx context.Context, lines []domain.CartLine) (domain.CartPreview, error) {
	merged, err := mergeLines(lines)
	if err != nil {
		return domain.CartPreview{}, err
	}
	products, err := s.loadProducts(ctx, merged)
	if err != nil {
		return domain.CartPreview{}, err
	}
	discounts, err := s.ListCategoryDiscounts(ctx)
	if err != nil {
		return domain.CartPreview{}, err
	}
	items, subTotal := priceLines(merged, products, discounts)
	return domain.CartPreview{Items: items, SubTotal: subTotal}, nil
}

func (s *Service) loadProducts(ctx context.Context, lines []domain.CartLine) (map[string]domain.Product, error) {
	partition := s.partition(ctx)
	products := make(map[string]domain.Product, len(lines))
	for _, line := range lines {
		p, err := getAs[domain.Product](ctx, s.store, store.Doc(partition, store.Products, line.Barcode))
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", line.Barcode, err)
		}
		products[line.Barcode] = p
	}
	return products, nil
}

func priceLines(lines []domain.CartLine, products map[string]domain.Product, discounts []domain.CategoryDiscount) ([]domain.SaleLine, decimal.Decimal) {
	items := make([]domain.SaleLine, 0, len(lines))
	subTotal := decimal.Zero
	for _, line := range lines {
		p := products[line.Barcode]
		res := pricing.Resolve(p, discounts)
		items = append(items, domain.SaleLine{
			ProductID:             p.Barcode,
			Name:                  p.Name,
			Quantity:              line.Quantity,
			UnitPrice:             res.FinalPrice,
			OriginalPrice:         res.OriginalPrice,
			PurchasePriceSnapshot: p.PurchasePrice,
			DiscountApplied:       res.DiscountApplied,
			DiscountRule:          res.AppliedRule,
		})
		subTotal = subTotal.Add(pricing.LineTotal(res, line.Quantity))
	}
	return items, subTotal
}

// mergeLines folds duplicate barcodes into the first line that carries them.
func mergeLines(lines []domain.CartLine) ([]domain.CartLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	index := make(map[string]int, len(lines))
	merged := make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		barcode := strings.TrimSpace(line.Barcode)
		if barcode == "" || strings.Contains(barcode, "/") {
			return nil, ErrInvalidInput
		}
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity %d for %s", ErrInvalidAmount, line.Quantity, barcode)
		}
		if i, ok := index[barcode]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[barcode] = len(merged)
		merged = append(merged, domain.CartLine{Barcode: barcode, Quantity: line.Quantity})
	}
	return merged, nil
}
