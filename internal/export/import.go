package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"bakkal/backoffice/internal/domain"
)

var headerAliases = map[string]string{
	"barcode":              "barcode",
	"barkod":               "barcode",
	"name":                 "name",
	"product name":         "name",
	"ürün":                 "name",
	"ürün adı":             "name",
	"stock":                "stock",
	"stok":                 "stock",
	"purchase price":       "purchase_price",
	"purchase_price":       "purchase_price",
	"alış fiyatı":          "purchase_price",
	"sale price":           "sale_price",
	"sale_price":           "sale_price",
	"satış fiyatı":         "sale_price",
	"category":             "category",
	"kategori":             "category",
	"critical stock level": "critical_stock_level",
	"critical_stock_level": "critical_stock_level",
	"kritik stok":          "critical_stock_level",
}

// ParseProductRows reads a product sheet from the first worksheet of an xlsx file.
func ParseProductRows(reader io.Reader) ([]domain.ProductCreateRequest, error) {
	file, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("open excel file: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("excel file has no sheets")
	}
	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("excel file is empty")
	}

	cols := mapColumns(rows[0])
	for _, required := range []string{"barcode", "name", "sale_price"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column: %s", required)
		}
	}

	out := make([]domain.ProductCreateRequest, 0, len(rows)-1)
	for index := 1; index < len(rows); index++ {
		cells := rows[index]
		barcode := strings.TrimSpace(readCell(cells, cols, "barcode"))
		if barcode == "" {
			continue
		}
		req := domain.ProductCreateRequest{
			Barcode:  barcode,
			Name:     strings.TrimSpace(readCell(cells, cols, "name")),
			Category: strings.TrimSpace(readCell(cells, cols, "category")),
		}
		if req.SalePrice, err = parseDecimal(readCell(cells, cols, "sale_price")); err != nil {
			return nil, fmt.Errorf("row %d invalid sale price: %w", index+1, err)
		}
		if req.PurchasePrice, err = parseDecimal(readCell(cells, cols, "purchase_price")); err != nil {
			return nil, fmt.Errorf("row %d invalid purchase price: %w", index+1, err)
		}
		if req.InitialStock, err = parseInt(readCell(cells, cols, "stock")); err != nil {
			return nil, fmt.Errorf("row %d invalid stock: %w", index+1, err)
		}
		if req.CriticalStockLevel, err = parseInt(readCell(cells, cols, "critical_stock_level")); err != nil {
			return nil, fmt.Errorf("row %d invalid critical stock level: %w", index+1, err)
		}
		out = append(out, req)
	}
	return out, nil
}

func mapColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, raw := range header {
		key := strings.ToLower(strings.TrimSpace(raw))
		if canonical, ok := headerAliases[key]; ok {
			if _, seen := cols[canonical]; !seen {
				cols[canonical] = i
			}
		}
	}
	return cols
}

func readCell(cells []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	// Turkish sheets use a decimal comma.
	if strings.Contains(raw, ",") && !strings.Contains(raw, ".") {
		raw = strings.ReplaceAll(raw, ",", ".")
	}
	return decimal.NewFromString(raw)
}

func parseInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v, nil
	}
	d, err := parseDecimal(raw)
	if err != nil {
		return 0, err
	}
	return int(d.IntPart()), nil
}
