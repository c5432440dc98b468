package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"bakkal/backoffice/internal/domain"
)

func sampleSale() domain.SaleRecord {
	method := domain.PaymentCash
	return domain.SaleRecord{
		ID:            "sale-1",
		Type:          domain.SaleTypeSale,
		Status:        domain.SaleStatusCompleted,
		PaymentMethod: &method,
		Items: []domain.SaleLine{
			{ProductID: "A", Name: "Ekmek", Quantity: 2, UnitPrice: decimal.NewFromInt(10), OriginalPrice: decimal.NewFromInt(10)},
			{ProductID: "B", Name: "Ayran", Quantity: 1, UnitPrice: decimal.RequireFromString("12.6"), OriginalPrice: decimal.NewFromInt(14), DiscountApplied: decimal.RequireFromString("1.4"), DiscountRule: domain.RuleCategory},
		},
		SubTotal:            decimal.RequireFromString("32.6"),
		TransactionDiscount: decimal.NewFromInt(2),
		Total:               decimal.RequireFromString("30.6"),
		Timestamp:           time.Date(2025, 5, 2, 14, 0, 0, 0, time.UTC),
	}
}

func TestSaleReceiptFraming(t *testing.T) {
	r := SaleReceipt(sampleSale())

	if !bytes.HasPrefix(r.EscPos, escInit) || !bytes.HasSuffix(r.EscPos, escCut) {
		t.Fatalf("expected ESC/POS init and cut framing")
	}
	if !strings.Contains(r.Text, "Toplam     : 30.60") {
		t.Fatalf("expected total line in receipt:\n%s", r.Text)
	}
	if !strings.Contains(r.Text, "(indirim 1.40)") {
		t.Fatalf("expected discount annotation in receipt:\n%s", r.Text)
	}
	if r.FileName != "receipt-sale-1" {
		t.Fatalf("unexpected file name %q", r.FileName)
	}
}

func TestSalesWorkbookHasOneRowPerLine(t *testing.T) {
	raw, err := SalesWorkbook([]domain.SaleRecord{sampleSale()})
	if err != nil {
		t.Fatalf("workbook: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(linesSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 lines, got %d rows", len(rows))
	}
	totals, err := f.GetRows(totalsSheet)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if len(totals) != 2 || totals[1][7] != "30.6" {
		t.Fatalf("unexpected totals sheet: %v", totals)
	}
}

func TestParseProductRows(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]any{
		{"Barkod", "Ürün Adı", "Kategori", "Alış Fiyatı", "Satış Fiyatı", "Stok"},
		{"869001", "Simit", "Fırın", "4,5", "7,5", "30"},
		{"", "boş satır", "", "", "", ""},
		{"869002", "Su 0.5L", "İçecek", "3", "5", ""},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("seed row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ParseProductRows(&buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 products, got %d", len(got))
	}
	if got[0].Barcode != "869001" || !got[0].SalePrice.Equal(decimal.RequireFromString("7.5")) || got[0].InitialStock != 30 {
		t.Fatalf("unexpected first row: %+v", got[0])
	}
	if got[1].InitialStock != 0 || got[1].Category != "İçecek" {
		t.Fatalf("unexpected second row: %+v", got[1])
	}
}
