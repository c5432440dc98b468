package export

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"bakkal/backoffice/internal/domain"
)

const (
	linesSheet  = "Satırlar"
	totalsSheet = "Toplamlar"
)

// SalesWorkbook renders one row per sale line plus a per-sale totals sheet.
func SalesWorkbook(sales []domain.SaleRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", linesSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(totalsSheet); err != nil {
		return nil, err
	}

	lineRows := [][]any{{"Satış", "Tarih", "Tür", "Durum", "Barkod", "Ürün", "Adet", "Birim Fiyat", "Liste Fiyatı", "İndirim", "Kural", "Alış Fiyatı"}}
	totalRows := [][]any{{"Satış", "Tarih", "Tür", "Durum", "Ödeme", "Ara Toplam", "İşlem İndirimi", "Toplam", "Müşteri"}}
	for _, sale := range sales {
		stamp := sale.Timestamp.Format("2006-01-02 15:04")
		for _, item := range sale.Items {
			lineRows = append(lineRows, []any{
				sale.ID, stamp, string(sale.Type), string(sale.Status),
				item.ProductID, item.Name, item.Quantity,
				num(item.UnitPrice), num(item.OriginalPrice), num(item.DiscountApplied),
				string(item.DiscountRule), num(item.PurchasePriceSnapshot),
			})
		}
		method := ""
		if sale.PaymentMethod != nil {
			method = string(*sale.PaymentMethod)
		}
		customer := ""
		if sale.Customer != nil {
			customer = sale.Customer.Name
		}
		totalRows = append(totalRows, []any{
			sale.ID, stamp, string(sale.Type), string(sale.Status), method,
			num(sale.SubTotal), num(sale.TransactionDiscount), num(sale.Total), customer,
		})
	}

	if err := writeRows(f, linesSheet, lineRows); err != nil {
		return nil, err
	}
	if err := writeRows(f, totalsSheet, totalRows); err != nil {
		return nil, err
	}
	return finish(f)
}

func PurchasesWorkbook(purchases []domain.PurchaseRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", linesSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(totalsSheet); err != nil {
		return nil, err
	}

	lineRows := [][]any{{"Alış", "Tarih", "Tedarikçi", "Fatura", "Barkod", "Ürün", "Adet", "Birim Maliyet", "Yeni Ürün"}}
	totalRows := [][]any{{"Alış", "Tarih", "Tedarikçi", "Fatura", "Ara Toplam", "KDV Oranı", "KDV", "Genel Toplam"}}
	for _, p := range purchases {
		stamp := p.Timestamp.Format("2006-01-02 15:04")
		for _, item := range p.Items {
			lineRows = append(lineRows, []any{
				p.ID, stamp, p.Supplier, p.InvoiceNumber,
				item.Barcode, item.Name, item.Quantity, num(item.UnitCost), item.NewProduct,
			})
		}
		totalRows = append(totalRows, []any{
			p.ID, stamp, p.Supplier, p.InvoiceNumber,
			num(p.SubTotal), num(p.VATRate), num(p.VAT), num(p.GrandTotal),
		})
	}

	if err := writeRows(f, linesSheet, lineRows); err != nil {
		return nil, err
	}
	if err := writeRows(f, totalsSheet, totalRows); err != nil {
		return nil, err
	}
	return finish(f)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func finish(f *excelize.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func num(v decimal.Decimal) float64 {
	out, _ := v.Round(2).Float64()
	return out
}
