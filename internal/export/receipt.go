package export

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"bakkal/backoffice/internal/domain"
)

type Receipt struct {
	Text     string `json:"text"`
	EscPos   []byte `json:"escpos"`
	FileName string `json:"file_name"`
}

var (
	escInit   = []byte{0x1b, 0x40}
	escCut    = []byte{0x1d, 0x56, 0x41, 0x10}
	drawerPin = []byte{0x1b, 0x70, 0x00, 0x19, 0xfa}
)

// DrawerKick is the ESC/POS pulse that opens a cash drawer wired to pin 2.
func DrawerKick() []byte {
	return append([]byte(nil), drawerPin...)
}

func SaleReceipt(sale domain.SaleRecord) Receipt {
	lines := []string{
		"BAKKAL",
		"========================",
		"Fiş: " + sale.ID,
		"Tarih: " + sale.Timestamp.Format("2006-01-02 15:04:05"),
		"Tür: " + string(sale.Type),
		"------------------------",
	}
	for _, item := range sale.Items {
		lines = append(lines, fmt.Sprintf("%s x%d", item.Name, item.Quantity))
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		if item.DiscountApplied.IsPositive() {
			lines = append(lines, fmt.Sprintf("  %s (indirim %s)", money(lineTotal), money(item.DiscountApplied)))
		} else {
			lines = append(lines, "  "+money(lineTotal))
		}
	}
	lines = append(lines,
		"------------------------",
		"Ara Toplam : "+money(sale.SubTotal),
		"İndirim    : "+money(sale.TransactionDiscount),
		"Toplam     : "+money(sale.Total),
	)
	if sale.PaymentMethod != nil {
		lines = append(lines, "Ödeme      : "+string(*sale.PaymentMethod))
	}
	if sale.Customer != nil && sale.Customer.Name != "" {
		lines = append(lines, "Müşteri    : "+sale.Customer.Name)
	}
	lines = append(lines, "========================", "Teşekkür ederiz", "")

	return Receipt{
		Text:     strings.Join(lines, "\n"),
		EscPos:   escpos(lines),
		FileName: "receipt-" + sale.ID,
	}
}

func PurchaseReceipt(purchase domain.PurchaseRecord) Receipt {
	lines := []string{
		"ALIŞ FİŞİ",
		"========================",
		"Kayıt: " + purchase.ID,
		"Tedarikçi: " + purchase.Supplier,
		"Fatura: " + purchase.InvoiceNumber,
		"Tarih: " + purchase.Timestamp.Format("2006-01-02 15:04:05"),
		"------------------------",
	}
	for _, item := range purchase.Items {
		lines = append(lines, fmt.Sprintf("%s x%d @ %s", item.Name, item.Quantity, money(item.UnitCost)))
	}
	lines = append(lines,
		"------------------------",
		"Ara Toplam : "+money(purchase.SubTotal),
		fmt.Sprintf("KDV %%%s   : %s", purchase.VATRate.String(), money(purchase.VAT)),
		"Genel Top. : "+money(purchase.GrandTotal),
		"========================",
		"",
	)
	return Receipt{
		Text:     strings.Join(lines, "\n"),
		EscPos:   escpos(lines),
		FileName: "purchase-" + purchase.ID,
	}
}

func escpos(lines []string) []byte {
	out := append([]byte(nil), escInit...)
	for _, line := range lines {
		out = append(out, []byte(line)...)
		out = append(out, '\n')
	}
	return append(out, escCut...)
}

func money(v decimal.Decimal) string {
	return v.StringFixed(2)
}
