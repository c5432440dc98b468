package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Actor struct {
	UserID string
	Role   string
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

func (t DiscountType) Valid() bool {
	switch t {
	case DiscountPercentage, DiscountFixed:
		return true
	default:
		return false
	}
}

type Product struct {
	Barcode            string          `json:"barcode"`
	Name               string          `json:"name"`
	Stock              int             `json:"stock"`
	PurchasePrice      decimal.Decimal `json:"purchase_price"`
	SalePrice          decimal.Decimal `json:"sale_price"`
	Category           string          `json:"category,omitempty"`
	CriticalStockLevel int             `json:"critical_stock_level"`
	DiscountValue      decimal.Decimal `json:"discount_value"`
	DiscountType       DiscountType    `json:"discount_type,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Barcode            string          `json:"barcode"`
	Name               string          `json:"name"`
	PurchasePrice      decimal.Decimal `json:"purchase_price"`
	SalePrice          decimal.Decimal `json:"sale_price"`
	Category           string          `json:"category"`
	CriticalStockLevel int             `json:"critical_stock_level"`
	DiscountValue      decimal.Decimal `json:"discount_value"`
	DiscountType       DiscountType    `json:"discount_type"`
	InitialStock       int             `json:"initial_stock"`
}

// ProductUpdateRequest has no stock field. Stock only moves through ledger
// operations.
type ProductUpdateRequest struct {
	Name               *string          `json:"name,omitempty"`
	PurchasePrice      *decimal.Decimal `json:"purchase_price,omitempty"`
	SalePrice          *decimal.Decimal `json:"sale_price,omitempty"`
	Category           *string          `json:"category,omitempty"`
	CriticalStockLevel *int             `json:"critical_stock_level,omitempty"`
	DiscountValue      *decimal.Decimal `json:"discount_value,omitempty"`
	DiscountType       *DiscountType    `json:"discount_type,omitempty"`
}

type CategoryDiscount struct {
	Category      string          `json:"category"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	DiscountType  DiscountType    `json:"discount_type"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CategoryKey is the document id of a category discount. Matching is
// case-insensitive, so at most one rule exists per category.
func CategoryKey(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

type SaleType string

const (
	SaleTypeSale      SaleType = "sale"
	SaleTypeCredit    SaleType = "credit"
	SaleTypePersonnel SaleType = "personnel"
	SaleTypeCancelled SaleType = "cancelled"
)

type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusUnpaid    SaleStatus = "unpaid"
	SaleStatusPaid      SaleStatus = "paid"
	SaleStatusCancelled SaleStatus = "cancelled"
)

type PaymentMethod string

const (
	PaymentCash      PaymentMethod = "cash"
	PaymentCard      PaymentMethod = "card"
	PaymentTransfer  PaymentMethod = "transfer"
	PaymentCredit    PaymentMethod = "credit"
	PaymentPersonnel PaymentMethod = "personnel"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentCredit, PaymentPersonnel:
		return true
	default:
		return false
	}
}

// Settles reports whether the method collects money at the counter.
func (m PaymentMethod) Settles() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return true
	default:
		return false
	}
}

type DiscountRule string

const (
	RuleNone     DiscountRule = ""
	RuleProduct  DiscountRule = "product"
	RuleCategory DiscountRule = "category"
)

type CartLine struct {
	Barcode  string `json:"barcode"`
	Quantity int    `json:"quantity"`
}

type CustomerInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Note  string `json:"note,omitempty"`
}

type SaleLine struct {
	ProductID             string          `json:"product_id"`
	Name                  string          `json:"name"`
	Quantity              int             `json:"quantity"`
	UnitPrice             decimal.Decimal `json:"unit_price"`
	OriginalPrice         decimal.Decimal `json:"original_price"`
	PurchasePriceSnapshot decimal.Decimal `json:"purchase_price_snapshot"`
	DiscountApplied       decimal.Decimal `json:"discount_applied"`
	DiscountRule          DiscountRule    `json:"discount_rule,omitempty"`
}

type SaleRecord struct {
	ID                  string          `json:"id"`
	Type                SaleType        `json:"type"`
	Status              SaleStatus      `json:"status"`
	PaymentMethod       *PaymentMethod  `json:"payment_method"`
	Items               []SaleLine      `json:"items"`
	SubTotal            decimal.Decimal `json:"sub_total"`
	TransactionDiscount decimal.Decimal `json:"transaction_discount"`
	Total               decimal.Decimal `json:"total"`
	Customer            *CustomerInfo   `json:"customer,omitempty"`
	Timestamp           time.Time       `json:"timestamp"`

	PaidAmount  *decimal.Decimal `json:"paid_amount,omitempty"`
	PaidMethod  *PaymentMethod   `json:"paid_method,omitempty"`
	PaidDate    *time.Time       `json:"paid_date,omitempty"`
	CancelledAt *time.Time       `json:"cancelled_at,omitempty"`
}

type FinalizeSaleRequest struct {
	Lines               []CartLine      `json:"lines"`
	PaymentMethod       PaymentMethod   `json:"payment_method"`
	TransactionDiscount decimal.Decimal `json:"transaction_discount"`
	Customer            *CustomerInfo   `json:"customer,omitempty"`
}

type InstantSaleRequest struct {
	Barcode       string        `json:"barcode"`
	PaymentMethod PaymentMethod `json:"payment_method"`
}

type CartPreview struct {
	Items    []SaleLine      `json:"items"`
	SubTotal decimal.Decimal `json:"sub_total"`
}

type MarkPaidRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Method PaymentMethod    `json:"method"`
}

type PaymentDirection string

const (
	PaymentIn  PaymentDirection = "in"
	PaymentOut PaymentDirection = "out"
)

type Payment struct {
	ID         string           `json:"id"`
	Direction  PaymentDirection `json:"direction"`
	Method     PaymentMethod    `json:"method"`
	Amount     decimal.Decimal  `json:"amount"`
	Party      string           `json:"party,omitempty"`
	SaleID     string           `json:"sale_id,omitempty"`
	PurchaseID string           `json:"purchase_id,omitempty"`
	Note       string           `json:"note,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

type PaymentRequest struct {
	Direction  PaymentDirection `json:"direction"`
	Method     PaymentMethod    `json:"method"`
	Amount     decimal.Decimal  `json:"amount"`
	Party      string           `json:"party"`
	SaleID     string           `json:"sale_id"`
	PurchaseID string           `json:"purchase_id"`
	Note       string           `json:"note"`
}

type CostMethod string

const (
	CostLast     CostMethod = "last"
	CostWeighted CostMethod = "weighted"
)

type PurchaseLine struct {
	Barcode    string          `json:"barcode"`
	Name       string          `json:"name"`
	Category   string          `json:"category,omitempty"`
	Quantity   int             `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	NewProduct bool            `json:"new_product"`
}

type PurchaseHeader struct {
	InvoiceNumber string     `json:"invoice_number"`
	InvoiceDate   *time.Time `json:"invoice_date,omitempty"`
	Note          string     `json:"note,omitempty"`
}

type RecordPurchaseRequest struct {
	Items    []PurchaseLine   `json:"items"`
	Supplier string           `json:"supplier"`
	VATRate  *decimal.Decimal `json:"vat_rate,omitempty"`
	Header   PurchaseHeader   `json:"header"`
}

type PurchaseRecord struct {
	ID            string          `json:"id"`
	Supplier      string          `json:"supplier"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   *time.Time      `json:"invoice_date,omitempty"`
	Note          string          `json:"note,omitempty"`
	VATRate       decimal.Decimal `json:"vat_rate"`
	Items         []PurchaseLine  `json:"items"`
	SubTotal      decimal.Decimal `json:"sub_total"`
	VAT           decimal.Decimal `json:"vat"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	CostMethod    CostMethod      `json:"cost_method"`
	Timestamp     time.Time       `json:"timestamp"`
}

type PurchaseOrderStatus string

const (
	PurchaseOrderDraft    PurchaseOrderStatus = "draft"
	PurchaseOrderSent     PurchaseOrderStatus = "sent"
	PurchaseOrderReceived PurchaseOrderStatus = "received"
)

type PurchaseOrderLine struct {
	ProductID string          `json:"product_id"`
	Qty       int             `json:"qty"`
	Price     decimal.Decimal `json:"price"`
}

type PurchaseOrder struct {
	ID              string              `json:"id"`
	SupplierID      string              `json:"supplier_id"`
	Status          PurchaseOrderStatus `json:"status"`
	Items           []PurchaseOrderLine `json:"items"`
	Note            string              `json:"note,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	SentAt          *time.Time          `json:"sent_at,omitempty"`
	ReceivedAt      *time.Time          `json:"received_at,omitempty"`
	UnknownProducts []string            `json:"unknown_products,omitempty"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID string              `json:"supplier_id"`
	Items      []PurchaseOrderLine `json:"items"`
	Note       string              `json:"note"`
}

type CountType string

const (
	CountFull     CountType = "full"
	CountCategory CountType = "category"
	CountSpecific CountType = "specific"
)

type CountStatus string

const (
	CountOpen   CountStatus = "open"
	CountClosed CountStatus = "closed"
)

type CountLine struct {
	Name              string    `json:"name"`
	SystemQtySnapshot int       `json:"system_qty_snapshot"`
	CountedQty        int       `json:"counted_qty"`
	LastCountedAt     time.Time `json:"last_counted_at"`
}

func (l CountLine) Variance() int {
	return l.CountedQty - l.SystemQtySnapshot
}

type StockCountSession struct {
	ID                 string               `json:"id"`
	Status             CountStatus          `json:"status"`
	CountType          CountType            `json:"count_type"`
	Categories         []string             `json:"categories,omitempty"`
	ProductIDs         []string             `json:"product_ids,omitempty"`
	Note               string               `json:"note,omitempty"`
	Items              map[string]CountLine `json:"items"`
	TotalItems         int                  `json:"total_items"`
	TotalCounted       int                  `json:"total_counted"`
	TotalVariance      int                  `json:"total_variance"`
	AdjustmentsApplied bool                 `json:"adjustments_applied"`
	CreatedAt          time.Time            `json:"created_at"`
	SavedAt            *time.Time           `json:"saved_at,omitempty"`
	ClosedAt           *time.Time           `json:"closed_at,omitempty"`
}

type OpenCountRequest struct {
	CountType  CountType `json:"count_type"`
	Categories []string  `json:"categories"`
	ProductIDs []string  `json:"product_ids"`
	Note       string    `json:"note"`
}

type VarianceLine struct {
	ProductID         string `json:"product_id"`
	Name              string `json:"name"`
	SystemQtySnapshot int    `json:"system_qty_snapshot"`
	CountedQty        int    `json:"counted_qty"`
	Variance          int    `json:"variance"`
}

type CashDirection string

const (
	CashIn  CashDirection = "in"
	CashOut CashDirection = "out"
)

type CashDrawerSession struct {
	ID             string           `json:"id"`
	OpeningAmount  decimal.Decimal  `json:"opening_amount"`
	OpeningNote    string           `json:"opening_note,omitempty"`
	StartTime      time.Time        `json:"start_time"`
	EndTime        *time.Time       `json:"end_time"`
	TotalIn        decimal.Decimal  `json:"total_in"`
	TotalOut       decimal.Decimal  `json:"total_out"`
	ClosingBalance *decimal.Decimal `json:"closing_balance,omitempty"`
	CountedAmount  *decimal.Decimal `json:"counted_amount,omitempty"`
	Difference     *decimal.Decimal `json:"difference,omitempty"`
	ClosingNote    string           `json:"closing_note,omitempty"`
}

func (s CashDrawerSession) Open() bool {
	return s.EndTime == nil
}

type CashTransaction struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      CashDirection   `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note,omitempty"`
	Time      time.Time       `json:"time"`
}

// DrawerBalance is opening + Σin − Σout over the sub-ledger.
func DrawerBalance(opening decimal.Decimal, txs []CashTransaction) decimal.Decimal {
	balance := opening
	for _, tx := range txs {
		switch tx.Type {
		case CashIn:
			balance = balance.Add(tx.Amount)
		case CashOut:
			balance = balance.Sub(tx.Amount)
		}
	}
	return balance
}

type OpenDrawerRequest struct {
	OpeningAmount decimal.Decimal `json:"opening_amount"`
	Note          string          `json:"note"`
}

type CashTransactionRequest struct {
	Type   CashDirection   `json:"type"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

type CloseDrawerRequest struct {
	CountedAmount *decimal.Decimal `json:"counted_amount,omitempty"`
	Note          string           `json:"note"`
}

type DrawerBalanceResponse struct {
	SessionID string          `json:"session_id"`
	Opening   decimal.Decimal `json:"opening"`
	TotalIn   decimal.Decimal `json:"total_in"`
	TotalOut  decimal.Decimal `json:"total_out"`
	Balance   decimal.Decimal `json:"balance"`
}

type ReceiveResult struct {
	Order           PurchaseOrder `json:"order"`
	UnknownProducts []string      `json:"unknown_products,omitempty"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	Actor      string    `json:"actor"`
	Role       string    `json:"role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type SaleFilter struct {
	Type   SaleType
	Status SaleStatus
	Limit  int
}

type ImportResult struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}
