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

// MarkAsPaid settles an unpaid credit sale in full. A smaller amount is kept
// as metadata only; the sale still closes as paid.
func (s *Service) MarkAsPaid(ctx context.Context, saleID string, req domain.MarkPaidRequest) (domain.SaleRecord, error) {
	sale, err := s.markAsPaid(ctx, saleID, req)
	s.report(err, fmt.Sprintf("credit sale %s paid", saleID), "mark as paid failed")
	if err == nil {
		s.logAudit(ctx, "credit_paid", "sale", saleID, fmt.Sprintf("amount=%s,method=%s", sale.PaidAmount, req.Method))
	}
	return sale, err
}

func (s *Service) markAsPaid(ctx context.Context, saleID string, req domain.MarkPaidRequest) (domain.SaleRecord, error) {
	if !req.Method.Settles() {
		return domain.SaleRecord{}, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, req.Method)
	}
	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return domain.SaleRecord{}, err
	}
	switch sale.Status {
	case domain.SaleStatusUnpaid:
	case domain.SaleStatusPaid:
		return domain.SaleRecord{}, ErrAlreadyPaid
	case domain.SaleStatusCancelled:
		return domain.SaleRecord{}, ErrAlreadyCancelled
	default:
		return domain.SaleRecord{}, ErrNotCreditSale
	}

	amount := sale.Total
	if req.Amount != nil {
		amount = *req.Amount
	}
	if !amount.IsPositive() {
		return domain.SaleRecord{}, ErrInvalidAmount
	}

	partition := s.partition(ctx)
	path := store.Doc(partition, store.Sales, sale.ID)
	payment := domain.Payment{
		ID:        xid.New("payment"),
		Direction: domain.PaymentIn,
		Method:    req.Method,
		Amount:    amount,
		SaleID:    sale.ID,
		Note:      "credit sale settlement",
	}
	if sale.Customer != nil {
		payment.Party = sale.Customer.Name
	}
	paymentData, err := encode(payment, "timestamp")
	if err != nil {
		return domain.SaleRecord{}, err
	}

	batch := s.store.Batch()
	batch.Update(path, map[string]any{
		"status":         domain.SaleStatusPaid,
		"paid_amount":    amount,
		"paid_method":    req.Method,
		"payment_method": req.Method,
		"paid_date":      store.ServerTimestamp,
	})
	batch.Set(store.Doc(partition, store.Payments, payment.ID), paymentData, false)
	if err := batch.Commit(ctx); err != nil {
		return domain.SaleRecord{}, err
	}
	return getAs[domain.SaleRecord](ctx, s.store, path)
}

// ListCreditSales lists credit sales, optionally narrowed to one status.
func (s *Service) ListCreditSales(ctx context.Context, status domain.SaleStatus) ([]domain.SaleRecord, error) {
	return s.ListSales(ctx, domain.SaleFilter{Type: domain.SaleTypeCredit, Status: status})
}

// OutstandingCredit sums the totals of all unpaid credit sales.
func (s *Service) OutstandingCredit(ctx context.Context) (decimal.Decimal, error) {
	sales, err := s.ListCreditSales(ctx, domain.SaleStatusUnpaid)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, sale := range sales {
		total = total.Add(sale.Total)
	}
	return total, nil
}

// RecordPayment books a manual payment received from a customer or paid to a
// supplier.
func (s *Service) RecordPayment(ctx context.Context, req domain.PaymentRequest) (domain.Payment, error) {
	payment, err := s.recordPayment(ctx, req)
	s.report(err, fmt.Sprintf("payment %s recorded", payment.ID), "record payment failed")
	return payment, err
}

func (s *Service) recordPayment(ctx context.Context, req domain.PaymentRequest) (domain.Payment, error) {
	if req.Direction != domain.PaymentIn && req.Direction != domain.PaymentOut {
		return domain.Payment{}, fmt.Errorf("%w: direction %q", ErrInvalidInput, req.Direction)
	}
	if !req.Method.Settles() {
		return domain.Payment{}, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, req.Method)
	}
	if !req.Amount.IsPositive() {
		return domain.Payment{}, ErrInvalidAmount
	}
	payment := domain.Payment{
		ID:         xid.New("payment"),
		Direction:  req.Direction,
		Method:     req.Method,
		Amount:     req.Amount,
		Party:      strings.TrimSpace(req.Party),
		SaleID:     strings.TrimSpace(req.SaleID),
		PurchaseID: strings.TrimSpace(req.PurchaseID),
		Note:       strings.TrimSpace(req.Note),
	}
	path := store.Doc(s.partition(ctx), store.Payments, payment.ID)
	data, err := encode(payment, "timestamp")
	if err != nil {
		return domain.Payment{}, err
	}
	if err := s.store.Set(ctx, path, data, false); err != nil {
		return domain.Payment{}, err
	}
	return getAs[domain.Payment](ctx, s.store, path)
}

func (s *Service) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	return listAs[domain.Payment](ctx, s.store, store.Collection(s.partition(ctx), store.Payments), store.Query{OrderBy: "timestamp", Desc: true})
}
