package service

import (
	"errors"
	"testing"

	"bakkal/backoffice/internal/domain"
)

func TestMarkAsPaidSettlesCreditSale(t *testing.T) {
	svc, st, _, ctx := newTestService(t)
	seedProduct(t, st, domain.Product{Barcode: "A", Name: "A", Stock: 10, SalePrice: d("75")})

	sale, err := svc.FinalizeSale(ctx, domain.FinalizeSaleRequest{
		Lines:         []domain.CartLine{{Barcode: "A", Quantity: 2}},
		PaymentMethod: domain.PaymentCredit,
		Customer:      &domain.CustomerInfo{Name: "Mehmet Bey"},
	})
	if err != nil {
		t.Fatalf("credit sale: %v", err)
	}
	outstanding, err := svc.OutstandingCredit(ctx)
	if err != nil || !outstanding.Equal(d("150")) {
		t.Fatalf("expected outstanding 150, got %s %v", outstanding, err)
	}

	paid, err := svc.MarkAsPaid(ctx, sale.ID, domain.MarkPaidRequest{Method: domain.PaymentCash})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != domain.SaleStatusPaid || paid.PaidAmount == nil || !paid.PaidAmount.Equal(d("150")) {
		t.Fatalf("unexpected paid sale: %+v", paid)
	}
	if paid.PaidMethod == nil || *paid.PaidMethod != domain.PaymentCash || paid.PaidDate == nil {
		t.Fatalf("expected paid metadata, got %+v", paid)
	}
	if paid.PaymentMethod == nil || *paid.PaymentMethod != domain.PaymentCash {
		t.Fatalf("expected payment method to be set, got %v", paid.PaymentMethod)
	}

	payments, err := svc.ListPayments(ctx)
	if err != nil {
		t.Fatalf("payments: %v", err)
	}
	if len(payments) != 1 || payments[0].SaleID != sale.ID || payments[0].Direction != domain.PaymentIn || payments[0].Party != "Mehmet Bey" {
		t.Fatalf("unexpected payments: %+v", payments)
	}

	outstanding, _ = svc.OutstandingCredit(ctx)
	if !outstanding.IsZero() {
		t.Fatalf("expected nothing outstanding, got %s", outstanding)
	}
	if _, err := svc.MarkAsPaid(ctx, sale.ID, domain.MarkPaidRequest{Method: domain.PaymentCash}); !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid, got %v", err)
	}
}

func TestMarkAsPaidPartialAmountStillCloses(t *testing.T) {
	svc, st, _, ctx := newTestService(t)
	seedProduct(t, st, domain.Product{Barcode: "A", Name: "A", Stock: 10, SalePrice: d("100")})
	sale, err := svc.InstantSale(ctx, "A", domain.PaymentCredit)
	if err != nil {
		t.Fatalf("sale: %v", err)
	}

	amount := d("40")
	paid, err := svc.MarkAsPaid(ctx, sale.ID, domain.MarkPaidRequest{Amount: &amount, Method: domain.PaymentCard})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != domain.SaleStatusPaid || !paid.PaidAmount.Equal(amount) || !paid.Total.Equal(d("100")) {
		t.Fatalf("unexpected partially paid sale: %+v", paid)
	}
}

func TestMarkAsPaidRejections(t *testing.T) {
	svc, st, _, ctx := newTestService(t)
	seedProduct(t, st, domain.Product{Barcode: "A", Name: "A", Stock: 10, SalePrice: d("10")})

	cashSale, _ := svc.InstantSale(ctx, "A", domain.PaymentCash)
	if _, err := svc.MarkAsPaid(ctx, cashSale.ID, domain.MarkPaidRequest{Method: domain.PaymentCash}); !errors.Is(err, ErrNotCreditSale) {
		t.Fatalf("expected ErrNotCreditSale, got %v", err)
	}

	creditSale, _ := svc.InstantSale(ctx, "A", domain.PaymentCredit)
	if _, err := svc.MarkAsPaid(ctx, creditSale.ID, domain.MarkPaidRequest{Method: domain.PaymentCredit}); !errors.Is(err, ErrInvalidPaymentMethod) {
		t.Fatalf("expected ErrInvalidPaymentMethod, got %v", err)
	}
	zero := d("0")
	if _, err := svc.MarkAsPaid(ctx, creditSale.ID, domain.MarkPaidRequest{Amount: &zero, Method: domain.PaymentCash}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	if _, err := svc.CancelSaleByID(ctx, creditSale.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.MarkAsPaid(ctx, creditSale.ID, domain.MarkPaidRequest{Method: domain.PaymentCash}); !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("expected ErrAlreadyCancelled, got %v", err)
	}
}

func TestRecordPaymentValidation(t *testing.T) {
	svc, _, _, ctx := newTestService(t)

	if _, err := svc.RecordPayment(ctx, domain.PaymentRequest{Direction: "sideways", Method: domain.PaymentCash, Amount: d("5")}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.RecordPayment(ctx, domain.PaymentRequest{Direction: domain.PaymentOut, Method: domain.PaymentCash, Amount: d("0")}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	p, err := svc.RecordPayment(ctx, domain.PaymentRequest{Direction: domain.PaymentOut, Method: domain.PaymentTransfer, Amount: d("250"), Party: "Toptancı"})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if p.Timestamp.IsZero() || !p.Amount.Equal(d("250")) {
		t.Fatalf("unexpected payment: %+v", p)
	}
}
