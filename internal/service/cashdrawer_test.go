package service

import (
	"errors"
	"testing"

	"bakkal/backoffice/internal/domain"
)

func TestCashDrawerBalanceFromSubLedger(t *testing.T) {
	svc, _, _, ctx := newTestService(t)

	if _, err := svc.OpenCashDrawer(ctx, domain.OpenDrawerRequest{OpeningAmount: d("100")}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.AddCashTransaction(ctx, domain.CashTransactionRequest{Type: domain.CashIn, Amount: d("50")}); err != nil {
		t.Fatalf("in: %v", err)
	}
	if _, err := svc.AddCashTransaction(ctx, domain.CashTransactionRequest{Type: domain.CashOut, Amount: d("20"), Note: "market alışverişi"}); err != nil {
		t.Fatalf("out: %v", err)
	}

	balance, err := svc.CashDrawerBalance(ctx)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Balance.Equal(d("130")) || !balance.TotalIn.Equal(d("50")) || !balance.TotalOut.Equal(d("20")) {
		t.Fatalf("unexpected balance: %+v", balance)
	}

	active, err := svc.ActiveCashDrawer(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if !active.TotalIn.Equal(d("50")) || !active.TotalOut.Equal(d("20")) {
		t.Fatalf("expected running totals on session, got %+v", active)
	}

	counted := d("125")
	closed, err := svc.CloseCashDrawer(ctx, domain.CloseDrawerRequest{CountedAmount: &counted})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.EndTime == nil || closed.ClosingBalance == nil || !closed.ClosingBalance.Equal(d("130")) {
		t.Fatalf("unexpected closed session: %+v", closed)
	}
	if closed.Difference == nil || !closed.Difference.Equal(d("-5")) {
		t.Fatalf("expected difference -5, got %v", closed.Difference)
	}

	if _, err := svc.ActiveCashDrawer(ctx); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestCashDrawerRules(t *testing.T) {
	svc, _, _, ctx := newTestService(t)

	if _, err := svc.AddCashTransaction(ctx, domain.CashTransactionRequest{Type: domain.CashIn, Amount: d("10")}); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	if _, err := svc.OpenCashDrawer(ctx, domain.OpenDrawerRequest{OpeningAmount: d("-1")}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.OpenCashDrawer(ctx, domain.OpenDrawerRequest{OpeningAmount: d("0")}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.OpenCashDrawer(ctx, domain.OpenDrawerRequest{OpeningAmount: d("10")}); !errors.Is(err, ErrAlreadyOpen) {
		t.Fatalf("expected ErrAlreadyOpen, got %v", err)
	}
	if _, err := svc.AddCashTransaction(ctx, domain.CashTransactionRequest{Type: "sideways", Amount: d("1")}); !errors.Is(err, ErrInvalidDirection) {
		t.Fatalf("expected ErrInvalidDirection, got %v", err)
	}

	tx, err := svc.AddCashTransaction(ctx, domain.CashTransactionRequest{Type: domain.CashOut, Amount: d("-30")})
	if err != nil {
		t.Fatalf("clamped transaction: %v", err)
	}
	if !tx.Amount.IsZero() {
		t.Fatalf("expected negative amount clamped to 0, got %s", tx.Amount)
	}

	if _, err := svc.CloseCashDrawer(ctx, domain.CloseDrawerRequest{}); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.OpenCashDrawer(ctx, domain.OpenDrawerRequest{OpeningAmount: d("10")}); err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
	sessions, err := svc.ListCashDrawerSessions(ctx)
	if err != nil || len(sessions) != 2 {
		t.Fatalf("expected two sessions, got %v %v", sessions, err)
	}
}
