package service

import (
	"errors"
	"testing"

	"bakkal/backoffice/internal/domain"
	"bakkal/backoffice/internal/store"
)

func TestStockCountCloseAppliesVariance(t *testing.T) {
	svc, st, _, ctx := newTestService(t)
	seedProduct(t, st, domain.Product{Barcode: "P", Name: "Makarna", Stock: 10})
	seedProduct(t, st, domain.Product{Barcode: "Q", Name: "Pirinç", Stock: 7})

	count, err := svc.OpenStockCount(ctx, domain.OpenCountRequest{CountType: domain.CountFull})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := count.AddScan(ctx, " P "); err != nil {
			t.Fatalf("scan: %v", err)
		}
	}
	line := count.Session().Items["P"]
	if line.SystemQtySnapshot != 10 || line.CountedQty != 3 {
		t.Fatalf("unexpected line after 3 scans: %+v", line)
	}

	closed, err := count.Close(ctx, true)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != domain.CountClosed || closed.TotalItems != 1 || closed.TotalCounted != 3 || closed.TotalVariance != -7 || !closed.AdjustmentsApplied {
		t.Fatalf("unexpected closed session: %+v", closed)
	}
	if closed.ClosedAt == nil {
		t.Fatalf("expected closed_at")
	}
	if got := stockOf(t, svc, ctx, "P"); got != 3 {
		t.Fatalf("expected stock 3, got %d", got)
	}
	if got := stockOf(t, svc, ctx, "Q"); got != 7 {
		t.Fatalf("uncounted product must not change, got %d", got)
	}

	if _, err := count.AddScan(ctx, "P"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed on scan, got %v", err)
	}
	if _, err := count.Close(ctx, true); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed on second close, got %v", err)
	}
}

func TestStockCountCloseWithoutAdjustments(t *testing.T) {
	svc, st, _, ctx := newTestService(t)
	seedProduct(t, st, domain.Product{Barcode: "P", Name: "P", Stock: 4})

	count, err := svc.OpenStockCount(ctx, domain.OpenCountRequest{CountType: domain.CountFull})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := count.AddScan(ctx, "P"); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if _, err := count.UpdateCount("P", 9); err != nil {
		t.Fatalf("update count: %v", err)
	}
	closed, err := count.Close(ctx, false)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.TotalVariance != 5 || closed.AdjustmentsApplied {
		t.Fatalf("unexpected session: %+v", closed)
	}
	if got := stockOf(t, svc, ctx, "P"); got != 4 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
}

func TestStockCountScopeAndCountEdits(t *testing.T) {
	svc, st, _, ctx := newTestService(t)
	seedProduct(t, st, domain.Product{Barcode: "D1", Name: "Ayran", Category: "İçecek", Stock: 5})
	seedProduct(t, st, domain.Product{Barcode: "F1", Name: "Ekmek", Category: "Fırın", Stock: 5})

	if _, err := svc.OpenStockCount(ctx, domain.OpenCountRequest{CountType: domain.CountCategory}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected category count without categories to fail, got %v", err)
	}
	if _, err := svc.OpenStockCount(ctx, domain.OpenCountRequest{CountType: "weekly"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected unknown count type to fail, got %v", err)
	}

	count, err := svc.OpenStockCount(ctx, domain.OpenCountRequest{CountType: domain.CountCategory, Categories: []string{"içecek"}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := count.AddScan(ctx, "F1"); !errors.Is(err, ErrOutOfScope) {
		t.Fatalf("expected ErrOutOfScope, got %v", err)
	}
	if _, err := count.AddScan(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := count.AddScan(ctx, "D1"); err != nil {
		t.Fatalf("scan in scope: %v", err)
	}
	if _, err := count.UpdateCount("F1", 3); !errors.Is(err, ErrNotCounted) {
		t.Fatalf("expected ErrNotCounted, got %v", err)
	}
	line, err := count.UpdateCount("D1", -4)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if line.CountedQty != 0 {
		t.Fatalf("expected clamp to 0, got %d", line.CountedQty)
	}

	specific, err := svc.OpenStockCount(ctx, domain.OpenCountRequest{CountType: domain.CountSpecific, ProductIDs: []string{"F1"}})
	if err != nil {
		t.Fatalf("open specific: %v", err)
	}
	if _, err := specific.AddScan(ctx, "D1"); !errors.Is(err, ErrOutOfScope) {
		t.Fatalf("expected ErrOutOfScope for specific count, got %v", err)
	}
}

func TestStockCountSnapshotSurvivesResume(t *testing.T) {
	svc, st, _, ctx := newTestService(t)
	seedProduct(t, st, domain.Product{Barcode: "P", Name: "P", Stock: 10, SalePrice: d("1")})

	count, err := svc.OpenStockCount(ctx, domain.OpenCountRequest{CountType: domain.CountFull})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := count.AddScan(ctx, "P"); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if err := count.SaveSnapshot(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A sale during the count drifts from the frozen snapshot.
	if _, err := svc.InstantSale(ctx, "P", domain.PaymentCash); err != nil {
		t.Fatalf("sale: %v", err)
	}

	resumed, err := svc.ResumeStockCount(ctx, count.Session().ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Session().SavedAt == nil {
		t.Fatalf("expected saved_at on resumed session")
	}
	if _, err := resumed.AddScan(ctx, "P"); err != nil {
		t.Fatalf("scan: %v", err)
	}
	line := resumed.Session().Items["P"]
	if line.SystemQtySnapshot != 10 || line.CountedQty != 2 {
		t.Fatalf("expected frozen snapshot 10 and count 2, got %+v", line)
	}
	if v := resumed.Variances(); len(v) != 1 || v[0].Variance != -8 {
		t.Fatalf("unexpected variances: %+v", v)
	}

	sessions, err := svc.ListStockCounts(ctx)
	if err != nil || len(sessions) != 1 {
		t.Fatalf("expected one session, got %v %v", sessions, err)
	}
}

func TestStaleHandleCannotCloseOrSaveClosedSession(t *testing.T) {
	svc, st, _, ctx := newTestService(t)
	seedProduct(t, st, domain.Product{Barcode: "P", Name: "Sabun", Stock: 10})

	first, err := svc.OpenStockCount(ctx, domain.OpenCountRequest{CountType: domain.CountFull})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := first.AddScan(ctx, "P"); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if err := first.SaveSnapshot(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	second, err := svc.ResumeStockCount(ctx, first.Session().ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := second.AddScan(ctx, "P"); err != nil {
		t.Fatalf("scan on second handle: %v", err)
	}

	if _, err := first.Close(ctx, true); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := stockOf(t, svc, ctx, "P"); got != 1 {
		t.Fatalf("expected stock 1 after close, got %d", got)
	}

	if err := second.SaveSnapshot(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed on stale save, got %v", err)
	}
	if _, err := second.Close(ctx, true); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed on stale close, got %v", err)
	}
	if got := stockOf(t, svc, ctx, "P"); got != 1 {
		t.Fatalf("adjustments must apply once, got stock %d", got)
	}

	stored, err := svc.ResumeStockCount(ctx, first.Session().ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if line := stored.Session().Items["P"]; line.CountedQty != 1 {
		t.Fatalf("closed items must not be overwritten, got %+v", line)
	}
}
