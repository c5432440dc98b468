package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"bakkal/backoffice/internal/domain"
	"bakkal/backoffice/internal/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), chi.URLParam(r, "barcode"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteProduct(r.Context(), chi.URLParam(r, "barcode")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleImportProducts(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("failed to parse multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("file field is required"))
		return
	}
	defer file.Close()

	result, err := a.service.ImportProducts(r.Context(), file)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file_name": header.Filename,
		"created":   result.Created,
		"skipped":   result.Skipped,
	})
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.LowStock(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleListCategoryDiscounts(w http.ResponseWriter, r *http.Request) {
	discounts, err := a.service.ListCategoryDiscounts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category_discounts": discounts})
}

func (a *API) handleSetCategoryDiscount(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryDiscount
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	discount, err := a.service.SetCategoryDiscount(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category_discount": discount})
}

func (a *API) handleDeleteCategoryDiscount(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteCategoryDiscount(r.Context(), chi.URLParam(r, "category")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePriceCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lines []domain.CartLine `json:"lines"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	preview, err := a.service.PriceCart(r.Context(), req.Lines)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sales, err := a.service.ListSales(r.Context(), domain.SaleFilter{
		Type:   domain.SaleType(strings.TrimSpace(query.Get("type"))),
		Status: domain.SaleStatus(strings.TrimSpace(query.Get("status"))),
		Limit:  parsePositiveLimit(query.Get("limit"), 100, 1000),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleFinalizeSale(w http.ResponseWriter, r *http.Request) {
	var req domain.FinalizeSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sale, err := a.service.FinalizeSale(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleInstantSale(w http.ResponseWriter, r *http.Request) {
	var req domain.InstantSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sale, err := a.service.InstantSale(r.Context(), req.Barcode, req.PaymentMethod)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.CancelSaleByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleSaleReceipt(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeReceipt(w, r, export.SaleReceipt(sale))
}

func writeReceipt(w http.ResponseWriter, r *http.Request, receipt export.Receipt) {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "escpos":
		writeAttachment(w, "application/octet-stream", receipt.FileName+".bin", receipt.EscPos)
	case "text":
		writeAttachment(w, "text/plain; charset=utf-8", receipt.FileName+".txt", []byte(receipt.Text))
	default:
		writeJSON(w, http.StatusOK, map[string]any{"receipt": receipt})
	}
}

func (a *API) handleExportSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sales, err := a.service.ListSales(r.Context(), domain.SaleFilter{
		Type:   domain.SaleType(strings.TrimSpace(query.Get("type"))),
		Status: domain.SaleStatus(strings.TrimSpace(query.Get("status"))),
		Limit:  parsePositiveLimit(query.Get("limit"), 1000, 10000),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	body, err := export.SalesWorkbook(sales)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeAttachment(w, xlsxContentType, "satislar.xlsx", body)
}

func (a *API) handleMarkAsPaid(w http.ResponseWriter, r *http.Request) {
	var req domain.MarkPaidRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sale, err := a.service.MarkAsPaid(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleListCreditSales(w http.ResponseWriter, r *http.Request) {
	status := domain.SaleStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	sales, err := a.service.ListCreditSales(r.Context(), status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleOutstandingCredit(w http.ResponseWriter, r *http.Request) {
	total, err := a.service.OutstandingCredit(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outstanding": total})
}

func (a *API) handleListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := a.service.ListPayments(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func (a *API) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payment, err := a.service.RecordPayment(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"payment": payment})
}

func (a *API) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := a.service.ListPurchases(r.Context(), parsePositiveLimit(r.URL.Query().Get("limit"), 100, 1000))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchases": purchases})
}

func (a *API) handleRecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req domain.RecordPurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	purchase, err := a.service.RecordPurchase(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"purchase": purchase})
}

func (a *API) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	purchase, err := a.service.GetPurchase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase": purchase})
}

func (a *API) handlePurchaseReceipt(w http.ResponseWriter, r *http.Request) {
	purchase, err := a.service.GetPurchase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeReceipt(w, r, export.PurchaseReceipt(purchase))
}

func (a *API) handleExportPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := a.service.ListPurchases(r.Context(), parsePositiveLimit(r.URL.Query().Get("limit"), 1000, 10000))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	body, err := export.PurchasesWorkbook(purchases)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeAttachment(w, xlsxContentType, "alislar.xlsx", body)
}

func (a *API) handleListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	status := domain.PurchaseOrderStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	orders, err := a.service.ListPurchaseOrders(r.Context(), status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase_orders": orders})
}

func (a *API) handleCreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseOrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.CreatePurchaseOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"purchase_order": order})
}

func (a *API) handleGetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetPurchaseOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase_order": order})
}

func (a *API) handleSendPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.MarkPurchaseOrderSent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase_order": order})
}

func (a *API) handleReceivePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.ReceivePurchaseOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleListStockCounts(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.service.ListStockCounts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock_counts": sessions})
}

func (a *API) handleOpenStockCount(w http.ResponseWriter, r *http.Request) {
	var req domain.OpenCountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	count, err := a.service.OpenStockCount(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"stock_count": count.Session()})
}

func (a *API) handleGetStockCount(w http.ResponseWriter, r *http.Request) {
	count, err := a.service.ResumeStockCount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stock_count": count.Session(),
		"variances":   count.Variances(),
	})
}

// Each request works on a freshly resumed handle and persists it before
// answering, so concurrent scanners of one session race on the snapshot (last
// write wins). A scan that arrives after a close gets 409.
func (a *API) handleStockCountScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	count, err := a.service.ResumeStockCount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	line, err := count.AddScan(r.Context(), req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := count.SaveSnapshot(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"line": line})
}

func (a *API) handleStockCountUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CountedQty int `json:"counted_qty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	count, err := a.service.ResumeStockCount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	line, err := count.UpdateCount(chi.URLParam(r, "productID"), req.CountedQty)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := count.SaveSnapshot(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"line": line})
}

func (a *API) handleCloseStockCount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ApplyAdjustments bool `json:"apply_adjustments"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	count, err := a.service.ResumeStockCount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	session, err := count.Close(r.Context(), req.ApplyAdjustments)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock_count": session})
}

func (a *API) handleOpenCashDrawer(w http.ResponseWriter, r *http.Request) {
	var req domain.OpenDrawerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	session, err := a.service.OpenCashDrawer(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": session})
}

func (a *API) handleActiveCashDrawer(w http.ResponseWriter, r *http.Request) {
	session, err := a.service.ActiveCashDrawer(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (a *API) handleCashDrawerBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := a.service.CashDrawerBalance(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (a *API) handleAddCashTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.CashTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tx, err := a.service.AddCashTransaction(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transaction": tx})
}

func (a *API) handleCloseCashDrawer(w http.ResponseWriter, r *http.Request) {
	var req domain.CloseDrawerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	session, err := a.service.CloseCashDrawer(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (a *API) handleDrawerKick(w http.ResponseWriter, r *http.Request) {
	writeAttachment(w, "application/octet-stream", "drawer-kick.bin", export.DrawerKick())
}

func (a *API) handleListCashDrawerSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.service.ListCashDrawerSessions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (a *API) handleListCashTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := a.service.ListCashTransactions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := a.service.ListAuditLogs(r.Context(), parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
