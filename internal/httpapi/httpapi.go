package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bakkal/backoffice/internal/service"
	"bakkal/backoffice/internal/store"
)

const (
	roleAdmin   = "admin"
	roleCashier = "cashier"

	maxJSONBody = 1 << 20
)

type API struct {
	service       *service.Service
	auth          *Authenticator
	allowedOrigin string
}

func New(svc *service.Service, auth *Authenticator, allowedOrigin string) *API {
	if strings.TrimSpace(allowedOrigin) == "" {
		allowedOrigin = "*"
	}
	return &API{service: svc, auth: auth, allowedOrigin: allowedOrigin}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(recoverer)
	r.Use(a.headers)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(a.requireAuth)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(roleCashier, roleAdmin))

			r.Get("/products", a.handleListProducts)
			r.Get("/products/low-stock", a.handleLowStock)
			r.Get("/products/{barcode}", a.handleGetProduct)
			r.Get("/category-discounts", a.handleListCategoryDiscounts)
			r.Post("/cart/price", a.handlePriceCart)

			r.Get("/sales", a.handleListSales)
			r.Post("/sales", a.handleFinalizeSale)
			r.Post("/sales/instant", a.handleInstantSale)
			r.Get("/sales/{id}", a.handleGetSale)
			r.Get("/sales/{id}/receipt", a.handleSaleReceipt)
			r.Post("/sales/{id}/pay", a.handleMarkAsPaid)

			r.Get("/credit-sales", a.handleListCreditSales)
			r.Get("/credit-sales/outstanding", a.handleOutstandingCredit)

			r.Post("/stock-counts/{id}/scans", a.handleStockCountScan)
			r.Patch("/stock-counts/{id}/items/{productID}", a.handleStockCountUpdate)
			r.Get("/stock-counts/{id}", a.handleGetStockCount)

			r.Post("/cash-drawer/open", a.handleOpenCashDrawer)
			r.Get("/cash-drawer/active", a.handleActiveCashDrawer)
			r.Get("/cash-drawer/balance", a.handleCashDrawerBalance)
			r.Post("/cash-drawer/transactions", a.handleAddCashTransaction)
			r.Post("/cash-drawer/close", a.handleCloseCashDrawer)
			r.Post("/cash-drawer/kick", a.handleDrawerKick)

			r.Get("/watch/{collection}", a.handleWatch)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireRole(roleAdmin))

			r.Post("/products", a.handleCreateProduct)
			r.Post("/products/import", a.handleImportProducts)
			r.Patch("/products/{barcode}", a.handleUpdateProduct)
			r.Delete("/products/{barcode}", a.handleDeleteProduct)
			r.Put("/category-discounts", a.handleSetCategoryDiscount)
			r.Delete("/category-discounts/{category}", a.handleDeleteCategoryDiscount)

			r.Post("/sales/{id}/cancel", a.handleCancelSale)
			r.Get("/exports/sales.xlsx", a.handleExportSales)

			r.Get("/payments", a.handleListPayments)
			r.Post("/payments", a.handleRecordPayment)

			r.Get("/purchases", a.handleListPurchases)
			r.Post("/purchases", a.handleRecordPurchase)
			r.Get("/purchases/{id}", a.handleGetPurchase)
			r.Get("/purchases/{id}/receipt", a.handlePurchaseReceipt)
			r.Get("/exports/purchases.xlsx", a.handleExportPurchases)

			r.Get("/purchase-orders", a.handleListPurchaseOrders)
			r.Post("/purchase-orders", a.handleCreatePurchaseOrder)
			r.Get("/purchase-orders/{id}", a.handleGetPurchaseOrder)
			r.Post("/purchase-orders/{id}/send", a.handleSendPurchaseOrder)
			r.Post("/purchase-orders/{id}/receive", a.handleReceivePurchaseOrder)

			r.Get("/stock-counts", a.handleListStockCounts)
			r.Post("/stock-counts", a.handleOpenStockCount)
			r.Post("/stock-counts/{id}/close", a.handleCloseStockCount)

			r.Get("/cash-drawer/sessions", a.handleListCashDrawerSessions)
			r.Get("/cash-drawer/sessions/{id}/transactions", a.handleListCashTransactions)

			r.Get("/audit-logs", a.handleAuditLogs)
		})
	})

	return r
}

func (a *API) headers(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  log.New(log.Writer(), "[http] ", log.LstdFlags),
		NoColor: true,
	})(next)
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Printf("[http] panic recovered on %s %s: %v", r.Method, r.URL.Path, rec)
				writeError(w, http.StatusInternalServerError, errors.New("panic"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeServiceError maps service and store errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case service.IsValidation(err):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case service.IsConflict(err):
		status = http.StatusConflict
	case errors.Is(err, store.ErrInvalidPath):
		status = http.StatusBadRequest
	}
	writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log.
	msg := err.Error()
	if status >= 500 {
		log.Printf("[http] internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAttachment(w http.ResponseWriter, contentType string, fileName string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+fileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
