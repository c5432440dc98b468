package httpapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	res := do(t, api, http.MethodGet, "/healthz", "", nil)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	api := newTestAPI(t)
	res := do(t, api, http.MethodOptions, "/api/v1/sales", "", nil)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", res.Code)
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", maxJSONBody+1024)
	body := fmt.Sprintf(`{"barcode":"%s","payment_method":"cash"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales/instant", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, api, roleCashier))
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", res.Code)
	}
}

func TestInternalErrorsStayGeneric(t *testing.T) {
	res := httptest.NewRecorder()
	writeServiceError(res, fmt.Errorf("pq: relation documents does not exist"))

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "relation") {
		t.Fatalf("internal detail leaked: %s", res.Body.String())
	}
}

func TestTokenPartitionIsolatesData(t *testing.T) {
	api := newTestAPI(t)
	token, _, err := api.auth.IssueToken("other-shop", roleCashier)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	res := do(t, api, http.MethodGet, "/api/v1/products/"+ayran, token, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 outside own partition, got %d", res.Code)
	}
}
