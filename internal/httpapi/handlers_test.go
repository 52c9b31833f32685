package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/J-Enyeribe/TheChase/internal/cache"
	"github.com/J-Enyeribe/TheChase/internal/service"
	"github.com/J-Enyeribe/TheChase/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager
// and real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopCatalogCache{}, time.Second)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)
	return New(svc, auth, "*")
}

func doJSON(t *testing.T, handler http.Handler, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func login(t *testing.T, api *API, handler http.Handler, email, password string) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("login: no access token in %v", body)
	}
	return token
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"email":    "admin@thechase.local",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestProductsRequireAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMutationsRequireCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, api, handler, "cashier@thechase.local", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/cart/items", token, "", map[string]any{
		"sku":      "SKU-LAGER-01",
		"quantity": "1",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", rec.Code)
	}
}

func TestCheckoutFlow(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, api, handler, "cashier@thechase.local", "cashier123")
	csrf := api.generateCSRFToken()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/cart/items", token, csrf, map[string]any{
		"sku":        "SKU-LAGER-01",
		"preference": "Cold",
		"quantity":   "2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add to cart: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/cart", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("view cart: expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	cartBody, _ := body["cart"].(map[string]any)
	if cartBody == nil || cartBody["total_ksh"] != "600" {
		t.Fatalf("cart body = %v, want total_ksh 600", body)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, csrf, map[string]any{
		"currency": "KSH",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	result := decodeBody(t, rec)
	orderBody, _ := result["order"].(map[string]any)
	if orderBody == nil || orderBody["status"] != "cleared" {
		t.Fatalf("order = %v, want status cleared", result)
	}
	txBody, _ := result["transaction"].(map[string]any)
	receipt, _ := txBody["receipt_number"].(string)
	if receipt == "" {
		t.Fatalf("transaction = %v, want receipt number", result)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/transactions/"+receipt, token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get receipt: expected 200, got %d", rec.Code)
	}
}

func TestCheckoutEmptyCartReturns400(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, api, handler, "cashier@thechase.local", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, api.generateCSRFToken(), map[string]any{
		"currency": "KSH",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCashierCannotManageUsers(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, api, handler, "cashier@thechase.local", "cashier123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/users", token, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestAdminCreatesUserAndProduct(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, api, handler, "admin@thechase.local", "admin123")
	csrf := api.generateCSRFToken()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/users", token, csrf, map[string]any{
		"full_name": "Second Till",
		"email":     "till2@thechase.local",
		"password":  "longenough",
		"role":      "cashier",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products", token, csrf, map[string]any{
		"sku":            "SKU-RUM-01",
		"name":           "Dark Rum 750ml",
		"unit_price_ksh": "2200",
		"unit_price_ugx": "66000",
		"initial_stock":  "12",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}
