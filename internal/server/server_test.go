package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tpnguyen128/carbonmarket/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal in-memory config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:                    "0",
		Env:                     "development",
		LogLevel:                "error",
		CertificateValidityDays: 365,
		ExpiryWarningDays:       10,
		SuggestedPriceMarkup:    5,
		AdminSecret:             "test-secret",
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func (s *Server) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(t, "GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, "GET", "/health/live", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, "GET", "/health/ready", "", nil)
	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/metrics",
		"POST:/api/v1/users",
		"GET:/api/v1/users/:id/wallet",
		"POST:/api/v1/users/:id/topups",
		"POST:/api/v1/transfers",
		"GET:/api/v1/users/:id/carbon-wallet",
		"POST:/api/v1/listings",
		"GET:/api/v1/listings/price-stats",
		"POST:/api/v1/transactions",
		"POST:/api/v1/transactions/:id/confirm",
		"POST:/api/v1/transactions/:id/cancel",
		"POST:/api/v1/certificates/requests",
		"POST:/api/v1/uploads",
		"GET:/api/v1/admin/topups",
		"POST:/api/v1/admin/topups/:id/approve",
		"GET:/api/v1/admin/certificates/pending",
		"GET:/api/v1/admin/notifications",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// Admin authentication tests
// ---------------------------------------------------------------------------

func TestAdminRoutesRequireSecret(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, "GET", "/api/v1/admin/topups", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without secret, got %d", w.Code)
	}

	w, _ = s.do(t, "GET", "/api/v1/admin/topups", "", map[string]string{"X-Admin-Secret": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong secret, got %d", w.Code)
	}

	w, _ = s.do(t, "GET", "/api/v1/admin/topups", "", map[string]string{"X-Admin-Secret": "test-secret"})
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with correct secret, got %d: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// End-to-end marketplace flow
// ---------------------------------------------------------------------------

func TestMarketplaceFlow(t *testing.T) {
	s := newTestServer(t)
	adminHeaders := map[string]string{"X-Admin-Secret": "test-secret"}

	// Register buyer and seller
	w, buyer := s.do(t, "POST", "/api/v1/users", `{"fullName":"Buyer One","email":"buyer@example.com"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create buyer: %d %s", w.Code, w.Body.String())
	}
	buyerID := buyer["id"].(string)

	w, seller := s.do(t, "POST", "/api/v1/users", `{"fullName":"Seller One","email":"seller@example.com"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create seller: %d %s", w.Code, w.Body.String())
	}
	sellerID := seller["id"].(string)

	// Buyer requests a top-up, admin approves it
	w, topUp := s.do(t, "POST", "/api/v1/users/"+buyerID+"/topups", `{"amount":"100"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit top-up: %d %s", w.Code, w.Body.String())
	}
	topUpID := topUp["id"].(string)

	w, _ = s.do(t, "POST", "/api/v1/admin/topups/"+topUpID+"/approve", "", adminHeaders)
	if w.Code != http.StatusOK {
		t.Fatalf("approve top-up: %d %s", w.Code, w.Body.String())
	}

	w, balance := s.do(t, "GET", "/api/v1/users/"+buyerID+"/wallet", "", nil)
	if w.Code != http.StatusOK || balance["balance"] != "100" {
		t.Fatalf("buyer balance after top-up: %d %s", w.Code, w.Body.String())
	}

	// Seller opens a listing
	w, lst := s.do(t, "POST", "/api/v1/listings",
		`{"sellerId":"`+sellerID+`","title":"Forest Restoration","carbonAmount":"10","price":"5"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create listing: %d %s", w.Code, w.Body.String())
	}
	listingID := lst["id"].(string)

	// Buyer opens and confirms a transaction for 4 tons
	w, txn := s.do(t, "POST", "/api/v1/transactions",
		`{"listingId":"`+listingID+`","buyerId":"`+buyerID+`","quantity":"4"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create transaction: %d %s", w.Code, w.Body.String())
	}
	txnID := txn["id"].(string)
	if txn["amount"] != "20" {
		t.Errorf("transaction amount = %v, want 20", txn["amount"])
	}

	w, confirmed := s.do(t, "POST", "/api/v1/transactions/"+txnID+"/confirm", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("confirm transaction: %d %s", w.Code, w.Body.String())
	}
	settled, ok := confirmed["transaction"].(map[string]interface{})
	if !ok || settled["status"] != "COMPLETED" {
		t.Errorf("settled transaction = %v, want status COMPLETED", confirmed["transaction"])
	}

	// Money moved and the certificate was issued
	w, balance = s.do(t, "GET", "/api/v1/users/"+buyerID+"/wallet", "", nil)
	if balance["balance"] != "80" {
		t.Errorf("buyer balance = %v, want 80 (%d %s)", balance["balance"], w.Code, w.Body.String())
	}
	w, balance = s.do(t, "GET", "/api/v1/users/"+sellerID+"/wallet", "", nil)
	if balance["balance"] != "20" {
		t.Errorf("seller balance = %v, want 20 (%d %s)", balance["balance"], w.Code, w.Body.String())
	}

	w, certs := s.do(t, "GET", "/api/v1/users/"+buyerID+"/certificates", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list certificates: %d %s", w.Code, w.Body.String())
	}
	if certList, ok := certs["certificates"].([]interface{}); !ok || len(certList) != 1 {
		t.Errorf("expected one certificate, got %v", certs["certificates"])
	}

	// Admin inbox recorded the activity
	w, count := s.do(t, "GET", "/api/v1/admin/notifications/unread/count", "", adminHeaders)
	if w.Code != http.StatusOK {
		t.Fatalf("unread count: %d %s", w.Code, w.Body.String())
	}
	if n, ok := count["count"].(float64); !ok || n < 2 {
		t.Errorf("expected at least 2 unread notifications, got %v", count["count"])
	}
}

// ---------------------------------------------------------------------------
// Upload crediting flow
// ---------------------------------------------------------------------------

func TestUploadCreditingFlow(t *testing.T) {
	s := newTestServer(t)

	w, owner := s.do(t, "POST", "/api/v1/users", `{"fullName":"Uploader","email":"uploader@example.com"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create user: %d %s", w.Code, w.Body.String())
	}
	ownerID := owner["id"].(string)

	w, _ = s.do(t, "POST", "/api/v1/uploads",
		`{"ownerId":"`+ownerID+`","filename":"annual-report.pdf","creditsTons":"3"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("record upload: %d %s", w.Code, w.Body.String())
	}

	w, balance := s.do(t, "GET", "/api/v1/users/"+ownerID+"/carbon-wallet", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("carbon wallet: %d %s", w.Code, w.Body.String())
	}
	if balance["balance"] != "3" {
		t.Errorf("carbon balance = %v, want 3", balance["balance"])
	}

	w, certs := s.do(t, "GET", "/api/v1/users/"+ownerID+"/certificates", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list certificates: %d %s", w.Code, w.Body.String())
	}
	if certList, ok := certs["certificates"].([]interface{}); !ok || len(certList) != 1 {
		t.Errorf("expected one certificate from the upload, got %v", certs["certificates"])
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, "GET", "/api/v1/nonexistent", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
