package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"barledger/backend/internal/domain"
	"barledger/backend/internal/service"
	"barledger/backend/internal/store/memory"
)

// newTestAPI wires the real service and auth manager over the seeded memory
// store so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, service.Options{})
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", repo, repo)
	return New(svc, auth, "*", nil)
}

type testClient struct {
	t       *testing.T
	handler http.Handler
	token   string
	csrf    string
}

func newTestClient(t *testing.T, api *API) *testClient {
	t.Helper()
	return &testClient{t: t, handler: api.Handler(), csrf: fetchCSRFToken(t, api)}
}

func (c *testClient) do(method string, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func (c *testClient) login(path string, body any) domain.LoginResponse {
	c.t.Helper()
	rec := c.do(http.MethodPost, path, body)
	if rec.Code != http.StatusOK {
		c.t.Fatalf("login via %s failed: %d %s", path, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	decodeBody(c.t, rec, &resp)
	c.token = resp.AccessToken
	return resp
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (body: %s)", err, rec.Body.String())
	}
}

func startTestSession(t *testing.T, c *testClient, tableID string) service.BillDetail {
	t.Helper()
	rec := c.do(http.MethodPost, "/api/v1/sessions", domain.SessionStartRequest{
		TableID:     tableID,
		SeatingTier: domain.SeatingFree,
		BaseMinutes: 60,
		CastIDs:     []string{"cast-akari"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start session: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var detail service.BillDetail
	decodeBody(t, rec, &detail)
	return detail
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin(t *testing.T) {
	api := newTestAPI(t)
	c := newTestClient(t, api)

	resp := c.login("/api/v1/auth/login", domain.LoginRequest{Username: "admin", Password: "admin123"})
	if resp.AccessToken == "" || resp.Role != domain.RoleAdmin {
		t.Fatalf("unexpected login response %+v", resp)
	}

	rec := c.do(http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Username: "admin", Password: "wrongpassword"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rec.Code)
	}
}

func TestLoginValidationReportsFields(t *testing.T) {
	api := newTestAPI(t)
	c := newTestClient(t, api)

	rec := c.do(http.MethodPost, "/api/v1/auth/cast-login", map[string]string{"username": "akari", "pin": "12"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	decodeBody(t, rec, &body)
	if body.Fields["pin"] != "min" {
		t.Fatalf("expected pin min violation, got %v", body.Fields)
	}
}

func TestProductsRequireAuth(t *testing.T) {
	api := newTestAPI(t)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	c := newTestClient(t, api)
	c.login("/api/v1/auth/login", domain.LoginRequest{Username: "staff", Password: "staff123"})
	rec = c.do(http.MethodGet, "/api/v1/products", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Products []domain.Product `json:"products"`
	}
	decodeBody(t, rec, &body)
	if len(body.Products) == 0 {
		t.Fatalf("expected seeded products")
	}

	rec = c.do(http.MethodPost, "/api/v1/products", domain.ProductCreateRequest{Name: "ハウスボトル", Category: domain.CategoryBottles, Price: 8000})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected staff product create to be 403, got %d", rec.Code)
	}
}

func TestSessionFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	c := newTestClient(t, api)
	c.login("/api/v1/auth/login", domain.LoginRequest{Username: "staff", Password: "staff123"})

	detail := startTestSession(t, c, "s1-a1")
	if detail.Bill.ReadToken == "" || detail.Bill.Status != domain.BillOpen {
		t.Fatalf("unexpected bill %+v", detail.Bill)
	}

	rec := c.do(http.MethodPost, "/api/v1/sessions", domain.SessionStartRequest{TableID: "s1-a1", SeatingTier: domain.SeatingFree, BaseMinutes: 60})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second open bill, got %d", rec.Code)
	}

	rec = c.do(http.MethodPost, "/api/v1/bills/"+detail.Bill.ID+"/orders", domain.OrderCreateRequest{ProductID: "prd-set-60", Quantity: 1})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add order: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	rec = c.do(http.MethodPost, "/api/v1/bills/"+detail.Bill.ID+"/orders", domain.OrderCreateRequest{ProductID: "prd-drink-s", CastID: "cast-akari", Quantity: 1})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add drink: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = c.do(http.MethodPost, "/api/v1/bills/"+detail.Bill.ID+"/adjustments", domain.AdjustmentCreateRequest{
		Type:   domain.AdjustmentDiscount,
		Delta:  -99999,
		Reason: "常連割",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for negative total, got %d (%s)", rec.Code, rec.Body.String())
	}

	public := httptest.NewRecorder()
	api.Handler().ServeHTTP(public, httptest.NewRequest(http.MethodGet, "/api/v1/public/bills/"+detail.Bill.ReadToken, nil))
	if public.Code != http.StatusOK {
		t.Fatalf("public bill: expected 200, got %d (%s)", public.Code, public.Body.String())
	}
	var view service.CustomerBillView
	decodeBody(t, public, &view)
	if view.TableLabel != "A1" || len(view.Lines) != 2 {
		t.Fatalf("unexpected customer view %+v", view)
	}
	// (5000 + 1000) x 1.2
	if view.CurrentTotal != 7200 {
		t.Fatalf("expected current total 7200, got %d", view.CurrentTotal)
	}

	rec = c.do(http.MethodPost, "/api/v1/bills/"+detail.Bill.ID+"/end", domain.SessionEndRequest{PaymentMethod: domain.PaymentCash})
	if rec.Code != http.StatusOK {
		t.Fatalf("end session: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var ended service.BillDetail
	decodeBody(t, rec, &ended)
	if ended.Bill.Status != domain.BillClosed {
		t.Fatalf("expected closed bill, got %s", ended.Bill.Status)
	}
}

func TestUnknownPublicTokenReturns404(t *testing.T) {
	api := newTestAPI(t)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/bills/not-a-token", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCancelSessionRequiresManagerPIN(t *testing.T) {
	api := newTestAPI(t)
	c := newTestClient(t, api)
	c.login("/api/v1/auth/login", domain.LoginRequest{Username: "staff", Password: "staff123"})
	detail := startTestSession(t, c, "s1-a2")

	path := "/api/v1/bills/" + detail.Bill.ID + "/cancel"
	rec := c.do(http.MethodPost, path, domain.SessionCancelRequest{ManagerPIN: "000000", Reason: "誤入力"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong pin, got %d", rec.Code)
	}

	rec = c.do(http.MethodPost, path, domain.SessionCancelRequest{ManagerPIN: "123456", Reason: "誤入力"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with manager pin, got %d (%s)", rec.Code, rec.Body.String())
	}
	var cancelled service.BillDetail
	decodeBody(t, rec, &cancelled)
	if !cancelled.Bill.IsCancelled() {
		t.Fatalf("expected cancelled bill, got %s", cancelled.Bill.Status)
	}
}

func TestCastClockInFlow(t *testing.T) {
	api := newTestAPI(t)
	castClient := newTestClient(t, api)
	resp := castClient.login("/api/v1/auth/cast-login", domain.CastLoginRequest{Username: "akari", PIN: "4826"})
	if resp.CastID != "cast-akari" {
		t.Fatalf("expected cast id in login response, got %+v", resp)
	}

	rec := castClient.do(http.MethodPost, "/api/v1/shifts/clock-in", domain.ClockInRequest{StoreID: 1})
	if rec.Code != http.StatusCreated {
		t.Fatalf("clock in: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Shift domain.CastShift `json:"shift"`
	}
	decodeBody(t, rec, &created)
	if created.Shift.ClockInStatus != domain.ApprovalPending {
		t.Fatalf("expected pending clock-in, got %s", created.Shift.ClockInStatus)
	}

	rec = castClient.do(http.MethodGet, "/api/v1/shifts/current", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("current shift: expected 200, got %d", rec.Code)
	}

	rec = castClient.do(http.MethodPost, "/api/v1/sessions", domain.SessionStartRequest{TableID: "s1-a3", SeatingTier: domain.SeatingFree, BaseMinutes: 60})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected cast to be refused on sessions, got %d", rec.Code)
	}

	staffClient := newTestClient(t, api)
	staffClient.login("/api/v1/auth/login", domain.LoginRequest{Username: "staff", Password: "staff123"})
	rec = staffClient.do(http.MethodPost, "/api/v1/shifts/"+created.Shift.ID+"/review", domain.ShiftReviewRequest{Edge: "clock_in", Decision: domain.ApprovalApproved})
	if rec.Code != http.StatusOK {
		t.Fatalf("review: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	rec = staffClient.do(http.MethodPost, "/api/v1/shifts/"+created.Shift.ID+"/review", domain.ShiftReviewRequest{Edge: "clock_in", Decision: domain.ApprovalRejected})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected second review to conflict, got %d", rec.Code)
	}
}

func TestDailyReportExports(t *testing.T) {
	api := newTestAPI(t)
	c := newTestClient(t, api)
	c.login("/api/v1/auth/login", domain.LoginRequest{Username: "staff", Password: "staff123"})

	rec := c.do(http.MethodGet, "/api/v1/reports/daily?store_id=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("json report: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = c.do(http.MethodGet, "/api/v1/reports/daily?store_id=1&format=csv", nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("csv report: got %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(rec.Body.String(), "section,key,value") {
		t.Fatalf("unexpected csv header: %q", rec.Body.String())
	}

	rec = c.do(http.MethodGet, "/api/v1/reports/daily?store_id=1&format=xlsx", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("xlsx report: got %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatalf("expected a zip container for xlsx")
	}

	rec = c.do(http.MethodGet, "/api/v1/reports/daily?store_id=x", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad store id, got %d", rec.Code)
	}

	rec = c.do(http.MethodGet, "/api/v1/audit-logs", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected audit logs to be admin only, got %d", rec.Code)
	}
}
