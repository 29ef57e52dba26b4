package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/engine"
	"bilancio/internal/gateway"
	"bilancio/internal/ledger/memory"
)

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	gw := gateway.New(store, nil, nil)
	eng := engine.New(store, nil)
	srv := NewServer(":0", store, gw, eng, nil)
	t.Cleanup(func() { srv.limiter.Stop() })
	return srv, store
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200", rec.Code)
	}
	rec = doRequest(srv, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /readyz = %d, want 200", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/healthz", "")
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestRecordExpenseEndpoint(t *testing.T) {
	srv, store := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/owners/alice/expenses",
		`{"amount":"12.50","category":"Food","date":"2026-03-04"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}

	var resp eventResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.EventID == "" {
		t.Error("response should carry the assigned event ID")
	}

	record, _, err := store.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(record.Expenses) != 1 || record.Expenses[0].Amount.Cents != 1250 {
		t.Errorf("stored expenses = %+v, want one 1250-cent event", record.Expenses)
	}
}

func TestRecordExpenseRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"amount":`},
		{"negative amount", `{"amount":"-5.00","category":"Food","date":"2026-03-04"}`},
		{"zero amount", `{"amount":"0","category":"Food","date":"2026-03-04"}`},
		{"missing date", `{"amount":"5.00","category":"Food"}`},
		{"blank category", `{"amount":"5.00","category":"  ","date":"2026-03-04"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(srv, http.MethodPost, "/api/owners/alice/expenses", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestRecordIncomeEndpoint(t *testing.T) {
	srv, store := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/owners/alice/incomes",
		`{"amount":"2000,00","date":"2026-03-01"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}

	record, _, err := store.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(record.Incomes) != 1 || record.Incomes[0].Amount.Cents != 200000 {
		t.Errorf("stored incomes = %+v, want one 200000-cent event", record.Incomes)
	}
}

func TestRemoveTransactionEndpoint(t *testing.T) {
	srv, store := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/owners/alice/expenses",
		`{"amount":"12.50","category":"Food","date":"2026-03-04"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var created eventResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	rec = doRequest(srv, http.MethodPost, "/api/owners/alice/transactions/delete",
		`{"kind":"expense","event_id":"`+created.EventID+`","amount":"12.50","category":"Food","date":"2026-03-04"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204, body %s", rec.Code, rec.Body.String())
	}

	record, _, err := store.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(record.Expenses) != 0 {
		t.Errorf("expenses after delete = %+v, want none", record.Expenses)
	}
}

func TestBudgetEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, body := range []string{
		`{"amount":"10.00","category":"Food","date":"2026-03-01"}`,
		`{"amount":"5.00","date":"2026-03-02"}`,
	} {
		path := "/api/owners/alice/expenses"
		if !strings.Contains(body, "category") {
			path = "/api/owners/alice/incomes"
		}
		if rec := doRequest(srv, http.MethodPost, path, body); rec.Code != http.StatusCreated {
			t.Fatalf("mutation status = %d, body %s", rec.Code, rec.Body.String())
		}
	}

	rec := doRequest(srv, http.MethodGet, "/api/owners/alice/budget", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp budgetResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Exists {
		t.Error("budget should exist after mutations")
	}
	if resp.TotalExpenses != "10.00" || resp.TotalIncome != "5.00" {
		t.Errorf("totals = %s/%s, want 10.00/5.00", resp.TotalExpenses, resp.TotalIncome)
	}
	if resp.Balance != "-5.00" {
		t.Errorf("balance = %s, want -5.00", resp.Balance)
	}
	if len(resp.CategoryBreakdown) != 1 || resp.CategoryBreakdown[0].Category != "Food" {
		t.Errorf("breakdown = %+v, want single Food entry", resp.CategoryBreakdown)
	}
	if len(resp.TimeSeries) != 1 {
		t.Errorf("time series has %d points, want 1 (expenses only)", len(resp.TimeSeries))
	}
}

func TestBudgetMissingRecord(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/owners/nobody/budget", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp budgetResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Exists {
		t.Error("missing record should report exists=false")
	}
	if resp.TotalExpenses != "0.00" || resp.TotalIncome != "0.00" || resp.Balance != "0.00" {
		t.Errorf("totals = %s/%s/%s, want all 0.00",
			resp.TotalExpenses, resp.TotalIncome, resp.Balance)
	}
	if len(resp.Transactions) != 0 {
		t.Errorf("got %d transactions, want 0", len(resp.Transactions))
	}
}

func TestStreamDeliversBudgetEvents(t *testing.T) {
	srv, store := newTestServer(t)

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/owners/alice/stream", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	gw := gateway.New(store, nil, nil)
	if _, err := gw.RecordExpense(context.Background(), "alice", core.ExpenseEvent{
		Category: "Food",
		Amount:   core.Money{Cents: 1500},
		Date:     time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("RecordExpense() error = %v", err)
	}

	buf := make([]byte, 4096)
	deadline := time.Now().Add(2 * time.Second)
	var received string
	for time.Now().Before(deadline) {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			received += string(buf[:n])
			if strings.Contains(received, `"total_expenses":"15.00"`) {
				return
			}
		}
		if err != nil {
			break
		}
	}
	t.Fatalf("never received the mutated budget event, got: %q", received)
}
