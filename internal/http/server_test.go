package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sonrial/family-budget/internal/core"
	"github.com/Sonrial/family-budget/internal/log"
	"github.com/Sonrial/family-budget/internal/middleware/auth"
	"github.com/Sonrial/family-budget/internal/services"
	"github.com/Sonrial/family-budget/internal/storage/memory"
)

const testSecret = "test-secret-0123456789"

var testNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	srv   *Server
	store *memory.Store
	token map[core.UserID]string
}

func newTestEnv(t *testing.T, ready func(context.Context) error) *testEnv {
	t.Helper()
	store := memory.New()
	opts := []services.Option{services.WithClock(func() time.Time { return testNow })}
	srv := NewServer(Services{
		Engine:   services.NewEngine(store, opts...),
		Registry: services.NewRegistry(store, opts...),
		Bills:    services.NewBills(store, opts...),
		Profiles: store,
		Chart: []core.AccountTemplate{
			{Name: "Cash", Kind: core.AccountAsset, Scope: core.ScopePersonal},
			{Name: "Food", Kind: core.AccountExpense, Scope: core.ScopePersonal},
		},
		Ready: ready,
	}, Options{
		CORSAllowedOrigins: []string{"https://app.example"},
		RateLimitPerMinute: 1000,
		JWTSecret:          testSecret,
		Logger:             log.New(log.Config{Output: io.Discard}),
		Now:                func() time.Time { return testNow },
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	env := &testEnv{srv: srv, store: store, token: map[core.UserID]string{}}
	verifier := auth.NewVerifier(testSecret, "")
	for _, u := range []core.UserID{"u-ana", "u-leo"} {
		tok, err := verifier.Issue(u, string(u)+"@example.com", "", time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		env.token[u] = tok
	}
	return env
}

func (e *testEnv) do(t *testing.T, user core.UserID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+e.token[user])
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (e *testEnv) createAccount(t *testing.T, user core.UserID, name, kind, scope string) accountView {
	t.Helper()
	rec := e.do(t, user, http.MethodPost, "/api/accounts", map[string]string{"name": name, "kind": kind, "scope": scope})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %s: %d %s", name, rec.Code, rec.Body)
	}
	return decode[accountView](t, rec)
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)
	if rec := env.do(t, "", http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := env.do(t, "", http.MethodGet, "/readyz", nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}

	down := newTestEnv(t, func(context.Context) error { return errors.New("db down") })
	if rec := down.do(t, "", http.MethodGet, "/readyz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing check = %d", rec.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, "", http.MethodGet, "/api/accounts?scope=SHARED", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestPostingFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	cash := env.createAccount(t, "u-ana", "Cash", "asset", "personal")
	food := env.createAccount(t, "u-ana", "Food", "EXPENSE", "PERSONAL")

	if _, err := env.store.GetProfile(context.Background(), "u-ana"); err != nil {
		t.Fatalf("profile not recorded: %v", err)
	}

	rec := env.do(t, "u-ana", http.MethodPost, "/api/transactions", map[string]string{
		"kind": "GASTO", "scope": "PERSONAL", "origin_id": cash.ID, "destination_id": food.ID,
		"amount": "12,50", "date": "2025-03-09",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post: %d %s", rec.Code, rec.Body)
	}
	posted := decode[transactionView](t, rec)
	if posted.Amount != "12.50" || len(posted.Lines) != 2 || posted.Description != "Expense: Food" {
		t.Fatalf("unexpected posting %+v", posted)
	}

	rec = env.do(t, "u-ana", http.MethodGet, "/api/accounts/"+cash.ID+"/balance", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance: %d %s", rec.Code, rec.Body)
	}
	if bal := decode[map[string]string](t, rec); bal["balance"] != "-12.50" {
		t.Errorf("cash balance = %v", bal)
	}

	rec = env.do(t, "u-ana", http.MethodPatch, "/api/transactions/"+posted.ID, map[string]string{"amount": "20", "notes": "fixed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body)
	}
	if upd := decode[transactionView](t, rec); upd.Amount != "20.00" || upd.Notes != "fixed" {
		t.Errorf("unexpected update %+v", upd)
	}

	rec = env.do(t, "u-ana", http.MethodGet, "/api/balances?scope=PERSONAL&kind=EXPENSE", nil)
	balances := decode[[]balanceView](t, rec)
	if len(balances) != 1 || balances[0].Balance != "20.00" {
		t.Errorf("balances = %+v", balances)
	}

	rec = env.do(t, "u-ana", http.MethodGet, "/api/transactions?scope=PERSONAL&limit=5", nil)
	if list := decode[[]transactionView](t, rec); len(list) != 1 || list[0].ID != posted.ID {
		t.Errorf("list = %+v", list)
	}

	// Leo cannot see Ana's personal ledger.
	if rec := env.do(t, "u-leo", http.MethodGet, "/api/transactions/"+posted.ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("foreign read = %d", rec.Code)
	}

	if rec := env.do(t, "u-ana", http.MethodDelete, "/api/accounts/"+cash.ID, nil); rec.Code != http.StatusConflict {
		t.Errorf("delete used account = %d", rec.Code)
	}
	if rec := env.do(t, "u-ana", http.MethodDelete, "/api/transactions/"+posted.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete transaction = %d %s", rec.Code, rec.Body)
	}
	if rec := env.do(t, "u-ana", http.MethodDelete, "/api/accounts/"+cash.ID, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete unused account = %d %s", rec.Code, rec.Body)
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, nil)
	cash := env.createAccount(t, "u-ana", "Cash", "ASSET", "PERSONAL")
	food := env.createAccount(t, "u-ana", "Food", "EXPENSE", "PERSONAL")

	posting := func(amount, dest string) map[string]string {
		return map[string]string{
			"kind": "GASTO", "scope": "PERSONAL", "origin_id": cash.ID, "destination_id": dest,
			"amount": amount, "date": "2025-03-09",
		}
	}
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"malformed json", http.MethodPost, "/api/transactions", "{not json", http.StatusBadRequest},
		{"unknown kind", http.MethodPost, "/api/transactions", map[string]string{"kind": "LOAN"}, http.StatusUnprocessableEntity},
		{"zero amount", http.MethodPost, "/api/transactions", posting("0", food.ID), http.StatusUnprocessableEntity},
		{"bad amount", http.MethodPost, "/api/transactions", posting("abc", food.ID), http.StatusUnprocessableEntity},
		{"unknown destination", http.MethodPost, "/api/transactions", posting("5", "missing"), http.StatusUnprocessableEntity},
		{"bad date", http.MethodPost, "/api/transactions", map[string]string{"kind": "GASTO", "scope": "PERSONAL", "date": "09/03/2025"}, http.StatusUnprocessableEntity},
		{"missing scope", http.MethodGet, "/api/accounts", nil, http.StatusUnprocessableEntity},
		{"bad limit", http.MethodGet, "/api/transactions?scope=SHARED&limit=-1", nil, http.StatusUnprocessableEntity},
		{"missing transaction", http.MethodGet, "/api/transactions/nope", nil, http.StatusNotFound},
		{"empty update", http.MethodPatch, "/api/transactions/nope", map[string]string{}, http.StatusUnprocessableEntity},
		{"missing bill", http.MethodDelete, "/api/bills/nope", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "u-ana", tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
			if body := decode[errorBody](t, rec); body.Error == "" {
				t.Error("error message missing")
			}
		})
	}
}

func TestBillsFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	rent := env.createAccount(t, "u-ana", "Rent", "EXPENSE", "SHARED")

	rec := env.do(t, "u-ana", http.MethodPost, "/api/bills", map[string]any{
		"title": "Rent", "amount": "800", "pay_day": 5, "category_id": rent.ID, "scope": "SHARED",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create bill: %d %s", rec.Code, rec.Body)
	}
	bill := decode[billView](t, rec)

	rec = env.do(t, "u-leo", http.MethodGet, "/api/bills/due?scope=SHARED", nil)
	due := decode[[]dueBillView](t, rec)
	if len(due) != 1 || due[0].DueDate != "2025-03-05" || due[0].Status != string(core.DuePast) {
		t.Fatalf("due = %+v", due)
	}

	rec = env.do(t, "u-ana", http.MethodGet, "/api/bills/due?scope=SHARED&year=2025&month=4", nil)
	if due := decode[[]dueBillView](t, rec); len(due) != 1 || due[0].Status != string(core.DueUpcoming) {
		t.Fatalf("april due = %+v", due)
	}

	rec = env.do(t, "u-ana", http.MethodGet, "/api/bills/"+bill.ID+"/draft", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("draft: %d %s", rec.Code, rec.Body)
	}
	draft := decode[draftView](t, rec)
	if draft.Kind != "GASTO" || draft.DestinationID != rent.ID || draft.Amount != "800.00" {
		t.Errorf("draft = %+v", draft)
	}

	if rec := env.do(t, "u-ana", http.MethodDelete, "/api/bills/"+bill.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete bill = %d", rec.Code)
	}
}

func TestLiabilityAndBootstrap(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, "u-ana", http.MethodPost, "/api/accounts/bootstrap", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("bootstrap: %d %s", rec.Code, rec.Body)
	}
	if created := decode[[]accountView](t, rec); len(created) != 2 {
		t.Fatalf("created = %+v", created)
	}
	rec = env.do(t, "u-ana", http.MethodPost, "/api/accounts/bootstrap", nil)
	if created := decode[[]accountView](t, rec); len(created) != 0 {
		t.Errorf("second bootstrap should be a no-op, got %+v", created)
	}

	rec = env.do(t, "u-ana", http.MethodGet, "/api/accounts?scope=PERSONAL&kind=ASSET", nil)
	assets := decode[[]accountView](t, rec)
	if len(assets) != 1 {
		t.Fatalf("assets = %+v", assets)
	}

	rec = env.do(t, "u-ana", http.MethodPost, "/api/accounts/liabilities", map[string]string{
		"name": "Car loan", "scope": "PERSONAL", "opening_debt": "5000", "counter_account_id": assets[0].ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("liability: %d %s", rec.Code, rec.Body)
	}
	var opened struct {
		Account accountView      `json:"account"`
		Opening *transactionView `json:"opening"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &opened); err != nil {
		t.Fatal(err)
	}
	if opened.Account.Kind != "LIABILITY" || opened.Opening == nil || opened.Opening.Amount != "5000.00" {
		t.Fatalf("unexpected liability %+v", opened)
	}

	rec = env.do(t, "u-ana", http.MethodGet, "/api/accounts/"+opened.Account.ID+"/payment-draft", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("payment draft: %d %s", rec.Code, rec.Body)
	}
	if d := decode[draftView](t, rec); d.DestinationID != opened.Account.ID {
		t.Errorf("draft = %+v", d)
	}
}

func TestCORSConfig(t *testing.T) {
	if _, ok := corsConfig(nil); ok {
		t.Error("empty origin list should disable CORS")
	}
	if _, ok := corsConfig([]string{" ", ""}); ok {
		t.Error("blank origins should disable CORS")
	}
	c, ok := corsConfig([]string{"*"})
	if !ok || !c.AllowAllOrigins || len(c.AllowOrigins) != 0 {
		t.Errorf("wildcard config = %+v", c)
	}
	c, _ = corsConfig([]string{"https://a.example", " https://b.example "})
	if len(c.AllowOrigins) != 2 || c.AllowOrigins[1] != "https://b.example" {
		t.Errorf("origins = %v", c.AllowOrigins)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/accounts", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("allow origin = %q (status %d)", got, rec.Code)
	}
}
