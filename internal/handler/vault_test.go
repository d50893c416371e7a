package handler_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/wtomax/internal/audit"
	"github.com/jmerrifield20/wtomax/internal/custody"
	"github.com/jmerrifield20/wtomax/internal/handler"
	"github.com/jmerrifield20/wtomax/internal/identity"
	"github.com/jmerrifield20/wtomax/internal/service"
	"github.com/jmerrifield20/wtomax/internal/store"
	"go.uber.org/zap"
)

var (
	g1    = custody.MustParseAddress("0x1111111111111111111111111111111111111111")
	g2    = custody.MustParseAddress("0x2222222222222222222222222222222222222222")
	g3    = custody.MustParseAddress("0x3333333333333333333333333333333333333333")
	g4    = custody.MustParseAddress("0x4444444444444444444444444444444444444444")
	g5    = custody.MustParseAddress("0x5555555555555555555555555555555555555555")
	admin = custody.MustParseAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	user  = custody.MustParseAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

const secret = "open sesame 123"

type testEnv struct {
	router *gin.Engine
	tokens *identity.CallerTokenIssuer
	clock  *custody.ManualClock
	store  *store.Memory
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := custody.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	v, err := custody.New([]custody.Address{g1, g2, g3, g4, g5}, admin, custody.WithClock(clk))
	if err != nil {
		t.Fatal(err)
	}
	st := store.NewMemory()
	ledger := audit.NewMemoryLog()
	svc := service.NewCustodyService(v, st, ledger, zap.NewNop())
	svc.AddObserver(handler.VaultMetrics{})

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	tokens := identity.NewCallerTokenIssuer(key, "http://custody.test", time.Hour)
	creds, err := identity.NewCredentials(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := creds.Set(admin, secret); err != nil {
		t.Fatal(err)
	}

	r := gin.New()
	r.Use(handler.PrometheusMiddleware())
	v1 := r.Group("/api/v1")
	handler.NewVaultHandler(svc, tokens, zap.NewNop()).Register(v1)
	handler.NewAuthHandler(creds, tokens, zap.NewNop()).Register(v1)
	handler.NewLedgerHandler(ledger, zap.NewNop()).Register(v1)
	r.GET("/metrics", handler.MetricsHandler())

	return &testEnv{router: r, tokens: tokens, clock: clk, store: st}
}

func (e *testEnv) token(t *testing.T, a custody.Address) string {
	t.Helper()
	tok, _, err := e.tokens.Issue(a)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path string, as custody.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if !as.IsZero() {
		req.Header.Set("Authorization", "Bearer "+e.token(t, as))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp
}

func expect(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, w.Code, w.Body.String())
	}
	if code != "" {
		if got := decode(t, w)["code"]; got != code {
			t.Fatalf("expected code %q, got %v", code, got)
		}
	}
}

func approveAll(t *testing.T, e *testEnv, tag string, guardians ...custody.Address) {
	t.Helper()
	for _, g := range guardians {
		w := e.do(t, http.MethodPost, "/api/v1/vault/requests", g, map[string]string{"tag": tag})
		expect(t, w, http.StatusOK, "")
	}
}

func TestStatus_200(t *testing.T) {
	e := setupRouter(t)
	w := e.do(t, http.MethodGet, "/api/v1/vault", custody.ZeroAddress, nil)
	expect(t, w, http.StatusOK, "")

	var resp handler.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Admin != admin || len(resp.Guardians) != 5 {
		t.Errorf("admin=%s guardians=%d", resp.Admin, len(resp.Guardians))
	}
	if resp.TotalSupply.Tokens != "7000000" {
		t.Errorf("total supply: %+v", resp.TotalSupply)
	}
	if resp.Schedule.LockedReserve.Tokens != "63000000" {
		t.Errorf("locked reserve: %+v", resp.Schedule.LockedReserve)
	}
}

func TestMutation_requiresToken(t *testing.T) {
	e := setupRouter(t)
	w := e.do(t, http.MethodPost, "/api/v1/vault/wrap", custody.ZeroAddress, map[string]string{"amount": "1"})
	expect(t, w, http.StatusUnauthorized, "unauthenticated")
}

func TestWrapUnwrap_200(t *testing.T) {
	e := setupRouter(t)

	w := e.do(t, http.MethodPost, "/api/v1/vault/wrap", user, map[string]string{"amount": "10"})
	expect(t, w, http.StatusOK, "")

	w = e.do(t, http.MethodGet, "/api/v1/vault/balances/"+user.String(), custody.ZeroAddress, nil)
	expect(t, w, http.StatusOK, "")
	resp := decode(t, w)
	if bal := resp["balance"].(map[string]any); bal["tokens"] != "10" {
		t.Errorf("balance after wrap: %v", bal)
	}
	if wrapped := resp["wrapped"].(map[string]any); wrapped["tokens"] != "10" {
		t.Errorf("wrapped after wrap: %v", wrapped)
	}

	// The admin's genesis tokens are not redeemable against the user's deposit.
	w = e.do(t, http.MethodPost, "/api/v1/vault/unwrap", admin, map[string]string{"amount": "10"})
	expect(t, w, http.StatusUnprocessableEntity, "insufficient_balance")

	w = e.do(t, http.MethodPost, "/api/v1/vault/unwrap", user, map[string]string{"amount": "10"})
	expect(t, w, http.StatusOK, "")
	resp = decode(t, w)
	if resp["reserve"].(map[string]any)["units"] != "0" {
		t.Errorf("reserve after unwrap: %v", resp["reserve"])
	}
	if resp["native"].(map[string]any)["tokens"] != "10" {
		t.Errorf("native payout: %v", resp["native"])
	}

	w = e.do(t, http.MethodPost, "/api/v1/vault/unwrap", user, map[string]string{"amount": "1"})
	expect(t, w, http.StatusUnprocessableEntity, "insufficient_balance")

	w = e.do(t, http.MethodPost, "/api/v1/vault/wrap", user, map[string]string{"amount": "0"})
	expect(t, w, http.StatusBadRequest, "invalid_amount")
}

func TestPauseFlow(t *testing.T) {
	e := setupRouter(t)

	approveAll(t, e, custody.TagPause, g1, g2)
	w := e.do(t, http.MethodPost, "/api/v1/vault/pause", admin, nil)
	expect(t, w, http.StatusConflict, "quorum_not_met")

	w = e.do(t, http.MethodPost, "/api/v1/vault/pause", g1, nil)
	expect(t, w, http.StatusForbidden, "unauthorized")

	approveAll(t, e, custody.TagPause, g3)
	w = e.do(t, http.MethodPost, "/api/v1/vault/pause", admin, nil)
	expect(t, w, http.StatusOK, "")

	w = e.do(t, http.MethodPost, "/api/v1/vault/wrap", user, map[string]string{"amount": "1"})
	expect(t, w, http.StatusLocked, "paused")
	w = e.do(t, http.MethodPost, "/api/v1/vault/release", admin, nil)
	expect(t, w, http.StatusLocked, "paused")
	w = e.do(t, http.MethodPost, "/api/v1/vault/admin", g1, map[string]string{"new_admin": user.String()})
	expect(t, w, http.StatusLocked, "paused")
	w = e.do(t, http.MethodPost, "/api/v1/vault/requests/withdrawal", g1,
		map[string]string{"tag": custody.TagWithdrawal, "amount": "1"})
	expect(t, w, http.StatusLocked, "paused")

	approveAll(t, e, custody.TagUnpause, g1, g2, g3)
	w = e.do(t, http.MethodPost, "/api/v1/vault/unpause", admin, nil)
	expect(t, w, http.StatusOK, "")

	w = e.do(t, http.MethodGet, "/api/v1/vault", custody.ZeroAddress, nil)
	if decode(t, w)["paused"] != false {
		t.Error("vault should be unpaused")
	}
}

func TestApprove_duplicateAndUnknown(t *testing.T) {
	e := setupRouter(t)
	approveAll(t, e, custody.TagRelease, g1)

	w := e.do(t, http.MethodPost, "/api/v1/vault/requests", g1, map[string]string{"tag": custody.TagRelease})
	expect(t, w, http.StatusConflict, "already_approved")

	w = e.do(t, http.MethodPost, "/api/v1/vault/requests", g1, map[string]string{"tag": "mint"})
	expect(t, w, http.StatusNotFound, "not_found")

	w = e.do(t, http.MethodGet, "/api/v1/vault/approvals?tag="+custody.TagRelease, custody.ZeroAddress, nil)
	expect(t, w, http.StatusOK, "")
	if n := decode(t, w)["approvals"]; n != float64(1) {
		t.Errorf("approvals: %v", n)
	}
}

func TestRelease_tooSoonThenOK(t *testing.T) {
	e := setupRouter(t)
	approveAll(t, e, custody.TagRelease, g1, g2, g3)

	w := e.do(t, http.MethodPost, "/api/v1/vault/release", admin, nil)
	expect(t, w, http.StatusConflict, "too_soon")

	e.clock.Advance(custody.ReleaseInterval)
	w = e.do(t, http.MethodPost, "/api/v1/vault/release", admin, nil)
	expect(t, w, http.StatusOK, "")
	if got := decode(t, w)["released"].(map[string]any)["tokens"]; got != "6300000" {
		t.Errorf("released: %v", got)
	}
}

func TestWithdrawFlow(t *testing.T) {
	e := setupRouter(t)
	expect(t, e.do(t, http.MethodPost, "/api/v1/vault/wrap", user, map[string]string{"amount": "100"}), http.StatusOK, "")

	for _, g := range []custody.Address{g1, g2, g3} {
		w := e.do(t, http.MethodPost, "/api/v1/vault/requests/withdrawal", g,
			map[string]string{"tag": custody.TagWithdrawal, "amount": "40"})
		expect(t, w, http.StatusOK, "")
	}
	w := e.do(t, http.MethodGet, "/api/v1/vault/approvals?tag=approveWithdraw&amount=40", custody.ZeroAddress, nil)
	if n := decode(t, w)["approvals"]; n != float64(3) {
		t.Errorf("withdrawal approvals: %v", n)
	}

	w = e.do(t, http.MethodPost, "/api/v1/vault/withdraw", admin, map[string]string{"amount": "40"})
	expect(t, w, http.StatusOK, "")
	if got := decode(t, w)["reserve"].(map[string]any)["tokens"]; got != "60" {
		t.Errorf("reserve after withdraw: %v", got)
	}
}

func TestChangeOwnerFlow(t *testing.T) {
	e := setupRouter(t)
	for _, g := range []custody.Address{g1, g2, g3} {
		w := e.do(t, http.MethodPost, "/api/v1/vault/requests/owner-change", g,
			map[string]string{"outgoing": g5.String(), "incoming": user.String()})
		expect(t, w, http.StatusOK, "")
	}
	w := e.do(t, http.MethodPost, "/api/v1/vault/owners", g1,
		map[string]string{"outgoing": g5.String(), "incoming": user.String()})
	expect(t, w, http.StatusOK, "")

	w = e.do(t, http.MethodGet, "/api/v1/vault/guardians/"+user.String(), custody.ZeroAddress, nil)
	if decode(t, w)["guardian"] != true {
		t.Error("incoming should be a guardian")
	}
}

func TestBadAddress_400(t *testing.T) {
	e := setupRouter(t)
	w := e.do(t, http.MethodGet, "/api/v1/vault/balances/0x1234", custody.ZeroAddress, nil)
	expect(t, w, http.StatusBadRequest, "invalid_address")
}

func TestPersistFailure_503(t *testing.T) {
	e := setupRouter(t)
	e.store.FailWith(context.DeadlineExceeded)

	w := e.do(t, http.MethodPost, "/api/v1/vault/wrap", user, map[string]string{"amount": "5"})
	expect(t, w, http.StatusServiceUnavailable, "unavailable")

	e.store.FailWith(nil)
	w = e.do(t, http.MethodGet, "/api/v1/vault/balances/"+user.String(), custody.ZeroAddress, nil)
	if got := decode(t, w)["balance"].(map[string]any)["units"]; got != "0" {
		t.Errorf("balance after failed persist: %v", got)
	}
}

func TestAuthToken(t *testing.T) {
	e := setupRouter(t)

	w := e.do(t, http.MethodPost, "/api/v1/auth/token", custody.ZeroAddress,
		map[string]string{"address": admin.String(), "secret": "nope"})
	expect(t, w, http.StatusUnauthorized, "unauthenticated")

	w = e.do(t, http.MethodPost, "/api/v1/auth/token", custody.ZeroAddress,
		map[string]string{"address": admin.String(), "secret": secret})
	expect(t, w, http.StatusOK, "")
	tok, _ := decode(t, w)["access_token"].(string)
	if tok == "" {
		t.Fatal("expected access_token")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	expect(t, w, http.StatusOK, "")
	if decode(t, w)["address"] != admin.String() {
		t.Errorf("whoami: %s", w.Body.String())
	}
}

func TestLedger_recordsActions(t *testing.T) {
	e := setupRouter(t)
	expect(t, e.do(t, http.MethodPost, "/api/v1/vault/wrap", user, map[string]string{"amount": "1"}), http.StatusOK, "")

	w := e.do(t, http.MethodGet, "/api/v1/ledger", custody.ZeroAddress, nil)
	expect(t, w, http.StatusOK, "")
	if n := decode(t, w)["entries"]; n != float64(2) {
		t.Errorf("entries: %v", n)
	}

	w = e.do(t, http.MethodGet, "/api/v1/ledger/entries/1", custody.ZeroAddress, nil)
	expect(t, w, http.StatusOK, "")
	if decode(t, w)["action"] != "wrap" {
		t.Errorf("entry 1: %s", w.Body.String())
	}

	w = e.do(t, http.MethodGet, "/api/v1/ledger/verify", custody.ZeroAddress, nil)
	if decode(t, w)["valid"] != true {
		t.Errorf("verify: %s", w.Body.String())
	}

	w = e.do(t, http.MethodGet, "/api/v1/ledger/entries/99", custody.ZeroAddress, nil)
	expect(t, w, http.StatusNotFound, "not_found")
}

func TestMetrics_exposed(t *testing.T) {
	e := setupRouter(t)
	expect(t, e.do(t, http.MethodPost, "/api/v1/vault/wrap", user, map[string]string{"amount": "1"}), http.StatusOK, "")

	w := e.do(t, http.MethodGet, "/metrics", custody.ZeroAddress, nil)
	expect(t, w, http.StatusOK, "")
	if !bytes.Contains(w.Body.Bytes(), []byte("wtomax_actions_total")) {
		t.Error("expected wtomax_actions_total in metrics output")
	}
}
