package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmerrifield20/wtomax/pkg/client"
)

const adminAddr = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

// ── Stub server ─────────────────────────────────────────────────────────

type stub struct {
	*httptest.Server
	logins   atomic.Int32
	statuses atomic.Int32
}

func stubCustodyServer(t *testing.T, expiresIn int) *stub {
	t.Helper()
	s := &stub{}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["secret"] != "correct horse" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "bad credentials", "code": "unauthenticated"})
			return
		}
		n := s.logins.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-" + string(rune('0'+n)),
			"token_type":   "Bearer",
			"expires_in":   expiresIn,
		})
	})

	mux.HandleFunc("/api/v1/vault", func(w http.ResponseWriter, r *http.Request) {
		s.statuses.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"symbol":       "wTOMAX",
			"admin":        adminAddr,
			"paused":       false,
			"total_supply": map[string]string{"units": "7000000000000000000000000", "tokens": "7000000"},
			"schedule":     map[string]any{"tranches_released": 0, "max_tranches": 10},
		})
	})

	mux.HandleFunc("/api/v1/vault/wrap", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok-") {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "missing token", "code": "unauthenticated"})
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]any{
			"amount":  map[string]string{"tokens": body["amount"]},
			"balance": map[string]string{"tokens": body["amount"]},
			"reserve": map[string]string{"tokens": body["amount"]},
		})
	})

	mux.HandleFunc("/api/v1/vault/release", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "release interval has not elapsed", "code": "too_soon"})
	})

	mux.HandleFunc("/api/v1/vault/approvals", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("tag") != "approveWithdraw" || q.Get("amount") != "40" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "bad query", "code": "bad_request"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"approvals": 2, "quorum": 3, "approvers": []string{"0x11", "0x22"}})
	})

	mux.HandleFunc("/api/v1/ledger/entries/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/0") {
			json.NewEncoder(w).Encode(map[string]any{"index": 0, "action": "anchor", "hash": "abc"})
			return
		}
		http.Error(w, "boom", http.StatusBadGateway)
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestStatus_success(t *testing.T) {
	srv := stubCustodyServer(t, 3600)
	c := client.MustNew(srv.URL)

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Symbol != "wTOMAX" || st.Admin != adminAddr {
		t.Errorf("unexpected status: %+v", st)
	}
	if st.TotalSupply.Tokens != "7000000" || st.Schedule.MaxTranches != 10 {
		t.Errorf("unexpected supply or schedule: %+v", st)
	}
}

func TestStatus_cache(t *testing.T) {
	srv := stubCustodyServer(t, 3600)
	c := client.MustNew(srv.URL, client.WithCacheTTL(5*time.Minute), client.WithCredentials(adminAddr, "correct horse"))
	ctx := context.Background()

	c.Status(ctx)
	c.Status(ctx)
	if n := srv.statuses.Load(); n != 1 {
		t.Errorf("expected 1 HTTP call (cached), got %d", n)
	}

	if _, err := c.Wrap(ctx, "1"); err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	c.Status(ctx)
	if n := srv.statuses.Load(); n != 2 {
		t.Errorf("expected mutation to invalidate cache, got %d calls", n)
	}
}

func TestWrap_noCredentials(t *testing.T) {
	srv := stubCustodyServer(t, 3600)
	c := client.MustNew(srv.URL)

	_, err := c.Wrap(context.Background(), "1")
	if !errors.Is(err, client.ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestWrap_bearerToken(t *testing.T) {
	srv := stubCustodyServer(t, 3600)
	c := client.MustNew(srv.URL, client.WithBearerToken("tok-manual"))

	res, err := c.Wrap(context.Background(), "12.5")
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if res.Balance.Tokens != "12.5" {
		t.Errorf("unexpected balance: %+v", res.Balance)
	}
	if n := srv.logins.Load(); n != 0 {
		t.Errorf("manual token should not trigger login, got %d", n)
	}
}

func TestCredentials_tokenReused(t *testing.T) {
	srv := stubCustodyServer(t, 3600)
	c := client.MustNew(srv.URL, client.WithCredentials(adminAddr, "correct horse"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Wrap(ctx, "1"); err != nil {
			t.Fatalf("Wrap: %v", err)
		}
	}
	if n := srv.logins.Load(); n != 1 {
		t.Errorf("expected one login, got %d", n)
	}
}

func TestCredentials_refreshNearExpiry(t *testing.T) {
	// Tokens shorter than the refresh buffer are always considered stale.
	srv := stubCustodyServer(t, 30)
	c := client.MustNew(srv.URL, client.WithCredentials(adminAddr, "correct horse"))
	ctx := context.Background()

	c.Wrap(ctx, "1")
	c.Wrap(ctx, "1")
	if n := srv.logins.Load(); n != 2 {
		t.Errorf("expected a fresh login per call, got %d", n)
	}
}

func TestFetchToken_badSecret(t *testing.T) {
	srv := stubCustodyServer(t, 3600)
	c := client.MustNew(srv.URL, client.WithCredentials(adminAddr, "wrong"))

	_, err := c.FetchToken(context.Background())
	if !client.IsCode(err, client.CodeUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestAPIError_decoded(t *testing.T) {
	srv := stubCustodyServer(t, 3600)
	c := client.MustNew(srv.URL, client.WithBearerToken("tok-x"))

	_, err := c.Release(context.Background())
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T %v", err, err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != client.CodeTooSoon {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestAPIError_plainBody(t *testing.T) {
	srv := stubCustodyServer(t, 3600)
	c := client.MustNew(srv.URL)

	_, err := c.LedgerEntry(context.Background(), 7)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Message != "boom" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestApprovals_query(t *testing.T) {
	srv := stubCustodyServer(t, 3600)
	c := client.MustNew(srv.URL)

	a, err := c.Approvals(context.Background(), client.ApprovalQuery{Tag: "approveWithdraw", Amount: "40"})
	if err != nil {
		t.Fatalf("Approvals: %v", err)
	}
	if a.Approvals != 2 || a.Quorum != 3 || len(a.Approvers) != 2 {
		t.Errorf("unexpected approvals: %+v", a)
	}
}

func TestLedgerEntry_success(t *testing.T) {
	srv := stubCustodyServer(t, 3600)
	c := client.MustNew(srv.URL)

	e, err := c.LedgerEntry(context.Background(), 0)
	if err != nil {
		t.Fatalf("LedgerEntry: %v", err)
	}
	if e.Action != "anchor" {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestWithCredentials_requiresBoth(t *testing.T) {
	if _, err := client.New("http://x", client.WithCredentials(adminAddr, "")); err == nil {
		t.Error("expected error for empty secret")
	}
}
