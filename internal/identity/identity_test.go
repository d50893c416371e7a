package identity_test

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/wtomax/internal/custody"
	"github.com/jmerrifield20/wtomax/internal/identity"
)

const issuerURL = "https://custody.example.test"

var guardian = custody.MustParseAddress("0x1111111111111111111111111111111111111111")

func newTestIssuer(t *testing.T, ttl time.Duration) *identity.CallerTokenIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return identity.NewCallerTokenIssuer(key, issuerURL, ttl)
}

func TestCallerTokenIssuer_roundTrip(t *testing.T) {
	ti := newTestIssuer(t, time.Hour)

	token, exp, err := ti.Issue(guardian)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if len(strings.Split(token, ".")) != 3 {
		t.Errorf("expected 3-part JWT")
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expiry in the past: %v", exp)
	}

	claims, err := ti.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	got, err := claims.Caller()
	if err != nil {
		t.Fatal(err)
	}
	if got != guardian {
		t.Errorf("caller: got %s, want %s", got, guardian)
	}
	if claims.ID == "" {
		t.Error("expected a jti")
	}
}

func TestCallerTokenIssuer_rejects(t *testing.T) {
	ti := newTestIssuer(t, time.Hour)

	if _, _, err := ti.Issue(custody.ZeroAddress); !errors.Is(err, custody.ErrInvalidAddress) {
		t.Errorf("Issue(zero): expected ErrInvalidAddress, got %v", err)
	}

	expired := newTestIssuer(t, time.Nanosecond)
	token, _, err := expired.Issue(guardian)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	if _, err := expired.Verify(token); err == nil {
		t.Error("expected expired token to fail verification")
	}

	other := newTestIssuer(t, time.Hour)
	token, _, _ = other.Issue(guardian)
	if _, err := ti.Verify(token); err == nil {
		t.Error("expected token from another key to fail verification")
	}
}

func TestLoadOrCreateSigningKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "signing.pem")

	first, err := identity.LoadOrCreateSigningKey(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := identity.LoadOrCreateSigningKey(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if first.N.Cmp(second.N) != 0 {
		t.Error("expected the persisted key to be reloaded")
	}
}

func TestCredentials(t *testing.T) {
	hash, err := identity.HashSecret("correct horse battery")
	if err != nil {
		t.Fatal(err)
	}
	creds, err := identity.NewCredentials(map[string]string{guardian.String(): hash})
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}

	if err := creds.Authenticate(guardian, "correct horse battery"); err != nil {
		t.Errorf("valid secret rejected: %v", err)
	}
	if err := creds.Authenticate(guardian, "wrong"); !errors.Is(err, identity.ErrBadCredentials) {
		t.Errorf("wrong secret: got %v", err)
	}
	stranger := custody.MustParseAddress("0x9999999999999999999999999999999999999999")
	if err := creds.Authenticate(stranger, "correct horse battery"); !errors.Is(err, identity.ErrBadCredentials) {
		t.Errorf("unknown address: got %v", err)
	}

	if _, err := identity.NewCredentials(map[string]string{"0x12": hash}); err == nil {
		t.Error("expected bad address to be rejected")
	}
	if _, err := identity.NewCredentials(map[string]string{guardian.String(): "plaintext"}); err == nil {
		t.Error("expected non-bcrypt hash to be rejected")
	}
	if _, err := identity.HashSecret("short"); err == nil {
		t.Error("expected short secret to be rejected")
	}
}

func TestRequireCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ti := newTestIssuer(t, time.Hour)

	r := gin.New()
	r.GET("/whoami", identity.RequireCaller(ti), func(c *gin.Context) {
		c.String(http.StatusOK, identity.CallerFromCtx(c).String())
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: expected 401, got %d", w.Code)
	}

	token, _, _ := ti.Issue(guardian)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != guardian.String() {
		t.Errorf("valid token: %d %q", w.Code, w.Body.String())
	}
}
