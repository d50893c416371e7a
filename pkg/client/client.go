package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Error codes returned in the "code" field of failed responses.
const (
	CodeUnauthenticated     = "unauthenticated"
	CodeUnauthorized        = "unauthorized"
	CodeAlreadyApproved     = "already_approved"
	CodeQuorumNotMet        = "quorum_not_met"
	CodeNotFound            = "not_found"
	CodePaused              = "paused"
	CodeNotPaused           = "not_paused"
	CodeInvalidAmount       = "invalid_amount"
	CodeInvalidAddress      = "invalid_address"
	CodeDuplicateGuardian   = "duplicate_guardian"
	CodeInsufficientBalance = "insufficient_balance"
	CodeInsufficientReserve = "insufficient_reserve"
	CodeTooSoon             = "too_soon"
	CodeScheduleComplete    = "schedule_complete"
	CodeRateLimited         = "rate_limited"
	CodeUnavailable         = "unavailable"
)

// APIError is a non-2xx response from the custody service.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("custody: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("custody: %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
}

// IsCode reports whether err is an *APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// ErrNoCredentials is returned by calls that need a caller token when the
// client was built without WithBearerToken or WithCredentials.
var ErrNoCredentials = errors.New("client has no bearer token or credentials")

// Client talks to a custody service.
type Client struct {
	base       string
	httpClient *http.Client
	cache      *statusCache

	// token state, guarded by mu
	mu          sync.Mutex
	bearerToken string
	tokenExpiry time.Time // zero = token was set manually (no auto-refresh)
	address     string
	secret      string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client, overriding any TLS options.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithCacheTTL caches Status responses for ttl. Mutating calls made through
// the same client invalidate the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		c.cache = &statusCache{ttl: ttl}
		return nil
	}
}

// WithBearerToken attaches a pre-obtained caller token to every request.
// The token is treated as long-lived and will not be auto-refreshed.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		c.tokenExpiry = time.Time{}
		return nil
	}
}

// WithCredentials makes the client exchange address and secret for a caller
// token on first use and again shortly before each token expires.
func WithCredentials(address, secret string) Option {
	return func(c *Client) error {
		if address == "" || secret == "" {
			return errors.New("address and secret are required")
		}
		c.address = address
		c.secret = secret
		return nil
	}
}

// WithRootCA trusts caPEM when verifying the server certificate.
func WithRootCA(caPEM string) Option {
	return func(c *Client) error {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(caPEM)) {
			return fmt.Errorf("failed to parse CA certificate PEM")
		}
		c.httpClient = &http.Client{
			Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}},
			Timeout:   10 * time.Second,
		}
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this in development against a self-signed certificate.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			Timeout: 10 * time.Second,
		}
		return nil
	}
}

// New creates a Client for the service at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// ── Wire types ──────────────────────────────────────────────────────────────

// Amount is a token quantity in base units and decimal form.
type Amount struct {
	Units  string `json:"units"`
	Tokens string `json:"tokens"`
}

// Schedule is the vesting progress of the locked reserve.
type Schedule struct {
	TranchesReleased int    `json:"tranches_released"`
	MaxTranches      int    `json:"max_tranches"`
	LockedReserve    Amount `json:"locked_reserve"`
	NextTranche      Amount `json:"next_tranche"`
	LastRelease      string `json:"last_release"`
	NextEligible     string `json:"next_eligible"`
	Complete         bool   `json:"complete"`
}

// Status is the body of GET /api/v1/vault.
type Status struct {
	Symbol        string   `json:"symbol"`
	Admin         string   `json:"admin"`
	Guardians     []string `json:"guardians"`
	Paused        bool     `json:"paused"`
	TotalSupply   Amount   `json:"total_supply"`
	WrappedSupply Amount   `json:"wrapped_supply"`
	Reserve       Amount   `json:"reserve"`
	Custodied     Amount   `json:"custodied"`
	Schedule      Schedule `json:"schedule"`
}

// Balance holds an address's token and native balances. Wrapped is the part
// of Balance that can be unwrapped.
type Balance struct {
	Address string `json:"address"`
	Balance Amount `json:"balance"`
	Wrapped Amount `json:"wrapped"`
	Native  Amount `json:"native"`
}

// AmountResult is returned by wrap, unwrap and withdraw.
type AmountResult struct {
	Amount  Amount `json:"amount"`
	Balance Amount `json:"balance"`
	Native  Amount `json:"native"`
	Reserve Amount `json:"reserve"`
}

// ApprovalResult is returned by the approval calls.
type ApprovalResult struct {
	Tag       string `json:"tag"`
	Approvals int    `json:"approvals"`
	Quorum    int    `json:"quorum"`
}

// ApprovalQuery identifies an approval cycle. Amount is set for
// withdrawal cycles; Outgoing and Incoming for owner changes.
type ApprovalQuery struct {
	Tag      string
	Amount   string
	Outgoing string
	Incoming string
}

// Approvals describes the state of one approval cycle.
type Approvals struct {
	Approvals int      `json:"approvals"`
	Quorum    int      `json:"quorum"`
	Approvers []string `json:"approvers"`
}

// Foreign describes a foreign asset held by the vault.
type Foreign struct {
	Asset     string  `json:"asset"`
	Held      Amount  `json:"held"`
	Holder    string  `json:"holder,omitempty"`
	Recovered *Amount `json:"recovered,omitempty"`
}

// Release is the result of a vesting release.
type Release struct {
	Released Amount   `json:"released"`
	Schedule Schedule `json:"schedule"`
}

// Token is a caller token returned by POST /api/v1/auth/token.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExpiresIn   int       `json:"expires_in"`
}

// LedgerOverview summarises the audit chain.
type LedgerOverview struct {
	Entries int    `json:"entries"`
	Root    string `json:"root"`
}

// LedgerEntry is one audit record.
type LedgerEntry struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Subject   string    `json:"subject"`
	Actor     string    `json:"actor"`
	DataHash  string    `json:"data_hash"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// ── Auth ────────────────────────────────────────────────────────────────────

// FetchToken exchanges the configured credentials for a caller token,
// caches it, and returns it. Subsequent calls reuse the cached token until
// it approaches expiry.
func (c *Client) FetchToken(ctx context.Context) (*Token, error) {
	c.mu.Lock()
	address, secret := c.address, c.secret
	c.mu.Unlock()
	if address == "" {
		return nil, ErrNoCredentials
	}
	tok, err := c.Login(ctx, address, secret)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.bearerToken = tok.AccessToken
	c.tokenExpiry = refreshAt(tok)
	c.mu.Unlock()
	return tok, nil
}

// Login exchanges address and secret for a caller token without caching it.
func (c *Client) Login(ctx context.Context, address, secret string) (*Token, error) {
	var tok Token
	body := map[string]string{"address": address, "secret": secret}
	if err := c.send(ctx, http.MethodPost, "/api/v1/auth/token", "", body, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// WhoAmI returns the address the current token identifies.
func (c *Client) WhoAmI(ctx context.Context) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	if err := c.authed(ctx, http.MethodGet, "/api/v1/auth/whoami", nil, &out); err != nil {
		return "", err
	}
	return out.Address, nil
}

// Refresh 60 s before actual expiry to avoid clock-skew failures.
func refreshAt(tok *Token) time.Time {
	const refreshBuffer = 60 * time.Second
	return time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - refreshBuffer)
}

// ensureToken returns a valid bearer token, fetching a new one if the cached
// token is absent or approaching expiry. Thread-safe.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bearerToken != "" && (c.tokenExpiry.IsZero() || time.Now().Before(c.tokenExpiry)) {
		return c.bearerToken, nil
	}
	if c.address == "" {
		return "", ErrNoCredentials
	}

	tok, err := c.Login(ctx, c.address, c.secret)
	if err != nil {
		return "", err
	}
	c.bearerToken = tok.AccessToken
	c.tokenExpiry = refreshAt(tok)
	return c.bearerToken, nil
}

// ── Queries ─────────────────────────────────────────────────────────────────

// Status returns the vault overview.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	if c.cache != nil {
		if st, ok := c.cache.get(); ok {
			return st, nil
		}
	}
	var st Status
	if err := c.send(ctx, http.MethodGet, "/api/v1/vault", "", nil, &st); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.set(&st)
	}
	return &st, nil
}

// Balance returns the token and native balances of address.
func (c *Client) Balance(ctx context.Context, address string) (*Balance, error) {
	var b Balance
	if err := c.send(ctx, http.MethodGet, "/api/v1/vault/balances/"+url.PathEscape(address), "", nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// IsGuardian reports whether address currently holds a guardian seat.
func (c *Client) IsGuardian(ctx context.Context, address string) (bool, error) {
	var out struct {
		Guardian bool `json:"guardian"`
	}
	if err := c.send(ctx, http.MethodGet, "/api/v1/vault/guardians/"+url.PathEscape(address), "", nil, &out); err != nil {
		return false, err
	}
	return out.Guardian, nil
}

// Approvals returns the approvers of the cycle q identifies.
func (c *Client) Approvals(ctx context.Context, q ApprovalQuery) (*Approvals, error) {
	v := url.Values{"tag": {q.Tag}}
	if q.Amount != "" {
		v.Set("amount", q.Amount)
	}
	if q.Outgoing != "" {
		v.Set("outgoing", q.Outgoing)
		v.Set("incoming", q.Incoming)
	}
	var a Approvals
	if err := c.send(ctx, http.MethodGet, "/api/v1/vault/approvals?"+v.Encode(), "", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Foreign returns how much of asset the vault holds, and how much was
// recovered to holder when holder is non-empty.
func (c *Client) Foreign(ctx context.Context, asset, holder string) (*Foreign, error) {
	path := "/api/v1/vault/foreign/" + url.PathEscape(asset)
	if holder != "" {
		path += "?holder=" + url.QueryEscape(holder)
	}
	var f Foreign
	if err := c.send(ctx, http.MethodGet, path, "", nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ── Governance ──────────────────────────────────────────────────────────────

// ApproveRequest votes on a plain action cycle (releaseTokens,
// changeSuperAdmin, pause, unpause).
func (c *Client) ApproveRequest(ctx context.Context, tag string) (*ApprovalResult, error) {
	var out ApprovalResult
	if err := c.mutate(ctx, "/api/v1/vault/requests", map[string]string{"tag": tag}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApproveWithdrawal votes on withdrawing exactly amount from the reserve.
func (c *Client) ApproveWithdrawal(ctx context.Context, amount string) (*ApprovalResult, error) {
	var out ApprovalResult
	body := map[string]string{"tag": "approveWithdraw", "amount": amount}
	if err := c.mutate(ctx, "/api/v1/vault/requests/withdrawal", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApproveOwnerChange votes on replacing guardian outgoing with incoming.
func (c *Client) ApproveOwnerChange(ctx context.Context, outgoing, incoming string) (*ApprovalResult, error) {
	var out ApprovalResult
	body := map[string]string{"outgoing": outgoing, "incoming": incoming}
	if err := c.mutate(ctx, "/api/v1/vault/requests/owner-change", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Release mints the next vesting tranche to the admin.
func (c *Client) Release(ctx context.Context) (*Release, error) {
	var out Release
	if err := c.mutate(ctx, "/api/v1/vault/release", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangeAdmin replaces the super administrator.
func (c *Client) ChangeAdmin(ctx context.Context, newAdmin string) error {
	return c.mutate(ctx, "/api/v1/vault/admin", map[string]string{"new_admin": newAdmin}, nil)
}

// ChangeOwner swaps guardian outgoing for incoming and returns the new
// guardian set.
func (c *Client) ChangeOwner(ctx context.Context, outgoing, incoming string) ([]string, error) {
	var out struct {
		Guardians []string `json:"guardians"`
	}
	body := map[string]string{"outgoing": outgoing, "incoming": incoming}
	if err := c.mutate(ctx, "/api/v1/vault/owners", body, &out); err != nil {
		return nil, err
	}
	return out.Guardians, nil
}

// Pause closes the vault gate.
func (c *Client) Pause(ctx context.Context) error {
	return c.mutate(ctx, "/api/v1/vault/pause", nil, nil)
}

// Unpause reopens the vault gate.
func (c *Client) Unpause(ctx context.Context) error {
	return c.mutate(ctx, "/api/v1/vault/unpause", nil, nil)
}

// ── Accounting ──────────────────────────────────────────────────────────────

// Wrap deposits amount into the reserve and mints wrapped tokens to the caller.
func (c *Client) Wrap(ctx context.Context, amount string) (*AmountResult, error) {
	return c.amountCall(ctx, "/api/v1/vault/wrap", amount)
}

// Unwrap burns amount of the caller's tokens and pays native value back.
func (c *Client) Unwrap(ctx context.Context, amount string) (*AmountResult, error) {
	return c.amountCall(ctx, "/api/v1/vault/unwrap", amount)
}

// Withdraw executes an approved withdrawal of exactly amount.
func (c *Client) Withdraw(ctx context.Context, amount string) (*AmountResult, error) {
	return c.amountCall(ctx, "/api/v1/vault/withdraw", amount)
}

// Recover sends amount of a foreign asset held by the vault to to.
func (c *Client) Recover(ctx context.Context, asset, to, amount string) (*Foreign, error) {
	var out Foreign
	body := map[string]string{"asset": asset, "to": to, "amount": amount}
	if err := c.mutate(ctx, "/api/v1/vault/recover", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DepositForeign records amount of a foreign asset arriving at the vault.
func (c *Client) DepositForeign(ctx context.Context, asset, amount string) (*Foreign, error) {
	var out Foreign
	body := map[string]string{"asset": asset, "amount": amount}
	if err := c.mutate(ctx, "/api/v1/vault/foreign/deposit", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) amountCall(ctx context.Context, path, amount string) (*AmountResult, error) {
	var out AmountResult
	if err := c.mutate(ctx, path, map[string]string{"amount": amount}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Ledger ──────────────────────────────────────────────────────────────────

// Ledger returns the audit chain length and tip hash.
func (c *Client) Ledger(ctx context.Context) (*LedgerOverview, error) {
	var out LedgerOverview
	if err := c.send(ctx, http.MethodGet, "/api/v1/ledger", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyLedger asks the service to re-walk the audit chain. A broken chain
// is reported as (false, reason, nil).
func (c *Client) VerifyLedger(ctx context.Context) (bool, string, error) {
	var out struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	if err := c.send(ctx, http.MethodGet, "/api/v1/ledger/verify", "", nil, &out); err != nil {
		return false, "", err
	}
	return out.Valid, out.Error, nil
}

// LedgerEntries returns up to limit entries, newest first.
func (c *Client) LedgerEntries(ctx context.Context, limit int) ([]LedgerEntry, error) {
	var out struct {
		Entries []LedgerEntry `json:"entries"`
	}
	path := "/api/v1/ledger/entries?limit=" + strconv.Itoa(limit)
	if err := c.send(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// LedgerEntry returns the entry at index.
func (c *Client) LedgerEntry(ctx context.Context, index int) (*LedgerEntry, error) {
	var out LedgerEntry
	if err := c.send(ctx, http.MethodGet, "/api/v1/ledger/entries/"+strconv.Itoa(index), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Transport ───────────────────────────────────────────────────────────────

// mutate POSTs with a caller token and drops any cached status.
func (c *Client) mutate(ctx context.Context, path string, in, out any) error {
	err := c.authed(ctx, http.MethodPost, path, in, out)
	if c.cache != nil {
		c.cache.clear()
	}
	return err
}

func (c *Client) authed(ctx context.Context, method, path string, in, out any) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return fmt.Errorf("obtain caller token: %w", err)
	}
	return c.send(ctx, method, path, token, in, out)
}

// send performs one JSON round trip. A non-2xx response is decoded into
// *APIError.
func (c *Client) send(ctx context.Context, method, path, token string, in, out any) error {
	var bodyReader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// --- simple in-memory status cache ---

type statusCache struct {
	mu        sync.RWMutex
	status    *Status
	expiresAt time.Time
	ttl       time.Duration
}

func (sc *statusCache) get() (*Status, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if sc.status == nil || time.Now().After(sc.expiresAt) {
		return nil, false
	}
	return sc.status, true
}

func (sc *statusCache) set(st *Status) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.status = st
	sc.expiresAt = time.Now().Add(sc.ttl)
}

func (sc *statusCache) clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.status = nil
}
