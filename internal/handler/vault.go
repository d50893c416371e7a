package handler

import (
	"context"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/wtomax/internal/custody"
	"github.com/jmerrifield20/wtomax/internal/identity"
	"github.com/jmerrifield20/wtomax/internal/service"
	"go.uber.org/zap"
)

// VaultHandler exposes the vault over HTTP.
type VaultHandler struct {
	svc    *service.CustodyService
	tokens *identity.CallerTokenIssuer
	logger *zap.Logger
}

// NewVaultHandler creates a VaultHandler. Mutating routes require a caller
// token issued by tokens.
func NewVaultHandler(svc *service.CustodyService, tokens *identity.CallerTokenIssuer, logger *zap.Logger) *VaultHandler {
	return &VaultHandler{svc: svc, tokens: tokens, logger: logger}
}

// Register mounts the vault routes on the given router group.
func (h *VaultHandler) Register(rg *gin.RouterGroup) {
	v := rg.Group("/vault")
	{
		v.GET("", h.Status)
		v.GET("/balances/:address", h.Balance)
		v.GET("/guardians/:address", h.Guardian)
		v.GET("/approvals", h.Approvals)
		v.GET("/foreign/:asset", h.Foreign)
	}

	auth := v.Group("", identity.RequireCaller(h.tokens))
	{
		auth.POST("/requests", h.ApproveRequest)
		auth.POST("/requests/withdrawal", h.ApproveWithdrawal)
		auth.POST("/requests/owner-change", h.ApproveOwnerChange)
		auth.POST("/release", h.Release)
		auth.POST("/admin", h.ChangeAdmin)
		auth.POST("/owners", h.ChangeOwner)
		auth.POST("/pause", h.Pause)
		auth.POST("/unpause", h.Unpause)
		auth.POST("/wrap", h.Wrap)
		auth.POST("/unwrap", h.Unwrap)
		auth.POST("/withdraw", h.Withdraw)
		auth.POST("/recover", h.Recover)
		auth.POST("/foreign/deposit", h.DepositForeign)
	}
}

// ── Request / response bodies ────────────────────────────────────────────────

type tagRequest struct {
	Tag string `json:"tag" binding:"required"`
}

type amountRequest struct {
	Amount string `json:"amount" binding:"required"` // decimal tokens, e.g. "12.5"
}

type withdrawalApprovalRequest struct {
	Tag    string `json:"tag" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type ownerChangeRequest struct {
	Tag      string `json:"tag"`
	Outgoing string `json:"outgoing" binding:"required"`
	Incoming string `json:"incoming" binding:"required"`
}

type changeAdminRequest struct {
	NewAdmin string `json:"new_admin" binding:"required"`
}

type recoverRequest struct {
	Asset  string `json:"asset" binding:"required"`
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type depositForeignRequest struct {
	Asset  string `json:"asset" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// Amount is the wire form of a token quantity.
type Amount struct {
	Units  string `json:"units"`  // base units, 18 decimals
	Tokens string `json:"tokens"` // human readable
}

func amountOf(n *big.Int) Amount {
	if n == nil {
		n = new(big.Int)
	}
	return Amount{Units: n.String(), Tokens: custody.FormatTokens(n)}
}

// StatusResponse is the body of GET /vault.
type StatusResponse struct {
	Symbol        string            `json:"symbol"`
	Admin         custody.Address   `json:"admin"`
	Guardians     []custody.Address `json:"guardians"`
	Paused        bool              `json:"paused"`
	TotalSupply   Amount            `json:"total_supply"`
	WrappedSupply Amount            `json:"wrapped_supply"`
	Reserve       Amount            `json:"reserve"`
	Custodied     Amount            `json:"custodied"`
	Schedule      ScheduleResponse  `json:"schedule"`
}

// ScheduleResponse describes vesting progress.
type ScheduleResponse struct {
	TranchesReleased int    `json:"tranches_released"`
	MaxTranches      int    `json:"max_tranches"`
	LockedReserve    Amount `json:"locked_reserve"`
	NextTranche      Amount `json:"next_tranche"`
	LastRelease      string `json:"last_release"`
	NextEligible     string `json:"next_eligible"`
	Complete         bool   `json:"complete"`
}

func statusResponse(st service.Status) StatusResponse {
	return StatusResponse{
		Symbol:        st.Symbol,
		Admin:         st.Admin,
		Guardians:     st.Guardians,
		Paused:        st.Paused,
		TotalSupply:   amountOf(st.TotalSupply),
		WrappedSupply: amountOf(st.WrappedSupply),
		Reserve:       amountOf(st.Reserve),
		Custodied:     amountOf(st.Custodied),
		Schedule: ScheduleResponse{
			TranchesReleased: st.Schedule.TranchesReleased,
			MaxTranches:      st.Schedule.MaxTranches,
			LockedReserve:    amountOf(st.Schedule.LockedReserve),
			NextTranche:      amountOf(st.Schedule.NextTranche),
			LastRelease:      st.Schedule.LastRelease.Format(time.RFC3339),
			NextEligible:     st.Schedule.NextEligible.Format(time.RFC3339),
			Complete:         st.Schedule.Complete,
		},
	}
}

// ── Queries ──────────────────────────────────────────────────────────────────

// Status handles GET /vault.
func (h *VaultHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse(h.svc.Status()))
}

// Balance handles GET /vault/balances/:address.
func (h *VaultHandler) Balance(c *gin.Context) {
	addr, ok := h.addressParam(c, c.Param("address"))
	if !ok {
		return
	}
	token, native := h.svc.Balance(addr)
	c.JSON(http.StatusOK, gin.H{
		"address": addr,
		"balance": amountOf(token),
		"wrapped": amountOf(h.svc.WrappedBalance(addr)),
		"native":  amountOf(native),
	})
}

// Guardian handles GET /vault/guardians/:address.
func (h *VaultHandler) Guardian(c *gin.Context) {
	addr, ok := h.addressParam(c, c.Param("address"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr, "guardian": h.svc.IsGuardian(addr)})
}

// Approvals handles GET /vault/approvals?tag=&amount=&outgoing=&incoming=.
func (h *VaultHandler) Approvals(c *gin.Context) {
	tag := c.Query("tag")
	kind, ok := custody.KindFromTag(tag)
	if !ok {
		writeError(c, h.logger, custody.ErrNotFound)
		return
	}

	key := custody.ActionKey(kind)
	switch kind {
	case custody.KindWithdrawal:
		amount, err := custody.ParseTokens(c.Query("amount"))
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		key = custody.WithdrawalKey(amount)
	case custody.KindOwnerChange:
		out, ok := h.addressParam(c, c.Query("outgoing"))
		if !ok {
			return
		}
		in, ok := h.addressParam(c, c.Query("incoming"))
		if !ok {
			return
		}
		key = custody.OwnerChangeKey(out, in)
	}

	approvers := h.svc.Approvals(key)
	c.JSON(http.StatusOK, gin.H{
		"key":       key,
		"approvals": len(approvers),
		"quorum":    custody.Quorum,
		"approvers": approvers,
	})
}

// Foreign handles GET /vault/foreign/:asset[?holder=0x..].
func (h *VaultHandler) Foreign(c *gin.Context) {
	var holder custody.Address
	if q := c.Query("holder"); q != "" {
		var ok bool
		if holder, ok = h.addressParam(c, q); !ok {
			return
		}
	}
	asset := strings.ToLower(c.Param("asset"))
	held, recovered := h.svc.Foreign(asset, holder)
	body := gin.H{"asset": asset, "held": amountOf(held)}
	if !holder.IsZero() {
		body["holder"] = holder
		body["recovered"] = amountOf(recovered)
	}
	c.JSON(http.StatusOK, body)
}

// ── Governance ───────────────────────────────────────────────────────────────

// ApproveRequest handles POST /vault/requests.
func (h *VaultHandler) ApproveRequest(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	n, err := h.svc.ApproveRequest(c.Request.Context(), identity.CallerFromCtx(c), req.Tag)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tag": req.Tag, "approvals": n, "quorum": custody.Quorum})
}

// ApproveWithdrawal handles POST /vault/requests/withdrawal.
func (h *VaultHandler) ApproveWithdrawal(c *gin.Context) {
	var req withdrawalApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	amount, err := custody.ParseTokens(req.Amount)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	n, err := h.svc.ApproveWithdrawal(c.Request.Context(), identity.CallerFromCtx(c), req.Tag, amount)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tag": req.Tag, "amount": amountOf(amount), "approvals": n, "quorum": custody.Quorum})
}

// ApproveOwnerChange handles POST /vault/requests/owner-change.
func (h *VaultHandler) ApproveOwnerChange(c *gin.Context) {
	var req ownerChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Tag == "" {
		req.Tag = custody.TagOwnerChange
	}
	out, ok := h.addressParam(c, req.Outgoing)
	if !ok {
		return
	}
	in, ok := h.addressParam(c, req.Incoming)
	if !ok {
		return
	}
	n, err := h.svc.ApproveOwnerChange(c.Request.Context(), identity.CallerFromCtx(c), req.Tag, out, in)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tag": req.Tag, "outgoing": out, "incoming": in, "approvals": n, "quorum": custody.Quorum})
}

// Release handles POST /vault/release.
func (h *VaultHandler) Release(c *gin.Context) {
	tranche, err := h.svc.Release(c.Request.Context(), identity.CallerFromCtx(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": amountOf(tranche), "schedule": statusResponse(h.svc.Status()).Schedule})
}

// ChangeAdmin handles POST /vault/admin.
func (h *VaultHandler) ChangeAdmin(c *gin.Context) {
	var req changeAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	newAdmin, ok := h.addressParam(c, req.NewAdmin)
	if !ok {
		return
	}
	if err := h.svc.ChangeAdmin(c.Request.Context(), identity.CallerFromCtx(c), newAdmin); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admin": newAdmin})
}

// ChangeOwner handles POST /vault/owners.
func (h *VaultHandler) ChangeOwner(c *gin.Context) {
	var req ownerChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	out, ok := h.addressParam(c, req.Outgoing)
	if !ok {
		return
	}
	in, ok := h.addressParam(c, req.Incoming)
	if !ok {
		return
	}
	if err := h.svc.ChangeOwner(c.Request.Context(), identity.CallerFromCtx(c), out, in); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"guardians": h.svc.Status().Guardians})
}

// Pause handles POST /vault/pause.
func (h *VaultHandler) Pause(c *gin.Context) {
	if err := h.svc.Pause(c.Request.Context(), identity.CallerFromCtx(c)); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

// Unpause handles POST /vault/unpause.
func (h *VaultHandler) Unpause(c *gin.Context) {
	if err := h.svc.Unpause(c.Request.Context(), identity.CallerFromCtx(c)); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

// ── Accounting ───────────────────────────────────────────────────────────────

// Wrap handles POST /vault/wrap.
func (h *VaultHandler) Wrap(c *gin.Context) {
	h.amountCall(c, h.svc.Wrap)
}

// Unwrap handles POST /vault/unwrap.
func (h *VaultHandler) Unwrap(c *gin.Context) {
	h.amountCall(c, h.svc.Unwrap)
}

// Withdraw handles POST /vault/withdraw.
func (h *VaultHandler) Withdraw(c *gin.Context) {
	h.amountCall(c, h.svc.Withdraw)
}

// Recover handles POST /vault/recover.
func (h *VaultHandler) Recover(c *gin.Context) {
	var req recoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	to, ok := h.addressParam(c, req.To)
	if !ok {
		return
	}
	amount, err := custody.ParseTokens(req.Amount)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if err := h.svc.RecoverForeign(c.Request.Context(), identity.CallerFromCtx(c), req.Asset, to, amount); err != nil {
		writeError(c, h.logger, err)
		return
	}
	held, recovered := h.svc.Foreign(req.Asset, to)
	c.JSON(http.StatusOK, gin.H{"asset": strings.ToLower(req.Asset), "held": amountOf(held), "recovered": amountOf(recovered)})
}

// DepositForeign handles POST /vault/foreign/deposit.
func (h *VaultHandler) DepositForeign(c *gin.Context) {
	var req depositForeignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	amount, err := custody.ParseTokens(req.Amount)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if err := h.svc.DepositForeign(c.Request.Context(), identity.CallerFromCtx(c), req.Asset, amount); err != nil {
		writeError(c, h.logger, err)
		return
	}
	held, _ := h.svc.Foreign(req.Asset, custody.ZeroAddress)
	c.JSON(http.StatusOK, gin.H{"asset": strings.ToLower(req.Asset), "held": amountOf(held)})
}

// amountCall binds {"amount"} and runs one of the single-amount operations.
func (h *VaultHandler) amountCall(c *gin.Context, fn func(context.Context, custody.Address, *big.Int) error) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	amount, err := custody.ParseTokens(req.Amount)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	caller := identity.CallerFromCtx(c)
	if err := fn(c.Request.Context(), caller, amount); err != nil {
		writeError(c, h.logger, err)
		return
	}
	token, native := h.svc.Balance(caller)
	c.JSON(http.StatusOK, gin.H{
		"amount":  amountOf(amount),
		"balance": amountOf(token),
		"native":  amountOf(native),
		"reserve": amountOf(h.svc.Status().Reserve),
	})
}

// addressParam parses raw as an address, writing a 400 response on failure.
func (h *VaultHandler) addressParam(c *gin.Context, raw string) (custody.Address, bool) {
	a, err := custody.ParseAddress(raw)
	if err != nil {
		writeError(c, h.logger, err)
		return custody.ZeroAddress, false
	}
	return a, true
}
