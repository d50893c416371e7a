package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/wtomax/internal/custody"
	"github.com/jmerrifield20/wtomax/internal/identity"
	"go.uber.org/zap"
)

// AuthHandler exchanges caller secrets for bearer tokens.
type AuthHandler struct {
	creds  *identity.Credentials
	tokens *identity.CallerTokenIssuer
	logger *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(creds *identity.Credentials, tokens *identity.CallerTokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{creds: creds, tokens: tokens, logger: logger}
}

// Register mounts the auth routes on the given router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/token", h.Token)
	rg.GET("/auth/whoami", identity.RequireCaller(h.tokens), h.WhoAmI)
}

type tokenRequest struct {
	Address string `json:"address" binding:"required"`
	Secret  string `json:"secret" binding:"required"`
}

// Token handles POST /auth/token.
func (h *AuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	addr, err := custody.ParseAddress(req.Address)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if err := h.creds.Authenticate(addr, req.Secret); err != nil {
		if errors.Is(err, identity.ErrBadCredentials) {
			h.logger.Warn("caller authentication failed",
				zap.String("address", addr.String()),
				zap.String("client_ip", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "unauthenticated"})
			return
		}
		writeError(c, h.logger, err)
		return
	}

	token, exp, err := h.tokens.Issue(addr)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   exp,
		"expires_in":   int(h.tokens.TTL().Seconds()),
	})
}

// WhoAmI handles GET /auth/whoami.
func (h *AuthHandler) WhoAmI(c *gin.Context) {
	claims := identity.ClaimsFromCtx(c)
	c.JSON(http.StatusOK, gin.H{
		"address":    identity.CallerFromCtx(c),
		"token_id":   claims.ID,
		"expires_at": claims.ExpiresAt.Time,
	})
}
