package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/wtomax/internal/audit"
	"go.uber.org/zap"
)

const maxLedgerPage = 200

// LedgerHandler exposes read-only HTTP endpoints for the audit log.
type LedgerHandler struct {
	log    audit.Log
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(log audit.Log, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{log: log, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/entries", h.Recent)
		l.GET("/entries/:idx", h.GetEntry)
	}
}

// Overview handles GET /ledger and returns the chain length and tip hash.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.log.Len(ctx)
	if err != nil {
		h.logger.Error("audit Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query audit log", "code": "internal"})
		return
	}
	root, err := h.log.Root(ctx)
	if err != nil {
		h.logger.Error("audit Root", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query audit root", "code": "internal"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": count, "root": root})
}

// Verify handles GET /ledger/verify.
func (h *LedgerHandler) Verify(c *gin.Context) {
	if err := h.log.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("audit chain integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// Recent handles GET /ledger/entries?limit=N, newest first.
func (h *LedgerHandler) Recent(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxLedgerPage {
		limit = maxLedgerPage
	}

	entries, err := h.log.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("audit Recent", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit entries", "code": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// GetEntry handles GET /ledger/entries/:idx.
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		badRequest(c, "idx must be a non-negative integer")
		return
	}

	entry, err := h.log.Get(c.Request.Context(), idx)
	if err != nil {
		if errors.Is(err, audit.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found", "code": "not_found"})
			return
		}
		h.logger.Error("audit Get", zap.Int("idx", idx), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read audit entry", "code": "internal"})
		return
	}
	c.JSON(http.StatusOK, entry)
}
