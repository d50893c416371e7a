package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/wtomax/internal/custody"
	"github.com/jmerrifield20/wtomax/internal/service"
	"go.uber.org/zap"
)

// statusFor maps a vault error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, custody.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, custody.ErrPaused):
		return http.StatusLocked
	case errors.Is(err, custody.ErrQuorumNotMet),
		errors.Is(err, custody.ErrAlreadyApproved),
		errors.Is(err, custody.ErrTooSoon),
		errors.Is(err, custody.ErrScheduleComplete),
		errors.Is(err, custody.ErrNotPaused):
		return http.StatusConflict
	case errors.Is(err, custody.ErrInvalidComposition),
		errors.Is(err, custody.ErrInvalidAddress),
		errors.Is(err, custody.ErrDuplicateGuardian),
		errors.Is(err, custody.ErrInvalidAmount),
		errors.Is(err, custody.ErrInvalidAsset):
		return http.StatusBadRequest
	case errors.Is(err, custody.ErrInsufficientBalance),
		errors.Is(err, custody.ErrInsufficientReserve):
		return http.StatusUnprocessableEntity
	case errors.Is(err, custody.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPersist):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error", "code"}. Unexpected errors are logged
// and their text is not leaked to the client.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	code := custody.ErrorCode(err)
	msg := err.Error()
	switch {
	case errors.Is(err, service.ErrPersist):
		code = "unavailable"
		msg = "vault state could not be persisted; nothing was changed"
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	case status == http.StatusInternalServerError:
		msg = "internal error"
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": msg, "code": code})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "bad_request"})
}
