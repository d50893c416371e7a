package webhooks

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes read-only HTTP endpoints for webhook configuration and
// recent delivery attempts.
type Handler struct {
	n *Notifier
}

// NewHandler creates a new webhook Handler.
func NewHandler(n *Notifier) *Handler {
	return &Handler{n: n}
}

// Register mounts webhook routes on the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	wh := rg.Group("/webhooks")
	{
		wh.GET("", h.List)
		wh.GET("/deliveries", h.Deliveries)
	}
}

// List handles GET /webhooks.
func (h *Handler) List(c *gin.Context) {
	subs := h.n.Subscriptions()
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs, "count": len(subs)})
}

// Deliveries handles GET /webhooks/deliveries.
func (h *Handler) Deliveries(c *gin.Context) {
	recent := h.n.Recent()
	c.JSON(http.StatusOK, gin.H{"deliveries": recent, "count": len(recent)})
}
