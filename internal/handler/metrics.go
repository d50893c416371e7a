package handler

import (
	"errors"
	"math/big"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/wtomax/internal/custody"
	"github.com/jmerrifield20/wtomax/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	wtomaxRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wtomax_http_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	wtomaxRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wtomax_http_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	wtomaxActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wtomax_actions_total",
		Help: "Vault calls by action and outcome code.",
	}, []string{"action", "outcome"})

	wtomaxSupply = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wtomax_supply_tokens",
		Help: "Vault quantities in whole tokens by kind.",
	}, []string{"kind"})

	wtomaxPaused = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wtomax_paused",
		Help: "1 while the vault gate is closed.",
	})

	wtomaxTranchesReleased = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wtomax_tranches_released",
		Help: "Vesting tranches released so far.",
	})

	wtomaxHealthChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wtomax_health_checks_total",
		Help: "Readiness probe runs by probe and result.",
	}, []string{"probe", "result"})

	wtomaxWebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wtomax_webhook_deliveries_total",
		Help: "Webhook delivery attempts by result.",
	}, []string{"result"})
)

// RecordWebhookDelivery counts one webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	result := "ok"
	if !success {
		result = "fail"
	}
	wtomaxWebhookDeliveries.WithLabelValues(result).Inc()
}

// RecordHealthCheck counts one readiness probe run.
func RecordHealthCheck(probe string, success bool) {
	result := "ok"
	if !success {
		result = "fail"
	}
	wtomaxHealthChecks.WithLabelValues(probe, result).Inc()
}

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		wtomaxRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		wtomaxRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// VaultMetrics is a service.Observer that mirrors vault state into gauges
// and counts call outcomes.
type VaultMetrics struct{}

var _ service.Observer = VaultMetrics{}

// ActionCommitted implements service.Observer.
func (VaultMetrics) ActionCommitted(action string, st service.Status) {
	wtomaxActionsTotal.WithLabelValues(action, "ok").Inc()
	SetVaultGauges(st)
}

// ActionFailed implements service.Observer.
func (VaultMetrics) ActionFailed(action string, err error) {
	outcome := custody.ErrorCode(err)
	if errors.Is(err, service.ErrPersist) {
		outcome = "persist_failed"
	}
	wtomaxActionsTotal.WithLabelValues(action, outcome).Inc()
}

// SetVaultGauges publishes st. Called at startup and after every commit.
func SetVaultGauges(st service.Status) {
	wtomaxSupply.WithLabelValues("total").Set(tokensFloat(st.TotalSupply))
	wtomaxSupply.WithLabelValues("wrapped").Set(tokensFloat(st.WrappedSupply))
	wtomaxSupply.WithLabelValues("reserve").Set(tokensFloat(st.Reserve))
	wtomaxSupply.WithLabelValues("custodied").Set(tokensFloat(st.Custodied))
	wtomaxSupply.WithLabelValues("locked").Set(tokensFloat(st.Schedule.LockedReserve))
	wtomaxTranchesReleased.Set(float64(st.Schedule.TranchesReleased))
	if st.Paused {
		wtomaxPaused.Set(1)
	} else {
		wtomaxPaused.Set(0)
	}
}

// tokensFloat converts base units to whole tokens.
func tokensFloat(n *big.Int) float64 {
	if n == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(n), big.NewFloat(1e18)).Float64()
	return f
}
