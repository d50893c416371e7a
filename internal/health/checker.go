// Package health runs periodic readiness probes against the custody
// service and mirrors the result into a gRPC health server.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmerrifield20/wtomax/internal/service"
	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Service names reported to the gRPC health server. ServiceName follows the
// probes; GateServiceName is NOT_SERVING while the vault is paused.
const (
	ServiceName     = "wtomax.v1.Custody"
	GateServiceName = "wtomax.v1.Gate"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// StatusSetter receives serving-status transitions. *health.Server from
// google.golang.org/grpc/health satisfies it.
type StatusSetter interface {
	SetServingStatus(service string, status grpc_health_v1.HealthCheckResponse_ServingStatus)
}

// ProbeFunc checks one dependency. A nil error means healthy.
type ProbeFunc func(ctx context.Context) error

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(probe string, success bool)

// ProbeStatus is the last observed state of a probe.
type ProbeStatus struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Failures  int       `json:"consecutive_failures"`
	LastError string    `json:"last_error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs the registered probes and tracks consecutive failures.
type Checker struct {
	setter    StatusSetter
	probes    map[string]ProbeFunc
	status    map[string]*ProbeStatus
	mu        sync.Mutex
	degraded  bool
	published bool
	paused    bool
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

var _ service.Observer = (*Checker)(nil)

// New creates a Checker. setter may be nil when no gRPC server is running.
func New(setter StatusSetter, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Checker{
		setter: setter,
		probes: make(map[string]ProbeFunc),
		status: make(map[string]*ProbeStatus),
		cfg:    cfg,
		logger: logger,
	}
}

// AddProbe registers fn under name. It must be called before Start.
func (h *Checker) AddProbe(name string, fn ProbeFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = fn
	h.status[name] = &ProbeStatus{Name: name, Healthy: true}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// SetPaused seeds the gate status, typically from the restored vault.
func (h *Checker) SetPaused(paused bool) {
	h.mu.Lock()
	h.paused = paused
	h.mu.Unlock()
	h.publishGate(paused)
}

// Start runs the check loop until ctx is cancelled. The first round runs
// immediately.
func (h *Checker) Start(ctx context.Context) {
	h.CheckAll(ctx)

	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll runs every probe concurrently and publishes the aggregate status.
func (h *Checker) CheckAll(ctx context.Context) {
	h.mu.Lock()
	probes := make(map[string]ProbeFunc, len(h.probes))
	for name, fn := range h.probes {
		probes[name] = fn
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for name, fn := range probes {
		wg.Add(1)
		go func(name string, fn ProbeFunc) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
			err := fn(pctx)
			cancel()
			h.record(name, err)
		}(name, fn)
	}
	wg.Wait()

	h.publish()
}

func (h *Checker) record(name string, err error) {
	if h.onMetrics != nil {
		h.onMetrics(name, err == nil)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.status[name]
	prev := st.Failures
	st.CheckedAt = time.Now().UTC()
	if err == nil {
		st.Failures = 0
		st.LastError = ""
		st.Healthy = true
		if prev >= h.cfg.FailThreshold {
			h.logger.Info("health: recovered", zap.String("probe", name))
		}
		return
	}

	st.Failures++
	st.LastError = err.Error()
	if st.Failures >= h.cfg.FailThreshold {
		st.Healthy = false
	}
	if st.Failures == h.cfg.FailThreshold {
		h.logger.Warn("health: degraded",
			zap.String("probe", name),
			zap.Int("fail_count", st.Failures),
			zap.Error(err),
		)
	}
}

// publish pushes the aggregate status to the setter. After the first round
// only transitions are sent.
func (h *Checker) publish() {
	h.mu.Lock()
	degraded := false
	for _, st := range h.status {
		if !st.Healthy {
			degraded = true
			break
		}
	}
	send := degraded != h.degraded || !h.published
	h.degraded = degraded
	h.published = true
	h.mu.Unlock()

	if h.setter == nil || !send {
		return
	}
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if degraded {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	h.setter.SetServingStatus(ServiceName, status)
	h.setter.SetServingStatus("", status)
}

func (h *Checker) publishGate(paused bool) {
	if h.setter == nil {
		return
	}
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if paused {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	h.setter.SetServingStatus(GateServiceName, status)
}

// Ready reports whether no probe is past its failure threshold.
func (h *Checker) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.degraded
}

// Snapshot returns the probe states sorted by name.
func (h *Checker) Snapshot() []ProbeStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ProbeStatus, 0, len(h.status))
	for _, st := range h.status {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ActionCommitted implements service.Observer and tracks the pause gate.
func (h *Checker) ActionCommitted(_ string, st service.Status) {
	h.mu.Lock()
	changed := h.paused != st.Paused
	h.paused = st.Paused
	h.mu.Unlock()
	if changed {
		h.logger.Info("health: gate changed", zap.Bool("paused", st.Paused))
		h.publishGate(st.Paused)
	}
}

// ActionFailed implements service.Observer.
func (h *Checker) ActionFailed(string, error) {}
