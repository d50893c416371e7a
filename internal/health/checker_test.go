package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmerrifield20/wtomax/internal/service"
	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubSetter struct {
	mu       sync.Mutex
	statuses map[string]grpc_health_v1.HealthCheckResponse_ServingStatus
	calls    int
}

func newStubSetter() *stubSetter {
	return &stubSetter{statuses: make(map[string]grpc_health_v1.HealthCheckResponse_ServingStatus)}
}

func (s *stubSetter) SetServingStatus(svc string, st grpc_health_v1.HealthCheckResponse_ServingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[svc] = st
	s.calls++
}

func (s *stubSetter) get(svc string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[svc]
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestCheckAll_servingWhenHealthy(t *testing.T) {
	setter := newStubSetter()
	checker := New(setter, Config{ProbeTimeout: time.Second}, zap.NewNop())
	checker.AddProbe("store", func(context.Context) error { return nil })

	checker.CheckAll(context.Background())

	if got := setter.get(ServiceName); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %v", got)
	}
	if !checker.Ready() {
		t.Error("expected ready")
	}
}

func TestCheckAll_degradesAfterThreshold(t *testing.T) {
	setter := newStubSetter()
	checker := New(setter, Config{ProbeTimeout: time.Second, FailThreshold: 3}, zap.NewNop())
	checker.AddProbe("audit", func(context.Context) error { return errors.New("chain broken") })

	for i := 0; i < 2; i++ {
		checker.CheckAll(context.Background())
	}
	if !checker.Ready() {
		t.Fatal("should stay ready below threshold")
	}

	checker.CheckAll(context.Background())
	if checker.Ready() {
		t.Fatal("expected degraded at threshold")
	}
	if got := setter.get(ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING, got %v", got)
	}

	snap := checker.Snapshot()
	if len(snap) != 1 || snap[0].Failures != 3 || snap[0].LastError != "chain broken" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestCheckAll_recoversOnSuccess(t *testing.T) {
	fail := 3
	setter := newStubSetter()
	checker := New(setter, Config{ProbeTimeout: time.Second, FailThreshold: 3}, zap.NewNop())
	checker.AddProbe("store", func(context.Context) error {
		if fail > 0 {
			fail--
			return errors.New("connection refused")
		}
		return nil
	})

	for i := 0; i < 4; i++ {
		checker.CheckAll(context.Background())
	}

	if !checker.Ready() {
		t.Error("expected ready after recovery")
	}
	if got := setter.get(ServiceName); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING after recovery, got %v", got)
	}
}

func TestCheckAll_onlyTransitionsPublished(t *testing.T) {
	setter := newStubSetter()
	checker := New(setter, Config{ProbeTimeout: time.Second}, zap.NewNop())
	checker.AddProbe("store", func(context.Context) error { return nil })

	for i := 0; i < 5; i++ {
		checker.CheckAll(context.Background())
	}
	// one publish writes ServiceName and the server-wide "" entry
	if setter.calls != 2 {
		t.Errorf("expected 2 setter calls, got %d", setter.calls)
	}
}

func TestProbe_timeout(t *testing.T) {
	checker := New(nil, Config{ProbeTimeout: 10 * time.Millisecond, FailThreshold: 1}, zap.NewNop())
	checker.AddProbe("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	checker.CheckAll(context.Background())
	if checker.Ready() {
		t.Error("expected timed-out probe to degrade")
	}
}

func TestObserver_tracksGate(t *testing.T) {
	setter := newStubSetter()
	checker := New(setter, Config{}, zap.NewNop())
	checker.SetPaused(false)

	checker.ActionCommitted("pause", service.Status{Paused: true})
	if got := setter.get(GateServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected gate NOT_SERVING while paused, got %v", got)
	}

	checker.ActionCommitted("unpause", service.Status{Paused: false})
	if got := setter.get(GateServiceName); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected gate SERVING after unpause, got %v", got)
	}
}
