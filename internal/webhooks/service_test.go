package webhooks_test

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/wtomax/internal/service"
	"github.com/jmerrifield20/wtomax/internal/webhooks"
	"go.uber.org/zap"
)

type receiver struct {
	mu     sync.Mutex
	events []webhooks.Event
	sigs   []string
	bodies [][]byte
}

func (r *receiver) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		var ev webhooks.Event
		json.Unmarshal(body, &ev) //nolint:errcheck
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.sigs = append(r.sigs, req.Header.Get(webhooks.SignatureHeader))
		r.bodies = append(r.bodies, body)
		r.mu.Unlock()
		w.WriteHeader(status)
	}
}

func status() service.Status {
	return service.Status{
		Paused:        true,
		TotalSupply:   big.NewInt(7000000),
		Reserve:       big.NewInt(100),
		WrappedSupply: big.NewInt(0),
	}
}

func TestActionCommitted_deliversSignedEvent(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv.handler(http.StatusNoContent))
	defer srv.Close()

	n := webhooks.NewNotifier(context.Background(), []webhooks.Subscription{
		{URL: srv.URL, Secret: "s3cret"},
	}, zap.NewNop())
	var ok atomic.Int32
	n.SetMetricsRecorder(func(success bool) {
		if success {
			ok.Add(1)
		}
	})

	n.ActionCommitted("pause", status())
	n.Wait()

	if len(rcv.events) != 1 {
		t.Fatalf("want 1 event, got %d", len(rcv.events))
	}
	ev := rcv.events[0]
	if ev.Type != webhooks.EventPaused {
		t.Errorf("type: want %s, got %s", webhooks.EventPaused, ev.Type)
	}
	if ev.Payload["paused"] != "true" || ev.Payload["total_supply"] != "7000000" {
		t.Errorf("unexpected payload: %v", ev.Payload)
	}
	if !webhooks.VerifySignature(rcv.bodies[0], "s3cret", rcv.sigs[0]) {
		t.Error("signature did not verify")
	}
	if webhooks.VerifySignature(rcv.bodies[0], "other", rcv.sigs[0]) {
		t.Error("signature verified under the wrong secret")
	}
	if ok.Load() != 1 {
		t.Errorf("want 1 successful delivery recorded, got %d", ok.Load())
	}
}

func TestActionCommitted_ignoresUnmappedAndFiltered(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv.handler(http.StatusOK))
	defer srv.Close()

	n := webhooks.NewNotifier(context.Background(), []webhooks.Subscription{
		{URL: srv.URL, Events: []string{webhooks.EventReleased}},
	}, zap.NewNop())

	n.ActionCommitted("approve", status())
	n.ActionCommitted("pause", status())
	n.ActionCommitted("release", status())
	n.ActionFailed("release", context.Canceled)
	n.Wait()

	if len(rcv.events) != 1 || rcv.events[0].Type != webhooks.EventReleased {
		t.Fatalf("want only %s, got %+v", webhooks.EventReleased, rcv.events)
	}
}

func TestDelivery_retriesOnFailure(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv.handler(http.StatusBadGateway))
	defer srv.Close()

	n := webhooks.NewNotifier(context.Background(), []webhooks.Subscription{{URL: srv.URL}}, zap.NewNop())
	n.SetBackoff([]time.Duration{0, time.Millisecond, time.Millisecond})

	n.Dispatch(webhooks.EventWithdrawn, map[string]string{"reserve": "40"})
	n.Wait()

	recent := n.Recent()
	if len(recent) != 3 {
		t.Fatalf("want 3 attempts, got %d", len(recent))
	}
	for i, d := range recent {
		if d.Success || d.StatusCode != http.StatusBadGateway || d.Attempt != i+1 {
			t.Errorf("attempt %d: unexpected delivery %+v", i+1, d)
		}
	}
	if recent[0].EventID != recent[2].EventID {
		t.Error("retries should carry the same event id")
	}
}

func TestDelivery_stopsWhenContextCancelled(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv.handler(http.StatusInternalServerError))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	n := webhooks.NewNotifier(ctx, []webhooks.Subscription{{URL: srv.URL}}, zap.NewNop())
	n.SetBackoff([]time.Duration{0, time.Hour})

	n.Dispatch(webhooks.EventUnpaused, nil)
	time.Sleep(50 * time.Millisecond)
	cancel()
	n.Wait()

	if got := len(n.Recent()); got != 1 {
		t.Errorf("want 1 attempt before cancellation, got %d", got)
	}
}

func TestHandler_hidesSecrets(t *testing.T) {
	gin.SetMode(gin.TestMode)
	n := webhooks.NewNotifier(context.Background(), []webhooks.Subscription{
		{URL: "https://ops.example.net/hook", Events: []string{webhooks.EventPaused}, Secret: "hidden"},
	}, zap.NewNop())

	r := gin.New()
	webhooks.NewHandler(n).Register(r.Group("/api/v1"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/webhooks", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	var resp struct {
		Count         int `json:"count"`
		Subscriptions []struct {
			URL    string `json:"url"`
			Secret string `json:"secret"`
		} `json:"subscriptions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || resp.Subscriptions[0].Secret != "" {
		t.Errorf("unexpected response: %s", w.Body.String())
	}
}
