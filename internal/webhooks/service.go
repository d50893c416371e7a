// Package webhooks delivers signed notifications of committed vault actions
// to operator-configured HTTP endpoints.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/wtomax/internal/service"
	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Wtomax-Signature"

const historySize = 100

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Notifier fans committed vault actions out to subscriptions. It implements
// service.Observer.
type Notifier struct {
	subs       []Subscription
	httpClient *http.Client
	backoff    []time.Duration
	onMetrics  MetricsRecorder
	logger     *zap.Logger

	ctx context.Context
	wg  sync.WaitGroup

	mu      sync.Mutex
	history []Delivery
}

var _ service.Observer = (*Notifier)(nil)

// NewNotifier creates a Notifier. Deliveries in flight are bound to ctx.
func NewNotifier(ctx context.Context, subs []Subscription, logger *zap.Logger) *Notifier {
	return &Notifier{
		subs:       subs,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// Three attempts: immediately, then after 1s and 5s.
		backoff: []time.Duration{0, 1 * time.Second, 5 * time.Second},
		logger:  logger,
		ctx:     ctx,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (n *Notifier) SetMetricsRecorder(fn MetricsRecorder) {
	n.onMetrics = fn
}

// SetBackoff replaces the retry schedule. The length is the attempt count.
func (n *Notifier) SetBackoff(delays []time.Duration) {
	n.backoff = delays
}

// Subscriptions returns the configured subscriptions with secrets removed.
func (n *Notifier) Subscriptions() []Subscription {
	out := make([]Subscription, len(n.subs))
	for i, s := range n.subs {
		out[i] = Subscription{URL: s.URL, Events: s.Events}
	}
	return out
}

// ActionCommitted dispatches the event for action, if it has one.
func (n *Notifier) ActionCommitted(action string, st service.Status) {
	eventType, ok := actionEvents[action]
	if !ok {
		return
	}
	n.Dispatch(eventType, statusPayload(st))
}

// ActionFailed is a no-op; rejected calls are not announced.
func (n *Notifier) ActionFailed(string, error) {}

// Dispatch fans out an event to all matching subscriptions without blocking.
func (n *Notifier) Dispatch(eventType string, payload map[string]string) {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	for _, sub := range n.subs {
		if !sub.Wants(eventType) {
			continue
		}
		n.wg.Add(1)
		go func(sub Subscription) {
			defer n.wg.Done()
			n.deliver(sub, event)
		}(sub)
	}
}

// Wait blocks until every dispatched delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Recent returns up to the last 100 delivery attempts, newest last.
func (n *Notifier) Recent() []Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Delivery, len(n.history))
	copy(out, n.history)
	return out
}

func (n *Notifier) deliver(sub Subscription, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}
	signature := signPayload(body, sub.Secret)

	for i, delay := range n.backoff {
		attempt := i + 1
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-n.ctx.Done():
				return
			}
		}

		success, statusCode, errMsg := n.doDelivery(sub.URL, body, signature)
		n.record(Delivery{
			EventID:      event.ID,
			EventType:    event.Type,
			URL:          sub.URL,
			StatusCode:   statusCode,
			Attempt:      attempt,
			Success:      success,
			ErrorMessage: errMsg,
			DeliveredAt:  time.Now().UTC(),
		})
		if n.onMetrics != nil {
			n.onMetrics(success)
		}
		if success {
			return
		}

		n.logger.Warn("webhook: delivery failed",
			zap.String("url", sub.URL),
			zap.String("event", event.Type),
			zap.Int("attempt", attempt),
			zap.String("error", errMsg),
		)
	}
}

func (n *Notifier) record(d Delivery) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.history = append(n.history, d)
	if len(n.history) > historySize {
		n.history = n.history[len(n.history)-historySize:]
	}
}

// doDelivery performs a single HTTP POST delivery.
func (n *Notifier) doDelivery(url string, body []byte, signature string) (bool, int, string) {
	req, err := http.NewRequestWithContext(n.ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return false, 0, err.Error()
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !success {
		errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return success, resp.StatusCode, errMsg
}

func statusPayload(st service.Status) map[string]string {
	p := map[string]string{
		"admin":             st.Admin.String(),
		"paused":            strconv.FormatBool(st.Paused),
		"tranches_released": strconv.Itoa(st.Schedule.TranchesReleased),
	}
	if st.TotalSupply != nil {
		p["total_supply"] = st.TotalSupply.String()
	}
	if st.Reserve != nil {
		p["reserve"] = st.Reserve.String()
	}
	if st.WrappedSupply != nil {
		p["wrapped_supply"] = st.WrappedSupply.String()
	}
	return p
}

// signPayload computes an HMAC-SHA256 signature.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches body under secret.
// Receivers use it to authenticate deliveries.
func VerifySignature(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(signPayload(body, secret)), []byte(signature))
}
