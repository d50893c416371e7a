package webhooks

import (
	"time"
)

// Event types dispatched for committed vault actions.
const (
	EventPaused       = "vault.paused"
	EventUnpaused     = "vault.unpaused"
	EventReleased     = "vault.released"
	EventAdminChanged = "vault.admin_changed"
	EventOwnerChanged = "vault.owner_changed"
	EventWithdrawn    = "vault.withdrawn"
	EventWrapped      = "vault.wrapped"
	EventUnwrapped    = "vault.unwrapped"
)

// actionEvents maps service action names to event types. Actions absent
// from the map are not dispatched.
var actionEvents = map[string]string{
	"pause":        EventPaused,
	"unpause":      EventUnpaused,
	"release":      EventReleased,
	"change_admin": EventAdminChanged,
	"change_owner": EventOwnerChanged,
	"withdraw":     EventWithdrawn,
	"wrap":         EventWrapped,
	"unwrap":       EventUnwrapped,
}

// Subscription is a configured endpoint that receives signed events.
// An empty Events list subscribes to everything.
type Subscription struct {
	URL    string   `json:"url"              mapstructure:"url"`
	Events []string `json:"events,omitempty" mapstructure:"events"`
	Secret string   `json:"-"                mapstructure:"secret"` // never returned in API responses
}

// Wants reports whether s is subscribed to eventType.
func (s Subscription) Wants(eventType string) bool {
	if len(s.Events) == 0 {
		return true
	}
	for _, e := range s.Events {
		if e == eventType || e == "*" {
			return true
		}
	}
	return false
}

// Event is the JSON body POSTed to subscribers.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// Delivery records the outcome of a single delivery attempt.
type Delivery struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	URL          string    `json:"url"`
	StatusCode   int       `json:"status_code"`
	Attempt      int       `json:"attempt"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DeliveredAt  time.Time `json:"delivered_at"`
}
