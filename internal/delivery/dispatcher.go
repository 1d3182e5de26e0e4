// Package delivery owns the message delivery lifecycle: the Sent -> Received
// -> Seen state machine and the routing of live events to connected clients.
package delivery

import (
	"log/slog"
)

// Transport writes an event to one physical connection. The websocket layer
// implements it; tests substitute a recorder.
type Transport interface {
	SendToConnection(connID string, event string, payload any) error
}

// Presence is the subset of the presence registry the dispatcher and state
// machine need.
type Presence interface {
	IsOnline(userID int64) bool
	ConnectionsOf(userID int64) []string
}

// Dispatcher fans events out to every active connection of a user. Delivery
// is at-most-once and best-effort: a user with no connections is skipped
// silently, and per-connection write failures are logged and swallowed.
// Durability lives in the store, never in the notification path.
type Dispatcher struct {
	presence  Presence
	transport Transport
	logger    *slog.Logger
}

func NewDispatcher(presence Presence, transport Transport, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		presence:  presence,
		transport: transport,
		logger:    logger,
	}
}

// Notify sends the event to all of the user's connections. Callers must only
// invoke it after the triggering mutation has been committed, so clients
// never observe a notification for state that later rolled back.
func (d *Dispatcher) Notify(userID int64, event string, payload any) {
	for _, connID := range d.presence.ConnectionsOf(userID) {
		if err := d.transport.SendToConnection(connID, event, payload); err != nil {
			d.logger.Warn("notify connection",
				"user_id", userID,
				"conn_id", connID,
				"event", event,
				"error", err,
			)
		}
	}
}
