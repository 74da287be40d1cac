package tpproto

// EventKind enumerates the status events the bridge emits to the host.
type EventKind string

const (
	EventSent         EventKind = "sent"
	EventQueued       EventKind = "queued"
	EventError        EventKind = "error"
	EventDropped      EventKind = "dropped"
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventReceived     EventKind = "received"
)

// Event is one outbound status line. ID correlates the event with the
// inbound command that caused it, when there is one.
type Event struct {
	Event       EventKind `json:"event"`
	Destination string    `json:"destination,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	ID          string    `json:"id,omitempty"`
}
