// Package registry maps destination identifiers to connection state. The
// registry is a pure mapping: creating an entry never opens a connection
// and never fails, whatever the id looks like. URI resolution and all other
// fallible work happens at connect time in the connection manager.
package registry

import (
	"sync"
)

// State is the connection lifecycle state of a destination.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Closing
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Destination is one named endpoint. The id is its sole identity.
//
// State and lastErr may be read from outside the owner goroutine (status
// listings), so they sit behind a mutex. The pending queue is appended to
// by the send path and drained by the destination's connection worker; it
// synchronizes internally.
type Destination struct {
	ID string

	mu      sync.Mutex
	state   State
	lastErr error
	pending *SendQueue
}

func (d *Destination) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Destination) SetState(s State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
}

func (d *Destination) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func (d *Destination) SetLastError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastErr = err
}

// ClearLastError is called on every successful (re)connection.
func (d *Destination) ClearLastError() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastErr = nil
}

func (d *Destination) Pending() *SendQueue {
	return d.pending
}

// Registry is the process-wide destination table. Entries are created
// lazily on first reference and persist until removed or process exit.
type Registry struct {
	mu            sync.Mutex
	entries       map[string]*Destination
	order         []string
	queueCapacity int
}

func New(queueCapacity int) *Registry {
	return &Registry{
		entries:       make(map[string]*Destination),
		queueCapacity: queueCapacity,
	}
}

// GetOrCreate returns the destination for id, creating it if absent. The
// returned pointer is stable: every call with the same id yields the same
// entity.
func (r *Registry) GetOrCreate(id string) *Destination {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.entries[id]; ok {
		return d
	}

	d := &Destination{
		ID:      id,
		state:   Disconnected,
		pending: NewSendQueue(r.queueCapacity),
	}
	r.entries[id] = d
	r.order = append(r.order, id)
	return d
}

// Remove deletes the entry for id. Returns false if absent.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns a snapshot of all destinations in insertion order.
func (r *Registry) List() []*Destination {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Destination, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}
