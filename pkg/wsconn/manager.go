// Package wsconn owns the outbound WebSocket connections, one per
// destination. Each destination gets a single owner goroutine that holds
// the socket and retry state; payloads travel through the destination's
// bounded pending queue, so a late send can never race a reconnection and
// a stalled endpoint only backs up its own queue.
package wsconn

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/korvid-labs/wsbridge/pkg/bus"
	"github.com/korvid-labs/wsbridge/pkg/config"
	"github.com/korvid-labs/wsbridge/pkg/logger"
	"github.com/korvid-labs/wsbridge/pkg/registry"
	"github.com/korvid-labs/wsbridge/pkg/tpproto"
)

// Options carries the connection tuning knobs.
type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	BackoffBase      time.Duration
	BackoffMax       time.Duration
}

// OptionsFromConfig maps the loaded config onto connection options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		HandshakeTimeout: cfg.Socket.HandshakeTimeout(),
		WriteTimeout:     cfg.Socket.WriteTimeout(),
		BackoffBase:      cfg.Backoff.Base(),
		BackoffMax:       cfg.Backoff.Max(),
	}
}

// Manager routes sends to per-destination workers, spawning them lazily.
type Manager struct {
	opts Options
	reg  *registry.Registry
	bus  *bus.Bus

	mu      sync.Mutex
	aliases map[string]string
	workers map[string]*worker
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(opts Options, reg *registry.Registry, b *bus.Bus) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:    opts,
		reg:     reg,
		bus:     b,
		aliases: make(map[string]string),
		workers: make(map[string]*worker),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// UpdateAliases replaces the destination alias map. Safe to call while the
// bridge is running; the next connect attempt sees the new targets.
func (m *Manager) UpdateAliases(aliases map[string]string) {
	cp := make(map[string]string, len(aliases))
	for k, v := range aliases {
		cp[k] = v
	}
	m.mu.Lock()
	m.aliases = cp
	m.mu.Unlock()
}

// resolveTarget expands an alias and validates the result as a websocket
// URI. On failure the returned value is the expanded string that failed,
// so callers can report each offending value once.
func (m *Manager) resolveTarget(id string) (string, error) {
	m.mu.Lock()
	target, ok := m.aliases[id]
	m.mu.Unlock()
	if !ok {
		target = id
	}

	u, err := url.Parse(target)
	if err != nil {
		return target, &AddressError{Value: target, Reason: "not a valid URI"}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return target, &AddressError{Value: target, Reason: "scheme must be ws or wss"}
	}
	if u.Host == "" {
		return target, &AddressError{Value: target, Reason: "missing host"}
	}
	return u.String(), nil
}

// Send appends a payload to the destination's pending queue and wakes its
// worker, spawning it on first use. Send never waits on the destination's
// progress: a slow or stalled endpoint overflows its own bounded queue,
// evicting the oldest entry, and cannot delay sends to other
// destinations. Delivery outcome (sent, queued, dropped, error) is
// reported asynchronously on the bus under corrID.
func (m *Manager) Send(ctx context.Context, dest *registry.Destination, payload, corrID string) error {
	w := m.workerFor(dest)
	if w == nil {
		return ErrManagerClosed
	}

	evicted, dropped := dest.Pending().Push(registry.PendingSend{Payload: payload, CorrID: corrID})
	if dropped {
		logger.WarnCF("wsconn", "Pending queue full, dropped oldest message",
			map[string]any{"destination": dest.ID})
		m.publishEvent(ctx, tpproto.Event{
			Event:       tpproto.EventDropped,
			Destination: dest.ID,
			Detail:      "pending queue full, dropped oldest message",
			ID:          evicted.CorrID,
		})
	}
	m.publishEvent(ctx, tpproto.Event{
		Event:       tpproto.EventQueued,
		Destination: dest.ID,
		ID:          corrID,
	})
	w.kick()
	return nil
}

func (m *Manager) publishEvent(ctx context.Context, ev tpproto.Event) {
	if err := m.bus.PublishEvent(ctx, ev); err != nil {
		logger.DebugCF("wsconn", "Event dropped, bus unavailable",
			map[string]any{"destination": ev.Destination, "event": string(ev.Event)})
	}
}

func (m *Manager) workerFor(dest *registry.Destination) *worker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	if w, ok := m.workers[dest.ID]; ok {
		return w
	}

	w := newWorker(m, dest)
	m.workers[dest.ID] = w
	m.wg.Add(1)
	go w.run(m.ctx)
	return w
}

// Remove tears down the destination's connection and deletes it from the
// registry. Queued pending sends are discarded with the entry.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	w, ok := m.workers[id]
	if ok {
		delete(m.workers, id)
	}
	m.mu.Unlock()

	if ok {
		w.stop()
	}
	return m.reg.Remove(id)
}

// Shutdown closes every open connection and cancels all retry timers. It
// blocks until every worker has exited.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	logger.InfoC("wsconn", "All connections closed")
}
