package wsconn

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/korvid-labs/wsbridge/pkg/logger"
	"github.com/korvid-labs/wsbridge/pkg/registry"
	"github.com/korvid-labs/wsbridge/pkg/tpproto"
)

type dialResult struct {
	conn *websocket.Conn
	err  error
}

type readEvent struct {
	conn *websocket.Conn
	data []byte
	err  error
}

// worker is the exclusive owner of one destination's connection state.
// The socket and the retry timer are mutated only from its run loop.
// Payloads reach it through the destination's pending queue; the manager
// appends and kicks, so a stalled write here never backs up into the
// send path of other destinations.
type worker struct {
	mgr  *Manager
	dest *registry.Destination

	kickc    chan struct{}
	dialc    chan dialResult
	readc    chan readEvent
	stopc    chan struct{}
	stopOnce sync.Once

	conn    *websocket.Conn
	retry   *time.Timer
	backoff *Backoff

	// reportedBadTarget is the last expanded target value already surfaced
	// as an AddressError; each offending value is reported once.
	reportedBadTarget string
	// dialFailNotified suppresses repeat connect-failure events between
	// successful opens, so retries don't spam the host.
	dialFailNotified bool
}

func newWorker(m *Manager, dest *registry.Destination) *worker {
	return &worker{
		mgr:     m,
		dest:    dest,
		kickc:   make(chan struct{}, 1),
		dialc:   make(chan dialResult, 1),
		readc:   make(chan readEvent, 16),
		stopc:   make(chan struct{}),
		backoff: NewBackoff(m.opts.BackoffBase, m.opts.BackoffMax),
	}
}

func (w *worker) stop() {
	w.stopOnce.Do(func() { close(w.stopc) })
}

// kick wakes the run loop after the pending queue gained work. Buffered
// by one, so the signal is never lost and never blocks the sender.
func (w *worker) kick() {
	select {
	case w.kickc <- struct{}{}:
	default:
	}
}

func (w *worker) run(ctx context.Context) {
	defer w.mgr.wg.Done()

	for {
		var retryC <-chan time.Time
		if w.retry != nil {
			retryC = w.retry.C
		}

		select {
		case <-ctx.Done():
			w.teardown()
			return
		case <-w.stopc:
			w.teardown()
			return
		case <-w.kickc:
			w.dispatch(ctx)
		case res := <-w.dialc:
			w.handleDialResult(ctx, res)
		case ev := <-w.readc:
			w.handleRead(ctx, ev)
		case <-retryC:
			w.retry = nil
			w.connect(ctx)
		}
	}
}

// dispatch reacts to new pending work: deliver if the connection is open,
// start one if there is none and no retry is already scheduled, otherwise
// leave it to the in-flight handshake or the timer.
func (w *worker) dispatch(ctx context.Context) {
	switch w.dest.State() {
	case registry.Open:
		w.flush(ctx)
	case registry.Connecting, registry.Closing:
	default: // Disconnected, Failed
		if w.retry == nil {
			w.connect(ctx)
		}
	}
}

// connect resolves the target and starts a handshake in a helper goroutine
// so the worker stays responsive while dialing.
func (w *worker) connect(ctx context.Context) {
	target, err := w.mgr.resolveTarget(w.dest.ID)
	if err != nil {
		w.dest.SetState(registry.Failed)
		w.dest.SetLastError(err)
		if w.reportedBadTarget != target {
			w.reportedBadTarget = target
			logger.WarnCF("wsconn", "Destination does not resolve to a websocket endpoint",
				map[string]any{"destination": w.dest.ID, "error": err.Error()})
			w.event(ctx, tpproto.EventError, "", err.Error())
		}
		// No retry timer: a structurally invalid address is retried only
		// when the host attempts another send.
		return
	}
	w.reportedBadTarget = ""

	w.dest.SetState(registry.Connecting)
	logger.DebugCF("wsconn", "Connecting",
		map[string]any{"destination": w.dest.ID, "target": target})

	dialer := websocket.Dialer{HandshakeTimeout: w.mgr.opts.HandshakeTimeout}
	go func() {
		conn, resp, err := dialer.DialContext(ctx, target, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		select {
		case w.dialc <- dialResult{conn: conn, err: err}:
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
		}
	}()
}

func (w *worker) handleDialResult(ctx context.Context, res dialResult) {
	if res.err != nil {
		w.dest.SetState(registry.Failed)
		w.dest.SetLastError(res.err)
		if !w.dialFailNotified {
			w.dialFailNotified = true
			w.event(ctx, tpproto.EventError, "", "connect failed: "+res.err.Error())
		}
		w.scheduleRetry()
		return
	}

	w.conn = res.conn
	w.dest.SetState(registry.Open)
	w.dest.ClearLastError()
	w.backoff.Reset()
	w.dialFailNotified = false

	logger.InfoCF("wsconn", "Connection open",
		map[string]any{"destination": w.dest.ID, "pending": w.dest.Pending().Len()})
	w.event(ctx, tpproto.EventConnected, "", "")

	go w.readPump(ctx, res.conn)
	w.flush(ctx)
}

// flush drains the pending queue in FIFO order. A failure halts the flush,
// puts the in-flight message back at the head so the tail stays intact,
// and fails the connection.
func (w *worker) flush(ctx context.Context) {
	for {
		item, ok := w.dest.Pending().Pop()
		if !ok {
			return
		}
		if err := w.write(item.Payload); err != nil {
			w.dest.Pending().PushFront(item)
			w.fail(ctx, err)
			return
		}
		w.event(ctx, tpproto.EventSent, item.CorrID, "")
	}
}

func (w *worker) handleRead(ctx context.Context, ev readEvent) {
	if ev.conn != w.conn {
		// Pump of an already-replaced connection.
		return
	}
	if ev.err != nil {
		w.fail(ctx, ev.err)
		return
	}
	w.event(ctx, tpproto.EventReceived, "", string(ev.data))
}

// fail transitions Open/Connecting to Failed after a transport error and
// schedules a backoff retry. Pending sends survive for the next connection.
func (w *worker) fail(ctx context.Context, err error) {
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.dest.SetState(registry.Failed)
	w.dest.SetLastError(err)

	logger.WarnCF("wsconn", "Connection failed",
		map[string]any{"destination": w.dest.ID, "error": err.Error()})
	w.event(ctx, tpproto.EventDisconnected, "", err.Error())
	w.scheduleRetry()
}

func (w *worker) scheduleRetry() {
	if w.retry != nil {
		w.retry.Stop()
	}
	delay := w.backoff.Next()
	logger.DebugCF("wsconn", "Reconnect scheduled",
		map[string]any{"destination": w.dest.ID, "delay": delay.String()})
	w.retry = time.NewTimer(delay)
}

func (w *worker) write(payload string) error {
	if t := w.mgr.opts.WriteTimeout; t > 0 {
		w.conn.SetWriteDeadline(time.Now().Add(t))
	}
	return w.conn.WriteMessage(websocket.TextMessage, []byte(payload))
}

func (w *worker) readPump(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		ev := readEvent{conn: conn, data: data, err: err}
		select {
		case w.readc <- ev:
		case <-ctx.Done():
			return
		case <-w.stopc:
			return
		}
		if err != nil {
			return
		}
	}
}

// teardown runs on shutdown or removal: close the socket politely, stop
// the retry timer, leave the destination Disconnected. Never blocks on a
// timer.
func (w *worker) teardown() {
	if w.retry != nil {
		w.retry.Stop()
		w.retry = nil
	}
	if w.conn != nil {
		w.dest.SetState(registry.Closing)
		deadline := time.Now().Add(time.Second)
		w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		w.conn.Close()
		w.conn = nil
	}
	w.dest.SetState(registry.Disconnected)
}

func (w *worker) event(ctx context.Context, kind tpproto.EventKind, corrID, detail string) {
	ev := tpproto.Event{
		Event:       kind,
		Destination: w.dest.ID,
		Detail:      detail,
		ID:          corrID,
	}
	if err := w.mgr.bus.PublishEvent(ctx, ev); err != nil {
		logger.DebugCF("wsconn", "Event dropped, bus unavailable",
			map[string]any{"destination": w.dest.ID, "event": string(kind)})
	}
}
