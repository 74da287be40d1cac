// Package hostio is the host protocol adapter: it reads line-delimited
// JSON commands from the host on one channel and writes status events back
// on the other, one object per line, UTF-8, newline-terminated.
package hostio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/korvid-labs/wsbridge/pkg/bus"
	"github.com/korvid-labs/wsbridge/pkg/logger"
	"github.com/korvid-labs/wsbridge/pkg/tpproto"
)

// Adapter bridges the host's standard channels and the command/event bus.
type Adapter struct {
	r   *bufio.Reader
	w   io.Writer
	wmu sync.Mutex
	bus *bus.Bus
}

func New(r io.Reader, w io.Writer, b *bus.Bus) *Adapter {
	return &Adapter{
		r:   bufio.NewReader(r),
		w:   w,
		bus: b,
	}
}

// RunReader consumes host commands until the host closes its channel.
// Parsing is strictly line-buffered: a line without a terminating newline
// is never dispatched. A malformed command yields one error event and the
// loop continues; nothing on this path is fatal.
func (a *Adapter) RunReader(ctx context.Context) error {
	for {
		line, err := a.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Any partial trailing line is discarded, not dispatched.
				logger.InfoC("hostio", "Host channel closed")
				return nil
			}
			return fmt.Errorf("read host channel: %w", err)
		}

		a.handleLine(ctx, line)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (a *Adapter) handleLine(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	corrID := uuid.NewString()
	cmd, err := tpproto.ParseCommand([]byte(line))
	if err != nil {
		logger.WarnCF("hostio", "Rejected host command", map[string]any{"error": err.Error()})
		a.publishEvent(ctx, tpproto.Event{
			Event:  tpproto.EventError,
			Detail: err.Error(),
			ID:     corrID,
		})
		return
	}

	logger.DebugCF("hostio", "Host command accepted",
		map[string]any{"action": cmd.Action(), "id": corrID})
	if err := a.bus.PublishCommand(ctx, bus.CommandEnvelope{Command: cmd, ID: corrID}); err != nil {
		logger.WarnCF("hostio", "Command dropped, bus unavailable",
			map[string]any{"error": err.Error()})
	}
}

// RunWriter serializes bus events onto the host channel. Returns when the
// bus closes or the context is cancelled.
func (a *Adapter) RunWriter(ctx context.Context) {
	for {
		ev, ok := a.bus.NextEvent(ctx)
		if !ok {
			return
		}
		if err := a.WriteEvent(ev); err != nil {
			logger.ErrorCF("hostio", "Failed to write event to host",
				map[string]any{"error": err.Error()})
		}
	}
}

// WriteEvent writes one event line. Safe for concurrent use.
func (a *Adapter) WriteEvent(ev tpproto.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	a.wmu.Lock()
	defer a.wmu.Unlock()
	_, err = a.w.Write(append(data, '\n'))
	return err
}

func (a *Adapter) publishEvent(ctx context.Context, ev tpproto.Event) {
	if err := a.bus.PublishEvent(ctx, ev); err != nil {
		logger.WarnCF("hostio", "Event dropped, bus unavailable",
			map[string]any{"error": err.Error()})
	}
}
