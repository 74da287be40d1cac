// Package bus carries traffic between the host protocol adapter, the
// router, and the connection workers: parsed commands flow one way, status
// events flow back.
package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/korvid-labs/wsbridge/pkg/tpproto"
)

// ErrBusClosed is returned when publishing to a closed Bus.
var ErrBusClosed = errors.New("bridge bus closed")

// CommandEnvelope pairs a parsed command with the correlation id assigned
// when its line was read from the host.
type CommandEnvelope struct {
	Command tpproto.Command
	ID      string
}

type Bus struct {
	commands chan CommandEnvelope
	events   chan tpproto.Event
	done     chan struct{}
	closed   atomic.Bool
}

func New(buffer int) *Bus {
	return &Bus{
		commands: make(chan CommandEnvelope, buffer),
		events:   make(chan tpproto.Event, buffer),
		done:     make(chan struct{}),
	}
}

func (b *Bus) PublishCommand(ctx context.Context, env CommandEnvelope) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	select {
	case b.commands <- env:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) NextCommand(ctx context.Context) (CommandEnvelope, bool) {
	select {
	case env, ok := <-b.commands:
		return env, ok
	case <-b.done:
		return CommandEnvelope{}, false
	case <-ctx.Done():
		return CommandEnvelope{}, false
	}
}

func (b *Bus) PublishEvent(ctx context.Context, ev tpproto.Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	select {
	case b.events <- ev:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) NextEvent(ctx context.Context) (tpproto.Event, bool) {
	select {
	case ev, ok := <-b.events:
		return ev, ok
	case <-b.done:
		return tpproto.Event{}, false
	case <-ctx.Done():
		return tpproto.Event{}, false
	}
}

func (b *Bus) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.done)
	}
}
