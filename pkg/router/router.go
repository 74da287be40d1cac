// Package router turns parsed host commands into registry lookups and
// connection-manager sends.
package router

import (
	"context"
	"strings"

	"github.com/korvid-labs/wsbridge/pkg/bus"
	"github.com/korvid-labs/wsbridge/pkg/logger"
	"github.com/korvid-labs/wsbridge/pkg/registry"
	"github.com/korvid-labs/wsbridge/pkg/tpproto"
)

// Sender transmits a payload toward a destination. Implemented by
// wsconn.Manager.
type Sender interface {
	Send(ctx context.Context, dest *registry.Destination, payload, corrID string) error
}

type Router struct {
	reg      *registry.Registry
	sender   Sender
	bus      *bus.Bus
	shutdown func()
}

// New builds a router. shutdown is invoked when the host sends its
// teardown command; it may be nil.
func New(reg *registry.Registry, sender Sender, b *bus.Bus, shutdown func()) *Router {
	return &Router{
		reg:      reg,
		sender:   sender,
		bus:      b,
		shutdown: shutdown,
	}
}

// Run consumes commands sequentially, one in flight at a time, preserving
// the host's command order. Returns when the bus closes, the context is
// cancelled, or the host asks to close.
func (r *Router) Run(ctx context.Context) {
	for {
		env, ok := r.bus.NextCommand(ctx)
		if !ok {
			return
		}

		switch cmd := env.Command.(type) {
		case tpproto.SendMessage:
			r.handleSend(ctx, cmd, env.ID)
		case tpproto.ClosePlugin:
			logger.InfoC("router", "Close requested by host")
			if r.shutdown != nil {
				r.shutdown()
			}
			return
		default:
			logger.WarnCF("router", "Unhandled command", map[string]any{"action": env.Command.Action()})
		}
	}
}

func (r *Router) handleSend(ctx context.Context, cmd tpproto.SendMessage, corrID string) {
	id := strings.TrimSpace(cmd.Destination)
	if id == "" || id == tpproto.DefaultFieldValue {
		r.publishEvent(ctx, tpproto.Event{
			Event:  tpproto.EventError,
			Detail: "destination is not set",
			ID:     corrID,
		})
		return
	}

	dest := r.reg.GetOrCreate(id)
	if err := r.sender.Send(ctx, dest, cmd.Message, corrID); err != nil {
		r.publishEvent(ctx, tpproto.Event{
			Event:       tpproto.EventError,
			Destination: id,
			Detail:      err.Error(),
			ID:          corrID,
		})
	}
}

func (r *Router) publishEvent(ctx context.Context, ev tpproto.Event) {
	if err := r.bus.PublishEvent(ctx, ev); err != nil {
		logger.WarnCF("router", "Event dropped, bus unavailable",
			map[string]any{"error": err.Error()})
	}
}
