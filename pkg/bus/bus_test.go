package bus

import (
	"context"
	"testing"

	"github.com/korvid-labs/wsbridge/pkg/tpproto"
)

func TestPublishConsumeCommand(t *testing.T) {
	b := New(4)
	ctx := context.Background()

	env := CommandEnvelope{
		Command: tpproto.SendMessage{Destination: "ws://x", Message: "hi"},
		ID:      "c1",
	}
	if err := b.PublishCommand(ctx, env); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, ok := b.NextCommand(ctx)
	if !ok {
		t.Fatal("expected a command")
	}
	if got.ID != "c1" {
		t.Errorf("expected correlation id c1, got %q", got.ID)
	}
	if _, ok := got.Command.(tpproto.SendMessage); !ok {
		t.Errorf("expected SendMessage, got %T", got.Command)
	}
}

func TestPublishEventAfterClose(t *testing.T) {
	b := New(1)
	b.Close()

	err := b.PublishEvent(context.Background(), tpproto.Event{Event: tpproto.EventSent})
	if err != ErrBusClosed {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}

	if _, ok := b.NextEvent(context.Background()); ok {
		t.Error("expected no event from closed bus")
	}
}

func TestNextCommandCancelled(t *testing.T) {
	b := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := b.NextCommand(ctx); ok {
		t.Error("expected no command after cancellation")
	}
}
