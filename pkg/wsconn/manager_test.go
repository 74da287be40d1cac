package wsconn

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korvid-labs/wsbridge/pkg/bus"
	"github.com/korvid-labs/wsbridge/pkg/registry"
	"github.com/korvid-labs/wsbridge/pkg/tpproto"
)

func testOptions() Options {
	return Options{
		HandshakeTimeout: 2 * time.Second,
		WriteTimeout:     2 * time.Second,
		BackoffBase:      20 * time.Millisecond,
		BackoffMax:       200 * time.Millisecond,
	}
}

// wsServer accepts websocket connections, records received text frames,
// and replies "pong" to "ping".
type wsServer struct {
	srv      *httptest.Server
	url      string
	received chan string
	conns    chan *websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{
		received: make(chan string, 64),
		conns:    make(chan *websocket.Conn, 8),
	}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.received <- string(data)
			if string(data) == "ping" {
				conn.WriteMessage(websocket.TextMessage, []byte("pong"))
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	s.url = "ws" + strings.TrimPrefix(s.srv.URL, "http")
	return s
}

// waitEvent drains bus events until one of the wanted kind arrives.
func waitEvent(t *testing.T, b *bus.Bus, kind tpproto.EventKind) tpproto.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		ev, ok := b.NextEvent(ctx)
		if !ok {
			t.Fatalf("timed out waiting for %q event", kind)
		}
		if ev.Event == kind {
			return ev
		}
	}
}

func recv(t *testing.T, ch chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server to receive a message")
		return ""
	}
}

func TestFirstSendConnectsThenDelivers(t *testing.T) {
	s := newWSServer(t)
	b := bus.New(256)
	reg := registry.New(8)
	m := NewManager(testOptions(), reg, b)
	defer m.Shutdown()

	dest := reg.GetOrCreate(s.url)
	require.NoError(t, m.Send(context.Background(), dest, "hello", "c1"))

	// Queued first (no live connection), then flushed once the handshake
	// completes.
	q := waitEvent(t, b, tpproto.EventQueued)
	assert.Equal(t, "c1", q.ID)
	waitEvent(t, b, tpproto.EventConnected)
	sent := waitEvent(t, b, tpproto.EventSent)
	assert.Equal(t, "c1", sent.ID)

	assert.Equal(t, "hello", recv(t, s.received))
	assert.Equal(t, registry.Open, dest.State())
}

func TestSendsDeliveredInOrder(t *testing.T) {
	s := newWSServer(t)
	b := bus.New(256)
	reg := registry.New(64)
	m := NewManager(testOptions(), reg, b)
	defer m.Shutdown()

	dest := reg.GetOrCreate(s.url)

	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, m.Send(context.Background(), dest, fmt.Sprintf("m%d", i), fmt.Sprintf("c%d", i)))
	}

	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprintf("m%d", i), recv(t, s.received))
	}
}

func TestInvalidTargetReportedOnce(t *testing.T) {
	b := bus.New(256)
	reg := registry.New(8)
	m := NewManager(testOptions(), reg, b)
	defer m.Shutdown()

	dest := reg.GetOrCreate("http://not-a-websocket")
	require.NoError(t, m.Send(context.Background(), dest, "one", "c1"))

	waitEvent(t, b, tpproto.EventQueued)
	ev := waitEvent(t, b, tpproto.EventError)
	assert.Contains(t, ev.Detail, "scheme")

	// A second send retries resolution but must not re-report the same
	// offending value.
	require.NoError(t, m.Send(context.Background(), dest, "two", "c2"))
	waitEvent(t, b, tpproto.EventQueued)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	for {
		extra, ok := b.NextEvent(ctx)
		if !ok {
			break
		}
		assert.NotEqual(t, tpproto.EventError, extra.Event,
			"same invalid address surfaced twice")
	}
	assert.Equal(t, registry.Failed, dest.State())
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	const capacity = 5
	b := bus.New(256)
	reg := registry.New(capacity)
	m := NewManager(testOptions(), reg, b)
	defer m.Shutdown()

	// Invalid address keeps the destination Failed with no retry, so
	// every send lands in the pending queue.
	dest := reg.GetOrCreate("not a uri")
	for i := 0; i < capacity+1; i++ {
		require.NoError(t, m.Send(context.Background(), dest, fmt.Sprintf("m%d", i), fmt.Sprintf("c%d", i)))
	}

	dropped := waitEvent(t, b, tpproto.EventDropped)
	assert.Equal(t, "c0", dropped.ID, "oldest pending send should be the one dropped")

	// Exactly one drop for K+1 sends into a capacity-K queue.
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	drops := 1
	for {
		ev, ok := b.NextEvent(ctx)
		if !ok {
			break
		}
		if ev.Event == tpproto.EventDropped {
			drops++
		}
	}
	assert.Equal(t, 1, drops)
}

func TestReconnectAfterRemoteClose(t *testing.T) {
	s := newWSServer(t)
	b := bus.New(256)
	reg := registry.New(8)
	m := NewManager(testOptions(), reg, b)
	defer m.Shutdown()

	dest := reg.GetOrCreate(s.url)
	require.NoError(t, m.Send(context.Background(), dest, "first", "c1"))
	waitEvent(t, b, tpproto.EventConnected)
	waitEvent(t, b, tpproto.EventSent)

	// Drop the connection server-side; the worker should notice, report
	// it, and reconnect on its own.
	serverConn := <-s.conns
	serverConn.Close()

	waitEvent(t, b, tpproto.EventDisconnected)
	waitEvent(t, b, tpproto.EventConnected)

	require.NoError(t, m.Send(context.Background(), dest, "second", "c2"))
	waitEvent(t, b, tpproto.EventSent)
	// First frame was consumed before the drop.
	_ = recv(t, s.received)
	assert.Equal(t, "second", recv(t, s.received))
}

func TestInboundFramesSurfaceAsReceivedEvents(t *testing.T) {
	s := newWSServer(t)
	b := bus.New(256)
	reg := registry.New(8)
	m := NewManager(testOptions(), reg, b)
	defer m.Shutdown()

	dest := reg.GetOrCreate(s.url)
	require.NoError(t, m.Send(context.Background(), dest, "ping", "c1"))

	ev := waitEvent(t, b, tpproto.EventReceived)
	assert.Equal(t, "pong", ev.Detail)
	assert.Equal(t, s.url, ev.Destination)
}

func TestAliasResolution(t *testing.T) {
	s := newWSServer(t)
	b := bus.New(256)
	reg := registry.New(8)
	m := NewManager(testOptions(), reg, b)
	defer m.Shutdown()

	m.UpdateAliases(map[string]string{"deck": s.url})

	dest := reg.GetOrCreate("deck")
	require.NoError(t, m.Send(context.Background(), dest, "hello", "c1"))

	waitEvent(t, b, tpproto.EventSent)
	assert.Equal(t, "hello", recv(t, s.received))
}

// newStalledServer accepts the handshake and then never reads, so client
// writes back up once the socket buffers fill.
func newStalledServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStalledEndpointDoesNotBlockOthers(t *testing.T) {
	stalledURL := newStalledServer(t)
	healthy := newWSServer(t)
	b := bus.New(256)
	reg := registry.New(4)
	m := NewManager(testOptions(), reg, b)
	defer m.Shutdown()

	slow := reg.GetOrCreate(stalledURL)
	require.NoError(t, m.Send(context.Background(), slow, "warmup", "s0"))
	waitEvent(t, b, tpproto.EventConnected)

	// A frame far larger than the socket buffers parks the worker's write
	// until its deadline. Sends must not park with it.
	big := strings.Repeat("x", 8<<20)
	start := time.Now()
	require.NoError(t, m.Send(context.Background(), slow, big, "s1"))
	for i := 0; i < 32; i++ {
		require.NoError(t, m.Send(context.Background(), slow, fmt.Sprintf("m%d", i), fmt.Sprintf("s%d", i+2)))
	}

	fast := reg.GetOrCreate(healthy.url)
	require.NoError(t, m.Send(context.Background(), fast, "hello", "h1"))
	require.Less(t, time.Since(start), time.Second,
		"send path waited on another destination's stalled write")

	assert.Equal(t, "hello", recv(t, healthy.received))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for {
		ev, ok := b.NextEvent(ctx)
		if !ok {
			t.Fatal("healthy destination was not served while the other stalled")
		}
		if ev.Event == tpproto.EventSent && ev.Destination == healthy.url {
			return
		}
	}
}

func TestFlushFailureRedeliversTailInOrder(t *testing.T) {
	received := make(chan string, 16)
	release := make(chan struct{})
	var mu sync.Mutex
	connCount := 0
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		mu.Lock()
		connCount++
		first := connCount == 1
		mu.Unlock()
		if first {
			// Take one frame, then stop reading so the next large write
			// times out client-side.
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- string(data)
			<-release
			return
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- string(data)
		}
	}))
	defer srv.Close()
	defer close(release)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	opts := testOptions()
	opts.WriteTimeout = 300 * time.Millisecond
	b := bus.New(256)
	reg := registry.New(8)
	m := NewManager(opts, reg, b)
	defer m.Shutdown()

	dest := reg.GetOrCreate(url)
	big := strings.Repeat("y", 8<<20)
	require.NoError(t, m.Send(context.Background(), dest, "m1", "c1"))
	require.NoError(t, m.Send(context.Background(), dest, big, "c2"))
	require.NoError(t, m.Send(context.Background(), dest, "m3", "c3"))
	require.NoError(t, m.Send(context.Background(), dest, "m4", "c4"))

	// The first connection delivers m1 and stalls on the large frame. The
	// flush must halt there, keep the in-flight frame at the head, and
	// redeliver the whole tail in order on the next connection.
	assert.Equal(t, "m1", recv(t, received))
	waitEvent(t, b, tpproto.EventDisconnected)
	waitEvent(t, b, tpproto.EventConnected)

	assert.Equal(t, big, recv(t, received))
	assert.Equal(t, "m3", recv(t, received))
	assert.Equal(t, "m4", recv(t, received))

	for _, want := range []string{"c2", "c3", "c4"} {
		assert.Equal(t, want, waitEvent(t, b, tpproto.EventSent).ID)
	}
}

func TestRemoveClosesConnection(t *testing.T) {
	s := newWSServer(t)
	b := bus.New(256)
	reg := registry.New(8)
	m := NewManager(testOptions(), reg, b)
	defer m.Shutdown()

	dest := reg.GetOrCreate(s.url)
	require.NoError(t, m.Send(context.Background(), dest, "hi", "c1"))
	waitEvent(t, b, tpproto.EventSent)

	assert.True(t, m.Remove(s.url))
	assert.False(t, m.Remove(s.url))
	assert.Empty(t, reg.List())
}
