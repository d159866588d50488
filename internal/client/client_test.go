package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/liuscraft/orion-stream/internal/protocol"
	"github.com/liuscraft/orion-stream/internal/server"
	"github.com/liuscraft/orion-stream/internal/synth"
)

type inbox struct {
	mu   sync.Mutex
	msgs []protocol.Outbound
}

func (b *inbox) add(m protocol.Outbound) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, m)
}

func (b *inbox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClientAgainstServer(t *testing.T) {
	adapter := synth.NewAdapter(synth.NewMockSynthesizer(), synth.AdapterConfig{})
	srv := server.New(server.DefaultConfig(), adapter, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Close()

	var box inbox
	c := New(DefaultConfig(wsURL(ts, server.DefaultWSPath)), box.add)
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	if err := c.SendText("Hello world. "); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := c.Flush("And goodbye"); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	waitFor(t, func() bool { return box.len() == 2 })

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run should end cleanly on normal closure, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after close")
	}

	box.mu.Lock()
	defer box.mu.Unlock()
	first, second := box.msgs[0], box.msgs[1]
	if strings.Join(first.Alignment.Chars, "") != "Hello world." {
		t.Fatalf("unexpected first chunk %q", first.Alignment.Chars)
	}
	if *second.OffsetMs != *first.OffsetMs+first.DurationMs {
		t.Fatalf("second offset %v, want %v", *second.OffsetMs, *first.OffsetMs+first.DurationMs)
	}
}

func TestClientReconnectsAfterDrop(t *testing.T) {
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := conns.Add(1)
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		if n == 1 {
			// drop without a close frame
			_ = conn.UnderlyingConn().Close()
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_, _, _ = conn.ReadMessage()
	}))
	defer ts.Close()

	cfg := DefaultConfig(wsURL(ts, "/"))
	cfg.InitialInterval = 10 * time.Millisecond
	cfg.MaxInterval = 20 * time.Millisecond
	c := New(cfg, nil)

	var reconnects atomic.Int32
	c.OnReconnect(func() { reconnects.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if conns.Load() != 2 || reconnects.Load() != 1 {
		t.Fatalf("expected one reconnect, got conns=%d reconnects=%d", conns.Load(), reconnects.Load())
	}
}

func TestClientNoReconnectReportsAbnormalClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = conn.ReadMessage()
		_ = conn.UnderlyingConn().Close()
	}))
	defer ts.Close()

	cfg := DefaultConfig(wsURL(ts, "/"))
	cfg.MaxTries = 0
	c := New(cfg, nil)
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Run(ctx); !errors.Is(err, ErrAbnormalClose) {
		t.Fatalf("expected ErrAbnormalClose, got %v", err)
	}
}

func TestClientDialGivesUp(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	cfg := DefaultConfig(wsURL(ts, "/"))
	cfg.InitialInterval = time.Millisecond
	c := New(cfg, nil)
	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected dial failure")
	}
	if err := c.SendText("x"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
