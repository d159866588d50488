package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/liuscraft/orion-stream/internal/audio"
	"github.com/liuscraft/orion-stream/internal/metrics"
	"github.com/liuscraft/orion-stream/internal/protocol"
	"github.com/liuscraft/orion-stream/internal/synth"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	reg := prometheus.NewRegistry()
	adapter := synth.NewAdapter(synth.NewMockSynthesizer(), synth.AdapterConfig{Timeout: 5 * time.Second})
	srv := New(DefaultConfig(), adapter, metrics.New(reg), reg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + DefaultWSPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg protocol.Inbound) {
	t.Helper()
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func receive(t *testing.T, conn *websocket.Conn) protocol.Outbound {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.DecodeOutbound(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func TestEndToEndSession(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)

	send(t, conn, protocol.Handshake())
	send(t, conn, protocol.Text("Hello world. "))

	msg := receive(t, conn)
	if !msg.IsAudio() || msg.Alignment == nil {
		t.Fatalf("expected audio message, got %+v", msg)
	}
	if got := strings.Join(msg.Alignment.Chars, ""); got != "Hello world." {
		t.Fatalf("unexpected chars %q", got)
	}
	a := msg.Alignment
	if len(a.CharStartTimesMs) != len(a.Chars) || len(a.CharDurationsMs) != len(a.Chars) {
		t.Fatalf("alignment arrays differ in length")
	}
	for i := 1; i < len(a.CharStartTimesMs); i++ {
		if a.CharStartTimesMs[i] < a.CharStartTimesMs[i-1] {
			t.Fatalf("start times decrease: %v", a.CharStartTimesMs)
		}
	}
	pcm, err := audio.DecodeBase64(*msg.Audio)
	if err != nil {
		t.Fatalf("decode audio: %v", err)
	}
	samples := len(pcm) / audio.BytesPerSample
	if got := audio.DurationMs(samples, audio.TargetSampleRate); got < msg.DurationMs-1 || got > msg.DurationMs+1 {
		t.Fatalf("audio length %vms does not match duration %vms", got, msg.DurationMs)
	}

	send(t, conn, protocol.Close())
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal closure, got %v", err)
	}
}

func TestInvalidJSONKeepsConnectionOpen(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := receive(t, conn)
	if msg.Error != "Invalid JSON format" {
		t.Fatalf("expected invalid JSON error, got %+v", msg)
	}

	send(t, conn, protocol.Flush("Still open"))
	msg = receive(t, conn)
	if !msg.IsAudio() || strings.Join(msg.Alignment.Chars, "") != "Still open" {
		t.Fatalf("expected audio after bad frame, got %+v", msg)
	}
}

func TestProtocolViolationIsIgnored(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"text": 42}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	send(t, conn, protocol.Flush(""))
	msg := receive(t, conn)
	if !msg.IsAudio() || len(msg.Alignment.Chars) != 0 {
		t.Fatalf("expected empty flush audio, got %+v", msg)
	}
}

func TestResetRestartsTimeline(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)

	send(t, conn, protocol.Text(" "))
	send(t, conn, protocol.Text("One. Two. "))
	first := receive(t, conn)
	second := receive(t, conn)
	if *second.OffsetMs != first.DurationMs {
		t.Fatalf("second offset %v, want %v", *second.OffsetMs, first.DurationMs)
	}

	send(t, conn, protocol.Reset())
	send(t, conn, protocol.Text("Three. "))
	msg := receive(t, conn)
	if *msg.OffsetMs != 0 || msg.Generation != 1 {
		t.Fatalf("expected fresh timeline, got offset %v generation %d", *msg.OffsetMs, msg.Generation)
	}
}

func TestHealth(t *testing.T) {
	srv, ts := newTestServer(t)
	conn := dial(t, ts)
	send(t, conn, protocol.Handshake())

	deadline := time.Now().Add(2 * time.Second)
	for srv.ActiveSessions() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body.Status != "healthy" || !body.SynthesizerReady || body.ActiveConnections != 1 {
		t.Fatalf("unexpected health %+v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)
	send(t, conn, protocol.Flush("Counted."))
	receive(t, conn)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(body), "orion_stream_sessions_total") {
		t.Fatalf("sessions counter missing from /metrics")
	}
}

func TestAbnormalDisconnectReleasesSession(t *testing.T) {
	srv, ts := newTestServer(t)
	conn := dial(t, ts)
	send(t, conn, protocol.Handshake())

	deadline := time.Now().Add(2 * time.Second)
	for srv.ActiveSessions() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := conn.UnderlyingConn().Close(); err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("close: %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for srv.ActiveSessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session not released, %d active", srv.ActiveSessions())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
