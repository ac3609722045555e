package pusher_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/grindscale/devmock/internal/metrics"
	"github.com/grindscale/devmock/telemetry/internal/pusher"
	"github.com/grindscale/devmock/telemetry/internal/sequence"
)

var fastCadence = pusher.Cadence{Frame: 5 * time.Millisecond, Wrap: 20 * time.Millisecond}

// --- helpers ----------------------------------------------------------------

type recordingPublisher struct {
	mu       sync.Mutex
	payloads []string
}

func (r *recordingPublisher) Publish(b []byte) error {
	r.mu.Lock()
	r.payloads = append(r.payloads, string(b))
	r.mu.Unlock()
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

// startPusher serves a Pusher from an httptest server and returns its ws:// URL.
func startPusher(t *testing.T, c pusher.Cadence, pub *recordingPublisher) (string, *pusher.Pusher, *metrics.Registry, context.CancelFunc) {
	t.Helper()

	reg := metrics.NewRegistry()
	var p *pusher.Pusher
	if pub != nil {
		p = pusher.New(sequence.Default(), c, pub, reg)
	} else {
		p = pusher.New(sequence.Default(), c, nil, reg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	srv := httptest.NewServer(p)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), p, reg, cancel
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if typ != websocket.TextMessage {
		t.Fatalf("message type: got %d, want text", typ)
	}
	return string(msg)
}

func wireFrames(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, f := range sequence.Default().Frames() {
		b, err := json.Marshal(f)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		out = append(out, string(b))
	}
	return out
}

func closeNormally(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("write close: %v", err)
	}
}

// --- tests ------------------------------------------------------------------

func TestPusher_FirstThirteenFramesThenCycle(t *testing.T) {
	wsURL, _, _, _ := startPusher(t, fastCadence, nil)
	conn := dial(t, wsURL)

	want := wireFrames(t)
	for i, w := range want {
		if got := readFrame(t, conn); got != w {
			t.Fatalf("frame %d: got %s, want %s", i, got, w)
		}
	}
	if got := readFrame(t, conn); got != want[0] {
		t.Errorf("frame 13: got %s, want first frame %s", got, want[0])
	}
}

func TestPusher_LongerPauseAfterFinalize(t *testing.T) {
	c := pusher.Cadence{Frame: 20 * time.Millisecond, Wrap: 200 * time.Millisecond}
	wsURL, _, _, _ := startPusher(t, c, nil)
	conn := dial(t, wsURL)

	const n = 14
	stamps := make([]time.Time, n)
	frames := make([]string, n)
	for i := 0; i < n; i++ {
		frames[i] = readFrame(t, conn)
		stamps[i] = time.Now()
	}

	for i := 1; i < n; i++ {
		gap := stamps[i].Sub(stamps[i-1])
		if frames[i-1] == `{"finalize":true}` {
			if gap < 150*time.Millisecond {
				t.Errorf("gap after finalize: got %v, want ~200ms", gap)
			}
			continue
		}
		if gap >= 150*time.Millisecond {
			t.Errorf("gap before frame %d: got %v, want ~20ms", i, gap)
		}
	}
}

func TestPusher_ReconnectRestartsAtZero(t *testing.T) {
	wsURL, _, _, _ := startPusher(t, fastCadence, nil)
	want := wireFrames(t)

	first := dial(t, wsURL)
	for i := 0; i < 4; i++ {
		readFrame(t, first)
	}
	closeNormally(t, first)
	first.Close()

	second := dial(t, wsURL)
	if got := readFrame(t, second); got != want[0] {
		t.Errorf("first frame after reconnect: got %s, want %s", got, want[0])
	}
}

func TestPusher_CountDropsOnNormalClose(t *testing.T) {
	wsURL, p, _, _ := startPusher(t, fastCadence, nil)

	conn := dial(t, wsURL)
	readFrame(t, conn)
	if n := p.Count(); n != 1 {
		t.Fatalf("Count: got %d, want 1", n)
	}

	closeNormally(t, conn)
	time.Sleep(100 * time.Millisecond)

	if n := p.Count(); n != 0 {
		t.Errorf("Count after close: got %d, want 0", n)
	}
}

func TestPusher_IndependentClients(t *testing.T) {
	wsURL, p, _, _ := startPusher(t, fastCadence, nil)
	want := wireFrames(t)

	a := dial(t, wsURL)
	for i := 0; i < 5; i++ {
		readFrame(t, a)
	}
	b := dial(t, wsURL)
	if got := readFrame(t, b); got != want[0] {
		t.Errorf("second client first frame: got %s, want %s", got, want[0])
	}
	if n := p.Count(); n != 2 {
		t.Errorf("Count: got %d, want 2", n)
	}
}

func TestPusher_ShutdownSendsGoingAway(t *testing.T) {
	wsURL, p, _, cancel := startPusher(t, fastCadence, nil)
	conn := dial(t, wsURL)
	readFrame(t, conn)

	cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
			t.Fatalf("read after shutdown: got %v, want close 1001", err)
		}
		break
	}

	time.Sleep(50 * time.Millisecond)
	if n := p.Count(); n != 0 {
		t.Errorf("Count after shutdown: got %d, want 0", n)
	}
}

func TestPusher_ClientMessagesDoNotStopStream(t *testing.T) {
	wsURL, _, _, _ := startPusher(t, fastCadence, nil)
	conn := dial(t, wsURL)
	readFrame(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 64*1024))); err != nil {
		t.Fatalf("write: %v", err)
	}
	for i := 0; i < 3; i++ {
		readFrame(t, conn)
	}
}

func TestPusher_SetCadence(t *testing.T) {
	p := pusher.New(sequence.Default(), fastCadence, nil, metrics.NewRegistry())
	next := pusher.Cadence{Frame: time.Second, Wrap: 3 * time.Second}
	p.SetCadence(next)
	if got := p.Cadence(); got != next {
		t.Errorf("Cadence: got %+v, want %+v", got, next)
	}
}

func TestPusher_CountsAndMirrorsFrames(t *testing.T) {
	pub := &recordingPublisher{}
	wsURL, _, reg, _ := startPusher(t, fastCadence, pub)
	conn := dial(t, wsURL)

	for i := 0; i < 13; i++ {
		readFrame(t, conn)
	}

	var sent, cycles float64
	for _, mf := range reg.Gather() {
		switch mf.GetName() {
		case "devmock_telemetry_frames_sent_total":
			sent = mf.GetMetric()[0].GetCounter().GetValue()
		case "devmock_telemetry_cycles_total":
			cycles = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	if sent < 13 {
		t.Errorf("frames_sent_total: got %v, want >= 13", sent)
	}
	if cycles < 1 {
		t.Errorf("cycles_total: got %v, want >= 1", cycles)
	}
	if n := pub.count(); n < 13 {
		t.Errorf("mirrored frames: got %d, want >= 13", n)
	}
}

func TestPusher_NonWebSocketRequest_Returns400(t *testing.T) {
	p := pusher.New(sequence.Default(), fastCadence, nil, metrics.NewRegistry())
	srv := httptest.NewServer(p)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
