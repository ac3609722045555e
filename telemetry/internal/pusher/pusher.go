package pusher

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/grindscale/devmock/internal/connid"
	"github.com/grindscale/devmock/internal/metrics"
	"github.com/grindscale/devmock/internal/mirror"
	"github.com/grindscale/devmock/telemetry/internal/sequence"
)

const (
	// writeTimeout is the deadline for a single frame write.
	writeTimeout = 10 * time.Second

	// readLimit caps inbound messages at 1 MiB. Clients are not expected to
	// send any, but oversized ones are discarded rather than closing with 1009.
	readLimit = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dev mock: the UI is usually served from a different origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Cadence is the pause between frames. Wrap applies after the last frame of
// the sequence, Frame everywhere else.
type Cadence struct {
	Frame time.Duration
	Wrap  time.Duration
}

// Pusher streams the telemetry sequence to every WebSocket client that
// connects. Each connection gets its own cursor starting at frame 0.
type Pusher struct {
	seq     *sequence.Sequence
	cadence atomic.Pointer[Cadence]
	mirror  mirror.Publisher

	framesSent  *metrics.Counter
	cycles      *metrics.Counter
	connections *metrics.Gauge

	done     chan struct{}
	doneOnce sync.Once

	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

// New creates a Pusher for seq at cadence c. Frames are also handed to pub;
// pass mirror.Nop{} to disable mirroring. Counters are registered on reg.
func New(seq *sequence.Sequence, c Cadence, pub mirror.Publisher, reg *metrics.Registry) *Pusher {
	if pub == nil {
		pub = mirror.Nop{}
	}
	p := &Pusher{
		seq:         seq,
		mirror:      pub,
		framesSent:  reg.Counter("devmock_telemetry_frames_sent_total", "Telemetry frames written to WebSocket clients."),
		cycles:      reg.Counter("devmock_telemetry_cycles_total", "Complete passes through the telemetry sequence."),
		connections: reg.Gauge("devmock_telemetry_connections", "Currently connected telemetry clients."),
		done:        make(chan struct{}),
		conns:       make(map[*websocket.Conn]struct{}),
	}
	p.SetCadence(c)
	return p
}

// SetCadence replaces the frame intervals. Running connections pick up the
// new values on their next pause.
func (p *Pusher) SetCadence(c Cadence) {
	p.cadence.Store(&c)
}

// Cadence returns the intervals currently in effect.
func (p *Pusher) Cadence() Cadence {
	return *p.cadence.Load()
}

// Run blocks until ctx is cancelled, then tells every connection to close.
func (p *Pusher) Run(ctx context.Context) {
	<-ctx.Done()
	p.doneOnce.Do(func() { close(p.done) })
}

// Count returns the number of connected clients.
func (p *Pusher) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// ServeHTTP upgrades the request and pushes frames until the client goes away
// or the Pusher shuts down.
func (p *Pusher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}
	defer conn.Close()

	log := connid.Logger(r)
	p.register(conn)
	defer p.unregister(conn)
	log.Info("telemetry: client connected")

	readErr := make(chan error, 1)
	go func() { readErr <- drain(conn) }()

	p.push(conn, log, readErr)
}

// push is the per-connection send loop.
func (p *Pusher) push(conn *websocket.Conn, log *slog.Logger, readErr <-chan error) {
	cur := sequence.NewCursor(p.seq)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-p.done:
			deadline := time.Now().Add(writeTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			conn.WriteControl(websocket.CloseMessage, msg, deadline) //nolint:errcheck
			log.Info("telemetry: closing connection for shutdown")
			return
		case err := <-readErr:
			logClosed(log, err)
			return
		case <-timer.C:
		}

		data, err := json.Marshal(cur.Current())
		if err != nil {
			log.Error("telemetry: encode frame", "pos", cur.Pos(), "err", err)
			return
		}

		conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			// The read side usually knows why; prefer its close code.
			select {
			case rerr := <-readErr:
				logClosed(log, rerr)
			default:
				logClosed(log, err)
			}
			return
		}
		p.framesSent.Inc()
		log.Debug("telemetry: frame sent", "pos", cur.Pos(), "frame", string(data))

		if err := p.mirror.Publish(data); err != nil {
			log.Warn("telemetry: mirror publish failed", "err", err)
		}

		c := p.Cadence()
		pause := c.Frame
		if cur.Advance() {
			pause = c.Wrap
			p.cycles.Inc()
		}
		timer.Reset(pause)
	}
}

func (p *Pusher) register(conn *websocket.Conn) {
	p.mu.Lock()
	p.conns[conn] = struct{}{}
	p.mu.Unlock()
	p.connections.Inc()
}

func (p *Pusher) unregister(conn *websocket.Conn) {
	p.mu.Lock()
	_, ok := p.conns[conn]
	delete(p.conns, conn)
	p.mu.Unlock()
	if ok {
		p.connections.Dec()
	}
}

// drain reads and discards client messages so control frames (close, ping)
// are processed. It returns the error that ended the connection.
func drain(conn *websocket.Conn) error {
	conn.SetReadLimit(readLimit)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return err
		}
	}
}

// logClosed reports how a connection ended. A normal or going-away close from
// the client is routine; anything else is logged as a warning.
func logClosed(log *slog.Logger, err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Info("telemetry: client disconnected, stopping data push")
		return
	}
	log.Warn("telemetry: connection ended", "err", err)
}
