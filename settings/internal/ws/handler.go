package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/grindscale/devmock/internal/connid"
	"github.com/grindscale/devmock/internal/metrics"
	"github.com/grindscale/devmock/internal/mirror"
	"github.com/grindscale/devmock/settings/internal/command"
	"github.com/grindscale/devmock/settings/internal/store"
)

const (
	// writeTimeout is the deadline for a single reply or control frame.
	writeTimeout = 10 * time.Second

	// closeGrace is how long a connection may take to acknowledge a
	// server-initiated close before its read is abandoned.
	closeGrace = time.Second

	// readLimit bounds a single command at 1 MiB, the usual default
	// message size of Python websockets servers.
	readLimit = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dev mock: the UI is usually served from a different origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler answers get/set commands against a shared settings store. Every
// connection sees and mutates the same store.
type Handler struct {
	store  *store.Store
	parser command.Parser
	mirror mirror.Publisher

	commands    *metrics.CounterVec
	connections *metrics.Gauge

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// New creates a Handler over st. Mutations are published to pub; pass nil or
// mirror.Nop{} to disable. Counters are registered on reg.
func New(st *store.Store, parser command.Parser, pub mirror.Publisher, reg *metrics.Registry) *Handler {
	if pub == nil {
		pub = mirror.Nop{}
	}
	reg.GaugeFunc("devmock_settings_keys", "Number of keys in the settings store.",
		func() float64 { return float64(st.Len()) })

	return &Handler{
		store:       st,
		parser:      parser,
		mirror:      pub,
		commands:    reg.CounterVec("devmock_settings_commands_total", "Settings messages received, by outcome.", "command"),
		connections: reg.Gauge("devmock_settings_connections", "Currently connected settings clients."),
		conns:       make(map[*websocket.Conn]struct{}),
	}
}

// Run blocks until ctx is cancelled, then asks every client to close.
func (h *Handler) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Count returns the number of connected clients.
func (h *Handler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// ServeHTTP upgrades the request and processes commands until the client
// disconnects or sends a malformed set command.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}
	defer conn.Close()

	log := connid.Logger(r)
	h.register(conn)
	defer h.unregister(conn)
	log.Info("settings: client connected")

	conn.SetReadLimit(readLimit)
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			logClosed(log, err)
			return
		}
		if typ != websocket.TextMessage {
			log.Debug("settings: ignoring non-text message", "type", typ)
			continue
		}

		msg := string(data)
		log.Info("settings: message received", "msg", msg)

		if err := h.handle(conn, log, msg); err != nil {
			h.commands.With("malformed").Inc()
			log.Error("settings: dropping connection", "msg", msg, "err", err)
			reason := websocket.FormatCloseMessage(websocket.CloseUnsupportedData, command.ErrMalformedSet.Error())
			conn.WriteControl(websocket.CloseMessage, reason, time.Now().Add(writeTimeout)) //nolint:errcheck
			return
		}

		if snapshot, err := json.Marshal(h.store); err == nil {
			log.Info("settings: current", "settings", string(snapshot))
		}
	}
}

// handle applies one message. Only a malformed set command is returned as
// an error; it ends the connection.
func (h *Handler) handle(conn *websocket.Conn, log *slog.Logger, msg string) error {
	cmd, err := h.parser.Parse(msg)
	switch {
	case errors.Is(err, command.ErrMalformedBatch):
		// The device skips batches it cannot decode.
		h.commands.With("malformed").Inc()
		log.Warn("settings: ignoring batch", "err", err)
		return nil
	case err != nil:
		return err
	}
	h.commands.With(cmd.Kind.String()).Inc()

	switch cmd.Kind {
	case command.Get:
		data, err := json.Marshal(h.store)
		if err != nil {
			log.Error("settings: encode store", "err", err)
			return nil
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn("settings: write reply", "err", err)
		}
	case command.Set:
		h.store.Set(cmd.Key, cmd.Value)
		h.publish(log)
	case command.Batch:
		h.store.Merge(cmd.Pairs)
		h.publish(log)
	}
	return nil
}

func (h *Handler) publish(log *slog.Logger) {
	data, err := json.Marshal(h.store)
	if err != nil {
		log.Warn("settings: encode for mirror", "err", err)
		return
	}
	if err := h.mirror.Publish(data); err != nil {
		log.Warn("settings: mirror publish failed", "err", err)
	}
}

func (h *Handler) register(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	h.connections.Inc()
}

func (h *Handler) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.conns[conn]
	delete(h.conns, conn)
	h.mu.Unlock()
	if ok {
		h.connections.Dec()
	}
}

func (h *Handler) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for conn := range h.conns {
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout)) //nolint:errcheck
		conn.SetReadDeadline(time.Now().Add(closeGrace))                            //nolint:errcheck
	}
}

// logClosed reports how a connection ended.
func logClosed(log *slog.Logger, err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Info("settings: client disconnected")
		return
	}
	log.Warn("settings: connection ended", "err", err)
}
