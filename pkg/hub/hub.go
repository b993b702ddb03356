// Package hub is the WebSocket transport between the desktop client and the
// dispatcher. It holds at most one live client: a new connection replaces
// the previous one.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mapset-verifier/server/pkg/observability"
	"github.com/mapset-verifier/server/pkg/orchestrator"
)

// ErrNoClient is returned by Send when no client is connected.
var ErrNoClient = errors.New("no client connected")

// Defaults for Deps.
const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultReadLimit    = 1 << 20

	bufferSize = 4096
)

// Handler receives every valid inbound frame.
type Handler func(ctx context.Context, key, value string)

// Deps configures a Hub.
type Deps struct {
	// Handler receives inbound frames, usually Dispatcher.Handle.
	Handler Handler

	// WriteTimeout bounds a single outbound write.
	WriteTimeout time.Duration

	// ReadLimit is the largest accepted inbound frame in bytes.
	ReadLimit int64

	// CheckOrigin overrides the upgrader origin check. Nil accepts any
	// origin; the server only listens on loopback by default.
	CheckOrigin func(r *http.Request) bool

	Logger *slog.Logger
	Tracer trace.Tracer
	RED    *observability.REDMetrics
}

// Hub upgrades HTTP requests to WebSocket connections and relays frames.
type Hub struct {
	handler      Handler
	writeTimeout time.Duration
	readLimit    int64
	upgrader     websocket.Upgrader
	logger       *slog.Logger
	tracer       trace.Tracer
	red          *observability.REDMetrics

	mu     sync.Mutex
	client *client
}

type client struct {
	id   string
	conn *websocket.Conn

	// writeMu serializes writers; gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

// New creates a Hub.
func New(deps Deps) *Hub {
	h := &Hub{
		handler:      deps.Handler,
		writeTimeout: deps.WriteTimeout,
		readLimit:    deps.ReadLimit,
		logger:       deps.Logger,
		tracer:       deps.Tracer,
		red:          deps.RED,
	}

	if h.handler == nil {
		h.handler = func(context.Context, string, string) {}
	}

	if h.writeTimeout <= 0 {
		h.writeTimeout = DefaultWriteTimeout
	}

	if h.readLimit <= 0 {
		h.readLimit = DefaultReadLimit
	}

	if h.logger == nil {
		h.logger = slog.Default()
	}

	if h.tracer == nil {
		h.tracer = noop.NewTracerProvider().Tracer("")
	}

	checkOrigin := deps.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  bufferSize,
		WriteBufferSize: bufferSize,
		CheckOrigin:     checkOrigin,
	}

	return h
}

// ServeHTTP upgrades the request and reads frames until the connection
// closes or is replaced.
func (h *Hub) ServeHTTP(rw http.ResponseWriter, hr *http.Request) {
	conn, err := h.upgrader.Upgrade(rw, hr, nil)
	if err != nil {
		h.logger.WarnContext(hr.Context(), "websocket upgrade failed", "error", err)

		return
	}

	c := &client{id: uuid.NewString(), conn: conn}
	h.attach(hr.Context(), c)

	defer h.detach(hr.Context(), c)

	// Work started by a frame outlives the connection that sent it; staleness
	// decides whether its results are still wanted.
	ctx := context.WithoutCancel(hr.Context())

	h.readLoop(ctx, c)
}

func (h *Hub) attach(ctx context.Context, c *client) {
	h.mu.Lock()
	prev := h.client
	h.client = c
	h.mu.Unlock()

	if prev != nil {
		h.logger.InfoContext(ctx, "client replaced", "client", prev.id, "by", c.id)
		prev.close()
	}

	h.logger.InfoContext(ctx, "client connected", "client", c.id)
}

func (h *Hub) detach(ctx context.Context, c *client) {
	h.mu.Lock()
	if h.client == c {
		h.client = nil
	}
	h.mu.Unlock()

	c.close()
	h.logger.InfoContext(ctx, "client disconnected", "client", c.id)
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	c.conn.SetReadLimit(h.readLimit)

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.WarnContext(ctx, "websocket read failed", "client", c.id, "error", err)
			}

			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		h.receive(ctx, c, data)
	}
}

func (h *Hub) receive(ctx context.Context, c *client, data []byte) {
	start := time.Now()

	msg, err := DecodeFrame(data)
	if err != nil {
		h.logger.WarnContext(ctx, "frame ignored", "client", c.id, "error", err)
		h.red.RecordRequest(ctx, "invalid", "error", time.Since(start))

		return
	}

	spanCtx, span := h.tracer.Start(ctx, "hub.receive",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("hub.key", msg.Key)),
	)
	defer span.End()

	h.handler(spanCtx, msg.Key, msg.Value)
}

// Send writes msg to the live client. It returns ErrNoClient when nobody is
// connected.
func (h *Hub) Send(ctx context.Context, msg orchestrator.Message) error {
	h.mu.Lock()
	c := h.client
	h.mu.Unlock()

	if c == nil {
		return ErrNoClient
	}

	data, err := EncodeFrame(msg)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(h.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	err = c.conn.SetWriteDeadline(deadline)
	if err != nil {
		return fmt.Errorf("send %s: %w", msg.Key, err)
	}

	err = c.conn.WriteMessage(websocket.TextMessage, data)
	if err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Key, c.id, err)
	}

	return nil
}

// Connected reports whether a client is attached.
func (h *Hub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.client != nil
}

// Close disconnects the live client, if any.
func (h *Hub) Close() error {
	h.mu.Lock()
	c := h.client
	h.client = nil
	h.mu.Unlock()

	if c == nil {
		return nil
	}

	return c.close()
}

func (c *client) close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second)) //nolint:errcheck // best effort before close.
	_ = c.conn.WriteMessage(websocket.CloseMessage,          //nolint:errcheck // peer may already be gone.
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	return c.conn.Close()
}
