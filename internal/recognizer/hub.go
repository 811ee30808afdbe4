package recognizer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithOriginPatterns allows cross-origin recognizer clients matching the
// given host patterns.
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) { h.originPatterns = patterns }
}

// WithMonitor attaches a fault monitor. See also [Hub.SetMonitor].
func WithMonitor(m Monitor) HubOption {
	return func(h *Hub) { h.monitor = m }
}

// Hub serves the recognizer WebSocket and implements [Recognizer] by sending
// control frames to the attached client. Only one client is attached at a
// time; a new connection replaces the previous one.
type Hub struct {
	sink           Sink
	originPatterns []string

	mu      sync.Mutex
	monitor Monitor
	conn    *websocket.Conn
}

var _ Recognizer = (*Hub)(nil)

// NewHub creates a Hub that forwards events to sink.
func NewHub(sink Sink, opts ...HubOption) *Hub {
	h := &Hub{sink: sink}
	for _, o := range opts {
		o(h)
	}
	return h
}

// SetMonitor replaces the fault monitor.
func (h *Hub) SetMonitor(m Monitor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.monitor = m
}

// Connected reports whether a recognizer client is attached.
func (h *Hub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

// Start asks the client to start recognising.
func (h *Hub) Start(ctx context.Context) error {
	return h.send(ctx, Frame{Type: FrameStart})
}

// Stop asks the client to stop recognising.
func (h *Hub) Stop(ctx context.Context) error {
	return h.send(ctx, Frame{Type: FrameStop})
}

func (h *Hub) send(ctx context.Context, f Frame) error {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("recognizer: encode %s frame: %w", f.Type, err)
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("recognizer: send %s frame: %w", f.Type, err)
	}
	return nil
}

// ServeHTTP upgrades the request and pumps frames until the client goes away.
// A client that connects while the session is listening is told to start
// immediately.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Warn("recognizer: websocket accept failed", "err", err)
		return
	}

	h.mu.Lock()
	prev := h.conn
	h.conn = conn
	h.mu.Unlock()
	if prev != nil {
		prev.Close(websocket.StatusPolicyViolation, "replaced by a newer recognizer")
	}
	slog.Info("recognizer: client connected", "remote", r.RemoteAddr)

	ctx := r.Context()
	if h.sink.ShouldRestart() {
		if err := h.Start(ctx); err != nil {
			slog.Warn("recognizer: could not start new client", "err", err)
		}
	}

	h.readLoop(ctx, conn)

	h.mu.Lock()
	if h.conn == conn {
		h.conn = nil
	}
	h.mu.Unlock()
	conn.Close(websocket.StatusNormalClosure, "")
	slog.Info("recognizer: client disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Debug("recognizer: ignoring malformed frame", "err", err)
			continue
		}
		h.dispatch(f)
	}
}

func (h *Hub) dispatch(f Frame) {
	h.mu.Lock()
	mon := h.monitor
	h.mu.Unlock()

	switch f.Type {
	case FrameResult:
		h.sink.HandleResult(f.Text, f.IsFinal, f.Confidence)
		if mon != nil {
			mon.Alive()
		}
	case FrameError:
		h.sink.HandleError(f.Code)
		if f.Code == CodeNoSpeech && mon != nil {
			mon.Fault(CodeNoSpeech)
		}
	case FrameEnd:
		h.sink.HandleEnd()
		if mon != nil {
			mon.Fault(FrameEnd)
		}
	default:
		slog.Debug("recognizer: ignoring frame", "type", f.Type)
	}
}
