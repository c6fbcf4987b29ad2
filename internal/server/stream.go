package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/openbci/internal/logging"
	"github.com/muurk/openbci/internal/monitor"
	"github.com/muurk/openbci/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Dashboards are served from other origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

// sampleQueue hands samples from the device loop to one HTTP client.
// push never blocks: when the client falls behind the sample is dropped
// for that client only.
type sampleQueue struct {
	kind string
	ch   chan protocol.Sample
}

func newSampleQueue(kind string, size int) *sampleQueue {
	return &sampleQueue{kind: kind, ch: make(chan protocol.Sample, size)}
}

func (q *sampleQueue) push(s protocol.Sample) {
	select {
	case q.ch <- s:
	default:
		monitor.ConsumerDrops.WithLabelValues(q.kind).Inc()
	}
}

// sseMsg formats a server-sent event with JSON data
func sseMsg(data any, name string) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode event data: %w", err)
	}

	var out []byte
	if name != "" {
		out = append(out, "event: "...)
		out = append(out, name...)
		out = append(out, '\n')
	}
	out = append(out, "data: "...)
	out = append(out, payload...)
	out = append(out, "\n\n"...)
	return out, nil
}

func writeEvent(w io.Writer, f http.Flusher, data any, name string) error {
	msg, err := sseMsg(data, name)
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	f.Flush()
	return nil
}

// handleStream serves samples as server-sent events
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	q := newSampleQueue("sse", s.config.SubscriberBuffer)
	h, err := s.device.Subscribe(q.push)
	if err != nil {
		writeDeviceError(w, "subscribe", err)
		return
	}
	defer func() {
		if err := s.device.Unsubscribe(h); err != nil {
			logging.Debug("Unsubscribe failed", zap.Error(err))
		}
	}()

	s.trackStream("sse", 1)
	defer s.trackStream("sse", -1)
	logging.LogConnection(r.RemoteAddr, "sse_opened")
	defer logging.LogConnection(r.RemoteAddr, "sse_closed")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Lets the client know we're here even if nothing is streaming
	if err := writeEvent(w, flusher, "hello", "keepalive"); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case sample := <-q.ch:
			if err := writeEvent(w, flusher, sample, "sensorData"); err != nil {
				return
			}
		}
	}
}

// handleWebSocket serves samples as JSON text messages
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := newSampleQueue("ws", s.config.SubscriberBuffer)
	h, err := s.device.Subscribe(q.push)
	if err != nil {
		writeDeviceError(w, "subscribe", err)
		return
	}
	defer func() {
		if err := s.device.Unsubscribe(h); err != nil {
			logging.Debug("Unsubscribe failed", zap.Error(err))
		}
	}()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		logging.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.trackStream("ws", 1)
	defer s.trackStream("ws", -1)
	logging.LogConnection(r.RemoteAddr, "websocket_opened")
	defer logging.LogConnection(r.RemoteAddr, "websocket_closed")

	// Reader: handles pongs and notices when the peer goes away
	closed := make(chan struct{})
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case sample := <-q.ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(sample); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
