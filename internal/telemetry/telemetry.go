// Package telemetry fans iteration events out to websocket subscribers.
// It is the machine-readable counterpart of the operator stream.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	clientBuffer = 256
	writeTimeout = 5 * time.Second
)

type EventType string

const (
	EventStat      EventType = "stat"
	EventCompleted EventType = "completed"
	EventAborted   EventType = "aborted"
)

type Event struct {
	Type       EventType `json:"type"`
	Session    string    `json:"session,omitempty"`
	Iteration  uint64    `json:"iteration"`
	Elapsed    float64   `json:"elapsed,omitempty"`
	Payload    string    `json:"payload,omitempty"`
	Cause      string    `json:"cause,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
}

// Hub broadcasts events to every connected subscriber. Slow subscribers
// lose events rather than stalling the publisher.
type Hub struct {
	session string
	logger  zerolog.Logger

	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

func NewHub(session string, logger zerolog.Logger) *Hub {
	return &Hub{
		session: session,
		logger:  logger,
		clients: make(map[chan []byte]struct{}),
	}
}

// Publish stamps ev with the session id and queues it for every subscriber.
func (h *Hub) Publish(ev Event) {
	ev.Session = h.session
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn().Err(err).Msg("encoding telemetry event")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for send := range h.clients {
		select {
		case send <- data:
		default:
			h.logger.Debug().Str("type", string(ev.Type)).Msg("dropping event for slow subscriber")
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn().Err(err).Msg("accept error")
		return
	}

	send := make(chan []byte, clientBuffer)
	h.mu.Lock()
	h.clients[send] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, send)
		h.mu.Unlock()
	}()

	// Subscribers never send; CloseRead handles their close frame.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case data := <-send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.Debug().Err(err).Msg("subscriber write failed")
				return
			}
		}
	}
}

// Server exposes a Hub over HTTP.
type Server struct {
	Addr       string
	httpServer *http.Server
}

// Listen starts serving hub on addr in the background.
func Listen(addr string, hub *Hub) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("telemetry listen: %w", err)
	}
	s := &Server{
		Addr:       listener.Addr().String(),
		httpServer: &http.Server{Handler: hub},
	}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			hub.logger.Error().Err(err).Msg("telemetry server failed")
		}
	}()
	return s, nil
}

func (s *Server) Close() error {
	return s.httpServer.Close()
}
