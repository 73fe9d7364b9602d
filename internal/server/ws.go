package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

const (
	clientBuffer = 32
	writeTimeout = 2 * time.Second
)

// PredictionHub broadcasts display events to WebSocket clients. Slow
// clients drop messages instead of stalling the inference loop.
type PredictionHub struct {
	log     zerolog.Logger
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
	last    []byte
}

// NewPredictionHub creates a hub with no clients.
func NewPredictionHub(log zerolog.Logger) *PredictionHub {
	return &PredictionHub{
		log:     log,
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// Broadcast sends v as JSON to every connected client. The latest message is
// replayed to clients that connect later.
func (h *PredictionHub) Broadcast(v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = msg
	for _, send := range h.clients {
		select {
		case send <- msg:
		default:
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *PredictionHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *PredictionHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	send := make(chan []byte, clientBuffer)
	h.mu.Lock()
	h.clients[conn] = send
	if h.last != nil {
		send <- h.last
	}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Reads only detect the client going away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug().Err(err).Msg("websocket client dropped")
				return
			}
		}
	}
}
