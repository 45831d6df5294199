// Package push broadcasts change-log nudges to websocket subscribers.
//
// A nudge only carries the newest change id. Subscribers react by polling
// the change feed early; entity state always comes from the read API.
package push

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/taskfeed/taskfeed/internal/metrics"
)

// MessageTypeChanges is the only message type sent by the hub.
const MessageTypeChanges = "changes"

// writeTimeout bounds a single write to one client.
const writeTimeout = 5 * time.Second

// Message is the JSON nudge sent to subscribers.
type Message struct {
	Type      string    `json:"type"`
	LatestID  int64     `json:"latestId"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub manages websocket subscribers and fans out nudges.
type Hub struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewHub creates a hub and starts its broadcast loop. If logger is nil,
// log.Default() is used.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}

	h.wg.Add(1)
	go h.broadcastLoop()
	return h
}

// Notify queues a nudge for latestID. It never blocks: when the queue is
// full the nudge is dropped and subscribers catch up on their next poll.
func (h *Hub) Notify(latestID int64) {
	msg := Message{Type: MessageTypeChanges, LatestID: latestID, Timestamp: time.Now().UTC()}
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	default:
		h.logger.Printf("Warning: broadcast channel full, dropping nudge for change %d", latestID)
	}
}

// Close disconnects every subscriber and stops the broadcast loop.
func (h *Hub) Close() {
	h.cancel()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()
	metrics.PushClients.Set(0)

	h.wg.Wait()
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket subscription.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	clientCount := len(h.clients)
	h.clientsMu.Unlock()
	metrics.PushClients.Set(float64(clientCount))

	h.logger.Printf("Subscriber connected (total: %d)", clientCount)

	go h.readLoop(conn)
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Printf("Failed to marshal nudge: %v", err)
				continue
			}

			h.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				clients = append(clients, conn)
			}
			h.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					h.logger.Printf("Failed to send to subscriber: %v", err)
					h.removeClient(conn)
				}
			}
		}
	}
}

// readLoop detects disconnects. Subscribers never send anything useful.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, exists := h.clients[conn]; !exists {
		h.clientsMu.Unlock()
		return
	}
	delete(h.clients, conn)
	clientCount := len(h.clients)
	h.clientsMu.Unlock()
	metrics.PushClients.Set(float64(clientCount))

	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.logger.Printf("Subscriber disconnected (total: %d)", clientCount)
}
