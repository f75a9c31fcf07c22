// Package live polls the fleet backend's current-state feed and fans the
// latest entity positions out to websocket subscribers. The live feed is
// layered on top of historical playback, not a replacement for it.
package live

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Hub owns the websocket subscribers of the live feed.
type Hub struct {
	logger *log.Logger

	mu          sync.Mutex
	subscribers map[uint64]*subscriber
	nextID      uint64
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewHub creates an empty hub. A nil logger uses log.Default().
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		logger:      logger,
		subscribers: make(map[uint64]*subscriber),
	}
}

// Subscribe registers a websocket connection and returns its subscriber id.
func (h *Hub) Subscribe(conn *websocket.Conn) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.subscribers[id] = &subscriber{conn: conn}
	return id
}

// Unsubscribe removes a subscriber and closes its connection.
func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	delete(h.subscribers, id)
	h.mu.Unlock()
	if ok {
		sub.conn.Close()
	}
}

// SubscriberCount reports the current number of subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Broadcast sends one message to every subscriber. Subscribers that fail to
// take the write are dropped; a stuck dashboard tab must not stall the feed.
func (h *Hub) Broadcast(data []byte) {
	h.mu.Lock()
	subs := make(map[uint64]*subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	h.mu.Unlock()

	for id, sub := range subs {
		sub.mu.Lock()
		sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := sub.conn.WriteMessage(websocket.TextMessage, data)
		sub.mu.Unlock()
		if err != nil {
			h.logger.Printf("failed to send live update to subscriber %d: %v", id, err)
			h.Unsubscribe(id)
		}
	}
}
