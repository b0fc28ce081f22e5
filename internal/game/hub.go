package game

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

const clientQueueSize = 256

// wsConn is the write surface the hub needs from a websocket connection.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one websocket subscriber. A single writer goroutine drains its
// queue, so the client observes events in exactly the order the hub
// enqueued them.
type Client struct {
	conn   wsConn
	userID string

	mu     sync.Mutex
	queue  chan []byte
	closed bool
	once   sync.Once
}

type registration struct {
	client   *Client
	snapshot func() Snapshot
}

// Hub fans the engine's ordered event stream out to every subscriber.
// All membership changes and broadcasts flow through one loop. A joining
// client's snapshot is taken inside that loop, so it reflects every event
// already fanned out; the snapshot's seq tells the client which live
// events it may discard as already applied.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan registration
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 512),
		register:   make(chan registration, 16),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case reg := <-h.register:
			snapshot := reg.snapshot()
			data, err := json.Marshal(Event{Seq: snapshot.Seq, Type: EventSnapshot, Data: snapshot})
			if err != nil {
				log.Printf("[WS] Snapshot marshal error: %v", err)
				continue
			}
			reg.client.enqueue(data)

			h.mu.Lock()
			h.clients[reg.client] = true
			h.mu.Unlock()
			go reg.client.writeLoop(h)
			log.Printf("[WS] Client connected: %s (total: %d)", reg.client.userID, h.GetClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
			log.Printf("[WS] Client disconnected: %s (total: %d)", client.userID, h.GetClientCount())

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("[WS] Marshal error: %v", err)
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				client.enqueue(data)
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast hands an event to the fan-out loop. Never blocks the engine;
// if the hub is saturated the event is dropped and logged.
func (h *Hub) Broadcast(event Event) {
	select {
	case h.broadcast <- event:
	default:
		log.Printf("[WS] Broadcast channel full, dropping event seq %d", event.Seq)
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RegisterClient joins a connection to the stream. The snapshot function
// runs inside the hub loop at registration time, so the state it captures
// covers every event the loop has already fanned out.
func (h *Hub) RegisterClient(conn wsConn, userID string, snapshot func() Snapshot) *Client {
	client := &Client{
		conn:   conn,
		userID: userID,
		queue:  make(chan []byte, clientQueueSize),
	}
	h.register <- registration{client: client, snapshot: snapshot}
	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// enqueue appends to the client's ordered queue. A client too slow to keep
// up loses the message rather than stalling the fan-out; a closed client
// discards it.
func (c *Client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.queue <- data:
	default:
		log.Printf("[WS] Queue full for user %s, dropping message", c.userID)
	}
}

func (c *Client) writeLoop(h *Hub) {
	for data := range c.queue {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("[WS] Write error for user %s: %v", c.userID, err)
			h.UnregisterClient(c)
			return
		}
	}
}

// close marks the client closed before the queue goes away, so a
// concurrent enqueue observes the flag instead of a closed channel.
func (c *Client) close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		close(c.queue)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// Send writes a direct reply outside the broadcast stream (bet and cashout
// acks go only to their requester).
func (c *Client) Send(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] Send marshal error: %v", err)
		return
	}
	c.enqueue(data)
}
