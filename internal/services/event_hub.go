package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/paletsayim/server/internal/models"
	"github.com/paletsayim/server/internal/observability"
)

// Event types sent to websocket clients
const (
	EventPalletsSynced   = "pallets_synced"
	EventPalletsReturned = "pallets_returned"
	EventPalletUpdated   = "pallet_updated"
	EventPalletDeleted   = "pallet_deleted"
	EventStats           = "stats"
	EventPing            = "ping"
	EventPong            = "pong"
)

// Event is the envelope of every websocket message
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// EventPublisher receives pallet change notifications
type EventPublisher interface {
	Publish(eventType string, payload interface{})
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, interface{}) {}

// StatsFunc produces the payload of the periodic stats event
type StatsFunc func(ctx context.Context) (*models.StockStats, error)

// EventClient is one connected websocket consumer
type EventClient struct {
	ID         string
	Conn       *websocket.Conn
	Send       chan []byte
	hub        *EventHub
	mu         sync.Mutex
	closedOnce sync.Once
}

// EventHub fans pallet events and periodic stock stats out to websocket clients
type EventHub struct {
	stats         StatsFunc
	statsInterval time.Duration

	mu         sync.RWMutex
	clients    map[*EventClient]bool
	register   chan *EventClient
	unregister chan *EventClient
	broadcast  chan []byte
	stopChan   chan struct{}
	running    bool
	wg         sync.WaitGroup
}

// NewEventHub creates a stopped hub. stats may be nil to disable the stats ticker.
func NewEventHub(stats StatsFunc, statsInterval time.Duration) *EventHub {
	return &EventHub{
		stats:         stats,
		statsInterval: statsInterval,
		clients:       make(map[*EventClient]bool),
		register:      make(chan *EventClient),
		unregister:    make(chan *EventClient),
	}
}

// Start launches the hub loop and the stats ticker
func (h *EventHub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}

	h.running = true
	h.stopChan = make(chan struct{})
	h.broadcast = make(chan []byte, 256)

	h.wg.Add(1)
	go h.run(h.stopChan, h.broadcast)
	if h.stats != nil && h.statsInterval > 0 {
		h.wg.Add(1)
		go h.statsLoop(h.stopChan)
	}

	observability.WithField("stats_interval", h.statsInterval.String()).Info("Event hub started")
}

// Stop disconnects every client and waits for the hub goroutines to end
func (h *EventHub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	close(h.stopChan)
	h.mu.Unlock()

	h.wg.Wait()
	observability.Info("Event hub stopped")
}

func (h *EventHub) run(stop <-chan struct{}, broadcast <-chan []byte) {
	defer h.wg.Done()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.Debugf("Event client connected: %s", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
			observability.Debugf("Event client disconnected: %s", client.ID)

		case msg := <-broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- msg:
				default:
					// Slow consumer
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()

		case <-stop:
			h.mu.Lock()
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// removeLocked closes the client's send queue; its WritePump then closes the connection
func (h *EventHub) removeLocked(client *EventClient) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
}

func (h *EventHub) statsLoop(stop <-chan struct{}) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if h.ClientCount() == 0 {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), h.statsInterval)
			stats, err := h.stats(ctx)
			cancel()
			if err != nil {
				observability.Warnf("Failed to collect stock stats: %v", err)
				continue
			}
			h.Publish(EventStats, stats)
		case <-stop:
			return
		}
	}
}

// Publish queues an event for every connected client. It never blocks:
// when the hub is stopped or its queue is full the event is dropped.
func (h *EventHub) Publish(eventType string, payload interface{}) {
	data, err := json.Marshal(Event{Type: eventType, Payload: payload})
	if err != nil {
		observability.Errorf("Error marshaling event %s: %v", eventType, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		observability.WithField("event", eventType).Warn("Event hub is stopped, dropping event")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		observability.WithField("event", eventType).Warn("Event queue full, dropping event")
	}
}

// Register adds a client to the hub. It reports false when the hub is stopped.
func (h *EventHub) Register(client *EventClient) bool {
	h.mu.RLock()
	running, stop := h.running, h.stopChan
	h.mu.RUnlock()
	if !running {
		return false
	}

	select {
	case h.register <- client:
		return true
	case <-stop:
		return false
	}
}

// Unregister removes a client from the hub
func (h *EventHub) Unregister(client *EventClient) {
	h.mu.RLock()
	running, stop := h.running, h.stopChan
	h.mu.RUnlock()
	if !running {
		return
	}

	select {
	case h.unregister <- client:
	case <-stop:
	}
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NewClient creates a websocket client bound to this hub
func (h *EventHub) NewClient(id string, conn *websocket.Conn) *EventClient {
	return &EventClient{
		ID:   id,
		Conn: conn,
		Send: make(chan []byte, 64),
		hub:  h,
	}
}

// Close detaches the client from the hub and closes its connection
func (c *EventClient) Close() {
	c.closedOnce.Do(func() {
		c.hub.Unregister(c)
		c.Conn.Close()
	})
}

// Reply sends a message to this client only
func (c *EventClient) Reply(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		observability.Debugf("Event client %s reply failed: %v", c.ID, err)
	}
}

// WritePump pumps messages from the hub to the websocket connection
func (c *EventClient) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.mu.Lock()
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				c.mu.Unlock()
				return
			}
			err := c.Conn.WriteMessage(websocket.TextMessage, message)
			c.mu.Unlock()
			if err != nil {
				return
			}

		case <-ticker.C:
			c.mu.Lock()
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := c.Conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// ReadPump reads client messages until the connection closes
func (c *EventClient) ReadPump(onMessage func(client *EventClient, messageType int, data []byte)) {
	defer c.Close()

	c.Conn.SetReadLimit(4 * 1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				observability.Warnf("Event client %s error: %v", c.ID, err)
			}
			break
		}

		if onMessage != nil {
			onMessage(c, messageType, message)
		}
	}
}
