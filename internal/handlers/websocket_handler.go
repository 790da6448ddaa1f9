package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/paletsayim/server/internal/observability"
	"github.com/paletsayim/server/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is open for the REST API as well
		return true
	},
}

// EventsHandler streams pallet events over websockets
type EventsHandler struct {
	hub *services.EventHub
}

// NewEventsHandler creates a new EventsHandler
func NewEventsHandler(hub *services.EventHub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// HandleConnection upgrades HTTP to WebSocket and manages the connection
// @Summary Event stream
// @Description Websocket feed of pallet changes and periodic stock stats
// @Tags events
// @Router /api/events [get]
func (h *EventsHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	client := h.hub.NewClient(uuid.New().String(), conn)
	if !h.hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "event hub is stopped"))
		conn.Close()
		return
	}

	go client.WritePump()

	// Blocks until the connection closes
	client.ReadPump(h.handleMessage)
}

func (h *EventsHandler) handleMessage(client *services.EventClient, messageType int, data []byte) {
	if messageType != websocket.TextMessage {
		return
	}

	var msg services.Event
	if err := json.Unmarshal(data, &msg); err != nil {
		observability.Debugf("Invalid websocket message from %s: %v", client.ID, err)
		return
	}

	switch msg.Type {
	case services.EventPing:
		client.Reply(services.Event{Type: services.EventPong})
	default:
		observability.Debugf("Unknown websocket message type: %s", msg.Type)
	}
}
