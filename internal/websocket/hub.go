package eventws

import (
	"encoding/json"
	"log"
	"strconv"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/nkamali/MentorAppBack/internal/services"
)

// Hub fans scheduling events out to a user's connected clients. The feed is
// push-only; clients never submit state changes over the socket.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *envelope
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

type envelope struct {
	userID string
	event  services.Event
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *envelope, 64),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				close(client.send)
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish queues an event for the user's connections. Non-blocking: when the
// hub's queue is full the event is dropped, never the scheduling operation.
func (h *Hub) Publish(userID int64, event services.Event) {
	select {
	case h.broadcast <- &envelope{userID: strconv.FormatInt(userID, 10), event: event}:
	default:
		log.Printf("event hub queue full, dropping %s for user %d", event.Type, userID)
	}
}

func (h *Hub) deliver(message *envelope) {
	encoded, err := json.Marshal(message.event)
	if err != nil {
		log.Printf("event hub encode event: %v", err)
		return
	}

	set, ok := h.clients[message.userID]
	if !ok {
		return
	}

	for client := range set {
		select {
		case client.send <- encoded:
		default:
			delete(set, client)
			close(client.send)
		}
	}
	if len(set) == 0 {
		delete(h.clients, message.userID)
	}
}

// ReadPump discards inbound frames and tears the client down on close.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
