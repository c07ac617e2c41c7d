package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"trainhub_go/models"

	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// Hub maintains the set of active clients and fans messages out to them.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mutex sync.RWMutex
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	send   chan []byte
	userID uint
	role   models.Role
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
	}
}

// Run processes registrations until ctx is cancelled, then drops every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mutex.Lock()
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.mutex.Unlock()
	}()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			logrus.WithFields(logrus.Fields{"user_id": client.userID, "role": client.role}).Debug("WebSocket client connected")
		case client := <-h.unregister:
			h.drop(client)
			logrus.WithField("user_id", client.userID).Debug("WebSocket client disconnected")
		}
	}
}

func (h *Hub) drop(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mutex.Unlock()
}

// attach registers a new client, or returns nil once the hub has stopped.
func (h *Hub) attach(userID uint, role models.Role) *Client {
	client := &Client{send: make(chan []byte, sendBuffer), userID: userID, role: role}
	select {
	case h.register <- client:
		return client
	case <-h.done:
		return nil
	}
}

func (h *Hub) detach(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToRoles sends message to every client whose role is listed.
// Slow clients whose buffer is full are disconnected.
func (h *Hub) BroadcastToRoles(roles []models.Role, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		logrus.WithError(err).Error("Error marshaling WebSocket message")
		return
	}
	wanted := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		wanted[r] = true
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		if !wanted[client.role] {
			continue
		}
		select {
		case client.send <- data:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// CountByRole breaks the connected clients down by role.
func (h *Hub) CountByRole() map[models.Role]int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	out := make(map[models.Role]int)
	for client := range h.clients {
		out[client.role]++
	}
	return out
}

// ServeFiberWS pumps hub messages to c until either side closes.
func (h *Hub) ServeFiberWS(c *fiberws.Conn, userID uint, role models.Role) {
	client := h.attach(userID, role)
	if client == nil {
		_ = c.Close()
		return
	}

	go h.fiberWritePump(client, c)
	// Reads stay on this goroutine; fiber closes the conn when the handler returns.
	h.fiberReadPump(client, c)
}

func (h *Hub) fiberWritePump(client *Client, c *fiberws.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.detach(client)
		_ = c.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.WriteMessage(fiberws.CloseMessage, []byte{})
				return
			}
			if err := c.WriteMessage(fiberws.TextMessage, message); err != nil {
				logrus.WithError(err).WithField("user_id", client.userID).Debug("WebSocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(fiberws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) fiberReadPump(client *Client, c *fiberws.Conn) {
	defer func() {
		h.detach(client)
		_ = c.Close()
	}()

	c.SetReadLimit(maxMessageSize)
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if fiberws.IsUnexpectedCloseError(err, fiberws.CloseGoingAway, fiberws.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("user_id", client.userID).Warn("WebSocket closed unexpectedly")
			}
			return
		}
	}
}
