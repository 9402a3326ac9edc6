// Package ingest accepts webcam frames from browser capture clients over
// websockets and feeds them into a capture mailbox.
package ingest

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/teslashibe/pulseai/pkg/capture"
	"github.com/teslashibe/pulseai/pkg/protocol"
)

// maxFrameSize bounds a single websocket message. Base64 inflates a JPEG by
// a third, so this allows roughly 3MB images.
const maxFrameSize = 4 * 1024 * 1024

// Publisher receives decoded frames. *capture.Mailbox implements it.
type Publisher interface {
	Publish(f capture.Frame) bool
}

// ClientConnection represents a connected capture client
type ClientConnection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time
	Frames    uint64

	mu sync.Mutex
}

// Send sends a message to the client
func (c *ClientConnection) Send(msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// Hub manages WebSocket connections from capture clients
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*ClientConnection
	logger  *slog.Logger

	publisher Publisher

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	messagesRejected atomic.Uint64
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates a new capture hub publishing into pub
func NewHub(pub Publisher, opts ...Option) *Hub {
	h := &Hub{
		clients:   make(map[string]*ClientConnection),
		publisher: pub,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "ingest")
	return h
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	// WebSocket upgrade middleware
	app.Use("/ws/capture", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/capture", websocket.New(h.handleClient))
	app.Get("/ws/capture/:id", websocket.New(h.handleClient))
}

// handleClient handles a capture client WebSocket connection
func (h *Hub) handleClient(c *websocket.Conn) {
	clientID := c.Params("id")
	if clientID == "" {
		clientID = generateClientID()
	}

	client := &ClientConnection{
		ID:        clientID,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	h.mu.Lock()
	h.clients[clientID] = client
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("capture client connected", "client", clientID, "clients", count)

	defer func() {
		h.mu.Lock()
		if h.clients[clientID] == client {
			delete(h.clients, clientID)
		}
		count := len(h.clients)
		h.mu.Unlock()

		h.logger.Info("capture client disconnected", "client", clientID, "clients", count)
	}()

	c.SetReadLimit(maxFrameSize)

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("capture client read error", "client", clientID, "error", err)
			return
		}

		client.mu.Lock()
		client.LastSeen = time.Now()
		client.mu.Unlock()

		h.messagesReceived.Add(1)
		h.handleMessage(client, data)
	}
}

// handleMessage processes an incoming message from a capture client
func (h *Hub) handleMessage(client *ClientConnection, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.logger.Debug("parse error", "client", client.ID, "error", err)
		h.reject(client, "unparseable message")
		return
	}

	switch msg.Type {
	case protocol.TypeFrame:
		fd, err := msg.GetFrameData()
		if err != nil {
			h.reject(client, "invalid frame payload")
			return
		}
		img, mime, err := fd.Decode()
		if err != nil {
			h.reject(client, err.Error())
			return
		}

		h.framesReceived.Add(1)
		client.mu.Lock()
		client.Frames++
		client.mu.Unlock()

		h.publisher.Publish(capture.Frame{
			Data:       img,
			MimeType:   mime,
			Width:      fd.Width,
			Height:     fd.Height,
			CapturedAt: time.Now(),
			Origin:     "browser",
		})

	case protocol.TypePing:
		ping, _ := msg.GetPingData()
		id := ""
		if ping != nil {
			id = ping.ID
		}
		h.SendPong(client.ID, id, msg.Timestamp)

	default:
		h.reject(client, "unsupported message type: "+string(msg.Type))
	}
}

// reject counts a refused message and tells the client why.
func (h *Hub) reject(client *ClientConnection, reason string) {
	h.messagesRejected.Add(1)
	msg, err := protocol.NewErrorMessage(reason)
	if err != nil {
		return
	}
	h.messagesSent.Add(1)
	client.Send(msg)
}

// SendPong sends a pong response to a client
func (h *Hub) SendPong(clientID, pingID string, pingTS int64) error {
	msg, err := protocol.NewPongMessage(pingID, pingTS, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	return h.sendToClient(clientID, msg)
}

// sendToClient sends a message to a specific client
func (h *Hub) sendToClient(clientID string, msg *protocol.Message) error {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()

	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "capture client not connected")
	}

	h.messagesSent.Add(1)
	return client.Send(msg)
}

// Broadcast sends a message to all connected capture clients
func (h *Hub) Broadcast(msg *protocol.Message) {
	h.mu.RLock()
	clients := make([]*ClientConnection, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.messagesSent.Add(1)
		if err := client.Send(msg); err != nil {
			h.logger.Debug("broadcast error", "client", client.ID, "error", err)
		}
	}
}

// ClientCount returns the number of connected capture clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats contains hub statistics
type Stats struct {
	ClientCount      int    `json:"client_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	MessagesRejected uint64 `json:"messages_rejected"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		ClientCount:      h.ClientCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		FramesReceived:   h.framesReceived.Load(),
		MessagesRejected: h.messagesRejected.Load(),
	}
}

// ClientInfo contains info about a connected capture client
type ClientInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Frames    uint64    `json:"frames"`
}

// GetClientInfos returns info about all connected capture clients
func (h *Hub) GetClientInfos() []ClientInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]ClientInfo, 0, len(h.clients))
	for _, c := range h.clients {
		c.mu.Lock()
		infos = append(infos, ClientInfo{
			ID:        c.ID,
			Connected: c.Connected,
			LastSeen:  c.LastSeen,
			Frames:    c.Frames,
		})
		c.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers API routes for capture client inspection
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	group := api.Group("/capture")

	group.Get("/clients", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"clients": h.GetClientInfos(),
			"count":   h.ClientCount(),
		})
	})

	group.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}

func generateClientID() string {
	return "cam-" + uuid.NewString()
}
