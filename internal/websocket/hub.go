// Package websocket adapts the engine's event bus to gorilla/websocket
// connections: one hub, one room per game, best-effort fan-out.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/villageois/garou/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192

	sendBuffer = 256
)

// Hub maintains the socket connections and fans engine events out to the
// game's connected presenters.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	events     <-chan models.Event
}

// NewHub wires the hub to an already-subscribed engine event stream.
func NewHub(events <-chan models.Event) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     events,
	}
}

// Run pumps registrations and engine events until ctx ends or the engine
// closes its stream.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("websocket hub shutting down")
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case e, ok := <-h.events:
			if !ok {
				log.Info().Msg("engine event stream closed")
				return
			}
			h.fanOut(e)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	if h.rooms[client.GameID] == nil {
		h.rooms[client.GameID] = make(map[*Client]bool)
	}
	h.rooms[client.GameID][client] = true
	log.Debug().Str("gameId", client.GameID).Msg("presenter socket connected")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	if clients, ok := h.rooms[client.GameID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, client.GameID)
		}
	}
	log.Debug().Str("gameId", client.GameID).Msg("presenter socket disconnected")
}

// fanOut delivers one engine event to the game's sockets. A slow socket is
// dropped rather than holding up the stream.
func (h *Hub) fanOut(e models.Event) {
	blob, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[e.GameID]
	if !ok {
		return
	}
	for client := range clients {
		select {
		case client.send <- blob:
		default:
			close(client.send)
			delete(h.clients, client)
			delete(clients, client)
		}
	}
}

// RoomClientCount returns the number of sockets watching a game.
func (h *Hub) RoomClientCount(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[gameID])
}

// Client is one presenter socket bound to a game.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	GameID string
}

func NewClient(hub *Hub, conn *websocket.Conn, gameID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		GameID: gameID,
	}
}

func (c *Client) Register() {
	c.hub.register <- c
}

// ReadPump drains the connection for control frames; the socket is
// subscribe-only, intents go through the HTTP surface.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("websocket read error")
			}
			break
		}
	}
}

// WritePump flushes queued events to the socket and keeps it alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Fold whatever queued up into the same frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
