// Package notifications fans board events out to connected websocket
// clients.
package notifications

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"retroboard/internal/observability"
	"retroboard/internal/realtime"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per board
	maxConnsPerBoard = 64
	// Max total connections
	maxTotalConns = 10000
)

// Hub maps boardID -> connected Clients and forwards every envelope
// published on a board channel to that board's connections.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	totalConns int
	logger     *slog.Logger
	stopWiring func()
}

// NewHub creates a new Hub instance.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		conns:  make(map[uint]map[*Client]struct{}),
		logger: logger,
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "board hub" }

// Register a connection for a given board. Returns the Client or an error
// if limits are exceeded.
func (h *Hub) Register(boardID, userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.totalConns >= maxTotalConns {
		return nil, errors.New("server connection limit reached")
	}

	m, ok := h.conns[boardID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[boardID] = m
	}
	if len(m) >= maxConnsPerBoard {
		return nil, errors.New("board connection limit reached")
	}

	client := NewClient(h, conn, boardID, userID)
	m[client] = struct{}{}
	h.totalConns++
	observability.WebSocketBoardConnections.WithLabelValues(strconv.FormatUint(uint64(boardID), 10)).Inc()

	return client, nil
}

// UnregisterClient removes a client from its board.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m, ok := h.conns[client.BoardID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
			observability.WebSocketBoardConnections.WithLabelValues(strconv.FormatUint(uint64(client.BoardID), 10)).Dec()
		}
		if len(m) == 0 {
			delete(h.conns, client.BoardID)
		}
	}
}

// Broadcast sends message to every connection on a board.
func (h *Hub) Broadcast(boardID uint, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.conns[boardID]; ok {
		data := []byte(message)
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// StartWiring subscribes the hub to every board channel on the bus and
// forwards payloads verbatim to matching connections.
func (h *Hub) StartWiring(ctx context.Context, bus *realtime.Bus) error {
	stop, err := bus.SubscribePattern(ctx, func(channel, payload string) {
		boardID, err := realtime.ParseBoardChannel(channel)
		if err != nil {
			h.logger.Warn("ignoring message on unexpected channel",
				slog.String("channel", channel),
			)
			return
		}
		h.Broadcast(boardID, payload)
	})
	if err != nil {
		return err
	}
	h.stopWiring = stop
	return nil
}

// Shutdown gracefully closes all websocket connections.
func (h *Hub) Shutdown(_ context.Context) error {
	if h.stopWiring != nil {
		h.stopWiring()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for boardID, clients := range h.conns {
		for client := range clients {
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				h.logger.Warn("failed to write close message",
					slog.Uint64("board_id", uint64(boardID)),
					slog.String("error", err.Error()),
				)
			}
			if err := client.Conn.Close(); err != nil {
				h.logger.Warn("failed to close websocket",
					slog.Uint64("board_id", uint64(boardID)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	h.conns = make(map[uint]map[*Client]struct{})
	h.totalConns = 0

	return nil
}
