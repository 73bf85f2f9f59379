package server

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func (s *Server) registerWebSocketRoutes() {
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	s.app.Get("/ws/boards/:boardID", websocket.New(s.BoardEventsHandler))
}

// BoardEventsHandler streams every event published on the board's channel
// to the connection. The feed is one-way; clients apply their own filtering
// (echo suppression, staleness) on receipt.
func (s *Server) BoardEventsHandler(conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	boardID, err := strconv.ParseUint(conn.Params("boardID"), 10, 32)
	if err != nil || boardID == 0 {
		s.logger.Warn("websocket connection with invalid board id",
			slog.String("board_id", conn.Params("boardID")),
		)
		return
	}

	userID, _ := strconv.ParseUint(conn.Query("user_id"), 10, 32)

	client, err := s.hub.Register(uint(boardID), uint(userID), conn)
	if err != nil {
		s.logger.Warn("websocket registration rejected",
			slog.Uint64("board_id", boardID),
			slog.String("error", err.Error()),
		)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		return
	}

	s.logger.Info("websocket client connected",
		slog.Uint64("board_id", boardID),
		slog.Uint64("user_id", userID),
	)

	go client.WritePump()
	client.ReadPump()
}
