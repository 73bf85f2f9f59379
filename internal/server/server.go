// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"retroboard/internal/config"
	"retroboard/internal/database"
	"retroboard/internal/models"
	"retroboard/internal/notifications"
	"retroboard/internal/realtime"
	"retroboard/internal/repository"
	"retroboard/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config       *config.Config
	db           *gorm.DB
	redis        *redis.Client
	app          *fiber.App
	logger       *slog.Logger
	bus          *realtime.Bus
	hub          *notifications.Hub
	boardService *service.BoardService
	mergeService *service.MergeService
	shutdownCtx  context.Context
	shutdownFn   context.CancelFunc
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := database.Connect(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	var opts *redis.Options
	if strings.Contains(cfg.RedisURL, "://") {
		opts, err = redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
	} else {
		opts = &redis.Options{Addr: cfg.RedisURL}
	}
	redisClient := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	postRepo := repository.NewPostRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	ledger := repository.NewVoteLedger(db)

	shutdownCtx, shutdownFn := context.WithCancel(context.Background())

	s := &Server{
		config:       cfg,
		db:           db,
		redis:        redisClient,
		logger:       logger,
		bus:          realtime.NewBus(redisClient, logger),
		boardService: service.NewBoardService(postRepo, taskRepo, ledger, logger),
		mergeService: service.NewMergeService(db, logger),
		shutdownCtx:  shutdownCtx,
		shutdownFn:   shutdownFn,
	}
	s.hub = notifications.NewHub(logger)

	return s, nil
}

// Start wires the hub to the bus, registers routes and listens.
func (s *Server) Start() error {
	if err := s.hub.StartWiring(s.shutdownCtx, s.bus); err != nil {
		return fmt.Errorf("failed to wire board hub: %w", err)
	}

	s.app = fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		},
	})
	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.config.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, X-User-ID",
	}))

	s.registerRoutes()

	return s.app.Listen(":" + s.config.Port)
}

func (s *Server) registerRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.app.Group("/api")
	api.Get("/boards/:boardID/posts", s.GetBoardSnapshotHandler)
	api.Post("/boards/:boardID/posts", s.CreatePostHandler)
	api.Post("/boards/:boardID/merge", s.MergePostsHandler)
	api.Patch("/posts/:id/content", s.UpdatePostContentHandler)
	api.Patch("/posts/:id/type", s.UpdatePostTypeHandler)
	api.Delete("/posts/:id", s.DeletePostHandler)
	api.Post("/posts/:id/upvote", s.UpVoteHandler)
	api.Post("/posts/:id/downvote", s.DownVoteHandler)
	api.Put("/posts/:id/task/assignee", s.AssignTaskHandler)
	api.Put("/posts/:id/task/state", s.UpdateTaskStateHandler)

	s.registerWebSocketRoutes()
}

// Shutdown stops the hub, the fiber app and the shared clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownFn()
	if err := s.hub.Shutdown(ctx); err != nil {
		s.logger.Warn("hub shutdown failed", slog.String("error", err.Error()))
	}
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			return err
		}
	}
	return s.redis.Close()
}
