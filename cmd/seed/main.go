// Command main runs the demo data seeder.
package main

import (
	"flag"
	"log/slog"
	"os"

	"retroboard/internal/config"
	"retroboard/internal/database"
	"retroboard/internal/observability"
	"retroboard/internal/seed"
)

func main() {
	boards := flag.Int("boards", 2, "Number of boards to create")
	posts := flag.Int("posts", 12, "Posts per board")
	users := flag.Int("users", 6, "Size of the simulated user pool")
	clean := flag.Bool("clean", true, "Wipe existing data before seeding")
	flag.Parse()

	logger := observability.NewLogger("seed")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := database.Connect(cfg, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		logger.Error("migration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if *clean {
		if err := seed.Wipe(db); err != nil {
			logger.Error("cleanup failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	opts := seed.DefaultOptions()
	opts.Boards = *boards
	opts.PostsPerBoard = *posts
	opts.Users = *users

	if err := seed.Run(db, opts, logger); err != nil {
		logger.Error("seeding failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("seeding complete",
		slog.Int("boards", opts.Boards),
		slog.Int("posts_per_board", opts.PostsPerBoard),
	)
}
