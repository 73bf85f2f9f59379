// Package seed provides helpers to create demo retrospective boards for
// development and testing.
package seed

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"retroboard/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Options tunes the generated dataset.
type Options struct {
	Boards        int
	PostsPerBoard int
	Users         int
	// MaxDays spreads post timestamps over this many days back.
	MaxDays int
}

// DefaultOptions gives a small demo dataset: a couple of boards with a
// realistic mix of post types, votes and action items.
func DefaultOptions() Options {
	return Options{
		Boards:        2,
		PostsPerBoard: 12,
		Users:         6,
		MaxDays:       14,
	}
}

// Run populates the database with demo boards.
func Run(db *gorm.DB, opts Options, logger *slog.Logger) error {
	f := NewFactory(db, opts)

	for i := 0; i < opts.Boards; i++ {
		board, err := f.CreateBoard()
		if err != nil {
			return fmt.Errorf("failed to seed board: %w", err)
		}

		posts, err := f.CreatePostsBatch(board, opts.PostsPerBoard)
		if err != nil {
			return fmt.Errorf("failed to seed posts for board %d: %w", board.ID, err)
		}

		votes, tasks, err := f.SprinkleActivity(board, posts)
		if err != nil {
			return fmt.Errorf("failed to seed activity for board %d: %w", board.ID, err)
		}

		logger.Info("seeded board",
			slog.Uint64("board_id", uint64(board.ID)),
			slog.Int("posts", len(posts)),
			slog.Int("votes", votes),
			slog.Int("tasks", tasks),
		)
	}
	return nil
}

// Wipe removes all seeded data. Order matters for foreign keys.
func Wipe(db *gorm.DB) error {
	for _, model := range []interface{}{
		&models.Vote{}, &models.Task{}, &models.Post{}, &models.Board{},
	} {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db   *gorm.DB
	opts Options
	rng  *rand.Rand
}

// NewFactory creates a Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	gofakeit.Seed(time.Now().UnixNano())
	return &Factory{
		db:   db,
		opts: opts,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateBoard persists a board with a sprint-retro flavored name.
func (f *Factory) CreateBoard() (*models.Board, error) {
	board := &models.Board{
		Name: fmt.Sprintf("%s Retro - Sprint %d", gofakeit.AppName(), f.rng.Intn(40)+1),
	}
	if err := f.db.Create(board).Error; err != nil {
		return nil, err
	}
	return board, nil
}

// BuildPost constructs a post without persisting it.
func (f *Factory) BuildPost(board *models.Board) *models.Post {
	author := uint(f.rng.Intn(f.opts.Users) + 1)

	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 14
	}
	back := time.Duration(f.rng.Intn(maxDays))*24*time.Hour +
		time.Duration(f.rng.Intn(24))*time.Hour +
		time.Duration(f.rng.Intn(60))*time.Minute
	createdAt := time.Now().Add(-back)

	return &models.Post{
		BoardID:   board.ID,
		Type:      models.PostTypes[f.rng.Intn(len(models.PostTypes))],
		Content:   gofakeit.Sentence(f.rng.Intn(12) + 4),
		AuthorID:  &author,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// CreatePostsBatch persists n posts for the board in one insert.
func (f *Factory) CreatePostsBatch(board *models.Board, n int) ([]*models.Post, error) {
	posts := make([]*models.Post, 0, n)
	for i := 0; i < n; i++ {
		posts = append(posts, f.BuildPost(board))
	}
	if err := f.db.Create(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// SprinkleActivity adds votes and action-item tasks over the posts. Every
// vote goes through the ledger table so tallies stay consistent with rows.
func (f *Factory) SprinkleActivity(board *models.Board, posts []*models.Post) (votes, tasks int, err error) {
	for _, post := range posts {
		voters := f.rng.Intn(f.opts.Users + 1)
		seen := make(map[uint]bool, voters)
		for v := 0; v < voters; v++ {
			userID := uint(f.rng.Intn(f.opts.Users) + 1)
			if seen[userID] {
				continue
			}
			seen[userID] = true
			vote := &models.Vote{BoardID: board.ID, UserID: userID, PostID: post.ID}
			if err := f.db.Create(vote).Error; err != nil {
				return votes, tasks, err
			}
			votes++
		}
		if len(seen) > 0 {
			if err := f.db.Model(post).Update("vote_count", len(seen)).Error; err != nil {
				return votes, tasks, err
			}
		}

		if post.Type == models.PostTypeActionItem && f.rng.Intn(2) == 0 {
			assignee := uint(f.rng.Intn(f.opts.Users) + 1)
			task := &models.Task{
				PostID:  post.ID,
				BoardID: board.ID,
				UserID:  &assignee,
				State:   randomTaskState(f.rng),
			}
			if err := f.db.Create(task).Error; err != nil {
				return votes, tasks, err
			}
			tasks++
		}
	}
	return votes, tasks, nil
}

func randomTaskState(rng *rand.Rand) models.TaskState {
	states := []models.TaskState{
		models.TaskStatePending,
		models.TaskStatePending,
		models.TaskStateInProgress,
		models.TaskStateCompleted,
	}
	return states[rng.Intn(len(states))]
}
