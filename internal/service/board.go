package service

import (
	"context"
	"log/slog"

	"retroboard/internal/models"
	"retroboard/internal/repository"
)

const maxContentLen = 10000

// BoardService exposes the authoritative persistence operations for board
// content. Authorization is assumed to have passed before any call reaches
// this layer.
type BoardService struct {
	postRepo repository.PostRepository
	taskRepo repository.TaskRepository
	ledger   repository.VoteLedger
	logger   *slog.Logger
}

// CreatePostInput carries the fields for a new post.
type CreatePostInput struct {
	BoardID  uint
	Type     models.PostType
	Content  string
	AuthorID *uint
}

// Snapshot is the initial-load projection of one board: everything a client
// store needs for Initialize.
type Snapshot struct {
	Posts []*models.Post `json:"posts"`
	Tasks []*models.Task `json:"tasks"`
}

// NewBoardService creates a new board service.
func NewBoardService(
	postRepo repository.PostRepository,
	taskRepo repository.TaskRepository,
	ledger repository.VoteLedger,
	logger *slog.Logger,
) *BoardService {
	return &BoardService{
		postRepo: postRepo,
		taskRepo: taskRepo,
		ledger:   ledger,
		logger:   logger,
	}
}

// GetSnapshot returns the current posts and tasks of a board. This is the
// full-refresh path clients use after (re)subscribing.
func (s *BoardService) GetSnapshot(ctx context.Context, boardID uint) (*Snapshot, error) {
	posts, err := s.postRepo.ListByBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.taskRepo.ListByBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Posts: posts, Tasks: tasks}, nil
}

func (s *BoardService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if !in.Type.Valid() {
		return nil, models.NewValidationError("Invalid post type")
	}
	if in.Content == "" {
		return nil, models.NewValidationError("Content is required")
	}
	if len(in.Content) > maxContentLen {
		return nil, models.NewValidationError("Content too long (max 10000 characters)")
	}

	post := &models.Post{
		BoardID:  in.BoardID,
		Type:     in.Type,
		Content:  in.Content,
		AuthorID: in.AuthorID,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *BoardService) UpdatePostContent(ctx context.Context, postID uint, content string) (*models.Post, error) {
	if content == "" {
		return nil, models.NewValidationError("Content is required")
	}
	if len(content) > maxContentLen {
		return nil, models.NewValidationError("Content too long (max 10000 characters)")
	}
	return s.postRepo.UpdateContent(ctx, postID, content)
}

func (s *BoardService) UpdatePostType(ctx context.Context, postID uint, postType models.PostType) (*models.Post, error) {
	if !postType.Valid() {
		return nil, models.NewValidationError("Invalid post type")
	}
	return s.postRepo.UpdateType(ctx, postID, postType)
}

func (s *BoardService) DeletePost(ctx context.Context, postID uint) error {
	return s.postRepo.Delete(ctx, postID)
}

// UpVote inserts a ledger row for (board,user,post) and returns the post
// with its tally recomputed from current rows. Voting twice is a benign
// no-op; the returned post simply carries the unchanged count.
func (s *BoardService) UpVote(ctx context.Context, boardID, userID, postID uint) (*models.Post, error) {
	if _, err := s.postRepo.GetByID(ctx, postID); err != nil {
		return nil, err
	}
	already, err := s.ledger.Upvote(ctx, boardID, userID, postID)
	if err != nil {
		return nil, err
	}
	if already {
		s.logger.Debug("duplicate upvote ignored",
			slog.Uint64("user_id", uint64(userID)),
			slog.Uint64("post_id", uint64(postID)),
		)
	}
	return s.postRepo.RefreshVoteCount(ctx, postID)
}

// DownVote removes the (board,user,post) ledger row if present and returns
// the post with its recomputed tally.
func (s *BoardService) DownVote(ctx context.Context, boardID, userID, postID uint) (*models.Post, error) {
	if _, err := s.postRepo.GetByID(ctx, postID); err != nil {
		return nil, err
	}
	if err := s.ledger.Downvote(ctx, boardID, userID, postID); err != nil {
		return nil, err
	}
	return s.postRepo.RefreshVoteCount(ctx, postID)
}

// AssignTask sets the assignee of the post's task, creating the task lazily
// on first assignment. Only action-item posts carry tasks.
func (s *BoardService) AssignTask(ctx context.Context, postID uint, userID *uint) (*models.Task, error) {
	task, err := s.ensureTask(ctx, postID)
	if err != nil {
		return nil, err
	}
	task.UserID = userID
	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTaskState sets the lifecycle state of the post's task, creating the
// task lazily on first status change.
func (s *BoardService) UpdateTaskState(ctx context.Context, postID uint, state models.TaskState) (*models.Task, error) {
	if !state.Valid() {
		return nil, models.NewValidationError("Invalid task state")
	}
	task, err := s.ensureTask(ctx, postID)
	if err != nil {
		return nil, err
	}
	task.State = state
	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *BoardService) ensureTask(ctx context.Context, postID uint) (*models.Task, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Type != models.PostTypeActionItem {
		return nil, models.NewValidationError("Only action item posts carry tasks")
	}

	task, err := s.taskRepo.GetByPostID(ctx, postID)
	if err == nil {
		return task, nil
	}
	if !models.HasCode(err, models.CodeNotFound) {
		return nil, err
	}

	task = &models.Task{
		PostID:  postID,
		BoardID: post.BoardID,
		State:   models.TaskStatePending,
	}
	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}
