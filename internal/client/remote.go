package client

import (
	"context"

	"retroboard/internal/models"
	"retroboard/internal/service"
)

// ServiceRemote adapts the authoritative services to the Remote interface
// for in-process sessions (simulation tools, seeding, tests against a live
// database).
type ServiceRemote struct {
	board *service.BoardService
	merge *service.MergeService
}

// NewServiceRemote wires a Remote directly to the service layer.
func NewServiceRemote(board *service.BoardService, merge *service.MergeService) *ServiceRemote {
	return &ServiceRemote{board: board, merge: merge}
}

// LoadSnapshot implements SnapshotLoader against the board service.
func (r *ServiceRemote) LoadSnapshot(ctx context.Context, boardID uint) ([]*models.Post, []*models.Task, error) {
	snapshot, err := r.board.GetSnapshot(ctx, boardID)
	if err != nil {
		return nil, nil, err
	}
	return snapshot.Posts, snapshot.Tasks, nil
}

func (r *ServiceRemote) CreatePost(ctx context.Context, boardID uint, postType models.PostType, content string, authorID *uint) (*models.Post, error) {
	return r.board.CreatePost(ctx, service.CreatePostInput{
		BoardID:  boardID,
		Type:     postType,
		Content:  content,
		AuthorID: authorID,
	})
}

func (r *ServiceRemote) UpdatePostContent(ctx context.Context, postID uint, content string) (*models.Post, error) {
	return r.board.UpdatePostContent(ctx, postID, content)
}

func (r *ServiceRemote) UpdatePostType(ctx context.Context, postID uint, postType models.PostType) (*models.Post, error) {
	return r.board.UpdatePostType(ctx, postID, postType)
}

func (r *ServiceRemote) DeletePost(ctx context.Context, postID uint) error {
	return r.board.DeletePost(ctx, postID)
}

func (r *ServiceRemote) UpVote(ctx context.Context, boardID, userID, postID uint) (*models.Post, error) {
	return r.board.UpVote(ctx, boardID, userID, postID)
}

func (r *ServiceRemote) DownVote(ctx context.Context, boardID, userID, postID uint) (*models.Post, error) {
	return r.board.DownVote(ctx, boardID, userID, postID)
}

func (r *ServiceRemote) AssignTask(ctx context.Context, postID uint, userID *uint) (*models.Task, error) {
	return r.board.AssignTask(ctx, postID, userID)
}

func (r *ServiceRemote) UpdateTaskState(ctx context.Context, postID uint, state models.TaskState) (*models.Task, error) {
	return r.board.UpdateTaskState(ctx, postID, state)
}

func (r *ServiceRemote) MergePosts(ctx context.Context, req MergeRequest) (*MergeOutcome, error) {
	result, err := r.merge.Merge(ctx, service.MergeInput{
		BoardID:       req.BoardID,
		TargetPostID:  req.TargetPostID,
		SourcePostIDs: req.SourcePostIDs,
		MergedContent: req.MergedContent,
	})
	if err != nil {
		return nil, err
	}
	return &MergeOutcome{
		MergedPost:      result.MergedPost,
		UniqueVoteCount: result.UniqueVoteCount,
		DeletedPostIDs:  result.DeletedPostIDs,
	}, nil
}
