// Package client implements the mutation API: every user-initiated action
// pairs an optimistic store mutation with the authoritative remote call and
// a broadcast, and guarantees an exact rollback when the remote call fails.
package client

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"retroboard/internal/models"
	"retroboard/internal/observability"
	"retroboard/internal/realtime"
	"retroboard/internal/store"
)

// MergeRequest asks the authoritative side to combine posts.
type MergeRequest struct {
	BoardID       uint
	TargetPostID  uint
	SourcePostIDs []uint
	MergedContent string
}

// MergeOutcome is the committed merge result returned by the remote.
type MergeOutcome struct {
	MergedPost      *models.Post
	UniqueVoteCount int
	DeletedPostIDs  []uint
}

// Remote is the authoritative persistence collaborator. Each call persists
// the change (including the authorization check) and returns the persisted
// entity, or an error on constraint violation.
type Remote interface {
	CreatePost(ctx context.Context, boardID uint, postType models.PostType, content string, authorID *uint) (*models.Post, error)
	UpdatePostContent(ctx context.Context, postID uint, content string) (*models.Post, error)
	UpdatePostType(ctx context.Context, postID uint, postType models.PostType) (*models.Post, error)
	DeletePost(ctx context.Context, postID uint) error
	UpVote(ctx context.Context, boardID, userID, postID uint) (*models.Post, error)
	DownVote(ctx context.Context, boardID, userID, postID uint) (*models.Post, error)
	AssignTask(ctx context.Context, postID uint, userID *uint) (*models.Task, error)
	UpdateTaskState(ctx context.Context, postID uint, state models.TaskState) (*models.Task, error)
	MergePosts(ctx context.Context, req MergeRequest) (*MergeOutcome, error)
}

// optimistic post IDs live far above anything the server hands out, so a
// placeholder can never shadow a real row before the swap.
const tempIDBase = 1 << 30

// Actions binds the local store, the remote collaborator and the board
// channel publisher for one user's session on one board.
type Actions struct {
	store   *store.Store
	remote  Remote
	bus     realtime.Publisher
	boardID uint
	userID  uint
	logger  *slog.Logger
	onError func(operation string, err error)
	now     func() time.Time

	nextTemp atomic.Uint64
}

// NewActions creates the mutation API for one session. onError surfaces a
// transient user-visible failure after the automatic rollback; it may be
// nil.
func NewActions(
	st *store.Store,
	remote Remote,
	bus realtime.Publisher,
	boardID, userID uint,
	logger *slog.Logger,
	onError func(operation string, err error),
) *Actions {
	a := &Actions{
		store:   st,
		remote:  remote,
		bus:     bus,
		boardID: boardID,
		userID:  userID,
		logger:  logger,
		onError: onError,
		now:     time.Now,
	}
	a.nextTemp.Store(tempIDBase)
	return a
}

// CreatePost shows a placeholder immediately, then swaps in the persisted
// post and broadcasts the full entity.
func (a *Actions) CreatePost(ctx context.Context, postType models.PostType, content string) error {
	var author *uint
	if a.userID != 0 {
		u := a.userID
		author = &u
	}
	placeholder := &models.Post{
		ID:        uint(a.nextTemp.Add(1)),
		BoardID:   a.boardID,
		Type:      postType,
		Content:   content,
		AuthorID:  author,
		CreatedAt: a.now(),
		UpdatedAt: a.now(),
	}
	removePlaceholder := a.store.AddPost(placeholder)

	persisted, err := a.remote.CreatePost(ctx, a.boardID, postType, content, author)
	if err != nil {
		removePlaceholder()
		a.fail("create post", uint64(placeholder.ID), err)
		return err
	}

	removePlaceholder()
	a.store.AddPost(persisted)
	a.publish(ctx, realtime.KindPostAdd, postPayload(persisted))
	return nil
}

// DeletePost removes the post optimistically; on failure the post list is
// restored to exactly its pre-delete state.
func (a *Actions) DeletePost(ctx context.Context, postID uint) error {
	rollback := a.store.RemovePost(postID)

	if err := a.remote.DeletePost(ctx, postID); err != nil {
		rollback()
		a.fail("delete post", uint64(postID), err)
		return err
	}

	a.publish(ctx, realtime.KindPostDelete, realtime.PostDeletePayload{ID: postID})
	return nil
}

// UpdateContent edits a post's text. Content conflicts resolve
// last-write-wins.
func (a *Actions) UpdateContent(ctx context.Context, postID uint, content string) error {
	rollback := a.store.SetContent(postID, content)

	if _, err := a.remote.UpdatePostContent(ctx, postID, content); err != nil {
		rollback()
		a.fail("update post content", uint64(postID), err)
		return err
	}

	a.publish(ctx, realtime.KindPostUpdateContent, realtime.PostContentPayload{ID: postID, Content: content})
	return nil
}

// UpdateType moves a post to another category.
func (a *Actions) UpdateType(ctx context.Context, postID uint, postType models.PostType) error {
	rollback := a.store.SetType(postID, postType)

	if _, err := a.remote.UpdatePostType(ctx, postID, postType); err != nil {
		rollback()
		a.fail("update post type", uint64(postID), err)
		return err
	}

	a.publish(ctx, realtime.KindPostUpdateType, realtime.PostTypePayload{ID: postID, Type: postType})
	return nil
}

// UpVote bumps the tally optimistically, then pins it to the authoritative
// recomputed count (which also absorbs the benign duplicate-vote case).
func (a *Actions) UpVote(ctx context.Context, postID uint) error {
	rollback := a.store.IncrementVote(postID)

	post, err := a.remote.UpVote(ctx, a.boardID, a.userID, postID)
	if err != nil {
		rollback()
		a.fail("upvote", uint64(postID), err)
		return err
	}

	a.store.SetVoteCount(postID, post.VoteCount)
	a.publish(ctx, realtime.KindPostUpvote, realtime.VotePayload{
		ID:        postID,
		Operation: realtime.OpUpvote,
		UserID:    a.userID,
		Timestamp: a.now().UnixMilli(),
	})
	return nil
}

// DownVote mirrors UpVote with a saturating decrement.
func (a *Actions) DownVote(ctx context.Context, postID uint) error {
	rollback := a.store.DecrementVote(postID)

	post, err := a.remote.DownVote(ctx, a.boardID, a.userID, postID)
	if err != nil {
		rollback()
		a.fail("downvote", uint64(postID), err)
		return err
	}

	a.store.SetVoteCount(postID, post.VoteCount)
	a.publish(ctx, realtime.KindPostDownvote, realtime.VotePayload{
		ID:        postID,
		Operation: realtime.OpDownvote,
		UserID:    a.userID,
		Timestamp: a.now().UnixMilli(),
	})
	return nil
}

// AssignTask sets the assignee of an action item's task. The first change
// creates the task remotely; receivers learn about it via ACTION_CREATE,
// later changes travel as partial ACTION_ASSIGN updates.
func (a *Actions) AssignTask(ctx context.Context, postID uint, userID *uint) error {
	_, hadTask := a.store.Task(postID)
	rollback := a.store.AssignTask(postID, userID)

	task, err := a.remote.AssignTask(ctx, postID, userID)
	if err != nil {
		rollback()
		a.fail("assign task", uint64(postID), err)
		return err
	}

	a.store.UpsertTask(task)
	if hadTask {
		a.publish(ctx, realtime.KindActionAssign, realtime.TaskAssignPayload{PostID: postID, UserID: userID})
	} else {
		a.publish(ctx, realtime.KindActionCreate, taskPayload(task))
	}
	return nil
}

// UpdateTaskState changes the lifecycle state of an action item's task.
func (a *Actions) UpdateTaskState(ctx context.Context, postID uint, state models.TaskState) error {
	_, hadTask := a.store.Task(postID)
	rollback := a.store.SetTaskState(postID, state)

	task, err := a.remote.UpdateTaskState(ctx, postID, state)
	if err != nil {
		rollback()
		a.fail("update task state", uint64(postID), err)
		return err
	}

	a.store.UpsertTask(task)
	if hadTask {
		a.publish(ctx, realtime.KindActionStateUpdate, realtime.TaskStatePayload{PostID: postID, State: state})
	} else {
		a.publish(ctx, realtime.KindActionCreate, taskPayload(task))
	}
	return nil
}

// Merge combines posts. The optimistic application keeps the target's
// current live tally; the committed result pins the recomputed unique
// count within one round trip.
func (a *Actions) Merge(ctx context.Context, targetPostID uint, sourcePostIDs []uint, mergedContent string) error {
	target, ok := a.store.Post(targetPostID)
	if !ok {
		err := models.NewNotFoundError("post", targetPostID)
		a.fail("merge posts", uint64(targetPostID), err)
		return err
	}
	optimistic := target
	optimistic.Content = mergedContent
	rollback := a.store.ApplyMerge(&optimistic, sourcePostIDs, a.store.VoteCount(targetPostID))

	out, err := a.remote.MergePosts(ctx, MergeRequest{
		BoardID:       a.boardID,
		TargetPostID:  targetPostID,
		SourcePostIDs: sourcePostIDs,
		MergedContent: mergedContent,
	})
	if err != nil {
		rollback()
		a.fail("merge posts", uint64(targetPostID), err)
		return err
	}

	a.store.ApplyMerge(out.MergedPost, out.DeletedPostIDs, out.UniqueVoteCount)
	a.publish(ctx, realtime.KindPostMerge, realtime.MergePayload{
		TargetPostID:    targetPostID,
		SourcePostIDs:   sourcePostIDs,
		MergedPost:      postPayload(out.MergedPost),
		UniqueVoteCount: out.UniqueVoteCount,
		DeletedPostIDs:  out.DeletedPostIDs,
		Timestamp:       a.now().UnixMilli(),
	})
	return nil
}

// fail logs the rolled-back operation and surfaces a transient error.
func (a *Actions) fail(operation string, entityID uint64, err error) {
	a.logger.Error("remote call failed, optimistic update rolled back",
		slog.String("operation", operation),
		slog.Uint64("entity_id", entityID),
		slog.String("error", err.Error()),
	)
	if a.onError != nil {
		a.onError(operation, err)
	}
}

// publish broadcasts a domain event tagged with the acting user. It is
// best-effort: a failure after the committed write is logged and counted,
// never propagated — the cost is delayed sync for other clients, repaired
// by their next full refresh.
func (a *Actions) publish(ctx context.Context, kind realtime.Kind, payload any) {
	env, err := realtime.NewEnvelope(kind, a.userID, payload)
	if err != nil {
		observability.BroadcastFailures.Inc()
		a.logger.Error("failed to build broadcast envelope",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := a.bus.Publish(ctx, a.boardID, env); err != nil {
		observability.BroadcastFailures.Inc()
		a.logger.Error("failed to broadcast event",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}
}

func postPayload(p *models.Post) realtime.PostAddPayload {
	return realtime.PostAddPayload{
		ID:        p.ID,
		BoardID:   p.BoardID,
		Type:      p.Type,
		Content:   p.Content,
		AuthorID:  p.AuthorID,
		VoteCount: p.VoteCount,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func taskPayload(t *models.Task) realtime.TaskCreatePayload {
	return realtime.TaskCreatePayload{
		ID:      t.ID,
		PostID:  t.PostID,
		BoardID: t.BoardID,
		UserID:  t.UserID,
		State:   t.State,
	}
}
