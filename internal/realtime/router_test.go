package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"retroboard/internal/models"
	"retroboard/internal/observability"
	"retroboard/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	localUser  uint = 1
	remoteUser uint = 2
)

func newTestRouter(t *testing.T) (*Router, *store.Store) {
	t.Helper()
	st := store.New()
	st.Initialize([]*models.Post{
		{ID: 1, BoardID: 1, Type: models.PostTypeWentWell, Content: "first", VoteCount: 1, CreatedAt: time.Now(), UpdatedAt: time.Now()},
		{ID: 2, BoardID: 1, Type: models.PostTypeActionItem, Content: "second", VoteCount: 0, CreatedAt: time.Now(), UpdatedAt: time.Now()},
	}, nil)
	return NewRouter(st, localUser, observability.NopLogger()), st
}

func envelopeFor(t *testing.T, kind Kind, userID uint, payload any) Envelope {
	t.Helper()
	env, err := NewEnvelope(kind, userID, payload)
	require.NoError(t, err)
	return env
}

func voteEnvelope(t *testing.T, userID uint, ts time.Time) Envelope {
	return envelopeFor(t, KindPostUpvote, userID, VotePayload{
		ID:        1,
		Operation: OpUpvote,
		UserID:    userID,
		Timestamp: ts.UnixMilli(),
	})
}

func TestHandleAppliesRemoteVote(t *testing.T) {
	r, st := newTestRouter(t)

	r.Handle(voteEnvelope(t, remoteUser, time.Now()))
	assert.Equal(t, 2, st.VoteCount(1))
}

func TestHandleSuppressesSelfEcho(t *testing.T) {
	r, st := newTestRouter(t)

	// Simulate the local optimistic increment that precedes the echo.
	st.IncrementVote(1)
	require.Equal(t, 2, st.VoteCount(1))

	r.Handle(voteEnvelope(t, localUser, time.Now()))
	assert.Equal(t, 2, st.VoteCount(1), "echoed own vote must not double-count")
}

func TestHandleStalenessBoundary(t *testing.T) {
	r, st := newTestRouter(t)
	now := time.Now()
	r.now = func() time.Time { return now }

	r.Handle(voteEnvelope(t, remoteUser, now.Add(-29*time.Second)))
	assert.Equal(t, 2, st.VoteCount(1), "29s old vote applies")

	r.Handle(voteEnvelope(t, remoteUser, now.Add(-31*time.Second)))
	assert.Equal(t, 2, st.VoteCount(1), "31s old vote is dropped")
}

func TestHandleStalenessDoesNotGateContentUpdates(t *testing.T) {
	r, st := newTestRouter(t)

	// Content kinds carry no timestamp and are last-write-wins regardless
	// of age or origin.
	r.Handle(envelopeFor(t, KindPostUpdateContent, localUser, PostContentPayload{ID: 1, Content: "rewritten"}))
	post, ok := st.Post(1)
	require.True(t, ok)
	assert.Equal(t, "rewritten", post.Content)
}

func TestHandleUnknownKindIgnored(t *testing.T) {
	r, st := newTestRouter(t)
	before := st.Posts()

	r.Handle(Envelope{ID: "m1", Kind: "BOARD_RENAME", Payload: json.RawMessage(`{"name":"x"}`)})
	assert.Equal(t, before, st.Posts(), "unknown kinds leave the store untouched")
}

func TestHandleMalformedMessageIsolated(t *testing.T) {
	r, st := newTestRouter(t)

	r.Handle(Envelope{ID: "m1", Kind: KindPostDelete, Payload: json.RawMessage(`{"id":0}`)})
	r.Handle(Envelope{ID: "m2", Kind: KindPostAdd, Payload: json.RawMessage(`not json at all`)})
	assert.Len(t, st.Posts(), 2, "malformed messages never mutate state")

	// A valid message right after still applies.
	r.Handle(envelopeFor(t, KindPostDelete, remoteUser, PostDeletePayload{ID: 2}))
	assert.Len(t, st.Posts(), 1)
}

func TestHandleMergeIdempotentOnRedelivery(t *testing.T) {
	r, st := newTestRouter(t)

	merged := PostAddPayload{
		ID: 1, BoardID: 1, Type: models.PostTypeWentWell, Content: "combined",
		VoteCount: 3, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	env := envelopeFor(t, KindPostMerge, remoteUser, MergePayload{
		TargetPostID:    1,
		SourcePostIDs:   []uint{2},
		MergedPost:      merged,
		UniqueVoteCount: 3,
		DeletedPostIDs:  []uint{2},
		Timestamp:       time.Now().UnixMilli(),
	})

	r.Handle(env)
	r.Handle(env) // at-least-once delivery

	posts := st.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, "combined", posts[0].Content)
	assert.Equal(t, 3, st.VoteCount(1))
}

func TestHandleMergeWithIncompleteProjectionDropped(t *testing.T) {
	r, st := newTestRouter(t)

	// A merged post carrying only an ID (no category, content, board or
	// timestamps) would replace the target wholesale with a hollow record.
	env := envelopeFor(t, KindPostMerge, remoteUser, MergePayload{
		TargetPostID:    1,
		SourcePostIDs:   []uint{2},
		MergedPost:      PostAddPayload{ID: 1, Type: "not_a_category"},
		UniqueVoteCount: 3,
		DeletedPostIDs:  []uint{2},
		Timestamp:       time.Now().UnixMilli(),
	})
	r.Handle(env)

	assert.Len(t, st.Posts(), 2, "sources must survive a rejected merge")
	post, ok := st.Post(1)
	require.True(t, ok)
	assert.Equal(t, "first", post.Content)
	assert.True(t, post.Type.Valid())
	assert.Equal(t, 1, st.VoteCount(1))
}

func TestHandleSelfMergeEchoSuppressed(t *testing.T) {
	r, st := newTestRouter(t)

	env := envelopeFor(t, KindPostMerge, localUser, MergePayload{
		TargetPostID:  1,
		SourcePostIDs: []uint{2},
		MergedPost: PostAddPayload{
			ID: 1, BoardID: 1, Type: models.PostTypeWentWell, Content: "combined",
			VoteCount: 3, CreatedAt: time.Now(), UpdatedAt: time.Now(),
		},
		UniqueVoteCount: 3,
		DeletedPostIDs:  []uint{2},
		Timestamp:       time.Now().UnixMilli(),
	})
	r.Handle(env)

	assert.Len(t, st.Posts(), 2, "initiator already applied the merge locally")
}

func TestHandleTaskMessages(t *testing.T) {
	r, st := newTestRouter(t)

	r.Handle(envelopeFor(t, KindActionCreate, remoteUser, TaskCreatePayload{
		ID: 10, PostID: 2, BoardID: 1, State: models.TaskStatePending,
	}))
	task, ok := st.Task(2)
	require.True(t, ok)
	assert.Equal(t, models.TaskStatePending, task.State)

	assignee := uint(5)
	r.Handle(envelopeFor(t, KindActionAssign, remoteUser, TaskAssignPayload{PostID: 2, UserID: &assignee}))
	task, _ = st.Task(2)
	require.NotNil(t, task.UserID)
	assert.Equal(t, uint(5), *task.UserID)

	r.Handle(envelopeFor(t, KindActionStateUpdate, remoteUser, TaskStatePayload{PostID: 2, State: models.TaskStateCompleted}))
	task, _ = st.Task(2)
	assert.Equal(t, models.TaskStateCompleted, task.State)
}

// Deltas from any number of peers converge to the same tally regardless of
// arrival order.
func TestConcurrentVotesConverge(t *testing.T) {
	orders := [][]uint{
		{2, 3, 4},
		{4, 2, 3},
		{3, 4, 2},
	}
	for _, order := range orders {
		r, st := newTestRouter(t)
		for _, user := range order {
			env := envelopeFor(t, KindPostUpvote, user, VotePayload{
				ID: 1, Operation: OpUpvote, UserID: user, Timestamp: time.Now().UnixMilli(),
			})
			r.Handle(env)
		}
		assert.Equal(t, 4, st.VoteCount(1), "1 persisted + 3 remote votes in any order")
	}
}
