package realtime

import (
	"errors"
	"log/slog"
	"time"

	"retroboard/internal/observability"
	"retroboard/internal/store"
)

// StalenessThreshold is the maximum age of a delta-style message (vote,
// merge) before it is discarded as obsolete. It guards against a
// reconnecting client replaying a backlog of deltas long after fresher
// state has superseded them. Assumes bounded clock skew between publisher
// and subscriber.
const StalenessThreshold = 30 * time.Second

// Router dispatches validated board messages to store mutators. Self-echo
// suppression and the staleness filter apply only to count-affecting kinds
// (vote, merge); everything else is last-write-wins on content fields.
type Router struct {
	store  *store.Store
	userID uint
	logger *slog.Logger

	// Staleness is the drop threshold for vote/merge messages. Tests and
	// deployments with known clock skew may widen it.
	Staleness time.Duration
	// now is swappable in tests.
	now func() time.Time
}

// NewRouter creates a router applying inbound messages on behalf of the
// given local user.
func NewRouter(st *store.Store, currentUserID uint, logger *slog.Logger) *Router {
	return &Router{
		store:     st,
		userID:    currentUserID,
		logger:    logger,
		Staleness: StalenessThreshold,
		now:       time.Now,
	}
}

// Handle validates, filters and applies one envelope. It never panics and
// never returns an error: a malformed or throwing message is logged,
// counted and dropped so the subscription loop is unaffected.
func (r *Router) Handle(env Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			observability.RealtimeMessagesDropped.WithLabelValues(string(env.Kind), "panic").Inc()
			r.logger.Error("message handler panicked",
				slog.String("kind", string(env.Kind)),
				slog.String("message_id", env.ID),
				slog.Any("panic", rec),
			)
		}
	}()

	payload, err := DecodePayload(env.Kind, env.Payload)
	if err != nil {
		var unknown *ErrUnknownKind
		if errors.As(err, &unknown) {
			observability.RealtimeMessagesDropped.WithLabelValues(string(env.Kind), "unknown_kind").Inc()
			r.logger.Warn("ignoring unknown message kind",
				slog.String("kind", string(env.Kind)),
				slog.String("message_id", env.ID),
			)
			return
		}
		observability.RealtimeMessagesDropped.WithLabelValues(string(env.Kind), "invalid").Inc()
		r.logger.Error("dropping malformed message",
			slog.String("kind", string(env.Kind)),
			slog.String("message_id", env.ID),
			slog.String("raw_payload", string(env.Payload)),
			slog.String("error", err.Error()),
		)
		return
	}

	// Count-affecting kinds double-count if the originating client
	// re-applies them (the optimistic mutation already did), and a
	// replayed backlog of old deltas would fight fresher state.
	if countAffecting(env.Kind) {
		if env.Headers.User == r.userID {
			observability.RealtimeMessagesDropped.WithLabelValues(string(env.Kind), "self_echo").Inc()
			return
		}
		if age := r.messageAge(payload); age > r.Staleness {
			observability.RealtimeMessagesDropped.WithLabelValues(string(env.Kind), "stale").Inc()
			r.logger.Warn("dropping stale message",
				slog.String("kind", string(env.Kind)),
				slog.String("message_id", env.ID),
				slog.Duration("age", age),
			)
			return
		}
	}

	r.apply(env.Kind, payload)
	observability.RealtimeMessagesApplied.WithLabelValues(string(env.Kind)).Inc()
}

func (r *Router) apply(kind Kind, payload any) {
	switch p := payload.(type) {
	case PostAddPayload:
		r.store.AddPost(p.Post())
	case PostContentPayload:
		r.store.SetContent(p.ID, p.Content)
	case PostTypePayload:
		r.store.SetType(p.ID, p.Type)
	case PostDeletePayload:
		r.store.RemovePost(p.ID)
	case VotePayload:
		if kind == KindPostUpvote {
			r.store.IncrementVote(p.ID)
		} else {
			r.store.DecrementVote(p.ID)
		}
	case MergePayload:
		r.store.ApplyMerge(p.MergedPost.Post(), p.DeletedPostIDs, p.UniqueVoteCount)
	case TaskCreatePayload:
		r.store.UpsertTask(p.Task())
	case TaskAssignPayload:
		r.store.AssignTask(p.PostID, p.UserID)
	case TaskStatePayload:
		r.store.SetTaskState(p.PostID, p.State)
	}
}

func countAffecting(kind Kind) bool {
	switch kind {
	case KindPostUpvote, KindPostDownvote, KindPostMerge:
		return true
	}
	return false
}

func (r *Router) messageAge(payload any) time.Duration {
	var ms int64
	switch p := payload.(type) {
	case VotePayload:
		ms = p.Timestamp
	case MergePayload:
		ms = p.Timestamp
	default:
		return 0
	}
	return r.now().Sub(time.UnixMilli(ms))
}
