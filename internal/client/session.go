package client

import (
	"context"
	"log/slog"

	"retroboard/internal/models"
	"retroboard/internal/realtime"
	"retroboard/internal/store"
)

// SnapshotLoader fetches the full board projection used to (re)initialize a
// session's store.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, boardID uint) ([]*models.Post, []*models.Task, error)
}

// Session is one user's live attachment to one board: a local store, the
// mutation API, and a bus subscription routing peer events into the store.
type Session struct {
	Store   *store.Store
	Actions *Actions

	router *realtime.Router
	stop   func()
}

// OpenSession loads the board snapshot, subscribes to the board channel and
// returns a ready session. Close must be called to release the
// subscription.
func OpenSession(
	ctx context.Context,
	remote Remote,
	bus *realtime.Bus,
	snapshot SnapshotLoader,
	boardID, userID uint,
	logger *slog.Logger,
) (*Session, error) {
	st := store.New()
	s := &Session{
		Store:   st,
		Actions: NewActions(st, remote, bus, boardID, userID, logger, nil),
		router:  realtime.NewRouter(st, userID, logger),
	}

	// Subscribe before the initial load so no event published in between is
	// missed; anything that both landed in the snapshot and arrives as a
	// message is absorbed by idempotent application.
	stop, err := bus.Subscribe(ctx, boardID, s.router.Handle)
	if err != nil {
		return nil, err
	}
	s.stop = stop

	posts, tasks, err := snapshot.LoadSnapshot(ctx, boardID)
	if err != nil {
		stop()
		return nil, err
	}
	st.Initialize(posts, tasks)

	return s, nil
}

// Close releases the board subscription.
func (s *Session) Close() {
	if s.stop != nil {
		s.stop()
	}
}
