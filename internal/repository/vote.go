package repository

import (
	"context"

	"retroboard/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VoteLedger is the authoritative per-(board,user,post) vote store.
// A vote is a presence fact: rows are inserted and deleted, never updated.
// Tallies are derived from row membership (PostRepository.RefreshVoteCount),
// never read back through the ledger.
type VoteLedger interface {
	// Upvote inserts a ledger row. A duplicate insert is a benign conflict
	// and reports alreadyVoted = true.
	Upvote(ctx context.Context, boardID, userID, postID uint) (alreadyVoted bool, err error)
	// Downvote deletes the ledger row if present.
	Downvote(ctx context.Context, boardID, userID, postID uint) error
}

type voteLedger struct {
	db *gorm.DB
}

// NewVoteLedger creates a new vote ledger backed by the given database.
func NewVoteLedger(db *gorm.DB) VoteLedger {
	return &voteLedger{db: db}
}

func (l *voteLedger) Upvote(ctx context.Context, boardID, userID, postID uint) (bool, error) {
	vote := &models.Vote{BoardID: boardID, UserID: userID, PostID: postID}
	// ON CONFLICT DO NOTHING makes the insert idempotent under the unique
	// (board_id, user_id, post_id) index.
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(vote)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 0, nil
}

func (l *voteLedger) Downvote(ctx context.Context, boardID, userID, postID uint) error {
	return l.db.WithContext(ctx).
		Where("board_id = ? AND user_id = ? AND post_id = ?", boardID, userID, postID).
		Delete(&models.Vote{}).Error
}

