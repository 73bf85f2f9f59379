// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// PostType is one of the four fixed retrospective categories.
type PostType string

const (
	PostTypeWentWell         PostType = "went_well"
	PostTypeNeedsImprovement PostType = "needs_improvement"
	PostTypeActionItem       PostType = "action_item"
	PostTypeAppreciation     PostType = "appreciation"
)

// PostTypes lists every valid post type.
var PostTypes = []PostType{
	PostTypeWentWell,
	PostTypeNeedsImprovement,
	PostTypeActionItem,
	PostTypeAppreciation,
}

// Valid reports whether t is one of the known categories.
func (t PostType) Valid() bool {
	switch t {
	case PostTypeWentWell, PostTypeNeedsImprovement, PostTypeActionItem, PostTypeAppreciation:
		return true
	}
	return false
}

// Post represents a single content item on a retrospective board.
// VoteCount is the persisted tally; it is always recomputable from the
// vote ledger rows referencing this post.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BoardID   uint      `gorm:"not null;index" json:"board_id"`
	Type      PostType  `gorm:"not null;index" json:"type"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	AuthorID  *uint     `gorm:"index" json:"author_id"`
	VoteCount int       `gorm:"not null;default:0" json:"vote_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
