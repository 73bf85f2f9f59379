package models

import "time"

// Vote records one user's endorsement of one post.
// The combination of BoardID, UserID and PostID must be unique: a vote is a
// presence fact, never an updatable counter. Vote counts are derived by
// counting current rows, which is what keeps merge-time recomputation exact.
type Vote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BoardID   uint      `gorm:"not null;uniqueIndex:idx_board_user_post" json:"board_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_board_user_post" json:"user_id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_board_user_post;index" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}
