package models

import "time"

// TaskState is the lifecycle state of an action item's task.
type TaskState string

const (
	TaskStatePending    TaskState = "pending"
	TaskStateInProgress TaskState = "in_progress"
	TaskStateCompleted  TaskState = "completed"
	TaskStateCancelled  TaskState = "cancelled"
)

// Valid reports whether s is a known task state.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStatePending, TaskStateInProgress, TaskStateCompleted, TaskStateCancelled:
		return true
	}
	return false
}

// Task carries assignment and status metadata for an action-item post.
// At most one task exists per post; it is created lazily on the first
// assignment or status change and deleted when its post is merged away
// or deleted.
type Task struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;uniqueIndex" json:"post_id"`
	BoardID   uint      `gorm:"not null;index" json:"board_id"`
	UserID    *uint     `gorm:"index" json:"user_id"`
	State     TaskState `gorm:"not null;default:pending" json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
