package models

import "time"

// Board is the shared workspace for one retrospective session.
// Board lifecycle (create/archive) is handled outside this core; the row
// exists so posts, tasks and votes have an owning scope.
type Board struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
