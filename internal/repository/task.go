package repository

import (
	"context"
	"errors"

	"retroboard/internal/models"

	"gorm.io/gorm"
)

// TaskRepository defines the interface for task data operations. Task
// deletion rides along with its post: the post repository and the merge
// engine remove task rows inside their own transactions.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByPostID(ctx context.Context, postID uint) (*models.Task, error)
	ListByBoard(ctx context.Context, boardID uint) ([]*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
}

type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) Create(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *taskRepository) GetByPostID(ctx context.Context, postID uint) (*models.Task, error) {
	var task models.Task
	err := r.db.WithContext(ctx).Where("post_id = ?", postID).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("task for post", postID)
		}
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) ListByBoard(ctx context.Context, boardID uint) ([]*models.Task, error) {
	var tasks []*models.Task
	err := r.db.WithContext(ctx).Where("board_id = ?", boardID).Find(&tasks).Error
	return tasks, err
}

func (r *taskRepository) Update(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Save(task).Error
}
