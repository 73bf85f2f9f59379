// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"

	"retroboard/internal/models"

	"gorm.io/gorm"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	ListByBoard(ctx context.Context, boardID uint) ([]*models.Post, error)
	UpdateContent(ctx context.Context, id uint, content string) (*models.Post, error)
	UpdateType(ctx context.Context, id uint, postType models.PostType) (*models.Post, error)
	Delete(ctx context.Context, id uint) error
	RefreshVoteCount(ctx context.Context, id uint) (*models.Post, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("post", id)
		}
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) ListByBoard(ctx context.Context, boardID uint) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Order("created_at ASC").
		Find(&posts).Error
	return posts, err
}

func (r *postRepository) UpdateContent(ctx context.Context, id uint, content string) (*models.Post, error) {
	post, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	post.Content = content
	if err := r.db.WithContext(ctx).Save(post).Error; err != nil {
		return nil, err
	}
	return post, nil
}

func (r *postRepository) UpdateType(ctx context.Context, id uint, postType models.PostType) (*models.Post, error) {
	post, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	post.Type = postType
	if err := r.db.WithContext(ctx).Save(post).Error; err != nil {
		return nil, err
	}
	return post, nil
}

// Delete removes the post row along with its votes and task. Posts are
// hard-deleted; keeping ledger rows for a gone post would corrupt counts.
func (r *postRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Vote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.Task{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("post", id)
		}
		return nil
	})
}

// RefreshVoteCount recomputes the persisted tally from current ledger rows
// and returns the fresh post. The count is always a pure function of the
// current vote row set, never an accumulated delta.
func (r *postRepository) RefreshVoteCount(ctx context.Context, id uint) (*models.Post, error) {
	err := r.db.WithContext(ctx).Exec(
		`UPDATE posts SET vote_count = (SELECT COUNT(*) FROM votes WHERE votes.post_id = posts.id) WHERE id = ?`,
		id,
	).Error
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}
