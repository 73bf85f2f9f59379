package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"retroboard/internal/models"
	"retroboard/internal/observability"

	"gorm.io/gorm"
)

// MergeInput describes a request to combine several posts into one.
type MergeInput struct {
	BoardID       uint
	TargetPostID  uint
	SourcePostIDs []uint
	MergedContent string
}

// MergeResult is the committed outcome of a merge.
type MergeResult struct {
	MergedPost      *models.Post `json:"merged_post"`
	UniqueVoteCount int          `json:"unique_vote_count"`
	DeletedPostIDs  []uint       `json:"deleted_post_ids"`
}

// MergeService combines posts inside a single transaction, recomputing the
// surviving post's vote count from current ledger rows so that a user who
// voted on several merged posts counts exactly once.
type MergeService struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewMergeService creates a new merge service bound to the given database.
func NewMergeService(db *gorm.DB, logger *slog.Logger) *MergeService {
	return &MergeService{db: db, logger: logger}
}

// Merge runs the merge engine. Validation failures are rejected before the
// transaction opens; inside the transaction any missing or cross-board post
// aborts with no partial effect.
func (s *MergeService) Merge(ctx context.Context, in MergeInput) (*MergeResult, error) {
	if len(in.SourcePostIDs) == 0 {
		observability.MergeTransactions.WithLabelValues("rejected").Inc()
		return nil, models.NewValidationError("At least one source post is required")
	}
	sources := dedupeIDs(in.SourcePostIDs)
	for _, id := range sources {
		if id == in.TargetPostID {
			observability.MergeTransactions.WithLabelValues("rejected").Inc()
			return nil, models.NewValidationError("Target post cannot be one of the source posts")
		}
	}

	var result *MergeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		mergeSet := append([]uint{in.TargetPostID}, sources...)

		var posts []*models.Post
		if err := tx.Where("id IN ? AND board_id = ?", mergeSet, in.BoardID).Find(&posts).Error; err != nil {
			return err
		}
		if len(posts) != len(mergeSet) {
			found := make(map[uint]bool, len(posts))
			for _, p := range posts {
				found[p.ID] = true
			}
			for _, id := range mergeSet {
				if !found[id] {
					return models.NewNotFoundError("post", id)
				}
			}
		}
		var target *models.Post
		for _, p := range posts {
			if p.ID == in.TargetPostID {
				target = p
			}
		}

		var votes []*models.Vote
		if err := tx.Where("post_id IN ?", mergeSet).Order("id ASC").Find(&votes).Error; err != nil {
			return err
		}

		// Retain exactly one ledger row per distinct user, preferring a row
		// already on the target so no re-point is needed for that user.
		retained := make(map[uint]*models.Vote)
		var surplus []uint
		for _, v := range votes {
			kept, ok := retained[v.UserID]
			switch {
			case !ok:
				retained[v.UserID] = v
			case v.PostID == in.TargetPostID && kept.PostID != in.TargetPostID:
				surplus = append(surplus, kept.ID)
				retained[v.UserID] = v
			default:
				surplus = append(surplus, v.ID)
			}
		}
		if len(surplus) > 0 {
			if err := tx.Where("id IN ?", surplus).Delete(&models.Vote{}).Error; err != nil {
				return err
			}
		}
		// Surplus rows are gone, so re-pointing cannot collide with the
		// unique (board,user,post) index.
		var repoint []uint
		for _, v := range retained {
			if v.PostID != in.TargetPostID {
				repoint = append(repoint, v.ID)
			}
		}
		if len(repoint) > 0 {
			if err := tx.Model(&models.Vote{}).
				Where("id IN ?", repoint).
				Update("post_id", in.TargetPostID).Error; err != nil {
				return err
			}
		}

		uniqueVoteCount := len(retained)

		target.Content = in.MergedContent
		target.VoteCount = uniqueVoteCount
		target.UpdatedAt = time.Now().UTC()
		if err := tx.Save(target).Error; err != nil {
			return err
		}

		// Source tasks die with their posts; the target's own task is untouched.
		if err := tx.Where("post_id IN ?", sources).Delete(&models.Task{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", sources).Delete(&models.Post{}).Error; err != nil {
			return err
		}

		result = &MergeResult{
			MergedPost:      target,
			UniqueVoteCount: uniqueVoteCount,
			DeletedPostIDs:  sources,
		}
		return nil
	})
	if err != nil {
		observability.MergeTransactions.WithLabelValues("aborted").Inc()
		s.logger.Error("merge transaction aborted",
			slog.Uint64("board_id", uint64(in.BoardID)),
			slog.Uint64("target_post_id", uint64(in.TargetPostID)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	observability.MergeTransactions.WithLabelValues("committed").Inc()
	s.logger.Info("merge committed",
		slog.Uint64("board_id", uint64(in.BoardID)),
		slog.Uint64("target_post_id", uint64(in.TargetPostID)),
		slog.Int("sources", len(result.DeletedPostIDs)),
		slog.Int("unique_vote_count", result.UniqueVoteCount),
	)
	return result, nil
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
