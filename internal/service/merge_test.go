package service

import (
	"context"
	"testing"

	"retroboard/internal/database"
	"retroboard/internal/models"
	"retroboard/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupMergeDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.ConnectSQLite(":memory:", observability.NopLogger())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func createPost(t *testing.T, db *gorm.DB, boardID uint, postType models.PostType, content string) *models.Post {
	t.Helper()
	post := &models.Post{BoardID: boardID, Type: postType, Content: content}
	require.NoError(t, db.Create(post).Error)
	return post
}

func createVote(t *testing.T, db *gorm.DB, boardID, userID, postID uint) {
	t.Helper()
	require.NoError(t, db.Create(&models.Vote{BoardID: boardID, UserID: userID, PostID: postID}).Error)
}

func countRows(t *testing.T, db *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func TestMergeDeduplicatesOverlappingVoters(t *testing.T) {
	db := setupMergeDB(t)
	svc := NewMergeService(db, observability.NopLogger())

	target := createPost(t, db, 1, models.PostTypeWentWell, "deploys were smooth")
	source := createPost(t, db, 1, models.PostTypeWentWell, "release went fine")
	createVote(t, db, 1, 1, target.ID) // users {1,2} on target
	createVote(t, db, 1, 2, target.ID)
	createVote(t, db, 1, 2, source.ID) // users {2,3} on source
	createVote(t, db, 1, 3, source.ID)

	result, err := svc.Merge(context.Background(), MergeInput{
		BoardID:       1,
		TargetPostID:  target.ID,
		SourcePostIDs: []uint{source.ID},
		MergedContent: "deploys and release were smooth",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.UniqueVoteCount, "{1,2} ∪ {2,3} counts three distinct users")
	assert.Equal(t, 3, result.MergedPost.VoteCount)
	assert.Equal(t, "deploys and release were smooth", result.MergedPost.Content)
	assert.Equal(t, []uint{source.ID}, result.DeletedPostIDs)

	assert.EqualValues(t, 3, countRows(t, db, &models.Vote{}, "post_id = ?", target.ID))
	assert.EqualValues(t, 0, countRows(t, db, &models.Vote{}, "post_id = ?", source.ID))
	assert.EqualValues(t, 0, countRows(t, db, &models.Post{}, "id = ?", source.ID))
}

func TestMergeKeepsOneRowPerUserAcrossManySources(t *testing.T) {
	db := setupMergeDB(t)
	svc := NewMergeService(db, observability.NopLogger())

	target := createPost(t, db, 1, models.PostTypeWentWell, "p1")
	s1 := createPost(t, db, 1, models.PostTypeWentWell, "p2")
	// Target voted by {1,3}, source by {1}: the union is still {1,3}.
	createVote(t, db, 1, 1, target.ID)
	createVote(t, db, 1, 3, target.ID)
	createVote(t, db, 1, 1, s1.ID)

	result, err := svc.Merge(context.Background(), MergeInput{
		BoardID:       1,
		TargetPostID:  target.ID,
		SourcePostIDs: []uint{s1.ID},
		MergedContent: "merged",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.UniqueVoteCount)
	assert.EqualValues(t, 2, countRows(t, db, &models.Vote{}, "post_id = ?", target.ID))
}

func TestMergeDeletesSourceTasksOnly(t *testing.T) {
	db := setupMergeDB(t)
	svc := NewMergeService(db, observability.NopLogger())

	target := createPost(t, db, 1, models.PostTypeActionItem, "follow up on alerts")
	source := createPost(t, db, 1, models.PostTypeActionItem, "check the pager")
	require.NoError(t, db.Create(&models.Task{PostID: target.ID, BoardID: 1, State: models.TaskStateInProgress}).Error)
	require.NoError(t, db.Create(&models.Task{PostID: source.ID, BoardID: 1, State: models.TaskStatePending}).Error)

	_, err := svc.Merge(context.Background(), MergeInput{
		BoardID:       1,
		TargetPostID:  target.ID,
		SourcePostIDs: []uint{source.ID},
		MergedContent: "follow up on alerts and pager",
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, countRows(t, db, &models.Task{}, "post_id = ?", target.ID), "target task survives")
	assert.EqualValues(t, 0, countRows(t, db, &models.Task{}, "post_id = ?", source.ID))
}

func TestMergeCrossBoardAbortsWithoutPartialEffect(t *testing.T) {
	db := setupMergeDB(t)
	svc := NewMergeService(db, observability.NopLogger())

	target := createPost(t, db, 1, models.PostTypeWentWell, "ours")
	foreign := createPost(t, db, 2, models.PostTypeWentWell, "theirs")
	createVote(t, db, 1, 1, target.ID)
	createVote(t, db, 2, 2, foreign.ID)

	_, err := svc.Merge(context.Background(), MergeInput{
		BoardID:       1,
		TargetPostID:  target.ID,
		SourcePostIDs: []uint{foreign.ID},
		MergedContent: "should not happen",
	})
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	// Nothing moved.
	assert.EqualValues(t, 1, countRows(t, db, &models.Post{}, "id = ?", foreign.ID))
	assert.EqualValues(t, 1, countRows(t, db, &models.Vote{}, "post_id = ?", foreign.ID))
	var reloaded models.Post
	require.NoError(t, db.First(&reloaded, target.ID).Error)
	assert.Equal(t, "ours", reloaded.Content)
}

func TestMergeMissingSourceAborts(t *testing.T) {
	db := setupMergeDB(t)
	svc := NewMergeService(db, observability.NopLogger())

	target := createPost(t, db, 1, models.PostTypeWentWell, "alone")

	_, err := svc.Merge(context.Background(), MergeInput{
		BoardID:       1,
		TargetPostID:  target.ID,
		SourcePostIDs: []uint{9999},
		MergedContent: "merged",
	})
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestMergeRejectsTargetInSources(t *testing.T) {
	db := setupMergeDB(t)
	svc := NewMergeService(db, observability.NopLogger())

	target := createPost(t, db, 1, models.PostTypeWentWell, "self")

	_, err := svc.Merge(context.Background(), MergeInput{
		BoardID:       1,
		TargetPostID:  target.ID,
		SourcePostIDs: []uint{target.ID},
		MergedContent: "merged",
	})
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodeValidation))
}

func TestMergeRejectsEmptySources(t *testing.T) {
	db := setupMergeDB(t)
	svc := NewMergeService(db, observability.NopLogger())

	_, err := svc.Merge(context.Background(), MergeInput{
		BoardID:      1,
		TargetPostID: 1,
	})
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodeValidation))
}

func TestMergeDeduplicatesRepeatedSourceIDs(t *testing.T) {
	db := setupMergeDB(t)
	svc := NewMergeService(db, observability.NopLogger())

	target := createPost(t, db, 1, models.PostTypeWentWell, "t")
	source := createPost(t, db, 1, models.PostTypeWentWell, "s")
	createVote(t, db, 1, 1, source.ID)

	result, err := svc.Merge(context.Background(), MergeInput{
		BoardID:       1,
		TargetPostID:  target.ID,
		SourcePostIDs: []uint{source.ID, source.ID, source.ID},
		MergedContent: "merged",
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{source.ID}, result.DeletedPostIDs)
	assert.Equal(t, 1, result.UniqueVoteCount)
}
