package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"retroboard/internal/database"
	"retroboard/internal/models"
	"retroboard/internal/notifications"
	"retroboard/internal/observability"
	"retroboard/internal/repository"
	"retroboard/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()
	db, err := database.ConnectSQLite(":memory:", observability.NopLogger())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	logger := observability.NopLogger()
	s := &Server{
		db:           db,
		logger:       logger,
		hub:          notifications.NewHub(logger),
		boardService: service.NewBoardService(repository.NewPostRepository(db), repository.NewTaskRepository(db), repository.NewVoteLedger(db), logger),
		mergeService: service.NewMergeService(db, logger),
	}
	s.app = fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		},
	})
	s.registerRoutes()
	return s, db
}

func doJSON(t *testing.T, s *Server, method, path string, userID string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestCreatePostHandler(t *testing.T) {
	s, _ := setupTestServer(t)

	resp := doJSON(t, s, http.MethodPost, "/api/boards/1/posts", "7", map[string]any{
		"type":    "went_well",
		"content": "deploys were smooth",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var post models.Post
	decodeBody(t, resp, &post)
	assert.NotZero(t, post.ID)
	assert.Equal(t, models.PostTypeWentWell, post.Type)
	require.NotNil(t, post.AuthorID)
	assert.Equal(t, uint(7), *post.AuthorID)
}

func TestCreatePostHandlerValidation(t *testing.T) {
	s, _ := setupTestServer(t)

	resp := doJSON(t, s, http.MethodPost, "/api/boards/1/posts", "7", map[string]any{
		"type":    "rant",
		"content": "x",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCreatePostHandlerRequiresUser(t *testing.T) {
	s, _ := setupTestServer(t)

	resp := doJSON(t, s, http.MethodPost, "/api/boards/1/posts", "", map[string]any{
		"type":    "went_well",
		"content": "x",
	})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestVoteHandlersRoundTrip(t *testing.T) {
	s, _ := setupTestServer(t)

	created := doJSON(t, s, http.MethodPost, "/api/boards/1/posts", "7", map[string]any{
		"type":    "went_well",
		"content": "votable",
	})
	var post models.Post
	decodeBody(t, created, &post)

	upvotePath := fmt.Sprintf("/api/posts/%d/upvote?board_id=1", post.ID)
	resp := doJSON(t, s, http.MethodPost, upvotePath, "7", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var voted models.Post
	decodeBody(t, resp, &voted)
	assert.Equal(t, 1, voted.VoteCount)

	// Same user voting again leaves the tally unchanged.
	resp = doJSON(t, s, http.MethodPost, upvotePath, "7", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &voted)
	assert.Equal(t, 1, voted.VoteCount)

	downvotePath := fmt.Sprintf("/api/posts/%d/downvote?board_id=1", post.ID)
	resp = doJSON(t, s, http.MethodPost, downvotePath, "7", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &voted)
	assert.Equal(t, 0, voted.VoteCount)
}

func TestVoteHandlerMissingBoardID(t *testing.T) {
	s, _ := setupTestServer(t)
	resp := doJSON(t, s, http.MethodPost, "/api/posts/1/upvote", "7", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestDeletePostHandlerNotFound(t *testing.T) {
	s, _ := setupTestServer(t)
	resp := doJSON(t, s, http.MethodDelete, "/api/posts/999", "7", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestMergePostsHandler(t *testing.T) {
	s, db := setupTestServer(t)

	target := &models.Post{BoardID: 1, Type: models.PostTypeWentWell, Content: "t"}
	source := &models.Post{BoardID: 1, Type: models.PostTypeWentWell, Content: "s"}
	require.NoError(t, db.Create(target).Error)
	require.NoError(t, db.Create(source).Error)
	require.NoError(t, db.Create(&models.Vote{BoardID: 1, UserID: 2, PostID: target.ID}).Error)
	require.NoError(t, db.Create(&models.Vote{BoardID: 1, UserID: 2, PostID: source.ID}).Error)
	require.NoError(t, db.Create(&models.Vote{BoardID: 1, UserID: 3, PostID: source.ID}).Error)

	resp := doJSON(t, s, http.MethodPost, "/api/boards/1/merge", "7", map[string]any{
		"target_post_id":  target.ID,
		"source_post_ids": []uint{source.ID},
		"merged_content":  "combined",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result service.MergeResult
	decodeBody(t, resp, &result)
	assert.Equal(t, 2, result.UniqueVoteCount)
	assert.Equal(t, "combined", result.MergedPost.Content)
	assert.Equal(t, []uint{source.ID}, result.DeletedPostIDs)
}

func TestMergePostsHandlerRejectsSelfMerge(t *testing.T) {
	s, db := setupTestServer(t)
	post := &models.Post{BoardID: 1, Type: models.PostTypeWentWell, Content: "t"}
	require.NoError(t, db.Create(post).Error)

	resp := doJSON(t, s, http.MethodPost, "/api/boards/1/merge", "7", map[string]any{
		"target_post_id":  post.ID,
		"source_post_ids": []uint{post.ID},
		"merged_content":  "x",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetBoardSnapshotHandler(t *testing.T) {
	s, db := setupTestServer(t)
	require.NoError(t, db.Create(&models.Post{BoardID: 1, Type: models.PostTypeWentWell, Content: "a"}).Error)
	require.NoError(t, db.Create(&models.Post{BoardID: 2, Type: models.PostTypeWentWell, Content: "other"}).Error)

	resp := doJSON(t, s, http.MethodGet, "/api/boards/1/posts", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var snapshot service.Snapshot
	decodeBody(t, resp, &snapshot)
	require.Len(t, snapshot.Posts, 1)
	assert.Equal(t, "a", snapshot.Posts[0].Content)
}

func TestTaskHandlers(t *testing.T) {
	s, db := setupTestServer(t)
	post := &models.Post{BoardID: 1, Type: models.PostTypeActionItem, Content: "rotate pager"}
	require.NoError(t, db.Create(post).Error)

	resp := doJSON(t, s, http.MethodPut, fmt.Sprintf("/api/posts/%d/task/assignee", post.ID), "7", map[string]any{
		"user_id": 4,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var task models.Task
	decodeBody(t, resp, &task)
	require.NotNil(t, task.UserID)
	assert.Equal(t, uint(4), *task.UserID)

	resp = doJSON(t, s, http.MethodPut, fmt.Sprintf("/api/posts/%d/task/state", post.ID), "7", map[string]any{
		"state": "in_progress",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &task)
	assert.Equal(t, models.TaskStateInProgress, task.State)
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := setupTestServer(t)
	resp := doJSON(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
