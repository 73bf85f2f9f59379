package server

import (
	"log/slog"
	"strconv"

	"retroboard/internal/models"
	"retroboard/internal/service"

	"github.com/gofiber/fiber/v2"
)

// actingUser reads the authenticated user from the X-User-ID header placed
// there by the auth proxy in front of this service.
func actingUser(c *fiber.Ctx) (uint, error) {
	raw := c.Get("X-User-ID")
	if raw == "" {
		return 0, models.NewUnauthorizedError("Missing X-User-ID header")
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, models.NewUnauthorizedError("Invalid X-User-ID header")
	}
	return uint(id), nil
}

func paramUint(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, models.NewValidationError("Invalid " + name)
	}
	return uint(id), nil
}

// appErrorStatus maps an application error code to its HTTP status.
func appErrorStatus(err error) int {
	switch {
	case models.HasCode(err, models.CodeNotFound):
		return fiber.StatusNotFound
	case models.HasCode(err, models.CodeValidation):
		return fiber.StatusBadRequest
	case models.HasCode(err, models.CodeConflict):
		return fiber.StatusConflict
	case models.HasCode(err, models.CodeUnauthorized):
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

func respond(c *fiber.Ctx, err error) error {
	return models.RespondWithError(c, appErrorStatus(err), err)
}

// GetBoardSnapshotHandler returns the board's posts and tasks, the
// full-refresh projection clients load their store from.
func (s *Server) GetBoardSnapshotHandler(c *fiber.Ctx) error {
	boardID, err := paramUint(c, "boardID")
	if err != nil {
		return respond(c, err)
	}

	snapshot, err := s.boardService.GetSnapshot(c.Context(), boardID)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(snapshot)
}

// CreatePostHandler creates a post on a board.
func (s *Server) CreatePostHandler(c *fiber.Ctx) error {
	userID, err := actingUser(c)
	if err != nil {
		return respond(c, err)
	}
	boardID, err := paramUint(c, "boardID")
	if err != nil {
		return respond(c, err)
	}

	var req struct {
		Type    models.PostType `json:"type"`
		Content string          `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respond(c, models.NewValidationError("Invalid request body"))
	}

	post, err := s.boardService.CreatePost(c.Context(), service.CreatePostInput{
		BoardID:  boardID,
		Type:     req.Type,
		Content:  req.Content,
		AuthorID: &userID,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// UpdatePostContentHandler replaces a post's text. Concurrent edits resolve
// last-write-wins.
func (s *Server) UpdatePostContentHandler(c *fiber.Ctx) error {
	if _, err := actingUser(c); err != nil {
		return respond(c, err)
	}
	postID, err := paramUint(c, "id")
	if err != nil {
		return respond(c, err)
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respond(c, models.NewValidationError("Invalid request body"))
	}

	post, err := s.boardService.UpdatePostContent(c.Context(), postID, req.Content)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(post)
}

// UpdatePostTypeHandler moves a post to another category.
func (s *Server) UpdatePostTypeHandler(c *fiber.Ctx) error {
	if _, err := actingUser(c); err != nil {
		return respond(c, err)
	}
	postID, err := paramUint(c, "id")
	if err != nil {
		return respond(c, err)
	}

	var req struct {
		Type models.PostType `json:"type"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respond(c, models.NewValidationError("Invalid request body"))
	}

	post, err := s.boardService.UpdatePostType(c.Context(), postID, req.Type)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(post)
}

// DeletePostHandler removes a post along with its votes and task.
func (s *Server) DeletePostHandler(c *fiber.Ctx) error {
	if _, err := actingUser(c); err != nil {
		return respond(c, err)
	}
	postID, err := paramUint(c, "id")
	if err != nil {
		return respond(c, err)
	}

	if err := s.boardService.DeletePost(c.Context(), postID); err != nil {
		return respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpVoteHandler records the acting user's vote on a post. A repeat vote is
// a no-op; either way the response carries the post with its current tally.
func (s *Server) UpVoteHandler(c *fiber.Ctx) error {
	userID, err := actingUser(c)
	if err != nil {
		return respond(c, err)
	}
	postID, err := paramUint(c, "id")
	if err != nil {
		return respond(c, err)
	}
	boardID, err := queryBoardID(c)
	if err != nil {
		return respond(c, err)
	}

	post, err := s.boardService.UpVote(c.Context(), boardID, userID, postID)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(post)
}

// DownVoteHandler withdraws the acting user's vote, if present.
func (s *Server) DownVoteHandler(c *fiber.Ctx) error {
	userID, err := actingUser(c)
	if err != nil {
		return respond(c, err)
	}
	postID, err := paramUint(c, "id")
	if err != nil {
		return respond(c, err)
	}
	boardID, err := queryBoardID(c)
	if err != nil {
		return respond(c, err)
	}

	post, err := s.boardService.DownVote(c.Context(), boardID, userID, postID)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(post)
}

func queryBoardID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Query("board_id"), 10, 32)
	if err != nil || id == 0 {
		return 0, models.NewValidationError("Missing or invalid board_id query parameter")
	}
	return uint(id), nil
}

// AssignTaskHandler sets (or clears) the assignee of an action item's task.
func (s *Server) AssignTaskHandler(c *fiber.Ctx) error {
	if _, err := actingUser(c); err != nil {
		return respond(c, err)
	}
	postID, err := paramUint(c, "id")
	if err != nil {
		return respond(c, err)
	}

	var req struct {
		UserID *uint `json:"user_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respond(c, models.NewValidationError("Invalid request body"))
	}

	task, err := s.boardService.AssignTask(c.Context(), postID, req.UserID)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(task)
}

// UpdateTaskStateHandler changes an action item task's lifecycle state.
func (s *Server) UpdateTaskStateHandler(c *fiber.Ctx) error {
	if _, err := actingUser(c); err != nil {
		return respond(c, err)
	}
	postID, err := paramUint(c, "id")
	if err != nil {
		return respond(c, err)
	}

	var req struct {
		State models.TaskState `json:"state"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respond(c, models.NewValidationError("Invalid request body"))
	}

	task, err := s.boardService.UpdateTaskState(c.Context(), postID, req.State)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(task)
}

// MergePostsHandler combines source posts into a target post atomically,
// returning the merged post, the deduplicated vote count and the IDs of the
// removed sources.
func (s *Server) MergePostsHandler(c *fiber.Ctx) error {
	userID, err := actingUser(c)
	if err != nil {
		return respond(c, err)
	}
	boardID, err := paramUint(c, "boardID")
	if err != nil {
		return respond(c, err)
	}

	var req struct {
		TargetPostID  uint   `json:"target_post_id"`
		SourcePostIDs []uint `json:"source_post_ids"`
		MergedContent string `json:"merged_content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respond(c, models.NewValidationError("Invalid request body"))
	}

	s.logger.Info("merge requested",
		slog.Uint64("board_id", uint64(boardID)),
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("target_post_id", uint64(req.TargetPostID)),
		slog.Int("source_count", len(req.SourcePostIDs)),
	)

	result, err := s.mergeService.Merge(c.Context(), service.MergeInput{
		BoardID:       boardID,
		TargetPostID:  req.TargetPostID,
		SourcePostIDs: req.SourcePostIDs,
		MergedContent: req.MergedContent,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(result)
}
