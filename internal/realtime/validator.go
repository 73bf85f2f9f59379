package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"retroboard/internal/models"
)

// PostAddPayload is the full post projection required for POST_ADD.
type PostAddPayload struct {
	ID        uint            `json:"id"`
	BoardID   uint            `json:"board_id"`
	Type      models.PostType `json:"type"`
	Content   string          `json:"content"`
	AuthorID  *uint           `json:"author_id"`
	VoteCount int             `json:"vote_count"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Post converts the payload into a domain post.
func (p PostAddPayload) Post() *models.Post {
	return &models.Post{
		ID:        p.ID,
		BoardID:   p.BoardID,
		Type:      p.Type,
		Content:   p.Content,
		AuthorID:  p.AuthorID,
		VoteCount: p.VoteCount,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// PostContentPayload carries a partial content update.
type PostContentPayload struct {
	ID      uint   `json:"id"`
	Content string `json:"content"`
}

// PostTypePayload carries a partial category update.
type PostTypePayload struct {
	ID   uint            `json:"id"`
	Type models.PostType `json:"type"`
}

// PostDeletePayload identifies a deleted post.
type PostDeletePayload struct {
	ID uint `json:"id"`
}

// VotePayload is shared by POST_UPVOTE and POST_DOWNVOTE. Timestamp is the
// publisher's clock in Unix milliseconds; the router's staleness filter
// compares it against local time.
type VotePayload struct {
	ID        uint   `json:"id"`
	Operation string `json:"operation"`
	UserID    uint   `json:"user_id"`
	Timestamp int64  `json:"timestamp"`
}

// TaskCreatePayload is the full task projection for ACTION_CREATE.
type TaskCreatePayload struct {
	ID      uint             `json:"id"`
	PostID  uint             `json:"post_id"`
	BoardID uint             `json:"board_id"`
	UserID  *uint            `json:"user_id"`
	State   models.TaskState `json:"state"`
}

// Task converts the payload into a domain task.
func (p TaskCreatePayload) Task() *models.Task {
	state := p.State
	if state == "" {
		state = models.TaskStatePending
	}
	return &models.Task{
		ID:      p.ID,
		PostID:  p.PostID,
		BoardID: p.BoardID,
		UserID:  p.UserID,
		State:   state,
	}
}

// TaskAssignPayload carries an assignee change. A null user clears the
// assignment.
type TaskAssignPayload struct {
	PostID uint  `json:"post_id"`
	UserID *uint `json:"user_id"`
}

// TaskStatePayload carries a task state change.
type TaskStatePayload struct {
	PostID uint             `json:"post_id"`
	State  models.TaskState `json:"state"`
}

// MergePayload is the committed merge result broadcast as POST_MERGE.
type MergePayload struct {
	TargetPostID    uint           `json:"target_post_id"`
	SourcePostIDs   []uint         `json:"source_post_ids"`
	MergedPost      PostAddPayload `json:"merged_post"`
	UniqueVoteCount int            `json:"unique_vote_count"`
	DeletedPostIDs  []uint         `json:"deleted_post_ids"`
	Timestamp       int64          `json:"timestamp"`
}

// ValidationError reports a malformed inbound payload. It is logged and
// dropped; it never mutates the store and never aborts the subscription.
type ValidationError struct {
	Kind   Kind
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.Kind, strings.Join(e.Fields, "; "))
}

// ErrUnknownKind is returned by DecodePayload for kinds this client does
// not understand; the router warns and ignores them.
type ErrUnknownKind struct {
	Kind Kind
}

func (e *ErrUnknownKind) Error() string {
	return fmt.Sprintf("unknown message kind %q", e.Kind)
}

// DecodePayload schema-checks raw against the message kind and returns the
// typed payload. Every field requirement is enforced here; downstream code
// never trusts payload shape beyond this boundary.
func DecodePayload(kind Kind, raw json.RawMessage) (any, error) {
	switch kind {
	case KindPostAdd:
		var p PostAddPayload
		if err := unmarshal(kind, raw, &p); err != nil {
			return nil, err
		}
		return p, fieldErr(kind, postProjectionFields(p))

	case KindPostUpdateContent:
		var p PostContentPayload
		if err := unmarshal(kind, raw, &p); err != nil {
			return nil, err
		}
		var fields []string
		if p.ID == 0 {
			fields = append(fields, "id is required")
		}
		if p.Content == "" {
			fields = append(fields, "content is required")
		}
		return p, fieldErr(kind, fields)

	case KindPostUpdateType:
		var p PostTypePayload
		if err := unmarshal(kind, raw, &p); err != nil {
			return nil, err
		}
		var fields []string
		if p.ID == 0 {
			fields = append(fields, "id is required")
		}
		if !p.Type.Valid() {
			fields = append(fields, fmt.Sprintf("type %q is not a known category", p.Type))
		}
		return p, fieldErr(kind, fields)

	case KindPostDelete:
		var p PostDeletePayload
		if err := unmarshal(kind, raw, &p); err != nil {
			return nil, err
		}
		if p.ID == 0 {
			return nil, fieldErr(kind, []string{"id is required"})
		}
		return p, nil

	case KindPostUpvote, KindPostDownvote:
		var p VotePayload
		if err := unmarshal(kind, raw, &p); err != nil {
			return nil, err
		}
		var fields []string
		if p.ID == 0 {
			fields = append(fields, "id is required")
		}
		if p.Operation != OpUpvote && p.Operation != OpDownvote {
			fields = append(fields, fmt.Sprintf("operation %q must be %q or %q", p.Operation, OpUpvote, OpDownvote))
		}
		if p.UserID == 0 {
			fields = append(fields, "user_id is required")
		}
		if p.Timestamp <= 0 {
			fields = append(fields, "timestamp must be a positive unix millisecond value")
		}
		return p, fieldErr(kind, fields)

	case KindPostMerge:
		var p MergePayload
		if err := unmarshal(kind, raw, &p); err != nil {
			return nil, err
		}
		var fields []string
		if p.TargetPostID == 0 {
			fields = append(fields, "target_post_id is required")
		}
		if len(p.SourcePostIDs) == 0 {
			fields = append(fields, "source_post_ids must contain at least one item")
		}
		// The merged post replaces the target wholesale, so it must be as
		// complete as a POST_ADD projection.
		for _, f := range postProjectionFields(p.MergedPost) {
			fields = append(fields, "merged_post: "+f)
		}
		if p.UniqueVoteCount < 0 {
			fields = append(fields, "unique_vote_count must be >= 0")
		}
		if p.Timestamp <= 0 {
			fields = append(fields, "timestamp must be a positive unix millisecond value")
		}
		return p, fieldErr(kind, fields)

	case KindActionCreate:
		var p TaskCreatePayload
		if err := unmarshal(kind, raw, &p); err != nil {
			return nil, err
		}
		var fields []string
		if p.ID == 0 {
			fields = append(fields, "id is required")
		}
		if p.PostID == 0 {
			fields = append(fields, "post_id is required")
		}
		if p.BoardID == 0 {
			fields = append(fields, "board_id is required")
		}
		if p.State != "" && !p.State.Valid() {
			fields = append(fields, fmt.Sprintf("state %q is not a known task state", p.State))
		}
		return p, fieldErr(kind, fields)

	case KindActionAssign:
		var p TaskAssignPayload
		if err := unmarshal(kind, raw, &p); err != nil {
			return nil, err
		}
		if p.PostID == 0 {
			return nil, fieldErr(kind, []string{"post_id is required"})
		}
		return p, nil

	case KindActionStateUpdate:
		var p TaskStatePayload
		if err := unmarshal(kind, raw, &p); err != nil {
			return nil, err
		}
		var fields []string
		if p.PostID == 0 {
			fields = append(fields, "post_id is required")
		}
		if !p.State.Valid() {
			fields = append(fields, fmt.Sprintf("state %q is not a known task state", p.State))
		}
		return p, fieldErr(kind, fields)

	default:
		return nil, &ErrUnknownKind{Kind: kind}
	}
}

// postProjectionFields checks the full-post schema shared by POST_ADD and
// the merged post embedded in POST_MERGE.
func postProjectionFields(p PostAddPayload) []string {
	var fields []string
	if p.ID == 0 {
		fields = append(fields, "id is required")
	}
	if p.BoardID == 0 {
		fields = append(fields, "board_id is required")
	}
	if !p.Type.Valid() {
		fields = append(fields, fmt.Sprintf("type %q is not a known category", p.Type))
	}
	if p.Content == "" {
		fields = append(fields, "content is required")
	}
	if p.VoteCount < 0 {
		fields = append(fields, "vote_count must be >= 0")
	}
	if p.CreatedAt.IsZero() {
		fields = append(fields, "created_at is required")
	}
	if p.UpdatedAt.IsZero() {
		fields = append(fields, "updated_at is required")
	}
	return fields
}

func unmarshal(kind Kind, raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return &ValidationError{Kind: kind, Fields: []string{"payload is not valid JSON for this kind: " + err.Error()}}
	}
	return nil
}

func fieldErr(kind Kind, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Kind: kind, Fields: fields}
}
