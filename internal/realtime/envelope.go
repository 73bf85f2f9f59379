// Package realtime implements the board event protocol: the bus envelope,
// per-kind payload validation and the router that reconciles inbound
// messages into the client store.
package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Kind identifies a message type on the board channel.
type Kind string

const (
	KindPostAdd           Kind = "POST_ADD"
	KindPostUpdateContent Kind = "POST_UPDATE_CONTENT"
	KindPostUpdateType    Kind = "POST_UPDATE_TYPE"
	KindPostDelete        Kind = "POST_DELETE"
	KindPostUpvote        Kind = "POST_UPVOTE"
	KindPostDownvote      Kind = "POST_DOWNVOTE"
	KindPostMerge         Kind = "POST_MERGE"
	KindActionCreate      Kind = "ACTION_CREATE"
	KindActionAssign      Kind = "ACTION_ASSIGN"
	KindActionStateUpdate Kind = "ACTION_STATE_UPDATE"
)

// VoteOperation values carried by vote payloads.
const (
	OpUpvote   = "upvote"
	OpDownvote = "downvote"
)

// Headers carries message metadata. User is the acting user's ID; the
// router uses it for self-echo suppression.
type Headers struct {
	User uint `json:"user"`
}

// Envelope is the unit of delivery on a board channel. Delivery is
// at-least-once and unordered, and may echo the publisher's own message.
type Envelope struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Headers Headers         `json:"headers"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope with a fresh message ID, marshaling the
// payload.
func NewEnvelope(kind Kind, userID uint, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return Envelope{
		ID:      uuid.New().String(),
		Kind:    kind,
		Headers: Headers{User: userID},
		Payload: raw,
	}, nil
}

// BoardChannel returns the pub/sub channel for one board's events.
// Pattern: retro:board:{board_id}:events
func BoardChannel(boardID uint) string {
	return fmt.Sprintf("retro:board:%d:events", boardID)
}

// BoardChannelPattern matches every board channel; used by the websocket
// hub's pattern subscriber.
const BoardChannelPattern = "retro:board:*:events"

// ParseBoardChannel extracts the board ID from a board channel name.
func ParseBoardChannel(channel string) (uint, error) {
	var boardID uint
	if _, err := fmt.Sscanf(channel, "retro:board:%d:events", &boardID); err != nil {
		return 0, fmt.Errorf("invalid board channel %q: %w", channel, err)
	}
	return boardID, nil
}
