package ws

import (
	"encoding/json"

	"github.com/manga-lockstep/backend/internal/viewing"
)

type MessageType string

const (
	MsgHello MessageType = "hello"
	MsgNext  MessageType = "next"
	MsgPrev  MessageType = "prev"
)

// ClientMessage is the only shape a viewer sends. UUID is the browser's own
// token, echoed for debugging; the server identifies viewers by connection.
type ClientMessage struct {
	Type MessageType `json:"type"`
	UUID string      `json:"uuid"`
}

// parseClientMessage decodes a text frame. ok is false for anything that is
// not a well-formed client message of a known type.
func parseClientMessage(data []byte) (ClientMessage, bool) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, false
	}
	switch msg.Type {
	case MsgHello, MsgNext, MsgPrev:
		return msg, true
	}
	return ClientMessage{}, false
}

// Vote maps a navigation message to its vote. hello carries no vote.
func (m ClientMessage) Vote() (viewing.Vote, bool) {
	switch m.Type {
	case MsgNext:
		return viewing.VoteAdvance, true
	case MsgPrev:
		return viewing.VoteRetreat, true
	}
	return viewing.VoteNone, false
}

// StatePayload is the body of GET /api/state.
type StatePayload struct {
	Viewers      int              `json:"viewers"`
	PendingVotes int              `json:"pending_votes"`
	Moves        uint64           `json:"moves"`
	Cursor       viewing.Cursor   `json:"cursor"`
	Snapshot     viewing.Snapshot `json:"snapshot"`
}
