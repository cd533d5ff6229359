package protocol

import "github.com/gungorefecetin/web-code-editor/internal/room"

// RoomState is the full snapshot sent to a joining client.
type RoomState struct {
	Documents    room.Documents            `json:"documents"`
	Participants []room.ParticipantSummary `json:"participants"`
	ChatHistory  []room.ChatMessage        `json:"chatHistory"`
}

// NewRoomState builds a RoomState from a room snapshot. Slices are never nil
// so they encode as empty arrays.
func NewRoomState(s room.Snapshot) RoomState {
	state := RoomState{
		Documents:    s.Documents,
		Participants: s.Participants,
		ChatHistory:  s.ChatHistory,
	}
	if state.Participants == nil {
		state.Participants = []room.ParticipantSummary{}
	}
	if state.ChatHistory == nil {
		state.ChatHistory = []room.ChatMessage{}
	}
	return state
}

// ParticipantJoined announces a new participant to the rest of the room.
type ParticipantJoined struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ParticipantLeft announces a departure.
type ParticipantLeft struct {
	ParticipantID string `json:"participantId"`
}

// DocumentUpdated carries a replaced document to the other participants.
type DocumentUpdated struct {
	DocumentName  room.DocumentName `json:"documentName"`
	Content       string            `json:"content"`
	ParticipantID string            `json:"participantId"`
}

// CursorUpdated carries a participant's new cursor position.
type CursorUpdated struct {
	ParticipantID string      `json:"participantId"`
	Position      room.Cursor `json:"position"`
}

// ChatMessage delivers a chat entry; its fields are inlined on the wire.
type ChatMessage struct {
	room.ChatMessage
}

// ReconnectRequired asks a client to join again before retrying.
type ReconnectRequired struct{}

func (RoomState) EventName() string         { return EventRoomState }
func (ParticipantJoined) EventName() string { return EventParticipantJoined }
func (ParticipantLeft) EventName() string   { return EventParticipantLeft }
func (DocumentUpdated) EventName() string   { return EventDocumentUpdated }
func (CursorUpdated) EventName() string     { return EventCursorUpdated }
func (ChatMessage) EventName() string       { return EventChatMessage }
func (ReconnectRequired) EventName() string { return EventReconnectRequired }
