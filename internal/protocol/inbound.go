package protocol

import (
	"strings"
	"unicode/utf8"

	"github.com/gungorefecetin/web-code-editor/internal/room"
)

// Inbound is an event received from a client. The set of implementations is
// closed: Join, Leave, DocumentUpdate, CursorUpdate, ChatSend and Disconnect.
type Inbound interface {
	Name() string
	validate(d *Decoder) error
}

// Join binds the connection to a room under a participant identity.
type Join struct {
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
}

// Leave unbinds the connection from its room.
type Leave struct {
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
}

// DocumentUpdate replaces the content of one document.
type DocumentUpdate struct {
	RoomID        string  `json:"roomId"`
	DocumentName  string  `json:"documentName"`
	Content       *string `json:"content"`
	ParticipantID string  `json:"participantId"`
}

// Position is a cursor location on the wire.
type Position struct {
	Line         int    `json:"line"`
	Column       int    `json:"column"`
	DocumentName string `json:"documentName"`
}

// Cursor converts the wire position to the room model.
func (p Position) Cursor() room.Cursor {
	return room.Cursor{Line: p.Line, Column: p.Column, Document: room.DocumentName(p.DocumentName)}
}

// CursorUpdate moves a participant's cursor.
type CursorUpdate struct {
	RoomID        string    `json:"roomId"`
	ParticipantID string    `json:"participantId"`
	Position      *Position `json:"position"`
}

// ChatSend posts a chat message. The author is resolved from the connection.
type ChatSend struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
}

// Disconnect is synthesized by the transport when a connection closes.
type Disconnect struct{}

func (*Join) Name() string           { return EventJoin }
func (*Leave) Name() string          { return EventLeave }
func (*DocumentUpdate) Name() string { return EventDocumentUpdate }
func (*CursorUpdate) Name() string   { return EventCursorUpdate }
func (*ChatSend) Name() string       { return EventChatMessage }
func (Disconnect) Name() string      { return EventDisconnect }

func (e *Join) validate(*Decoder) error {
	if err := checkRoomID(EventJoin, e.RoomID); err != nil {
		return err
	}
	if err := required(EventJoin, "participantId", e.ParticipantID); err != nil {
		return err
	}
	return required(EventJoin, "displayName", e.DisplayName)
}

func (e *Leave) validate(*Decoder) error {
	if err := checkRoomID(EventLeave, e.RoomID); err != nil {
		return err
	}
	return required(EventLeave, "participantId", e.ParticipantID)
}

func (e *DocumentUpdate) validate(*Decoder) error {
	if err := checkRoomID(EventDocumentUpdate, e.RoomID); err != nil {
		return err
	}
	if err := required(EventDocumentUpdate, "participantId", e.ParticipantID); err != nil {
		return err
	}
	if _, err := room.ParseDocumentName(e.DocumentName); err != nil {
		return &ValidationError{Event: EventDocumentUpdate, Field: "documentName", Reason: "must be markup, style or script"}
	}
	if e.Content == nil {
		return &ValidationError{Event: EventDocumentUpdate, Field: "content", Reason: "is required"}
	}
	return nil
}

func (e *CursorUpdate) validate(*Decoder) error {
	if err := checkRoomID(EventCursorUpdate, e.RoomID); err != nil {
		return err
	}
	if err := required(EventCursorUpdate, "participantId", e.ParticipantID); err != nil {
		return err
	}
	if e.Position == nil {
		return &ValidationError{Event: EventCursorUpdate, Field: "position", Reason: "is required"}
	}
	if e.Position.Line < 0 || e.Position.Column < 0 {
		return &ValidationError{Event: EventCursorUpdate, Field: "position", Reason: "must not be negative"}
	}
	if _, err := room.ParseDocumentName(e.Position.DocumentName); err != nil {
		return &ValidationError{Event: EventCursorUpdate, Field: "position.documentName", Reason: "must be markup, style or script"}
	}
	return nil
}

func (e *ChatSend) validate(d *Decoder) error {
	if err := checkRoomID(EventChatMessage, e.RoomID); err != nil {
		return err
	}
	if err := required(EventChatMessage, "content", e.Content); err != nil {
		return err
	}
	if n := utf8.RuneCountInString(e.Content); n > d.MaxChatLength {
		return &ValidationError{Event: EventChatMessage, Field: "content", Reason: "exceeds maximum length"}
	}
	return nil
}

func (Disconnect) validate(*Decoder) error { return nil }

func required(event, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Event: event, Field: field, Reason: "is required"}
	}
	return nil
}

func checkRoomID(event, id string) error {
	if err := required(event, "roomId", id); err != nil {
		return err
	}
	if len(id) > room.MaxRoomIDLength {
		return &ValidationError{Event: event, Field: "roomId", Reason: "is too long"}
	}
	return nil
}
