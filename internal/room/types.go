package room

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRoomID is returned when a room identifier cannot be resolved.
	ErrInvalidRoomID = errors.New("invalid room id")

	// ErrUnknownDocument is returned for a document name outside markup/style/script.
	ErrUnknownDocument = errors.New("unknown document")

	// ErrParticipantNotFound is returned when an operation targets a participant
	// that is not (or no longer) in the room.
	ErrParticipantNotFound = errors.New("participant not found")
)

// MaxRoomIDLength bounds caller-supplied room identifiers.
const MaxRoomIDLength = 128

// SystemAuthorID is the author of server-generated chat notices.
const SystemAuthorID = "system"

// DocumentName identifies one of the three shared text buffers of a room.
type DocumentName string

const (
	DocumentMarkup DocumentName = "markup"
	DocumentStyle  DocumentName = "style"
	DocumentScript DocumentName = "script"
)

// ParseDocumentName validates a wire document name.
func ParseDocumentName(s string) (DocumentName, error) {
	switch name := DocumentName(s); name {
	case DocumentMarkup, DocumentStyle, DocumentScript:
		return name, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDocument, s)
	}
}

// Documents holds the room's shared buffers. Being a struct, it always has
// exactly three entries.
type Documents struct {
	Markup string `json:"markup"`
	Style  string `json:"style"`
	Script string `json:"script"`
}

// DefaultDocuments returns the starter templates for a fresh room.
func DefaultDocuments() Documents {
	return Documents{
		Markup: "<div>\n  <!-- Write your HTML here -->\n</div>",
		Style:  "/* Write your CSS here */\n",
		Script: "// Write your JavaScript here\n",
	}
}

// Set overwrites the named document wholesale.
func (d *Documents) Set(name DocumentName, content string) error {
	switch name {
	case DocumentMarkup:
		d.Markup = content
	case DocumentStyle:
		d.Style = content
	case DocumentScript:
		d.Script = content
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDocument, name)
	}
	return nil
}

// Cursor is a participant's last known editor position.
type Cursor struct {
	Line     int          `json:"line"`
	Column   int          `json:"column"`
	Document DocumentName `json:"documentName"`
}

// ParticipantSummary is the outward view of a participant. The connection
// handle is never part of it.
type ParticipantSummary struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Cursor *Cursor `json:"cursor,omitempty"`
}

// ChatMessage is one entry of a room's chat history. Author fields are a
// snapshot taken at send time.
type ChatMessage struct {
	ID         string `json:"id"`
	AuthorID   string `json:"authorId"`
	AuthorName string `json:"authorName"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"` // Unix milliseconds
}

// Snapshot is a consistent copy of everything a joining client needs.
type Snapshot struct {
	Documents    Documents
	Participants []ParticipantSummary
	ChatHistory  []ChatMessage
}

// Event is a named outbound message pushed to participants.
type Event interface {
	EventName() string
}

// Conn is the transport handle a participant is reached through.
// Send must not block; Close forcibly disconnects the peer.
type Conn interface {
	ID() string
	Send(ev Event) error
	Close() error
}

// Observer receives room lifecycle notifications from the Registry.
type Observer interface {
	RoomCreated(id, name string)
	RoomEvicted(id string)
}
