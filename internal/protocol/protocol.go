// Package protocol defines the events exchanged between clients and the
// session router, and their JSON wire envelope:
//
//	{"event": "<name>", "data": {...}}
//
// Inbound and outbound events are closed sets of Go types; decoding selects
// the variant by name and validates its required fields.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gungorefecetin/web-code-editor/internal/room"
)

// Inbound event names.
const (
	EventJoin           = "join"
	EventLeave          = "leave"
	EventDocumentUpdate = "document_update"
	EventCursorUpdate   = "cursor_update"
	EventChatMessage    = "chat_message"

	// Produced by the transport when a connection closes; never accepted from the wire.
	EventDisconnect = "disconnect"
)

// Outbound event names. chat_message is shared with the inbound set.
const (
	EventRoomState         = "room_state"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventDocumentUpdated   = "document_updated"
	EventCursorUpdated     = "cursor_updated"
	EventReconnectRequired = "reconnect_required"
)

// DefaultMaxChatLength bounds chat content, counted in characters.
const DefaultMaxChatLength = 500

// ErrUnknownEvent is returned for envelopes naming no inbound event.
var ErrUnknownEvent = errors.New("unknown event")

// ValidationError reports a malformed or incomplete payload.
type ValidationError struct {
	Event  string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s event: %s", e.Event, e.Reason)
	}
	return fmt.Sprintf("invalid %s event: %s %s", e.Event, e.Field, e.Reason)
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decoder parses inbound frames.
type Decoder struct {
	MaxChatLength int
}

// NewDecoder returns a Decoder enforcing maxChatLength (or the default when <= 0).
func NewDecoder(maxChatLength int) *Decoder {
	if maxChatLength <= 0 {
		maxChatLength = DefaultMaxChatLength
	}
	return &Decoder{MaxChatLength: maxChatLength}
}

// Decode parses one inbound frame into its event variant.
func (d *Decoder) Decode(frame []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, &ValidationError{Reason: "malformed envelope: " + err.Error()}
	}

	var ev Inbound
	switch env.Event {
	case EventJoin:
		ev = &Join{}
	case EventLeave:
		ev = &Leave{}
	case EventDocumentUpdate:
		ev = &DocumentUpdate{}
	case EventCursorUpdate:
		ev = &CursorUpdate{}
	case EventChatMessage:
		ev = &ChatSend{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &ValidationError{Event: env.Event, Field: "data", Reason: "is required"}
	}
	if err := json.Unmarshal(env.Data, ev); err != nil {
		return nil, &ValidationError{Event: env.Event, Field: "data", Reason: err.Error()}
	}
	if err := ev.validate(d); err != nil {
		return nil, err
	}
	return ev, nil
}

// Encode wraps an outbound event in the wire envelope.
func Encode(ev room.Event) ([]byte, error) {
	data, err := json.Marshal(struct {
		Event string     `json:"event"`
		Data  room.Event `json:"data"`
	}{Event: ev.EventName(), Data: ev})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	return data, nil
}
