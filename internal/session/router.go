// Package session binds transport connections to rooms and applies the
// event protocol: each inbound event mutates room state and then fans the
// resulting outbound events out, inside the room's critical section.
package session

import (
	"fmt"
	"log/slog"

	"github.com/gungorefecetin/web-code-editor/internal/protocol"
	"github.com/gungorefecetin/web-code-editor/internal/room"
)

// SystemName is the author name shown on server notices.
const SystemName = "System"

// ActivityRecorder receives participant activity for auditing.
// Implementations must not block.
type ActivityRecorder interface {
	ParticipantJoined(roomID, participantID, displayName string)
	ParticipantLeft(roomID, participantID string)
	ChatPosted(roomID, authorID string)
}

type nopRecorder struct{}

func (nopRecorder) ParticipantJoined(string, string, string) {}
func (nopRecorder) ParticipantLeft(string, string)           {}
func (nopRecorder) ChatPosted(string, string)                {}

// Router dispatches inbound events against the room registry.
type Router struct {
	registry *room.Registry
	activity ActivityRecorder
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithActivityRecorder installs an activity sink.
func WithActivityRecorder(a ActivityRecorder) Option {
	return func(rt *Router) {
		if a != nil {
			rt.activity = a
		}
	}
}

// NewRouter creates a Router over registry.
func NewRouter(registry *room.Registry, logger *slog.Logger, opts ...Option) *Router {
	rt := &Router{
		registry: registry,
		activity: nopRecorder{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Dispatch applies one inbound event for session s. It never fails: invalid
// or out-of-state events are logged and dropped, and the connection stays usable.
func (rt *Router) Dispatch(s *Session, ev protocol.Inbound) {
	switch e := ev.(type) {
	case *protocol.Join:
		rt.join(s, e)
	case *protocol.Leave:
		rt.handleLeave(s, e)
	case *protocol.DocumentUpdate:
		rt.updateDocument(s, e)
	case *protocol.CursorUpdate:
		rt.updateCursor(s, e)
	case *protocol.ChatSend:
		rt.chat(s, e)
	case protocol.Disconnect, *protocol.Disconnect:
		rt.disconnect(s)
	default:
		rt.logger.Warn("dropping unsupported event", "conn_id", s.conn.ID(), "event", fmt.Sprintf("%T", ev))
	}
}

func (rt *Router) join(s *Session, e *protocol.Join) {
	state, current := s.snapshot()
	if state == Closed {
		rt.logger.Debug("ignoring join on closed session", "conn_id", s.conn.ID())
		return
	}

	sameBinding := state == Bound && current.matches(e.RoomID, e.ParticipantID)
	if state == Bound && !sameBinding {
		rt.leave(s, current)
	}

	var refresh, superseded, takeover bool
	_, err := rt.registry.Exec(e.RoomID, func(tx *room.Tx) {
		if sameBinding {
			p, ok := tx.ParticipantByConn(s.conn)
			if !ok || p.ID != e.ParticipantID {
				superseded = true
				return
			}
			refresh = true
		}

		takeover = tx.AddParticipant(e.ParticipantID, e.DisplayName, s.conn)

		if err := tx.SendTo(e.ParticipantID, protocol.NewRoomState(tx.Snapshot())); err != nil {
			rt.logger.Warn("sending room state failed",
				"room_id", e.RoomID, "participant_id", e.ParticipantID, "error", err)
		}
		if refresh {
			return
		}

		tx.Broadcast(protocol.ParticipantJoined{ID: e.ParticipantID, Name: e.DisplayName}, e.ParticipantID)
		notice := tx.AppendChatMessage(room.SystemAuthorID, SystemName, e.DisplayName+" joined the room")
		tx.Broadcast(protocol.ChatMessage{ChatMessage: notice}, "")
	})
	if err != nil {
		rt.logger.Warn("join failed", "room_id", e.RoomID, "participant_id", e.ParticipantID, "error", err)
		if state == Bound && !sameBinding {
			s.unbind(Unbound)
		}
		return
	}
	if superseded {
		rt.logger.Warn("dropping join from superseded connection",
			"conn_id", s.conn.ID(), "room_id", e.RoomID, "participant_id", e.ParticipantID)
		s.unbind(Unbound)
		return
	}

	s.bind(binding{roomID: e.RoomID, participantID: e.ParticipantID, displayName: e.DisplayName})
	if refresh {
		rt.logger.Debug("session re-joined its room", "room_id", e.RoomID, "participant_id", e.ParticipantID)
		return
	}

	rt.activity.ParticipantJoined(e.RoomID, e.ParticipantID, e.DisplayName)
	rt.logger.Info("participant joined",
		"room_id", e.RoomID,
		"participant_id", e.ParticipantID,
		"conn_id", s.conn.ID(),
		"takeover", takeover)
}

func (rt *Router) handleLeave(s *Session, e *protocol.Leave) {
	state, b := s.snapshot()
	if state != Bound {
		rt.logger.Warn("dropping leave from unbound connection", "conn_id", s.conn.ID(), "room_id", e.RoomID)
		return
	}
	if !b.matches(e.RoomID, e.ParticipantID) {
		rt.logger.Warn("dropping leave for another binding",
			"conn_id", s.conn.ID(), "room_id", e.RoomID, "participant_id", e.ParticipantID)
		return
	}

	rt.leave(s, b)
	s.unbind(Unbound)
}

// leave removes the session's participant and announces the departure. It is
// a no-op when the identity has since been taken over by another connection.
func (rt *Router) leave(s *Session, b binding) {
	var (
		removed bool
		left    room.ParticipantSummary
	)
	_, err := rt.registry.Exec(b.roomID, func(tx *room.Tx) {
		left, removed = tx.RemoveParticipantConn(b.participantID, s.conn)
		if !removed {
			return
		}
		tx.Broadcast(protocol.ParticipantLeft{ParticipantID: left.ID}, "")
		notice := tx.AppendChatMessage(room.SystemAuthorID, SystemName, left.Name+" left the room")
		tx.Broadcast(protocol.ChatMessage{ChatMessage: notice}, "")
	})
	if err != nil {
		rt.logger.Warn("leave failed", "room_id", b.roomID, "participant_id", b.participantID, "error", err)
		return
	}
	if !removed {
		rt.logger.Debug("participant already gone",
			"room_id", b.roomID, "participant_id", b.participantID, "conn_id", s.conn.ID())
		return
	}

	rt.activity.ParticipantLeft(b.roomID, b.participantID)
	rt.logger.Info("participant left", "room_id", b.roomID, "participant_id", b.participantID)
}

func (rt *Router) updateDocument(s *Session, e *protocol.DocumentUpdate) {
	b, ok := rt.boundFor(s, e.Name(), e.RoomID, e.ParticipantID)
	if !ok {
		return
	}

	name := room.DocumentName(e.DocumentName)
	content := *e.Content
	_, err := rt.registry.Exec(b.roomID, func(tx *room.Tx) {
		if !rt.owns(tx, s, b, e.Name()) {
			return
		}
		if err := tx.UpdateDocument(name, content); err != nil {
			rt.logger.Warn("document update rejected", "room_id", b.roomID, "document", name, "error", err)
			return
		}
		tx.Broadcast(protocol.DocumentUpdated{
			DocumentName:  name,
			Content:       content,
			ParticipantID: b.participantID,
		}, b.participantID)
	})
	if err != nil {
		rt.logger.Warn("document update failed", "room_id", b.roomID, "error", err)
	}
}

func (rt *Router) updateCursor(s *Session, e *protocol.CursorUpdate) {
	b, ok := rt.boundFor(s, e.Name(), e.RoomID, e.ParticipantID)
	if !ok {
		return
	}

	pos := e.Position.Cursor()
	_, err := rt.registry.Exec(b.roomID, func(tx *room.Tx) {
		if !rt.owns(tx, s, b, e.Name()) {
			return
		}
		if err := tx.UpdateCursor(b.participantID, pos); err != nil {
			rt.logger.Warn("cursor update for absent participant",
				"room_id", b.roomID, "participant_id", b.participantID, "error", err)
			return
		}
		tx.Broadcast(protocol.CursorUpdated{ParticipantID: b.participantID, Position: pos}, b.participantID)
	})
	if err != nil {
		rt.logger.Warn("cursor update failed", "room_id", b.roomID, "error", err)
	}
}

func (rt *Router) chat(s *Session, e *protocol.ChatSend) {
	state, b := s.snapshot()
	if state != Bound || b.roomID != e.RoomID {
		rt.requireReconnect(s, e.RoomID, "chat from connection not bound to room")
		return
	}

	var (
		resolved bool
		msg      room.ChatMessage
	)
	_, err := rt.registry.Exec(b.roomID, func(tx *room.Tx) {
		author, ok := tx.ParticipantByConn(s.conn)
		if !ok {
			return
		}
		resolved = true
		msg = tx.AppendChatMessage(author.ID, author.Name, e.Content)
		tx.Broadcast(protocol.ChatMessage{ChatMessage: msg}, "")
	})
	if err != nil {
		rt.logger.Warn("chat message failed", "room_id", b.roomID, "error", err)
		return
	}
	if !resolved {
		rt.requireReconnect(s, b.roomID, "chat sender is no longer a participant")
		return
	}
	rt.activity.ChatPosted(b.roomID, msg.AuthorID)
}

func (rt *Router) disconnect(s *Session) {
	state, b := s.snapshot()
	if state == Closed {
		return
	}
	if state == Bound {
		rt.leave(s, b)
	}
	s.unbind(Closed)
	rt.logger.Debug("session closed", "conn_id", s.conn.ID(), "was", state.String())
}

func (rt *Router) requireReconnect(s *Session, roomID, reason string) {
	rt.logger.Warn("reconnect required", "conn_id", s.conn.ID(), "room_id", roomID, "reason", reason)
	if err := room.Deliver(s.conn, protocol.ReconnectRequired{}); err != nil {
		rt.logger.Warn("sending reconnect_required failed", "conn_id", s.conn.ID(), "error", err)
	}
}

// boundFor returns the session binding when it matches the event's room and
// participant. Anything else is dropped with a warning.
func (rt *Router) boundFor(s *Session, event, roomID, participantID string) (binding, bool) {
	state, b := s.snapshot()
	if state != Bound {
		rt.logger.Warn("dropping event from unbound connection",
			"conn_id", s.conn.ID(), "event", event, "room_id", roomID)
		return binding{}, false
	}
	if !b.matches(roomID, participantID) {
		rt.logger.Warn("dropping event for another binding",
			"conn_id", s.conn.ID(), "event", event,
			"room_id", roomID, "participant_id", participantID,
			"bound_room_id", b.roomID, "bound_participant_id", b.participantID)
		return binding{}, false
	}
	return b, true
}

// owns reports whether the session's connection still holds its identity.
func (rt *Router) owns(tx *room.Tx, s *Session, b binding, event string) bool {
	p, ok := tx.ParticipantByConn(s.conn)
	if ok && p.ID == b.participantID {
		return true
	}
	rt.logger.Warn("dropping event from superseded connection",
		"conn_id", s.conn.ID(), "event", event, "room_id", b.roomID, "participant_id", b.participantID)
	return false
}

func (b binding) matches(roomID, participantID string) bool {
	return b.roomID == roomID && b.participantID == participantID
}
