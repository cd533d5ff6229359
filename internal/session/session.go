package session

import (
	"sync"

	"github.com/gungorefecetin/web-code-editor/internal/room"
)

// State is the lifecycle position of a connection.
type State int

const (
	// Unbound: connected, not yet joined to a room.
	Unbound State = iota
	// Bound: joined to exactly one room under one participant identity.
	Bound
	// Closed: terminal; the connection has gone away.
	Closed
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Bound:
		return "bound"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Session holds the router's view of one connection. Events for a session
// are dispatched one at a time, in arrival order.
type Session struct {
	conn room.Conn

	mu            sync.Mutex
	state         State
	roomID        string
	participantID string
	displayName   string
}

// New creates an Unbound session for conn.
func New(conn room.Conn) *Session {
	return &Session{conn: conn}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Binding returns the room and participant the session is bound to.
func (s *Session) Binding() (roomID, participantID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID, s.participantID, s.state == Bound
}

type binding struct {
	roomID        string
	participantID string
	displayName   string
}

func (s *Session) snapshot() (State, binding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, binding{roomID: s.roomID, participantID: s.participantID, displayName: s.displayName}
}

func (s *Session) bind(b binding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Bound
	s.roomID = b.roomID
	s.participantID = b.participantID
	s.displayName = b.displayName
}

func (s *Session) unbind(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = next
	s.roomID = ""
	s.participantID = ""
	s.displayName = ""
}
