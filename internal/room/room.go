package room

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultChatHistoryLimit is the sliding window size of a room's chat log.
const DefaultChatHistoryLimit = 100

// Room is a collaborative editing session: three shared documents, the
// participant roster and the chat log. All state is guarded by mu; callers
// mutate it through a Tx obtained from Registry.Exec.
type Room struct {
	ID        string
	Name      string
	CreatedAt time.Time

	mu           sync.Mutex
	documents    Documents
	participants map[string]*participant
	chat         []ChatMessage
	joinSeq      uint64

	// Set by eviction; a retired room is detached from the registry and
	// must not accept mutations.
	retired bool

	chatLimit int
	now       func() time.Time
	logger    *slog.Logger
}

type participant struct {
	id          string
	displayName string
	conn        Conn
	cursor      *Cursor
	seq         uint64
}

func (p *participant) summary() ParticipantSummary {
	s := ParticipantSummary{ID: p.id, Name: p.displayName}
	if p.cursor != nil {
		c := *p.cursor
		s.Cursor = &c
	}
	return s
}

func newRoom(id, name string, chatLimit int, now func() time.Time, logger *slog.Logger) *Room {
	return &Room{
		ID:           id,
		Name:         name,
		CreatedAt:    now(),
		documents:    DefaultDocuments(),
		participants: make(map[string]*participant),
		chat:         make([]ChatMessage, 0),
		chatLimit:    chatLimit,
		now:          now,
		logger:       logger,
	}
}

// exec runs fn with the room locked. It reports false without running fn
// when the room has been retired by eviction.
func (r *Room) exec(fn func(tx *Tx)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return false
	}
	fn(&Tx{r: r})
	return true
}

// ParticipantCount returns the number of participants currently in the room.
func (r *Room) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

// Snapshot returns a copy of the room's documents, roster and chat history.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&Tx{r: r}).Snapshot()
}

// Tx is a handle to a locked room. It is only valid inside the function
// passed to Registry.Exec and must not be retained.
type Tx struct {
	r *Room
}

// AddParticipant installs a participant bound to conn. If the id is already
// present with another connection, that connection is closed and replaced.
// It reports whether an existing participant was taken over.
func (tx *Tx) AddParticipant(id, displayName string, conn Conn) bool {
	r := tx.r
	prev, exists := r.participants[id]
	if exists && prev.conn != conn {
		if err := prev.conn.Close(); err != nil {
			r.logger.Warn("closing replaced connection",
				"room_id", r.ID, "participant_id", id, "conn_id", prev.conn.ID(), "error", err)
		}
		r.logger.Info("participant identity taken over",
			"room_id", r.ID, "participant_id", id,
			"old_conn_id", prev.conn.ID(), "new_conn_id", conn.ID())
	}

	r.joinSeq++
	p := &participant{id: id, displayName: displayName, conn: conn, seq: r.joinSeq}
	if exists && prev.conn == conn {
		// Same connection re-joining keeps its cursor and position in the roster.
		p.cursor = prev.cursor
		p.seq = prev.seq
	}
	r.participants[id] = p
	return exists && prev.conn != conn
}

// RemoveParticipant deletes the participant regardless of its connection.
func (tx *Tx) RemoveParticipant(id string) (ParticipantSummary, bool) {
	p, ok := tx.r.participants[id]
	if !ok {
		return ParticipantSummary{}, false
	}
	delete(tx.r.participants, id)
	return p.summary(), true
}

// RemoveParticipantConn deletes the participant only while it is still bound
// to conn. A connection that lost its identity to a takeover removes nothing.
func (tx *Tx) RemoveParticipantConn(id string, conn Conn) (ParticipantSummary, bool) {
	p, ok := tx.r.participants[id]
	if !ok || p.conn != conn {
		return ParticipantSummary{}, false
	}
	delete(tx.r.participants, id)
	return p.summary(), true
}

// ParticipantByConn resolves the participant bound to conn.
func (tx *Tx) ParticipantByConn(conn Conn) (ParticipantSummary, bool) {
	for _, p := range tx.r.participants {
		if p.conn == conn {
			return p.summary(), true
		}
	}
	return ParticipantSummary{}, false
}

// UpdateDocument overwrites the named document. Last write wins.
func (tx *Tx) UpdateDocument(name DocumentName, content string) error {
	return tx.r.documents.Set(name, content)
}

// UpdateCursor records the participant's cursor position.
func (tx *Tx) UpdateCursor(id string, c Cursor) error {
	p, ok := tx.r.participants[id]
	if !ok {
		return ErrParticipantNotFound
	}
	p.cursor = &c
	return nil
}

// Participants lists the roster in join order.
func (tx *Tx) Participants() []ParticipantSummary {
	ps := make([]*participant, 0, len(tx.r.participants))
	for _, p := range tx.r.participants {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].seq < ps[j].seq })

	out := make([]ParticipantSummary, len(ps))
	for i, p := range ps {
		out[i] = p.summary()
	}
	return out
}

// AppendChatMessage records a new chat message and trims the history to the
// most recent chatLimit entries.
func (tx *Tx) AppendChatMessage(authorID, authorName, content string) ChatMessage {
	r := tx.r
	msg := ChatMessage{
		ID:         uuid.NewString(),
		AuthorID:   authorID,
		AuthorName: authorName,
		Content:    content,
		Timestamp:  r.now().UnixMilli(),
	}
	r.chat = append(r.chat, msg)
	if over := len(r.chat) - r.chatLimit; over > 0 {
		// Copy so the dropped prefix does not pin the backing array.
		trimmed := make([]ChatMessage, r.chatLimit)
		copy(trimmed, r.chat[over:])
		r.chat = trimmed
	}
	return msg
}

// Snapshot copies the current room state.
func (tx *Tx) Snapshot() Snapshot {
	history := make([]ChatMessage, len(tx.r.chat))
	copy(history, tx.r.chat)
	return Snapshot{
		Documents:    tx.r.documents,
		Participants: tx.Participants(),
		ChatHistory:  history,
	}
}
