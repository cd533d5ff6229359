package room

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry owns every live room, keyed by room id. Lookups create rooms on
// first use. The registry lock only guards the map; each room has its own lock.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	chatLimit int
	now       func() time.Time
	observer  Observer
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for room and message timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Registry) { g.now = now }
}

// WithChatHistoryLimit sets the chat sliding window size.
func WithChatHistoryLimit(n int) Option {
	return func(g *Registry) {
		if n > 0 {
			g.chatLimit = n
		}
	}
}

// WithObserver registers a receiver for room lifecycle notifications.
func WithObserver(o Observer) Option {
	return func(g *Registry) { g.observer = o }
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger, opts ...Option) *Registry {
	g := &Registry{
		rooms:     make(map[string]*Room),
		chatLimit: DefaultChatHistoryLimit,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateRoom registers a new room under a generated id.
func (g *Registry) CreateRoom(name string) *Room {
	g.mu.Lock()
	var id string
	for {
		id = newRoomID()
		if _, taken := g.rooms[id]; !taken {
			break
		}
	}
	r := newRoom(id, name, g.chatLimit, g.now, g.logger)
	g.rooms[id] = r
	count := len(g.rooms)
	g.mu.Unlock()

	g.logger.Info("room created", "room_id", id, "name", name, "rooms", count)
	if g.observer != nil {
		g.observer.RoomCreated(id, name)
	}
	return r
}

// GetOrCreate returns the room for id, creating it if absent.
func (g *Registry) GetOrCreate(id string) (*Room, error) {
	if err := validateRoomID(id); err != nil {
		return nil, err
	}

	g.mu.RLock()
	r, ok := g.rooms[id]
	g.mu.RUnlock()
	if ok {
		return r, nil
	}

	g.mu.Lock()
	if r, ok = g.rooms[id]; ok {
		g.mu.Unlock()
		return r, nil
	}
	r = newRoom(id, "Room "+id, g.chatLimit, g.now, g.logger)
	g.rooms[id] = r
	count := len(g.rooms)
	g.mu.Unlock()

	g.logger.Info("room created on first use", "room_id", id, "rooms", count)
	if g.observer != nil {
		g.observer.RoomCreated(id, r.Name)
	}
	return r, nil
}

// Lookup returns the room for id without creating it.
func (g *Registry) Lookup(id string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[id]
	return r, ok
}

// Exec resolves the room (get-or-create) and runs fn with the room locked.
// If the resolved room is evicted before its lock is taken, the lookup is
// retried so fn never runs against a detached room.
func (g *Registry) Exec(id string, fn func(tx *Tx)) (*Room, error) {
	for {
		r, err := g.GetOrCreate(id)
		if err != nil {
			return nil, err
		}
		if r.exec(fn) {
			return r, nil
		}
	}
}

// EvictStale removes every room that has no participants and was created
// more than maxAge ago. It returns the evicted ids.
func (g *Registry) EvictStale(maxAge time.Duration) []string {
	now := g.now()

	g.mu.Lock()
	var evicted []string
	for id, r := range g.rooms {
		r.mu.Lock()
		if len(r.participants) == 0 && now.Sub(r.CreatedAt) > maxAge {
			r.retired = true
			delete(g.rooms, id)
			evicted = append(evicted, id)
		}
		r.mu.Unlock()
	}
	remaining := len(g.rooms)
	g.mu.Unlock()

	sort.Strings(evicted)
	for _, id := range evicted {
		g.logger.Info("room evicted", "room_id", id)
		if g.observer != nil {
			g.observer.RoomEvicted(id)
		}
	}
	if len(evicted) > 0 {
		g.logger.Info("eviction pass finished", "evicted", len(evicted), "remaining", remaining)
	}
	return evicted
}

// Rooms returns the live rooms, oldest first.
func (g *Registry) Rooms() []*Room {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// AddParticipant joins a participant to the room, taking over any existing
// identity with the same id.
func (g *Registry) AddParticipant(roomID, participantID, displayName string, conn Conn) error {
	_, err := g.Exec(roomID, func(tx *Tx) {
		tx.AddParticipant(participantID, displayName, conn)
	})
	return err
}

// RemoveParticipant deletes a participant and reports whether one existed.
func (g *Registry) RemoveParticipant(roomID, participantID string) (bool, error) {
	var removed bool
	_, err := g.Exec(roomID, func(tx *Tx) {
		_, removed = tx.RemoveParticipant(participantID)
	})
	return removed, err
}

// UpdateDocument overwrites a document of the room.
func (g *Registry) UpdateDocument(roomID string, name DocumentName, content string) error {
	var updateErr error
	_, err := g.Exec(roomID, func(tx *Tx) {
		updateErr = tx.UpdateDocument(name, content)
	})
	if err != nil {
		return err
	}
	return updateErr
}

// UpdateCursor sets a participant's cursor.
func (g *Registry) UpdateCursor(roomID, participantID string, c Cursor) error {
	var updateErr error
	_, err := g.Exec(roomID, func(tx *Tx) {
		updateErr = tx.UpdateCursor(participantID, c)
	})
	if err != nil {
		return err
	}
	return updateErr
}

// ListParticipants returns the roster of the room.
func (g *Registry) ListParticipants(roomID string) ([]ParticipantSummary, error) {
	var out []ParticipantSummary
	_, err := g.Exec(roomID, func(tx *Tx) {
		out = tx.Participants()
	})
	return out, err
}

// AppendChatMessage records a chat message in the room.
func (g *Registry) AppendChatMessage(roomID, authorID, authorName, content string) (ChatMessage, error) {
	var msg ChatMessage
	_, err := g.Exec(roomID, func(tx *Tx) {
		msg = tx.AppendChatMessage(authorID, authorName, content)
	})
	return msg, err
}

// Broadcast fans ev out to the room, skipping excludeID.
func (g *Registry) Broadcast(roomID string, ev Event, excludeID string) (int, error) {
	var n int
	_, err := g.Exec(roomID, func(tx *Tx) {
		n = tx.Broadcast(ev, excludeID)
	})
	return n, err
}

func validateRoomID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRoomID)
	}
	if len(id) > MaxRoomIDLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidRoomID, MaxRoomIDLength)
	}
	return nil
}

func newRoomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
