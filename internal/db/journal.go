package db

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// JournalConfig sizes the asynchronous writer.
type JournalConfig struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultJournalConfig returns the standard writer settings.
func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		QueueSize:     1024,
		BatchSize:     64,
		FlushInterval: time.Second,
	}
}

// Journal records room activity without blocking callers. Entries are queued
// and written in batches; when the queue is full new entries are dropped.
type Journal struct {
	db     *Database
	config JournalConfig
	now    func() time.Time
	logger *slog.Logger

	queue   chan Entry
	dropped atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewJournal creates a Journal writing to database. Call Start to begin writing.
func NewJournal(database *Database, config JournalConfig, logger *slog.Logger) *Journal {
	d := DefaultJournalConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = d.QueueSize
	}
	if config.BatchSize <= 0 {
		config.BatchSize = d.BatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = d.FlushInterval
	}
	return &Journal{
		db:     database,
		config: config,
		now:    time.Now,
		logger: logger,
		queue:  make(chan Entry, config.QueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the batch writer.
func (j *Journal) Start() {
	go j.run()
}

// Close stops the writer after flushing queued entries, or when ctx expires.
func (j *Journal) Close(ctx context.Context) error {
	j.stopOnce.Do(func() { close(j.stop) })
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

// Recent returns the latest entries for a room, newest first.
func (j *Journal) Recent(ctx context.Context, roomID string, limit int) ([]Entry, error) {
	return j.db.ListActivity(ctx, roomID, limit)
}

// Stats summarizes what has been written so far.
func (j *Journal) Stats(ctx context.Context) (Stats, error) {
	return j.db.Stats(ctx)
}

func (j *Journal) RoomCreated(id, name string) {
	j.record(Entry{RoomID: id, Kind: KindRoomCreated, Detail: name})
}

func (j *Journal) RoomEvicted(id string) {
	j.record(Entry{RoomID: id, Kind: KindRoomEvicted})
}

func (j *Journal) ParticipantJoined(roomID, participantID, displayName string) {
	j.record(Entry{RoomID: roomID, Kind: KindParticipantJoined, ParticipantID: participantID, Detail: displayName})
}

func (j *Journal) ParticipantLeft(roomID, participantID string) {
	j.record(Entry{RoomID: roomID, Kind: KindParticipantLeft, ParticipantID: participantID})
}

func (j *Journal) ChatPosted(roomID, authorID string) {
	j.record(Entry{RoomID: roomID, Kind: KindChatMessage, ParticipantID: authorID})
}

func (j *Journal) record(e Entry) {
	e.CreatedAt = j.now()
	select {
	case j.queue <- e:
	default:
		if n := j.dropped.Add(1); n%100 == 1 {
			j.logger.Warn("activity journal queue full, dropping entries", "kind", e.Kind, "room_id", e.RoomID, "dropped", n)
		}
	}
}

func (j *Journal) run() {
	defer close(j.done)

	ticker := time.NewTicker(j.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, j.config.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := j.db.InsertActivity(ctx, batch); err != nil {
			j.logger.Error("writing activity batch failed", "entries", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-j.queue:
			batch = append(batch, e)
			if len(batch) >= j.config.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-j.stop:
			for {
				select {
				case e := <-j.queue:
					batch = append(batch, e)
					if len(batch) >= j.config.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
