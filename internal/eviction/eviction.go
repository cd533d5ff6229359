// Package eviction periodically removes empty, stale rooms from the registry.
package eviction

import (
	"log/slog"
	"sync"
	"time"
)

// Config controls how often eviction runs and how old an empty room must be.
type Config struct {
	Interval time.Duration
	MaxAge   time.Duration
}

// DefaultConfig runs hourly and evicts empty rooms older than a day.
func DefaultConfig() Config {
	return Config{
		Interval: time.Hour,
		MaxAge:   24 * time.Hour,
	}
}

// Evictor is the part of the room registry the service drives.
type Evictor interface {
	EvictStale(maxAge time.Duration) []string
}

// Service runs eviction passes in the background.
type Service struct {
	rooms  Evictor
	config Config
	logger *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Service. Zero config fields take the defaults.
func New(rooms Evictor, config Config, logger *slog.Logger) *Service {
	d := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = d.Interval
	}
	if config.MaxAge <= 0 {
		config.MaxAge = d.MaxAge
	}
	return &Service{
		rooms:  rooms,
		config: config,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

// Start launches the eviction loop.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("eviction service started", "interval", s.config.Interval, "max_age", s.config.MaxAge)
}

// Stop ends the loop and waits for an in-flight pass. Safe to call twice.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	s.logger.Info("eviction service stopped")
}

// EvictNow runs one pass immediately and returns the evicted room ids.
func (s *Service) EvictNow() []string {
	evicted := s.rooms.EvictStale(s.config.MaxAge)
	s.logger.Debug("eviction pass", "evicted", len(evicted))
	return evicted
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.EvictNow()
		}
	}
}
