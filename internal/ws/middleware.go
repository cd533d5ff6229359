package ws

import (
	"log/slog"
	"sync/atomic"

	"github.com/gungorefecetin/web-code-editor/internal/room"
)

// SendFunc delivers one outbound event to a client.
type SendFunc func(ev room.Event) error

// SendMiddleware wraps a SendFunc.
type SendMiddleware func(next SendFunc) SendFunc

// chain applies middlewares so the first one listed runs outermost.
func chain(base SendFunc, mws ...SendMiddleware) SendFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		base = mws[i](base)
	}
	return base
}

// LogSends logs every outbound event at debug level and failures at warn.
func LogSends(logger *slog.Logger) SendMiddleware {
	return func(next SendFunc) SendFunc {
		return func(ev room.Event) error {
			err := next(ev)
			if err != nil {
				logger.Warn("outbound event not delivered", "event", ev.EventName(), "error", err)
				return err
			}
			logger.Debug("outbound event queued", "event", ev.EventName())
			return nil
		}
	}
}

// SendCounters aggregates outbound delivery results across clients.
type SendCounters struct {
	sent    atomic.Int64
	dropped atomic.Int64
}

// Sent returns the number of events queued successfully.
func (s *SendCounters) Sent() int64 { return s.sent.Load() }

// Dropped returns the number of events that could not be queued.
func (s *SendCounters) Dropped() int64 { return s.dropped.Load() }

// Middleware counts results into s.
func (s *SendCounters) Middleware() SendMiddleware {
	return func(next SendFunc) SendFunc {
		return func(ev room.Event) error {
			if err := next(ev); err != nil {
				s.dropped.Add(1)
				return err
			}
			s.sent.Add(1)
			return nil
		}
	}
}
