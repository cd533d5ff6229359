// Package ratelimit throttles inbound traffic per connection and per client.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket that also counts how many events it refused.
type Limiter struct {
	bucket *rate.Limiter

	mu      sync.Mutex
	dropped int
}

// NewLimiter allows perSecond events on average with bursts of up to burst.
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether one event may proceed now.
func (l *Limiter) Allow() bool {
	return l.AllowAt(time.Now())
}

// AllowAt is Allow evaluated at t.
func (l *Limiter) AllowAt(t time.Time) bool {
	if l.bucket.AllowN(t, 1) {
		return true
	}
	l.mu.Lock()
	l.dropped++
	l.mu.Unlock()
	return false
}

// Dropped returns the number of refused events so far.
func (l *Limiter) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

type entry struct {
	limiter  *Limiter
	lastSeen time.Time
}

// ClientLimiters hands out one Limiter per client key (usually a remote IP)
// and forgets keys that have been idle longer than the idle timeout.
type ClientLimiters struct {
	perSecond float64
	burst     int
	idle      time.Duration
	now       func() time.Time

	mu       sync.Mutex
	limiters map[string]*entry

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewClientLimiters creates the set. Call Start to run periodic cleanup.
func NewClientLimiters(perSecond float64, burst int, idle time.Duration) *ClientLimiters {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &ClientLimiters{
		perSecond: perSecond,
		burst:     burst,
		idle:      idle,
		now:       time.Now,
		limiters:  make(map[string]*entry),
		stop:      make(chan struct{}),
	}
}

// Allow reports whether key may perform one more request.
func (cl *ClientLimiters) Allow(key string) bool {
	now := cl.now()
	return cl.get(key, now).AllowAt(now)
}

// Get returns the limiter for key, creating it on first use.
func (cl *ClientLimiters) Get(key string) *Limiter {
	return cl.get(key, cl.now())
}

func (cl *ClientLimiters) get(key string, now time.Time) *Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	e, ok := cl.limiters[key]
	if !ok {
		e = &entry{limiter: NewLimiter(cl.perSecond, cl.burst)}
		cl.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Len returns the number of tracked keys.
func (cl *ClientLimiters) Len() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.limiters)
}

// Sweep drops keys idle for longer than the idle timeout and returns how
// many were removed.
func (cl *ClientLimiters) Sweep() int {
	cutoff := cl.now().Add(-cl.idle)

	cl.mu.Lock()
	defer cl.mu.Unlock()
	removed := 0
	for key, e := range cl.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(cl.limiters, key)
			removed++
		}
	}
	return removed
}

// Start runs Sweep every interval until Stop is called.
func (cl *ClientLimiters) Start(interval time.Duration) {
	cl.wg.Add(1)
	go func() {
		defer cl.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-cl.stop:
				return
			case <-ticker.C:
				cl.Sweep()
			}
		}
	}()
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (cl *ClientLimiters) Stop() {
	cl.stopOnce.Do(func() { close(cl.stop) })
	cl.wg.Wait()
}
