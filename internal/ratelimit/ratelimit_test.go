package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterBurstThenRefill(t *testing.T) {
	l := NewLimiter(10, 3)
	start := time.Unix(1_700_000_000, 0)

	for i := 0; i < 3; i++ {
		require.True(t, l.AllowAt(start), "burst event %d", i)
	}
	assert.False(t, l.AllowAt(start))
	assert.False(t, l.AllowAt(start.Add(50*time.Millisecond)))
	assert.Equal(t, 2, l.Dropped())

	assert.True(t, l.AllowAt(start.Add(200*time.Millisecond)), "tokens refill over time")
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestClientLimitersArePerKey(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	cl := NewClientLimiters(1, 2, time.Minute)
	cl.now = c.now

	assert.True(t, cl.Allow("10.0.0.1"))
	assert.True(t, cl.Allow("10.0.0.1"))
	assert.False(t, cl.Allow("10.0.0.1"))

	assert.True(t, cl.Allow("10.0.0.2"), "another client has its own bucket")
	assert.Same(t, cl.Get("10.0.0.1"), cl.Get("10.0.0.1"))
	assert.Equal(t, 2, cl.Len())
}

func TestClientLimitersSweepIdle(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	cl := NewClientLimiters(1, 1, time.Minute)
	cl.now = c.now

	cl.Allow("old")
	c.t = c.t.Add(45 * time.Second)
	cl.Allow("recent")
	c.t = c.t.Add(30 * time.Second)

	assert.Equal(t, 1, cl.Sweep())
	assert.Equal(t, 1, cl.Len())

	c.t = c.t.Add(2 * time.Minute)
	assert.Equal(t, 1, cl.Sweep())
	assert.Zero(t, cl.Len())
}

func TestClientLimitersStartStop(t *testing.T) {
	cl := NewClientLimiters(1, 1, time.Millisecond)
	cl.Allow("a")
	cl.Start(5 * time.Millisecond)

	assert.Eventually(t, func() bool { return cl.Len() == 0 }, time.Second, 5*time.Millisecond)

	cl.Stop()
	cl.Stop()
}
