package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowExactlyMaxPerWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(3, time.Minute, "test")
	l.SetClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("a"), "call %d should pass", i+1)
	}
	assert.False(t, l.Allow("a"), "call 4 should be blocked")
	assert.False(t, l.Allow("a"), "call 5 should be blocked")
}

func TestKeysAreIndependent(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(1, time.Minute, "test")
	l.SetClock(func() time.Time { return now })

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "other keys are unaffected")
}

func TestWindowResets(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(2, time.Minute, "test")
	l.SetClock(func() time.Time { return now })

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	now = now.Add(time.Minute)
	assert.True(t, l.Allow("a"), "count resets after the window elapses")
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestPruneDropsExpiredWindows(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(1, time.Minute, "test")
	l.SetClock(func() time.Time { return now })

	l.Allow("a")
	l.Allow("b")

	now = now.Add(2 * time.Minute)
	l.Prune()

	l.mu.Lock()
	n := len(l.entries)
	l.mu.Unlock()
	assert.Equal(t, 0, n)
}

func TestReset(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(1, time.Minute, "test")
	l.SetClock(func() time.Time { return now })

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	l.Reset("a")
	assert.True(t, l.Allow("a"))
}
