package motor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPositionStore(t *testing.T) {
	s := NewPositionStore(10 * time.Millisecond)

	pos, fresh := s.Get()
	assert.Equal(t, int64(0), pos)
	assert.True(t, fresh)

	assert.True(t, s.Set(1200))
	pos, fresh = s.Get()
	assert.Equal(t, int64(1200), pos)
	assert.True(t, fresh)

	assert.True(t, s.add(1, time.Millisecond))
	assert.True(t, s.add(-3, time.Millisecond))
	pos, _ = s.Get()
	assert.Equal(t, int64(1198), pos)
}

func TestPositionStoreContention(t *testing.T) {
	s := NewPositionStore(2 * time.Millisecond)
	s.Set(500)

	// Hold the lock as a stalled holder would.
	assert.True(t, s.mu.lockWithin(0))

	pos, fresh := s.Get()
	assert.Equal(t, int64(500), pos, "stale read returns the last known value")
	assert.False(t, fresh)

	assert.False(t, s.Set(900), "write is dropped")
	assert.False(t, s.add(1, time.Millisecond))

	s.mu.unlock()

	pos, fresh = s.Get()
	assert.Equal(t, int64(500), pos, "dropped writes never land")
	assert.True(t, fresh)
}

func TestPositionStoreWaitsForShortHolder(t *testing.T) {
	s := NewPositionStore(500 * time.Millisecond)
	assert.True(t, s.mu.lockWithin(0))

	go func() {
		time.Sleep(5 * time.Millisecond)
		s.mu.unlock()
	}()

	assert.True(t, s.Set(42))
	pos, fresh := s.Get()
	assert.Equal(t, int64(42), pos)
	assert.True(t, fresh)
}
