package motor

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/blind/pkg/metrics"
)

// PositionStore holds the tracked position in steps from the retracted
// end-stop. Every access takes the position lock with a short timeout.
// A read that misses the lock returns the last value read successfully and
// reports it as stale. A write that misses the lock is dropped. Neither is
// retried, so a slow reader can never stall the pulse loop.
type PositionStore struct {
	mu      *timedMutex
	timeout time.Duration

	// value is guarded by mu.
	value int64
	// cached mirrors value as of the last successful acquisition.
	cached atomic.Int64
}

// NewPositionStore returns a store at position 0.
func NewPositionStore(timeout time.Duration) *PositionStore {
	return &PositionStore{
		mu:      newTimedMutex(),
		timeout: timeout,
	}
}

// Get returns the current position and true, or the last cached position
// and false if the lock could not be acquired in time.
func (s *PositionStore) Get() (int64, bool) {
	if !s.mu.lockWithin(s.timeout) {
		s.missed("get")
		return s.cached.Load(), false
	}
	v := s.value
	s.cached.Store(v)
	s.mu.unlock()
	return v, true
}

// Set overwrites the position. It returns false if the write was dropped.
func (s *PositionStore) Set(pos int64) bool {
	if !s.mu.lockWithin(s.timeout) {
		s.missed("set")
		return false
	}
	s.value = pos
	s.cached.Store(pos)
	s.mu.unlock()
	metrics.Position.Set(float64(pos))
	return true
}

// add moves the position by delta, giving up after timeout. The pulse loop
// uses it with a much shorter timeout than Get/Set.
func (s *PositionStore) add(delta int64, timeout time.Duration) bool {
	if !s.mu.lockWithin(timeout) {
		s.missed("step")
		return false
	}
	s.value += delta
	s.cached.Store(s.value)
	s.mu.unlock()
	return true
}

func (s *PositionStore) missed(op string) {
	metrics.LockTimeouts.WithLabelValues("position").Inc()
	logrus.WithField("op", op).Debug("position lock timed out")
}
