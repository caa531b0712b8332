package motor

import "time"

// timedMutex is a mutex whose acquisition can give up after a deadline.
// The holder must call unlock exactly once.
type timedMutex struct {
	ch chan struct{}
}

func newTimedMutex() *timedMutex {
	return &timedMutex{ch: make(chan struct{}, 1)}
}

// lockWithin reports whether the lock was acquired within d.
func (m *timedMutex) lockWithin(d time.Duration) bool {
	select {
	case m.ch <- struct{}{}:
		return true
	default:
	}

	if d <= 0 {
		return false
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case m.ch <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

func (m *timedMutex) unlock() {
	<-m.ch
}
