package motor

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/blind/pkg/metrics"
)

// Command is a request for the control task.
type Command int

const (
	CommandNone Command = iota
	CommandDeploy
	CommandRetract
	CommandCalibrate
	CommandTestPulse
)

func (c Command) String() string {
	switch c {
	case CommandNone:
		return "none"
	case CommandDeploy:
		return "deploy"
	case CommandRetract:
		return "retract"
	case CommandCalibrate:
		return "calibrate"
	case CommandTestPulse:
		return "test-pulse"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// Mailbox is a single-slot inbox. A command enqueued while another one is
// still pending replaces it; the replaced command is lost.
type Mailbox struct {
	mu             *timedMutex
	enqueueTimeout time.Duration
	dequeueTimeout time.Duration

	// pending is guarded by mu.
	pending Command

	// ready wakes the consumer. It carries no data.
	ready chan struct{}
}

// NewMailbox returns an empty mailbox.
func NewMailbox(enqueueTimeout, dequeueTimeout time.Duration) *Mailbox {
	return &Mailbox{
		mu:             newTimedMutex(),
		enqueueTimeout: enqueueTimeout,
		dequeueTimeout: dequeueTimeout,
		ready:          make(chan struct{}, 1),
	}
}

// Enqueue stores cmd, overwriting any unconsumed command. It returns false
// if the lock could not be taken in time and cmd was dropped.
func (m *Mailbox) Enqueue(cmd Command) bool {
	if cmd == CommandNone {
		return false
	}

	if !m.mu.lockWithin(m.enqueueTimeout) {
		metrics.LockTimeouts.WithLabelValues("command").Inc()
		logrus.WithField("command", cmd).Warn("command lock timed out, command dropped")
		return false
	}
	prev := m.pending
	m.pending = cmd
	m.mu.unlock()

	if prev != CommandNone {
		metrics.MailboxOverwrites.Inc()
		logrus.WithFields(logrus.Fields{
			"replaced": prev,
			"command":  cmd,
		}).Info("pending command replaced before it was consumed")
	}

	select {
	case m.ready <- struct{}{}:
	default:
	}

	return true
}

// DequeueAndClear returns the pending command and resets the slot in the
// same critical section. It returns CommandNone if the slot is empty or the
// lock could not be taken in time.
func (m *Mailbox) DequeueAndClear() Command {
	if !m.mu.lockWithin(m.dequeueTimeout) {
		metrics.LockTimeouts.WithLabelValues("command").Inc()
		return CommandNone
	}
	cmd := m.pending
	m.pending = CommandNone
	m.mu.unlock()
	return cmd
}

// Ready is signalled after each successful Enqueue.
func (m *Mailbox) Ready() <-chan struct{} {
	return m.ready
}
