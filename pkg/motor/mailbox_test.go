package motor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxOverwrite(t *testing.T) {
	m := NewMailbox(10*time.Millisecond, 10*time.Millisecond)

	assert.Equal(t, CommandNone, m.DequeueAndClear())

	assert.True(t, m.Enqueue(CommandDeploy))
	assert.True(t, m.Enqueue(CommandRetract))

	assert.Equal(t, CommandRetract, m.DequeueAndClear(), "only the latest command survives")
	assert.Equal(t, CommandNone, m.DequeueAndClear(), "dequeue clears the slot")
}

func TestMailboxReady(t *testing.T) {
	m := NewMailbox(10*time.Millisecond, 10*time.Millisecond)

	select {
	case <-m.Ready():
		t.Fatal("ready before any enqueue")
	default:
	}

	m.Enqueue(CommandCalibrate)
	m.Enqueue(CommandTestPulse)

	select {
	case <-m.Ready():
	default:
		t.Fatal("not ready after enqueue")
	}
	assert.Equal(t, CommandTestPulse, m.DequeueAndClear())
}

func TestMailboxIgnoresNone(t *testing.T) {
	m := NewMailbox(10*time.Millisecond, 10*time.Millisecond)
	m.Enqueue(CommandDeploy)
	assert.False(t, m.Enqueue(CommandNone))
	assert.Equal(t, CommandDeploy, m.DequeueAndClear())
}

func TestMailboxContention(t *testing.T) {
	m := NewMailbox(time.Millisecond, time.Millisecond)
	m.Enqueue(CommandDeploy)

	require.True(t, m.mu.lockWithin(0))
	assert.False(t, m.Enqueue(CommandRetract), "enqueue is dropped")
	assert.Equal(t, CommandNone, m.DequeueAndClear(), "dequeue gives up")
	m.mu.unlock()

	assert.Equal(t, CommandDeploy, m.DequeueAndClear())
}
