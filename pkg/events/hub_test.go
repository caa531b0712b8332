package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHubPublish(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())

	h.Publish(MotorAction, MotorActionEvent{Command: "deploy", Result: "ok", Position: 11800})

	ev := <-ch
	assert.Equal(t, MotorAction, ev.Name)
	payload, err := DecodeAs[MotorActionEvent](ev)
	require.NoError(t, err)
	assert.Equal(t, "deploy", payload.Command)
	assert.Equal(t, int64(11800), payload.Position)

	h.Unsubscribe(ch)
	assert.Equal(t, 0, h.Subscribers())
	_, open := <-ch
	assert.False(t, open)

	// Unsubscribing twice is harmless.
	h.Unsubscribe(ch)
}

func TestEventHubDropsForSlowSubscriber(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	for i := 0; i < 100; i++ {
		h.Publish(MotorPhase, MotorPhaseEvent{To: "Calibrated"})
	}
	assert.Equal(t, cap(ch), len(ch))
}

func TestNilHubPublish(t *testing.T) {
	var h *EventHub
	assert.NotPanics(t, func() { h.Publish(MotorRange, MotorRangeEvent{}) })
}

func TestDecodeAsEmpty(t *testing.T) {
	v, err := DecodeAs[ScheduleEvent](Event{Name: ScheduleError})
	require.NoError(t, err)
	assert.Equal(t, ScheduleEvent{}, v)
}

func TestEventHubClose(t *testing.T) {
	h := NewEventHub()
	a, b := h.Subscribe(), h.Subscribe()

	h.Close()

	_, open := <-a
	assert.False(t, open)
	_, open = <-b
	assert.False(t, open)
	assert.Equal(t, 0, h.Subscribers())

	// Still usable.
	c := h.Subscribe()
	h.Publish(ScheduleUpcoming, ScheduleEvent{Action: "deploy"})
	assert.Len(t, c, 1)
}
