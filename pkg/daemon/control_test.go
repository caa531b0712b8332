package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/blind/pkg/calibration"
	"github.com/charlie0129/blind/pkg/config"
	"github.com/charlie0129/blind/pkg/gpio"
	"github.com/charlie0129/blind/pkg/motor"
	"github.com/charlie0129/blind/pkg/types"
)

// deadDriverPins is a mechanism whose driver cannot be enabled.
type deadDriverPins struct {
	*gpio.Mock
}

func (p *deadDriverPins) Enable(bool) error {
	return assert.AnError
}

func TestBootFailureStopsControlTask(t *testing.T) {
	dir := t.TempDir()
	conf = config.NewFileFromConfig(&config.RawFileConfig{}, filepath.Join(dir, "blind.json"))

	pins := &deadDriverPins{Mock: gpio.NewMock(gpio.MockConfig{Travel: 4000})}
	var err error
	ctrl, err = motor.New(pins, calibration.NewFile(filepath.Join(dir, "calibration.json")), motorOptions(conf))
	require.NoError(t, err)
	schedulers = newSchedulers()
	t.Cleanup(stopSchedulers)

	done := make(chan error, 1)
	go func() { done <- runControlTask(context.Background(), ctrl) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, assert.AnError)
		assert.Contains(t, err.Error(), "failed to boot motor controller")
	case <-time.After(5 * time.Second):
		t.Fatal("control task kept running after a failed boot")
	}

	h := setupRoutes()
	w := doRequest(t, h, http.MethodPost, "/calibrate", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp types.CommandResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)

	assert.False(t, getTestStatus(t, h).Calibrated)
	assert.Equal(t, int64(0), pins.Pulses())
}

func TestRunControlTaskStopsOnCancel(t *testing.T) {
	mock := gpio.NewMock(gpio.MockConfig{Travel: 4000})
	c, err := motor.New(mock, calibration.NewFile(filepath.Join(t.TempDir(), "calibration.json")), motor.DefaultOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, runControlTask(ctx, c))
	assert.Equal(t, int64(0), mock.Pulses())
}

func TestStopControlTask(t *testing.T) {
	tests := []struct {
		name        string
		finished    bool
		wantRelease bool
	}{
		{name: "task finished", finished: true, wantRelease: true},
		{name: "task still moving", finished: false, wantRelease: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan struct{})
			if tt.finished {
				close(done)
			}
			var cancelled, released atomic.Bool

			stopControlTask(
				func() { cancelled.Store(true) },
				done,
				20*time.Millisecond,
				func() error { released.Store(true); return nil },
			)

			assert.True(t, cancelled.Load())
			assert.Equal(t, tt.wantRelease, released.Load())
		})
	}
}
