package daemon

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/blind/pkg/calibration"
	"github.com/charlie0129/blind/pkg/motor"
)

type fakeCommander struct {
	calibrated bool
	queued     []motor.Command
	status     calibration.Status
}

func (f *fakeCommander) Enqueue(cmd motor.Command) error {
	if (cmd == motor.CommandDeploy || cmd == motor.CommandRetract) && !f.calibrated {
		return motor.ErrNotCalibrated
	}
	f.queued = append(f.queued, cmd)
	return nil
}

func (f *fakeCommander) Snapshot() calibration.Status {
	return f.status
}

func TestConsole(t *testing.T) {
	tests := []struct {
		name       string
		calibrated bool
		in         string
		wantQueued []motor.Command
		wantOut    []string
	}{
		{
			name:       "deploy and retract",
			calibrated: true,
			in:         "d\nR\n",
			wantQueued: []motor.Command{motor.CommandDeploy, motor.CommandRetract},
			wantOut:    []string{"Deploying blinds...", "Retracting blinds..."},
		},
		{
			name:       "uncalibrated",
			in:         "d",
			wantQueued: nil,
			wantOut:    []string{"Error: Not calibrated. Run calibration first."},
		},
		{
			name:       "calibrate and test pulse",
			in:         "cT",
			wantQueued: []motor.Command{motor.CommandCalibrate, motor.CommandTestPulse},
			wantOut:    []string{"Starting calibration...", "Test: moving forward"},
		},
		{
			name:    "unknown",
			in:      "x",
			wantOut: []string{"Unknown command 'x'", "Commands:"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCommander{calibrated: tt.calibrated}
			var out bytes.Buffer
			require.NoError(t, runConsole(context.Background(), c, strings.NewReader(tt.in), &out))
			assert.Equal(t, tt.wantQueued, c.queued)
			for _, s := range tt.wantOut {
				assert.Contains(t, out.String(), s)
			}
		})
	}
}

func TestConsoleStatusDump(t *testing.T) {
	c := &fakeCommander{status: calibration.Status{
		Calibrated:     true,
		Position:       1234,
		Deployed:       12000,
		SafeDeployed:   11800,
		RetractedLimit: false,
		DeployedLimit:  true,
		LastAction:     "Deployed to 11800",
	}}
	var out bytes.Buffer
	require.NoError(t, runConsole(context.Background(), c, strings.NewReader("s"), &out))

	for _, s := range []string{
		"=== Current Status ===",
		"Retracted limit: NOT TRIGGERED",
		"Deployed limit: TRIGGERED",
		"Current position: 1234",
		"Calibrated: YES",
		"Deployed position: 12000",
		"Last action: Deployed to 11800",
	} {
		assert.Contains(t, out.String(), s)
	}
}

func TestConsoleStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runConsole(ctx, &fakeCommander{}, strings.NewReader("c"), &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}
