package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/blind/pkg/gpio"
	"github.com/charlie0129/blind/pkg/utils/ptr"
)

func TestDefaults(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, int64(200), f.SafetyBuffer())
	assert.Equal(t, 500*time.Microsecond, f.PulseWidth())
	assert.Equal(t, 10*time.Microsecond, f.DirectionSettle())
	assert.Equal(t, 500*time.Millisecond, f.SettleDelay())
	assert.Equal(t, int64(50000), f.MaxSeekSteps())
	assert.True(t, f.CalibrateOnBoot())
	assert.Equal(t, "gpiochip0", f.GPIOChip())
	assert.Equal(t, gpio.PinConfig{Enable: 4, Step: 5, Dir: 6, RetractedLimit: 15, DeployedLimit: 16}, f.Pins())
	assert.Equal(t, "/var/lib/blind/calibration.json", f.CalibrationPath())
	assert.Equal(t, "", f.ListenAddr())
	assert.Equal(t, "", f.SerialPort())
	assert.Equal(t, 115200, f.SerialBaudRate())
	assert.Equal(t, "", f.DeployCron())
	assert.False(t, f.AllowNonRootAccess())
	assert.NoError(t, f.Validate())
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		check   func(t *testing.T, f *File)
	}{
		{
			name:    "empty file",
			content: "  \n",
			check: func(t *testing.T, f *File) {
				assert.Equal(t, int64(200), f.SafetyBuffer())
			},
		},
		{
			name:    "overrides",
			content: `{"safetyBuffer": 300, "pulseWidth": "1ms", "serialPort": "/dev/ttyS0", "deployCron": "0 7 * * *"}`,
			check: func(t *testing.T, f *File) {
				assert.Equal(t, int64(300), f.SafetyBuffer())
				assert.Equal(t, time.Millisecond, f.PulseWidth())
				assert.Equal(t, "/dev/ttyS0", f.SerialPort())
				assert.Equal(t, "0 7 * * *", f.DeployCron())
				assert.Equal(t, 10*time.Microsecond, f.DirectionSettle())
			},
		},
		{
			name:    "malformed json",
			content: `{"safetyBuffer":`,
			wantErr: true,
		},
		{
			name:    "bad duration",
			content: `{"pulseWidth": "fast"}`,
			wantErr: true,
		},
		{
			name:    "numeric duration",
			content: `{"settleDelay": 500}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "blind.json")
			require.NoError(t, os.WriteFile(p, []byte(tt.content), 0644))

			f, err := NewFile(p)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, f)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		raw     *RawFileConfig
		wantErr bool
	}{
		{"defaults", &RawFileConfig{}, false},
		{"zero buffer", &RawFileConfig{SafetyBuffer: ptr.To(int64(0))}, true},
		{"negative buffer", &RawFileConfig{SafetyBuffer: ptr.To(int64(-5))}, true},
		{"zero pulse width", &RawFileConfig{PulseWidth: ptr.To(Duration(0))}, true},
		{"zero seek budget", &RawFileConfig{MaxSeekSteps: ptr.To(int64(0))}, true},
		{"zero baud", &RawFileConfig{SerialBaudRate: ptr.To(0)}, true},
		{"empty calibration path", &RawFileConfig{CalibrationPath: ptr.To("")}, true},
		{"shared pins", &RawFileConfig{Pins: &gpio.PinConfig{Enable: 4, Step: 4, Dir: 6, RetractedLimit: 15, DeployedLimit: 16}}, true},
		{"negative pin", &RawFileConfig{Pins: &gpio.PinConfig{Enable: -1, Step: 5, Dir: 6, RetractedLimit: 15, DeployedLimit: 16}}, true},
		{"bad cron", &RawFileConfig{RetractCron: ptr.To("every day")}, true},
		{"descriptor cron", &RawFileConfig{RetractCron: ptr.To("@daily")}, false},
		{"seconds cron", &RawFileConfig{DeployCron: ptr.To("30 0 7 * * *")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewFileFromConfig(tt.raw, "").Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSettersAndSave(t *testing.T) {
	p := filepath.Join(t.TempDir(), "blind.json")
	f, err := NewFile(p)
	require.NoError(t, err)

	require.NoError(t, f.SetDeployCron("0 8 * * *"))
	require.NoError(t, f.SetRetractCron(""))
	assert.Error(t, f.SetRetractCron("not a cron"))
	assert.Error(t, f.SetSafetyBuffer(0))
	require.NoError(t, f.SetSafetyBuffer(250))
	f.SetAllowNonRootAccess(true)
	require.NoError(t, f.Save())

	g, err := NewFile(p)
	require.NoError(t, err)
	assert.Equal(t, "0 8 * * *", g.DeployCron())
	assert.Equal(t, "", g.RetractCron())
	assert.Equal(t, int64(250), g.SafetyBuffer())
	assert.True(t, g.AllowNonRootAccess())
}

func TestNewRawFileConfigFromConfig(t *testing.T) {
	_, err := NewRawFileConfigFromConfig(nil)
	assert.Error(t, err)

	raw, err := NewRawFileConfigFromConfig(NewFileFromConfig(nil, ""))
	require.NoError(t, err)
	assert.Equal(t, int64(200), *raw.SafetyBuffer)
	assert.Equal(t, Duration(500*time.Microsecond), *raw.PulseWidth)
	assert.Equal(t, 5, raw.Pins.Step)
}

func TestDurationJSON(t *testing.T) {
	b, err := Duration(1500 * time.Millisecond).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1.5s"`, string(b))

	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"10us"`)))
	assert.Equal(t, Duration(10*time.Microsecond), d)
}

func TestLogrusFields(t *testing.T) {
	fields := NewFileFromConfig(nil, "").LogrusFields()
	assert.Equal(t, int64(200), fields["safetyBuffer"])
	assert.Equal(t, "500µs", fields["pulseWidth"])
}
