package config

import (
	"time"

	"github.com/charlie0129/blind/pkg/gpio"
)

type Config interface {
	SafetyBuffer() int64
	PulseWidth() time.Duration
	DirectionSettle() time.Duration
	SettleDelay() time.Duration
	MaxSeekSteps() int64
	CalibrateOnBoot() bool
	GPIOChip() string
	Pins() gpio.PinConfig
	CalibrationPath() string
	ListenAddr() string
	SerialPort() string
	SerialBaudRate() int
	DeployCron() string
	RetractCron() string
	AllowNonRootAccess() bool

	SetSafetyBuffer(int64) error
	// SetDeployCron sets the deploy schedule. An empty expression disables it.
	SetDeployCron(string) error
	// SetRetractCron sets the retract schedule. An empty expression disables it.
	SetRetractCron(string) error
	SetAllowNonRootAccess(bool)

	// Validate checks that the configuration is usable.
	Validate() error
	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
