package gpio

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var _ Pins = &Mock{}

// MockConfig describes the simulated mechanism.
type MockConfig struct {
	// Travel is the number of steps between the two end-stops.
	Travel int64
	// Start is the carriage position at power-on, 0 being the retracted stop.
	Start int64
}

// Mock is a simulated carriage between two end-stops. Every rising STEP edge
// moves it one step in the current direction, unless it is already pressed
// against the end-stop in that direction.
type Mock struct {
	mu sync.Mutex

	travel  int64
	pos     int64
	enabled bool
	dir     Direction
	step    bool

	pulses        int64
	pulsesWhileOn int64

	// forced overrides for switch faults; nil means "follow the carriage".
	retractedForced *bool
	deployedForced  *bool
}

// NewMock returns a simulated mechanism.
func NewMock(cfg MockConfig) *Mock {
	pos := cfg.Start
	if pos < 0 {
		pos = 0
	}
	if pos > cfg.Travel {
		pos = cfg.Travel
	}
	return &Mock{
		travel: cfg.Travel,
		pos:    pos,
	}
}

// Enable implements Pins.
func (m *Mock) Enable(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = on
	return nil
}

// SetDirection implements Pins.
func (m *Mock) SetDirection(dir Direction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dir = dir
	return nil
}

// SetStep implements Pins.
func (m *Mock) SetStep(high bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rising := high && !m.step
	m.step = high
	if !rising {
		return nil
	}

	m.pulses++
	if !m.enabled {
		return nil
	}
	m.pulsesWhileOn++

	switch m.dir {
	case Deploying:
		if m.pos < m.travel {
			m.pos++
		}
	case Retracting:
		if m.pos > 0 {
			m.pos--
		}
	}

	if m.pos == 0 || m.pos == m.travel {
		logrus.WithField("pos", m.pos).Trace("mock carriage at end-stop")
	}
	return nil
}

// RetractedLimit implements Pins.
func (m *Mock) RetractedLimit() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retractedForced != nil {
		return *m.retractedForced, nil
	}
	return m.pos <= 0, nil
}

// DeployedLimit implements Pins.
func (m *Mock) DeployedLimit() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deployedForced != nil {
		return *m.deployedForced, nil
	}
	return m.pos >= m.travel, nil
}

// Close implements Pins.
func (m *Mock) Close() error {
	return m.Enable(false)
}

// Position returns the physical carriage position.
func (m *Mock) Position() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

// SetTravel moves the deployed end-stop. A carriage beyond it is pushed back.
func (m *Mock) SetTravel(travel int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.travel = travel
	if m.pos > travel {
		m.pos = travel
	}
}

// Pulses returns the number of rising STEP edges seen so far.
func (m *Mock) Pulses() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pulses
}

// Enabled reports whether the driver stage is powered.
func (m *Mock) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Direction returns the current DIR level.
func (m *Mock) Direction() Direction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dir
}

// ForceRetractedLimit pins the retracted switch reading, e.g. to simulate a
// broken wire. Pass nil to follow the carriage again.
func (m *Mock) ForceRetractedLimit(v *bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retractedForced = v
}

// ForceDeployedLimit pins the deployed switch reading.
func (m *Mock) ForceDeployedLimit(v *bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deployedForced = v
}
