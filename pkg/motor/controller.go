package motor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/blind/pkg/calibration"
	"github.com/charlie0129/blind/pkg/events"
	"github.com/charlie0129/blind/pkg/gpio"
	"github.com/charlie0129/blind/pkg/metrics"
)

// Options tunes motion timing and lock behaviour. Zero durations are valid
// and mean "no delay", which tests rely on.
type Options struct {
	// SafetyBuffer is subtracted from the deployed endpoint to get the
	// deploy target. A stored calibration brings its own buffer.
	SafetyBuffer int64
	// PulseWidth is the time STEP stays high, and then low, per pulse.
	PulseWidth time.Duration
	// DirectionSettle is the wait after changing DIR before the first pulse.
	DirectionSettle time.Duration
	// SettleDelay is the pause between the two calibration seeks.
	SettleDelay time.Duration
	// MaxSeekSteps bounds every seek toward a limit switch.
	MaxSeekSteps int64
	// TestPulseSteps is the number of unguarded pulses for CommandTestPulse.
	TestPulseSteps int64
	// CalibrateOnBoot runs a full calibration at boot when nothing valid is
	// stored.
	CalibrateOnBoot bool

	PositionLockTimeout time.Duration
	StepLockTimeout     time.Duration
	EnqueueLockTimeout  time.Duration
	DequeueLockTimeout  time.Duration
	// PollInterval bounds how long a command can sit in the mailbox if its
	// wake-up signal was lost to a dequeue lock timeout.
	PollInterval time.Duration
}

// DefaultOptions returns the timing used on real hardware.
func DefaultOptions() Options {
	return Options{
		SafetyBuffer:        200,
		PulseWidth:          500 * time.Microsecond,
		DirectionSettle:     10 * time.Microsecond,
		SettleDelay:         500 * time.Millisecond,
		MaxSeekSteps:        50000,
		TestPulseSteps:      100,
		CalibrateOnBoot:     true,
		PositionLockTimeout: 100 * time.Millisecond,
		StepLockTimeout:     1 * time.Millisecond,
		EnqueueLockTimeout:  100 * time.Millisecond,
		DequeueLockTimeout:  10 * time.Millisecond,
		PollInterval:        100 * time.Millisecond,
	}
}

// Controller owns the stepper. All motion, endpoint bookkeeping and pin
// writes happen on the control task (Boot and Run). Other goroutines may
// call Snapshot, Enqueue, IsCalibrated and History.
type Controller struct {
	pins  gpio.Pins
	store calibration.Store
	opts  Options

	position *PositionStore
	mailbox  *Mailbox
	actions  *ActionRecorder
	events   events.Publisher

	// mu guards the fields below. It is never held across a pulse.
	mu           sync.RWMutex
	phase        calibration.Phase
	calibrated   bool
	retracted    int64
	deployed     int64
	safeDeployed int64
	safetyBuffer int64

	busy atomic.Bool
	// stopped is set once the control task has failed to boot or returned.
	stopped atomic.Bool
}

// New returns an uncalibrated controller. The motor driver is left disabled
// until Boot.
func New(pins gpio.Pins, store calibration.Store, opts Options) (*Controller, error) {
	if pins == nil {
		return nil, errors.New("pins must not be nil")
	}
	if store == nil {
		return nil, errors.New("calibration store must not be nil")
	}
	if opts.MaxSeekSteps <= 0 {
		return nil, errors.Errorf("max seek steps must be positive, got %d", opts.MaxSeekSteps)
	}
	if opts.SafetyBuffer < 0 {
		return nil, errors.Errorf("safety buffer must not be negative, got %d", opts.SafetyBuffer)
	}

	return &Controller{
		pins:         pins,
		store:        store,
		opts:         opts,
		position:     NewPositionStore(opts.PositionLockTimeout),
		mailbox:      NewMailbox(opts.EnqueueLockTimeout, opts.DequeueLockTimeout),
		actions:      NewActionRecorder(50),
		phase:        calibration.PhaseUncalibrated,
		safetyBuffer: opts.SafetyBuffer,
	}, nil
}

// SetEventPublisher sets where state changes are published. It must be
// called before Boot.
func (c *Controller) SetEventPublisher(p events.Publisher) {
	c.events = p
}

// IsCalibrated reports whether a travel range is known.
func (c *Controller) IsCalibrated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calibrated
}

// Phase returns the calibration phase.
func (c *Controller) Phase() calibration.Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Position returns the tracked position and whether it is fresh.
func (c *Controller) Position() (int64, bool) {
	return c.position.Get()
}

// History returns recent actions, oldest first.
func (c *Controller) History() []Action {
	return c.actions.Records()
}

// Snapshot builds a status view from controller state and live switch
// readings. It never blocks on the control task.
func (c *Controller) Snapshot() calibration.Status {
	pos, fresh := c.position.Get()

	c.mu.RLock()
	st := calibration.Status{
		Calibrated:    c.calibrated,
		Phase:         c.phase,
		Position:      pos,
		PositionStale: !fresh,
		Deployed:      c.deployed,
		SafeDeployed:  c.safeDeployed,
		SafetyBuffer:  c.safetyBuffer,
	}
	c.mu.RUnlock()

	var err error
	if st.RetractedLimit, err = c.pins.RetractedLimit(); err != nil {
		logrus.WithError(err).Debug("failed to read retracted limit")
	}
	if st.DeployedLimit, err = c.pins.DeployedLimit(); err != nil {
		logrus.WithError(err).Debug("failed to read deployed limit")
	}

	st.Busy = c.busy.Load()
	last := c.actions.Last()
	st.LastAction = last.Message
	st.LastActionAt = last.Time

	return st
}

func (c *Controller) setPhase(to calibration.Phase, msg string) {
	c.mu.Lock()
	from := c.phase
	c.phase = to
	c.mu.Unlock()

	if from == to {
		return
	}

	logrus.WithFields(logrus.Fields{
		"from": from,
		"to":   to,
	}).Debug("calibration phase changed")

	c.publish(events.MotorPhase, events.MotorPhaseEvent{
		From:    string(from),
		To:      string(to),
		Message: msg,
		Ts:      time.Now().Unix(),
	})
}

// setRange records a new deployed endpoint and marks the controller
// calibrated.
func (c *Controller) setRange(deployed int64, reason string) {
	c.mu.Lock()
	c.deployed = deployed
	c.safeDeployed = deployed - c.safetyBuffer
	c.calibrated = true
	buffer, safe := c.safetyBuffer, c.safeDeployed
	c.mu.Unlock()

	metrics.Deployed.Set(float64(deployed))

	c.publish(events.MotorRange, events.MotorRangeEvent{
		Deployed:     deployed,
		SafeDeployed: safe,
		SafetyBuffer: buffer,
		Reason:       reason,
		Ts:           time.Now().Unix(),
	})
}

// persist saves the current range. Failures are logged; the in-memory range
// stays authoritative.
func (c *Controller) persist() {
	c.mu.RLock()
	deployed, buffer := c.deployed, c.safetyBuffer
	c.mu.RUnlock()

	if err := c.store.Save(deployed, buffer); err != nil {
		logrus.WithError(err).Error("failed to save calibration")
	}
}

func (c *Controller) record(msg string) {
	c.actions.Record(msg)
}

func (c *Controller) publish(name string, payload any) {
	if c.events == nil {
		return
	}
	c.events.Publish(name, payload)
}

// Close releases the driver and the pins. The control task must have
// stopped.
func (c *Controller) Close() error {
	return c.pins.Close()
}
