package motor

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/blind/pkg/gpio"
	"github.com/charlie0129/blind/pkg/metrics"
)

// spinThreshold is the longest delay served by busy-waiting. The scheduler
// cannot sleep accurately for the microsecond-range pulse timing.
const spinThreshold = time.Millisecond

// delay waits for d. It is a variable so tests can count or skip waits.
var delay = func(d time.Duration) {
	if d <= 0 {
		return
	}
	if d >= spinThreshold {
		time.Sleep(d)
		return
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}

// pulse emits one STEP pulse: high for PulseWidth, then low for PulseWidth.
func (c *Controller) pulse() error {
	if err := c.pins.SetStep(true); err != nil {
		return err
	}
	delay(c.opts.PulseWidth)
	if err := c.pins.SetStep(false); err != nil {
		return err
	}
	delay(c.opts.PulseWidth)
	return nil
}

func (c *Controller) setDirection(dir gpio.Direction) error {
	if err := c.pins.SetDirection(dir); err != nil {
		return err
	}
	delay(c.opts.DirectionSettle)
	return nil
}

// MoveSteps drives the motor by steps, positive toward deployed. Position is
// updated after every pulse.
//
// With checkLimits set, the switch in the direction of travel is read before
// each pulse and the move stops as soon as it is asserted. A retracted hit
// snaps Position to 0. A deployed hit snaps Position to the deployed
// endpoint, first moving that endpoint to the current Position if they
// differ and persisting the corrected range.
func (c *Controller) MoveSteps(steps int64, checkLimits bool) {
	if steps == 0 {
		return
	}

	dir := gpio.Deploying
	delta := int64(1)
	limit := c.pins.DeployedLimit
	count := steps
	if steps < 0 {
		dir = gpio.Retracting
		delta = -1
		limit = c.pins.RetractedLimit
		count = -steps
	}

	log := logrus.WithFields(logrus.Fields{
		"steps":     steps,
		"direction": dir,
	})

	if err := c.setDirection(dir); err != nil {
		log.WithError(err).Error("failed to set direction")
		return
	}

	var done int64
	defer func() {
		metrics.StepsTotal.WithLabelValues(dir.String()).Add(float64(done))
		if pos, fresh := c.position.Get(); fresh {
			metrics.Position.Set(float64(pos))
		}
	}()

	for ; done < count; done++ {
		if checkLimits {
			hit, err := limit()
			if err != nil {
				log.WithError(err).Error("failed to read limit switch, stopping")
				return
			}
			if hit {
				if dir == gpio.Deploying {
					c.onDeployedLimit()
				} else {
					c.onRetractedLimit()
				}
				return
			}
		}

		if err := c.pulse(); err != nil {
			log.WithError(err).Error("failed to pulse step pin, stopping")
			return
		}
		c.position.add(delta, c.opts.StepLockTimeout)
	}

	log.Trace("move finished")
}

func (c *Controller) onRetractedLimit() {
	metrics.LimitHits.WithLabelValues("retracted").Inc()

	pos, _ := c.position.Get()
	c.mu.Lock()
	drifted := c.retracted != 0
	c.retracted = 0
	c.mu.Unlock()

	if pos != 0 || drifted {
		logrus.WithField("position", pos).Info("retracted limit reached, resetting position to 0")
	} else {
		logrus.Debug("retracted limit reached")
	}
	c.position.Set(0)
}

func (c *Controller) onDeployedLimit() {
	metrics.LimitHits.WithLabelValues("deployed").Inc()

	pos, _ := c.position.Get()
	c.mu.RLock()
	deployed := c.deployed
	c.mu.RUnlock()

	logrus.WithField("position", pos).Warn("deployed limit switch triggered")

	if pos != deployed {
		logrus.WithFields(logrus.Fields{
			"from": deployed,
			"to":   pos,
		}).Info("updating deployed position")
		metrics.RangeCorrections.Inc()
		c.setRange(pos, "limit")
		c.persist()
		deployed = pos
	}
	c.position.Set(deployed)
}

// TestPulse emits n unguarded pulses toward deployed. Position and the
// limit switches are ignored.
func (c *Controller) TestPulse(n int64) {
	if n <= 0 {
		return
	}
	logrus.WithField("steps", n).Info("sending test pulses")

	if err := c.setDirection(gpio.Deploying); err != nil {
		logrus.WithError(err).Error("failed to set direction")
		return
	}
	var i int64
	for ; i < n; i++ {
		if err := c.pulse(); err != nil {
			logrus.WithError(err).Error("failed to pulse step pin, stopping")
			break
		}
	}
	metrics.StepsTotal.WithLabelValues(gpio.Deploying.String()).Add(float64(i))

	logrus.Info("test pulses complete")
}
