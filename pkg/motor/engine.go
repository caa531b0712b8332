package motor

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/blind/pkg/calibration"
	"github.com/charlie0129/blind/pkg/gpio"
	"github.com/charlie0129/blind/pkg/metrics"
)

// seek drives toward the switch read by limit until it asserts or budget
// pulses have been sent. It returns the number of pulses sent and whether
// the switch was found. An exhausted budget is not an error; a failed pin
// read or write is. Position is not touched.
func (c *Controller) seek(dir gpio.Direction, limit func() (bool, error), budget int64) (int64, bool, error) {
	if err := c.setDirection(dir); err != nil {
		return 0, false, errors.Wrapf(err, "failed to set direction %s", dir)
	}

	var count int64
	defer func() {
		metrics.StepsTotal.WithLabelValues(dir.String()).Add(float64(count))
	}()

	for count < budget {
		hit, err := limit()
		if err != nil {
			return count, false, errors.Wrapf(err, "failed to read limit switch after %d steps", count)
		}
		if hit {
			return count, true, nil
		}
		if err := c.pulse(); err != nil {
			return count, false, errors.Wrapf(err, "failed to pulse step pin after %d steps", count)
		}
		count++
	}

	hit, err := limit()
	if err != nil {
		return count, false, errors.Wrapf(err, "failed to read limit switch after %d steps", count)
	}
	return count, hit, nil
}

// abortCalibration puts the phase back after a hardware failure. A range
// known before the run stays in effect.
func (c *Controller) abortCalibration(err error) error {
	to := calibration.PhaseUncalibrated
	if c.IsCalibrated() {
		to = calibration.PhaseCalibrated
	}
	logrus.WithError(err).Error("calibration aborted")
	c.setPhase(to, "calibration aborted")
	return errors.Wrap(err, "calibration aborted")
}

// Calibrate measures the travel range. It seeks the retracted switch and
// declares that position 0, pauses, then counts pulses to the deployed
// switch and records the count as the deployed endpoint. The range is
// persisted and the mechanism retracted.
//
// A seek that exhausts MaxSeekSteps is logged and the count is used as-is.
// A pin error aborts the run without touching the range or the store.
func (c *Controller) Calibrate() error {
	budget := c.opts.MaxSeekSteps
	logrus.WithField("maxSeekSteps", budget).Info("starting calibration sequence")
	c.record("Calibration started")

	c.setPhase(calibration.PhaseSeekingRetracted, "seeking retracted limit")
	_, found, err := c.seek(gpio.Retracting, c.pins.RetractedLimit, budget)
	if err != nil {
		return c.abortCalibration(err)
	}
	if !found {
		metrics.SeekTimeouts.WithLabelValues(string(calibration.PhaseSeekingRetracted)).Inc()
		logrus.WithField("steps", budget).Warn("retracted limit not found, assuming current position is home")
	} else {
		logrus.Info("retracted limit found, position reset to 0")
	}
	c.mu.Lock()
	c.retracted = 0
	c.mu.Unlock()
	c.position.Set(0)

	delay(c.opts.SettleDelay)

	c.setPhase(calibration.PhaseSeekingDeployed, "seeking deployed limit")
	count, found, err := c.seek(gpio.Deploying, c.pins.DeployedLimit, budget)
	if err != nil {
		return c.abortCalibration(err)
	}
	if !found {
		metrics.SeekTimeouts.WithLabelValues(string(calibration.PhaseSeekingDeployed)).Inc()
		logrus.WithField("steps", count).Warn("deployed limit not found, using step count as deployed position")
	}

	c.setRange(count, "calibration")
	c.position.Set(count)
	c.setPhase(calibration.PhaseCalibrated, "calibration complete")

	c.mu.RLock()
	safe, buffer := c.safeDeployed, c.safetyBuffer
	c.mu.RUnlock()

	log := logrus.WithFields(logrus.Fields{
		"deployed":     count,
		"safeDeployed": safe,
		"safetyBuffer": buffer,
	})
	if safe <= 0 {
		log.Warn("calibration complete but the range is shorter than the safety buffer")
	} else {
		log.Info("calibration complete")
	}

	c.persist()

	return c.Retract()
}

// Deploy moves to the safe deployed target.
func (c *Controller) Deploy() error {
	c.mu.RLock()
	calibrated, target, deployed := c.calibrated, c.safeDeployed, c.deployed
	c.mu.RUnlock()

	if !calibrated {
		logrus.Error("not calibrated, run calibration first")
		return ErrNotCalibrated
	}
	if target <= 0 {
		logrus.WithFields(logrus.Fields{
			"deployed":     deployed,
			"safeDeployed": target,
		}).Error("safe deployed position is not beyond the retracted end")
		return errors.Wrapf(ErrInvalidRange, "safe deployed position %d", target)
	}

	logrus.WithField("target", target).Info("deploying to safe position")
	c.MoveToPosition(target)
	return nil
}

// Retract moves to the retracted endpoint.
func (c *Controller) Retract() error {
	c.mu.RLock()
	calibrated, target := c.calibrated, c.retracted
	c.mu.RUnlock()

	if !calibrated {
		logrus.Error("not calibrated, run calibration first")
		return ErrNotCalibrated
	}

	logrus.WithField("target", target).Info("retracting")
	c.MoveToPosition(target)
	return nil
}

// HomeToRetractedPosition re-establishes position 0 after boot. Position is
// zeroed only if the retracted switch is actually found.
func (c *Controller) HomeToRetractedPosition() {
	logrus.Info("homing to retracted position")

	_, found, err := c.seek(gpio.Retracting, c.pins.RetractedLimit, c.opts.MaxSeekSteps)
	if err != nil {
		logrus.WithError(err).Error("failed to home to retracted position")
		return
	}
	if !found {
		metrics.SeekTimeouts.WithLabelValues("Homing").Inc()
		logrus.WithField("steps", c.opts.MaxSeekSteps).Warn("failed to find retracted limit while homing")
		return
	}

	c.mu.Lock()
	c.retracted = 0
	c.mu.Unlock()
	c.position.Set(0)
	logrus.Info("homed to retracted position")
}

// MoveToPosition moves from the current Position to target with limit
// checks on.
func (c *Controller) MoveToPosition(target int64) {
	current, fresh := c.position.Get()
	steps := target - current

	log := logrus.WithFields(logrus.Fields{
		"from": current,
		"to":   target,
	})
	if !fresh {
		log = log.WithField("stale", true)
	}

	if steps == 0 {
		log.Debug("already at target position")
		return
	}

	log.WithField("steps", steps).Info("moving")
	start := time.Now()
	c.MoveSteps(steps, true)
	log.WithField("took", time.Since(start).String()).Debug("move complete")
}

// LoadStoredCalibration restores a persisted range. It returns false and
// leaves the controller uncalibrated if nothing valid is stored.
func (c *Controller) LoadStoredCalibration() bool {
	r, ok := c.store.Load()
	if !ok {
		return false
	}

	c.mu.Lock()
	c.safetyBuffer = r.SafetyBuffer
	c.retracted = 0
	c.mu.Unlock()

	c.setRange(r.Deployed, "stored")
	c.setPhase(calibration.PhaseCalibrated, "loaded stored calibration")
	return true
}
