package motor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/blind/pkg/events"
	"github.com/charlie0129/blind/pkg/metrics"
)

// Boot powers the driver and restores the travel range. A valid stored
// range is followed by homing; otherwise a full calibration runs if
// CalibrateOnBoot is set. It must run on the control task before Run.
func (c *Controller) Boot(ctx context.Context) error {
	if err := c.pins.Enable(true); err != nil {
		c.stopped.Store(true)
		c.record("Motor driver failed to start")
		return fmt.Errorf("failed to enable motor driver: %w", err)
	}
	logrus.Info("motor driver enabled")

	if ctx.Err() != nil {
		c.stopped.Store(true)
		return ctx.Err()
	}

	if c.LoadStoredCalibration() {
		c.record("Loaded stored calibration")
		c.HomeToRetractedPosition()
		return nil
	}

	if !c.opts.CalibrateOnBoot {
		logrus.Info("no valid calibration, waiting for a calibrate command")
		c.record("Waiting for calibration")
		return nil
	}

	logrus.Info("no valid calibration, starting calibration")
	c.execute(CommandCalibrate)
	return nil
}

// Run is the control task. It executes mailbox commands one at a time until
// ctx is done. Commands run to completion; cancellation is observed between
// commands.
func (c *Controller) Run(ctx context.Context) error {
	interval := c.opts.PollInterval
	if interval <= 0 {
		interval = DefaultOptions().PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer c.stopped.Store(true)

	logrus.Info("control task started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("control task stopped")
			return ctx.Err()
		case <-c.mailbox.Ready():
		case <-ticker.C:
		}

		cmd := c.mailbox.DequeueAndClear()
		if cmd == CommandNone {
			continue
		}
		c.execute(cmd)
	}
}

// Enqueue hands cmd to the control task and returns without waiting.
// Deploy and Retract are refused while uncalibrated, and everything is
// refused once the control task has stopped. A command still pending in
// the mailbox is replaced.
func (c *Controller) Enqueue(cmd Command) error {
	if c.stopped.Load() {
		metrics.CommandsTotal.WithLabelValues(cmd.String(), "rejected").Inc()
		return ErrStopped
	}
	if (cmd == CommandDeploy || cmd == CommandRetract) && !c.IsCalibrated() {
		metrics.CommandsTotal.WithLabelValues(cmd.String(), "rejected").Inc()
		c.record(fmt.Sprintf("%s rejected: not calibrated", titleOf(cmd)))
		return ErrNotCalibrated
	}

	if !c.mailbox.Enqueue(cmd) {
		metrics.CommandsTotal.WithLabelValues(cmd.String(), "dropped").Inc()
		return nil
	}

	metrics.CommandsTotal.WithLabelValues(cmd.String(), "queued").Inc()
	c.record(fmt.Sprintf("%s command received", titleOf(cmd)))
	return nil
}

// execute runs cmd on the control task.
func (c *Controller) execute(cmd Command) {
	log := logrus.WithField("command", cmd)
	log.Debug("executing command")

	c.busy.Store(true)
	defer c.busy.Store(false)

	start := time.Now()
	var err error
	switch cmd {
	case CommandDeploy:
		err = c.Deploy()
	case CommandRetract:
		err = c.Retract()
	case CommandCalibrate:
		err = c.Calibrate()
	case CommandTestPulse:
		c.TestPulse(c.opts.TestPulseSteps)
	default:
		log.Warn("ignoring unknown command")
		return
	}
	metrics.MoveDuration.WithLabelValues(cmd.String()).Observe(time.Since(start).Seconds())

	pos, _ := c.position.Get()
	result := "ok"
	msg := doneMessage(cmd, pos)
	if err != nil {
		result = "failed"
		msg = fmt.Sprintf("%s failed: %v", titleOf(cmd), err)
		log.WithError(err).Warn("command failed")
	}
	metrics.CommandsTotal.WithLabelValues(cmd.String(), result).Inc()
	c.record(msg)

	c.publish(events.MotorAction, events.MotorActionEvent{
		Command:  cmd.String(),
		Result:   result,
		Message:  msg,
		Position: pos,
		Ts:       time.Now().Unix(),
	})
}

func titleOf(cmd Command) string {
	switch cmd {
	case CommandDeploy:
		return "Deploy"
	case CommandRetract:
		return "Retract"
	case CommandCalibrate:
		return "Calibration"
	case CommandTestPulse:
		return "Test pulse"
	default:
		return cmd.String()
	}
}

func doneMessage(cmd Command, pos int64) string {
	switch cmd {
	case CommandDeploy:
		return fmt.Sprintf("Deployed to %d", pos)
	case CommandRetract:
		return fmt.Sprintf("Retracted to %d", pos)
	case CommandCalibrate:
		return "Calibration complete"
	case CommandTestPulse:
		return "Test pulse complete"
	default:
		return cmd.String()
	}
}
