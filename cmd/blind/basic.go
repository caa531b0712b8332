package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/blind/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

// newMotorCommand builds a command that queues one motor command on the
// daemon. The daemon answers before the motor moves; use "blind status" or
// "blind events" to follow progress.
func newMotorCommand(use, short, long, verb string, send func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:     use,
		Short:   short,
		Long:    long,
		GroupID: gBasic,
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := send()
			if err != nil {
				return fmt.Errorf("failed to %s: %w", verb, err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}
			return nil
		},
	}
}

func NewDeployCommand() *cobra.Command {
	return newMotorCommand(
		"deploy",
		"Deploy the blind",
		`Deploy the blind.

The blind moves to the deployed endpoint minus the safety buffer. The blind must be calibrated first.`,
		"deploy",
		func() (string, error) { return apiClient.Deploy() },
	)
}

func NewRetractCommand() *cobra.Command {
	return newMotorCommand(
		"retract",
		"Retract the blind",
		`Retract the blind to the retracted endpoint. The blind must be calibrated first.`,
		"retract",
		func() (string, error) { return apiClient.Retract() },
	)
}

func NewCalibrateCommand() *cobra.Command {
	return newMotorCommand(
		"calibrate",
		"Measure the travel range",
		`Measure the travel range.

The motor seeks the retracted limit switch, then the deployed limit switch, and counts the steps in between. The result is saved and the blind is retracted afterwards.

Calibration moves the blind through its whole range. Make sure nothing is in the way.`,
		"start calibration",
		func() (string, error) { return apiClient.Calibrate() },
	)
}

func NewTestPulseCommand() *cobra.Command {
	cmd := newMotorCommand(
		"test-pulse",
		"Send a short burst of unguarded step pulses",
		`Send a short burst of step pulses toward the deployed end.

This ignores the limit switches and does not track position. It is meant for checking the wiring and should not be used during normal operation.`,
		"send test pulses",
		func() (string, error) { return apiClient.TestPulse() },
	)
	cmd.GroupID = gAdvanced
	return cmd
}
