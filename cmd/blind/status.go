package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/blind/pkg/calibration"
	"github.com/charlie0129/blind/pkg/config"
	"github.com/charlie0129/blind/pkg/types"
)

type statusData struct {
	status    *calibration.Status
	config    *config.RawFileConfig
	schedules []types.ScheduleInfo
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	st, err := apiClient.GetStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	conf, err := apiClient.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	schedules, err := apiClient.GetSchedules()
	if err != nil {
		return nil, fmt.Errorf("failed to get schedules: %w", err)
	}

	return &statusData{
		status:    st,
		config:    conf,
		schedules: schedules,
	}, nil
}

func NewStatusCommand() *cobra.Command {
	asJSON := false

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of the blind",
		Long:    `Get blind position, calibration, limit switches, schedules and configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			if asJSON {
				return printStatusJSON(cmd, data)
			}
			printStatus(cmd, data)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")

	return cmd
}

func printStatus(cmd *cobra.Command, data *statusData) {
	st := data.status
	conf := config.NewFileFromConfig(data.config, "")

	cmd.Println(bold("Blind status:"))
	cmd.Printf("  Calibrated: %s\n", bool2Text(st.Calibrated))
	cmd.Printf("  Phase: %s\n", bold("%s", phaseText(st.Phase)))
	pos := bold("%d", st.Position)
	if st.PositionStale {
		pos += color.YellowString(" (stale)")
	}
	cmd.Printf("  Position: %s\n", pos)
	if st.Calibrated {
		cmd.Printf("  Range: %s\n", bold("0 - %d", st.Deployed))
		cmd.Printf("  Deploy target: %s (buffer %d)\n", bold("%d", st.SafeDeployed), st.SafetyBuffer)
	}
	if st.Busy {
		cmd.Printf("  Motor: %s\n", color.New(color.Bold, color.FgYellow).Sprint("moving"))
	} else {
		cmd.Printf("  Motor: %s\n", bold("idle"))
	}
	if st.LastAction != "" {
		cmd.Printf("  Last action: %s (%s)\n", bold("%s", st.LastAction), st.LastActionAt.Local().Format(time.DateTime))
	}

	cmd.Println()
	cmd.Println(bold("Limit switches:"))
	cmd.Printf("  Retracted: %s\n", switchText(st.RetractedLimit))
	cmd.Printf("  Deployed: %s\n", switchText(st.DeployedLimit))

	cmd.Println()
	cmd.Println(bold("Schedules:"))
	for _, s := range data.schedules {
		if !s.Enabled {
			cmd.Printf("  %s: %s\n", s.Action, bold("disabled"))
			continue
		}
		next := "-"
		if len(s.NextRuns) > 0 {
			next = s.NextRuns[0].Local().Format(time.DateTime)
		}
		cmd.Printf("  %s: %s (next %s)\n", s.Action, bold("%s", s.Cron), next)
	}

	cmd.Println()
	cmd.Println(bold("Configuration:"))
	cmd.Printf("  Safety buffer: %s\n", bold("%d steps", conf.SafetyBuffer()))
	cmd.Printf("  Pulse width: %s\n", bold("%s", conf.PulseWidth()))
	cmd.Printf("  Max seek steps: %s\n", bold("%d", conf.MaxSeekSteps()))
	cmd.Printf("  Calibrate on boot: %s\n", bool2Text(conf.CalibrateOnBoot()))
	cmd.Printf("  Allow non-root users to access the daemon: %s\n", bool2Text(conf.AllowNonRootAccess()))
}

type statusJSON struct {
	Status        *calibration.Status   `json:"status"`
	Schedules     []types.ScheduleInfo  `json:"schedules"`
	Configuration *config.RawFileConfig `json:"configuration"`
}

func printStatusJSON(cmd *cobra.Command, data *statusData) error {
	b, err := json.MarshalIndent(statusJSON{
		Status:        data.status,
		Schedules:     data.schedules,
		Configuration: data.config,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	cmd.Println(string(b))
	return nil
}

func NewHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "history",
		GroupID: gBasic,
		Short:   "Show recent motor actions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actions, err := apiClient.GetHistory()
			if err != nil {
				return err
			}
			if len(actions) == 0 {
				cmd.Println("No actions recorded yet.")
				return nil
			}
			for _, a := range actions {
				cmd.Printf("%s  %s\n", a.Time.Local().Format(time.DateTime), a.Message)
			}
			return nil
		},
	}
}

func phaseText(p calibration.Phase) string {
	switch p {
	case calibration.PhaseCalibrated:
		return color.GreenString(string(p))
	case calibration.PhaseUncalibrated:
		return color.RedString(string(p))
	default:
		return color.YellowString(string(p))
	}
}

func switchText(triggered bool) string {
	if triggered {
		return color.New(color.Bold, color.FgYellow).Sprint("triggered")
	}
	return bold("open")
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
