package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/blind/pkg/types"
)

var scheduleActions = []string{"deploy", "retract"}

func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule",
		Aliases: []string{"sch", "sched"},
		Short:   "Manage automatic deploy and retract schedules",
		Long: `Manage automatic deploy and retract schedules.

The schedule command can be used in multiple ways:
  blind schedule                                        Show current schedules
  blind schedule deploy 'minute hour day month weekday' Set the deploy schedule
  blind schedule retract 'minute hour day month weekday' Set the retract schedule
  blind schedule disable deploy|retract                 Disable a schedule
  blind schedule skip deploy|retract                    Skip the next run`,
		Example: `  blind schedule deploy '0 21 * * *'     (Deploy at 21:00 every day)
  blind schedule retract '30 7 * * 1-5'  (Retract at 07:30 on weekdays)`,
		GroupID: gBasic,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleShow(cmd)
		},
	}

	cmd.AddCommand(newScheduleShowCommand())
	for _, action := range scheduleActions {
		cmd.AddCommand(newScheduleSetCommand(action))
	}
	cmd.AddCommand(
		newScheduleDisableCommand(),
		newScheduleSkipCommand(),
	)

	return cmd
}

func newScheduleSetCommand(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " [cron-expression]",
		Short: "Set the " + action + " schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "" {
				return fmt.Errorf("cron expression cannot be empty")
			}
			info, err := apiClient.SetSchedule(action, args[0])
			if err != nil {
				return err
			}
			printSchedule(cmd, *info)
			return nil
		},
	}
}

func newScheduleDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "disable deploy|retract",
		Short:     "Disable a schedule",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: scheduleActions,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := apiClient.SetSchedule(args[0], ""); err != nil {
				return err
			}
			cmd.Printf("%s schedule disabled.\n", args[0])
			return nil
		},
	}
}

func newScheduleSkipCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "skip deploy|retract",
		Short:     "Skip the next scheduled run",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: scheduleActions,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := apiClient.SkipSchedule(args[0])
			if err != nil {
				return err
			}
			cmd.Printf("Next %s run skipped.\n", args[0])
			printSchedule(cmd, *info)
			return nil
		},
	}
}

func newScheduleShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current schedules",
		Long:  "Show the current schedules and next run times.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleShow(cmd)
		},
	}
}

func runScheduleShow(cmd *cobra.Command) error {
	infos, err := apiClient.GetSchedules()
	if err != nil {
		return err
	}
	for _, info := range infos {
		printSchedule(cmd, info)
	}
	return nil
}

func printSchedule(cmd *cobra.Command, info types.ScheduleInfo) {
	if !info.Enabled {
		cmd.Printf("%s schedule is not set.\n", info.Action)
		return
	}
	cmd.Printf("%s (%s). Next %d run(s):\n", info.Action, info.Cron, len(info.NextRuns))
	for _, run := range info.NextRuns {
		cmd.Printf("  - %s\n", run.Local().Format(time.DateTime))
	}
}
