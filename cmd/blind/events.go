package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/blind/pkg/events"
)

func NewEventsCommand() *cobra.Command {
	asJSON := false

	cmd := &cobra.Command{
		Use:     "events",
		GroupID: gAdvanced,
		Short:   "Follow daemon events",
		Long:    `Print motor and schedule events as they happen, until interrupted.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			ch, err := apiClient.SubscribeEvents(ctx)
			if err != nil {
				return err
			}

			for ev := range ch {
				if asJSON {
					b, _ := json.Marshal(map[string]any{"event": ev.Name, "data": ev.Data})
					cmd.Println(string(b))
					continue
				}
				cmd.Printf("%s  %s\n", time.Now().Format(time.TimeOnly), describeEvent(ev))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw events as JSON lines")

	return cmd
}

func describeEvent(ev events.Event) string {
	switch ev.Name {
	case events.MotorAction:
		if p, err := events.DecodeAs[events.MotorActionEvent](ev); err == nil {
			return bold("%s %s", p.Command, p.Result) + ": " + p.Message
		}
	case events.MotorRange:
		if p, err := events.DecodeAs[events.MotorRangeEvent](ev); err == nil {
			return fmt.Sprintf("%s deployed=%d target=%d (%s)", bold("range"), p.Deployed, p.SafeDeployed, p.Reason)
		}
	case events.MotorPhase:
		if p, err := events.DecodeAs[events.MotorPhaseEvent](ev); err == nil {
			return bold("phase") + " " + p.From + " -> " + p.To
		}
	case events.ScheduleUpcoming, events.ScheduleError:
		if p, err := events.DecodeAs[events.ScheduleEvent](ev); err == nil {
			if p.Error != "" {
				return bold("%s schedule", p.Action) + " error: " + p.Error
			}
			return bold("%s schedule", p.Action) + " runs at " + time.Unix(p.NextRun, 0).Format(time.DateTime)
		}
	}
	return ev.Name + " " + string(ev.Data)
}
