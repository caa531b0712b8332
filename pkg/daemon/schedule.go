package daemon

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/blind/pkg/events"
	"github.com/charlie0129/blind/pkg/motor"
	"github.com/charlie0129/blind/pkg/types"
)

const (
	actionDeploy  = "deploy"
	actionRetract = "retract"
)

var scheduledCommands = map[string]motor.Command{
	actionDeploy:  motor.CommandDeploy,
	actionRetract: motor.CommandRetract,
}

// newSchedulers returns an idle scheduler per schedulable action. Each one
// enqueues its command once the controller is calibrated.
func newSchedulers() map[string]*Scheduler {
	m := make(map[string]*Scheduler, len(scheduledCommands))
	for action, cmd := range scheduledCommands {
		cmd := cmd
		s := NewScheduler(action,
			func() error { return ctrl.Enqueue(cmd) },
			func() error {
				if !ctrl.IsCalibrated() {
					return motor.ErrNotCalibrated
				}
				return nil
			},
		)
		s.OnUpcoming = func(action string, at time.Time) {
			sseHub.Publish(events.ScheduleUpcoming, events.ScheduleEvent{
				Action:  action,
				NextRun: at.Unix(),
				Ts:      time.Now().Unix(),
			})
		}
		s.OnError = func(action string, err error) {
			logrus.WithError(err).WithField("action", action).Warn("scheduled task failed")
			sseHub.Publish(events.ScheduleError, events.ScheduleEvent{
				Action: action,
				Error:  err.Error(),
				Ts:     time.Now().Unix(),
			})
		}
		m[action] = s
	}
	return m
}

// startSchedulers applies the configured expressions and starts every
// scheduler. A bad expression disables that schedule only.
func startSchedulers() {
	for action, s := range schedulers {
		expr := cronFor(action)
		if err := s.Schedule(expr); err != nil {
			logrus.WithError(err).WithField("action", action).Error("failed to apply schedule")
		}
		s.Start()
		if expr != "" {
			_, next, _ := s.Status()
			logrus.WithFields(logrus.Fields{
				"action": action,
				"cron":   expr,
				"next":   next.Format(time.DateTime),
			}).Info("schedule enabled")
		}
	}
}

func stopSchedulers() {
	for _, s := range schedulers {
		s.Stop()
	}
}

func cronFor(action string) string {
	switch action {
	case actionDeploy:
		return conf.DeployCron()
	case actionRetract:
		return conf.RetractCron()
	}
	return ""
}

func scheduleInfo(action string) types.ScheduleInfo {
	s := schedulers[action]
	expr, _, _ := s.Status()
	return types.ScheduleInfo{
		Action:   action,
		Cron:     expr,
		Enabled:  expr != "",
		NextRuns: s.NextRuns(3),
	}
}

func allScheduleInfo() []types.ScheduleInfo {
	actions := make([]string, 0, len(schedulers))
	for action := range schedulers {
		actions = append(actions, action)
	}
	sort.Strings(actions)

	infos := make([]types.ScheduleInfo, 0, len(actions))
	for _, action := range actions {
		infos = append(infos, scheduleInfo(action))
	}
	return infos
}

// setSchedule validates and persists expr for action, then reschedules.
func setSchedule(action, expr string) (types.ScheduleInfo, error) {
	s, ok := schedulers[action]
	if !ok {
		return types.ScheduleInfo{}, fmt.Errorf("unknown action %q", action)
	}

	var err error
	switch action {
	case actionDeploy:
		err = conf.SetDeployCron(expr)
	case actionRetract:
		err = conf.SetRetractCron(expr)
	}
	if err != nil {
		return types.ScheduleInfo{}, err
	}

	if err := conf.Save(); err != nil {
		logrus.WithError(err).Error("failed to save config")
		return types.ScheduleInfo{}, fmt.Errorf("failed to save config: %w", err)
	}

	if err := s.Schedule(expr); err != nil {
		return types.ScheduleInfo{}, err
	}

	info := scheduleInfo(action)
	log := logrus.WithField("action", action)
	if expr == "" {
		log.Info("schedule disabled")
	} else {
		log.WithField("cron", expr).Info("schedule updated")
	}
	if len(info.NextRuns) > 0 {
		sseHub.Publish(events.ScheduleUpcoming, events.ScheduleEvent{
			Action:  action,
			NextRun: info.NextRuns[0].Unix(),
			Ts:      time.Now().Unix(),
		})
	}
	return info, nil
}

func skipSchedule(action string) (types.ScheduleInfo, error) {
	s, ok := schedulers[action]
	if !ok {
		return types.ScheduleInfo{}, fmt.Errorf("unknown action %q", action)
	}
	if err := s.Skip(); err != nil {
		return types.ScheduleInfo{}, err
	}
	logrus.WithField("action", action).Info("skipped next scheduled run")
	return scheduleInfo(action), nil
}
