package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/blind/pkg/config"
)

const (
	defaultLead             = time.Minute
	defaultPreCheckRetries  = 30
	defaultPreCheckInterval = 10 * time.Second
)

// TaskFunc represents a runnable task.
type TaskFunc func() error

// Scheduler runs one action on a cron schedule. Before each run it notifies
// OnUpcoming, then runs PreCheck until it passes (retrying a bounded number
// of times) and finally Task. A run whose PreCheck never passes is skipped.
type Scheduler struct {
	Action     string
	OnUpcoming func(action string, at time.Time)
	OnError    func(action string, err error)
	Task       TaskFunc
	PreCheck   TaskFunc

	Lead             time.Duration
	PreCheckRetries  int
	PreCheckInterval time.Duration

	mu       sync.Mutex
	expr     string
	schedule cron.Schedule
	nextRun  time.Time
	notified time.Time
	stopCh   chan struct{}

	// wake interrupts the current wait after the schedule changes.
	wake chan struct{}
}

func NewScheduler(action string, task, preCheck TaskFunc) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}

	return &Scheduler{
		Action:           action,
		Task:             task,
		PreCheck:         preCheck,
		Lead:             defaultLead,
		PreCheckRetries:  defaultPreCheckRetries,
		PreCheckInterval: defaultPreCheckInterval,
		wake:             make(chan struct{}, 1),
	}
}

// Schedule sets the cron expression. An empty expression clears the
// schedule. It may be called while the scheduler is running.
func (s *Scheduler) Schedule(expr string) error {
	if expr == "" {
		s.Clear()
		return nil
	}

	sh, err := config.ParseCron(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	s.mu.Lock()
	s.expr = expr
	s.schedule = sh
	s.nextRun = sh.Next(time.Now())
	s.mu.Unlock()

	s.poke()
	return nil
}

// Clear removes the schedule. A running scheduler stays idle until the
// next Schedule.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	s.expr = ""
	s.schedule = nil
	s.nextRun = time.Time{}
	s.mu.Unlock()

	s.poke()
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	go s.run(s.stopCh)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.stopCh = nil
}

// Skip skips the next scheduled run.
func (s *Scheduler) Skip() error {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("no active %s schedule to skip", s.Action)
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	s.mu.Unlock()

	s.poke()
	return nil
}

// Status returns the cron expression, the next run and whether the
// scheduler goroutine is running.
func (s *Scheduler) Status() (expr string, nextRun time.Time, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expr, s.nextRun, s.stopCh != nil
}

// NextRuns returns up to n run times starting with the next one.
func (s *Scheduler) NextRuns(n int) []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == nil || s.nextRun.IsZero() {
		return nil
	}
	runs := []time.Time{s.nextRun}
	for len(runs) < n {
		runs = append(runs, s.schedule.Next(runs[len(runs)-1]))
	}
	return runs
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

type waitResult int

const (
	waitFired waitResult = iota
	waitWoken
	waitStopped
)

func (s *Scheduler) waitUntil(t time.Time, stop <-chan struct{}) waitResult {
	d := time.Until(t)
	if d < 0 {
		d = 0
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return waitFired
	case <-s.wake:
		return waitWoken
	case <-stop:
		return waitStopped
	}
}

func (s *Scheduler) run(stop <-chan struct{}) {
	log := logrus.WithField("action", s.Action)
	log.Debug("scheduler started")
	defer log.Debug("scheduler stopped")

	for {
		next := s.next()

		if next.IsZero() {
			select {
			case <-s.wake:
				continue
			case <-stop:
				return
			}
		}

		switch s.waitUntil(next.Add(-s.Lead), stop) {
		case waitStopped:
			return
		case waitWoken:
			continue
		}
		s.notifyUpcoming(next)

		switch s.waitUntil(next, stop) {
		case waitStopped:
			return
		case waitWoken:
			continue
		}

		if !s.runOnce(next, stop) {
			return
		}
	}
}

// runOnce runs the task due at next. It returns false if the scheduler was
// stopped meanwhile.
func (s *Scheduler) runOnce(next time.Time, stop <-chan struct{}) bool {
	log := logrus.WithFields(logrus.Fields{
		"action": s.Action,
		"at":     next.Format(time.DateTime),
	})
	defer s.advance(next)

	if s.PreCheck != nil {
		for attempt := 0; ; attempt++ {
			err := s.PreCheck()
			if err == nil {
				break
			}
			if attempt == 0 {
				s.sendError(fmt.Errorf("precheck failed: %w", err))
			}
			if attempt >= s.PreCheckRetries {
				log.WithError(err).Warn("precheck kept failing, skipping scheduled run")
				return true
			}
			log.Debugf("precheck failed (%d/%d): %v; retrying in %s", attempt+1, s.PreCheckRetries, err, s.PreCheckInterval)

			if s.waitUntil(time.Now().Add(s.PreCheckInterval), stop) == waitStopped {
				return false
			}
		}
	}

	log.Info("running scheduled task")
	if err := s.Task(); err != nil {
		s.sendError(fmt.Errorf("task failed: %w", err))
	}
	return true
}

func (s *Scheduler) next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

// advance moves past the run at t unless the schedule changed meanwhile.
func (s *Scheduler) advance(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil || !s.nextRun.Equal(t) {
		return
	}
	s.nextRun = s.schedule.Next(t)
}

func (s *Scheduler) notifyUpcoming(at time.Time) {
	s.mu.Lock()
	already := s.notified.Equal(at)
	s.notified = at
	s.mu.Unlock()

	if already || s.OnUpcoming == nil {
		return
	}
	logrus.WithField("action", s.Action).Debugf("upcoming scheduled task at %s", at.Format(time.DateTime))
	go s.OnUpcoming(s.Action, at)
}

func (s *Scheduler) sendError(err error) {
	if s.OnError == nil {
		return
	}
	go s.OnError(s.Action, err)
}
