package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Motor control counters and gauges. All are updated from the control task
// except CommandsTotal and MailboxOverwrites, which the network side owns.

var (
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blind",
		Subsystem: "motor",
		Name:      "steps_total",
		Help:      "Total step pulses emitted",
	}, []string{"direction"})

	LimitHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blind",
		Subsystem: "motor",
		Name:      "limit_hits_total",
		Help:      "Total guarded moves stopped by a limit switch",
	}, []string{"switch"})

	RangeCorrections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blind",
		Subsystem: "motor",
		Name:      "range_corrections_total",
		Help:      "Total deployed endpoint corrections after an unexpected limit hit",
	})

	SeekTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blind",
		Subsystem: "calibration",
		Name:      "seek_timeouts_total",
		Help:      "Total seeks that exhausted their step budget without finding the limit",
	}, []string{"phase"})

	LockTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blind",
		Subsystem: "motor",
		Name:      "lock_timeouts_total",
		Help:      "Total lock acquisitions that timed out and degraded to a stale read or dropped write",
	}, []string{"lock"})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blind",
		Subsystem: "control",
		Name:      "commands_total",
		Help:      "Total commands by outcome",
	}, []string{"command", "result"})

	MailboxOverwrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blind",
		Subsystem: "control",
		Name:      "mailbox_overwrites_total",
		Help:      "Total pending commands replaced before the control task consumed them",
	})

	Position = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "blind",
		Subsystem: "motor",
		Name:      "position_steps",
		Help:      "Tracked position in steps from the retracted end-stop",
	})

	Deployed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "blind",
		Subsystem: "motor",
		Name:      "deployed_steps",
		Help:      "Calibrated deployed endpoint in steps",
	})

	MoveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blind",
		Subsystem: "control",
		Name:      "command_duration_seconds",
		Help:      "Time spent executing a command on the control task",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"command"})
)
