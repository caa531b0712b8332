package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_AllVariablesNonNil(t *testing.T) {
	t.Parallel()

	vars := []struct {
		name string
		val  any
	}{
		{"StepsTotal", StepsTotal},
		{"LimitHits", LimitHits},
		{"RangeCorrections", RangeCorrections},
		{"SeekTimeouts", SeekTimeouts},
		{"LockTimeouts", LockTimeouts},
		{"CommandsTotal", CommandsTotal},
		{"MailboxOverwrites", MailboxOverwrites},
		{"Position", Position},
		{"Deployed", Deployed},
		{"MoveDuration", MoveDuration},
	}

	for _, v := range vars {
		assert.NotNilf(t, v.val, "%s should not be nil", v.name)
	}
}

func TestMetrics_UpdateNoPanic(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		StepsTotal.WithLabelValues("test").Add(3)
		LimitHits.WithLabelValues("test").Inc()
		SeekTimeouts.WithLabelValues("test").Inc()
		LockTimeouts.WithLabelValues("test").Inc()
		CommandsTotal.WithLabelValues("test", "ok").Inc()
		MoveDuration.WithLabelValues("test").Observe(0.5)
	})

	assert.Equal(t, float64(3), testutil.ToFloat64(StepsTotal.WithLabelValues("test")))
}
