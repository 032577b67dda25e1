package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestJobCounters(t *testing.T) {
	before := testutil.ToFloat64(jobsTotal.WithLabelValues("completed"))

	JobStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(jobsInFlight))
	JobFinished("Completed", 1500*time.Millisecond)

	assert.Equal(t, 0.0, testutil.ToFloat64(jobsInFlight))
	assert.Equal(t, before+1, testutil.ToFloat64(jobsTotal.WithLabelValues("completed")))
}

func TestModelCounters(t *testing.T) {
	ObserveFit("ARIMA", 10*time.Millisecond, true)
	ObserveFit("arima", 10*time.Millisecond, false)
	IncSelected(" ets ")

	assert.Equal(t, 1.0, testutil.ToFloat64(modelFits.WithLabelValues("arima", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(modelFits.WithLabelValues("arima", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(modelSelected.WithLabelValues("ets")))
}

func TestQueueCounters(t *testing.T) {
	ObserveQueue("publish", nil)
	ObserveQueue("publish", errors.New("down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(queueMessages.WithLabelValues("publish", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(queueMessages.WithLabelValues("publish", "error")))
}

func TestMustRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		MustRegister()
		MustRegister()
	})
}
