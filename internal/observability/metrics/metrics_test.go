package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordLedgerEntry("payment")
	m.RecordPayment("scheduled", true, "USDC", 10)
	m.ObserveHTTPRequest("GET", "/x", 200, time.Millisecond)

	var s *SchedulerMetrics
	s.IncJobRun("process_due")
	s.IncJobError("process_due", errors.New("boom"))
}

func TestRecordPaymentCountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(Config{ServiceName: "test"}, reg)
	require.NoError(t, err)

	m.RecordPayment("scheduled", true, "USDC", 100)
	m.RecordPayment("scheduled", false, "USDC", 100)
	m.RecordPayment("scheduled", false, "USDC", 100)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.payments.WithLabelValues("scheduled", "succeeded")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.payments.WithLabelValues("scheduled", "failed")))
	assert.Equal(t, float64(100), testutil.ToFloat64(m.paymentVolume.WithLabelValues("USDC")))
}

func TestNewRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(Config{}, reg)
	require.NoError(t, err)
	_, err = New(Config{}, reg)
	assert.Error(t, err)
}

func TestClassifySchedulerError(t *testing.T) {
	assert.Equal(t, SchedulerErrorTypeDeadlineExceeded, ClassifySchedulerError(fmt.Errorf("run: %w", context.DeadlineExceeded)))
	assert.Equal(t, SchedulerErrorTypeBusinessRule, ClassifySchedulerError(errors.New("nope")))
}
