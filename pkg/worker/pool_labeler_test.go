package worker

import (
	"context"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/toolsforexperiments/instrumentserver/metric"
)

// TestPool_LabelerBreaksOutProcessingTimeByOperation verifies WithLabeler
// causes the processing-duration histogram to be recorded per label, the
// way dispatch.Dispatcher labels its pool by instruction operation so a
// slow "call" doesn't get averaged in with a fast "get".
func TestPool_LabelerBreaksOutProcessingTimeByOperation(t *testing.T) {
	registry := metric.NewRegistry()

	processor := func(_ context.Context, job dispatchJob) error {
		time.Sleep(job.delay)
		return nil
	}

	pool := NewPool(2, 10, processor,
		WithMetricsRegistry[dispatchJob](registry, "test_pool"),
		WithLabeler[dispatchJob](func(j dispatchJob) string { return j.operation }),
	)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(5 * time.Second)

	require.NoError(t, pool.Submit(dispatchJob{operation: "get"}))
	require.NoError(t, pool.Submit(dispatchJob{operation: "call"}))
	require.NoError(t, pool.Submit(dispatchJob{operation: "call"}))

	time.Sleep(100 * time.Millisecond)

	families, err := registry.Prometheus().Gather()
	require.NoError(t, err)

	var durations *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "test_pool_processing_duration_seconds" {
			durations = mf
			break
		}
	}
	require.NotNil(t, durations, "processing duration histogram should be registered")

	counts := map[string]uint64{}
	for _, m := range durations.Metric {
		var op string
		for _, lbl := range m.Label {
			if lbl.GetName() == "label" {
				op = lbl.GetValue()
			}
		}
		counts[op] += m.GetHistogram().GetSampleCount()
	}

	require.Equal(t, uint64(1), counts["get"])
	require.Equal(t, uint64(2), counts["call"])
}
