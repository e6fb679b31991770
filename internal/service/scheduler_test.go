package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"raine/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_AddJobValidation(t *testing.T) {
	s := NewScheduler(time.UTC, testLogger())
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.AddJob(Job{Name: "", Schedule: "@every 1m", Run: noop}))
	assert.Error(t, s.AddJob(Job{Name: "bad", Schedule: "not a schedule", Run: noop}))
	assert.Error(t, s.AddJob(Job{Name: "nil-run", Schedule: "@every 1m"}))

	require.NoError(t, s.AddJob(Job{Name: "retry", Schedule: "@every 5m", Run: noop}))
	require.NoError(t, s.AddJob(Job{Name: "cleanup", Schedule: "0 3 * * *", Run: noop}))
	assert.Error(t, s.AddJob(Job{Name: "retry", Schedule: "@every 5m", Run: noop}), "duplicate names are rejected")
}

func TestScheduler_RunNowAppliesTimeoutAndRecordsMetric(t *testing.T) {
	s := NewScheduler(time.UTC, testLogger())
	var sawDeadline atomic.Bool
	require.NoError(t, s.AddJob(Job{
		Name:     "sweep-test",
		Schedule: "@every 1h",
		Timeout:  time.Second,
		Run: func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			sawDeadline.Store(ok)
			return nil
		},
	}))

	labels := map[string]string{"job": "sweep-test", "status": "success"}
	before := metrics.GetRegistry().CounterValue(metrics.SchedulerJobRuns, labels)
	require.NoError(t, s.RunNow(context.Background(), "sweep-test"))
	assert.True(t, sawDeadline.Load())
	assert.Equal(t, before+1, metrics.GetRegistry().CounterValue(metrics.SchedulerJobRuns, labels))

	assert.Error(t, s.RunNow(context.Background(), "unknown"))
}

func TestScheduler_RunNowReturnsJobError(t *testing.T) {
	s := NewScheduler(time.UTC, testLogger())
	require.NoError(t, s.AddJob(Job{
		Name:     "failing",
		Schedule: "@every 1h",
		Run:      func(context.Context) error { return errors.New("boom") },
	}))
	assert.EqualError(t, s.RunNow(context.Background(), "failing"), "boom")
}

func TestScheduler_StartRunsJobsAndStops(t *testing.T) {
	s := NewScheduler(time.UTC, testLogger())
	var runs atomic.Int32
	require.NoError(t, s.AddJob(Job{
		Name:     "tick",
		Schedule: "@every 1s",
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	s.Stop()
	s.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_StartReturnsOnContextCancel(t *testing.T) {
	s := NewScheduler(nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
