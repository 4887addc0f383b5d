package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context) error { return nil }

func TestAddTask_Validation(t *testing.T) {
	s := New(nil)

	require.NoError(t, s.AddTask(Task{Name: "a", Interval: time.Minute, Func: noop}))

	tests := []struct {
		name string
		task Task
	}{
		{"missing name", Task{Interval: time.Minute, Func: noop}},
		{"zero interval", Task{Name: "b", Func: noop}},
		{"missing func", Task{Name: "c", Interval: time.Minute}},
		{"duplicate", Task{Name: "a", Interval: time.Minute, Func: noop}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, s.AddTask(tt.task))
		})
	}
}

func TestScheduler_RunsOnStartAndOnInterval(t *testing.T) {
	var runs atomic.Int64
	s := New(nil)
	require.NoError(t, s.AddTask(Task{
		Name:       "eval",
		Interval:   10 * time.Millisecond,
		RunOnStart: true,
		Func: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	s.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	status := s.Status()
	require.Len(t, status, 1)
	assert.Equal(t, "eval", status[0].Name)
	assert.GreaterOrEqual(t, status[0].RunCount, int64(3))
	assert.Zero(t, status[0].ErrorCount)
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	release := make(chan struct{})
	var runs atomic.Int64
	s := New(nil)
	require.NoError(t, s.AddTask(Task{
		Name:       "slow",
		Interval:   5 * time.Millisecond,
		RunOnStart: true,
		Func: func(ctx context.Context) error {
			runs.Add(1)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		},
	}))

	s.Start(context.Background())
	require.Eventually(t, func() bool { return s.Status()[0].SkipCount >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), runs.Load())
	close(release)
	s.Stop()
}

func TestScheduler_RecordsErrorsAndTimeout(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.AddTask(Task{
		Name:       "fails",
		Interval:   time.Hour,
		Timeout:    10 * time.Millisecond,
		RunOnStart: true,
		Func: func(ctx context.Context) error {
			<-ctx.Done()
			return errors.Join(errors.New("evaluation aborted"), ctx.Err())
		},
	}))

	s.Start(context.Background())
	require.Eventually(t, func() bool { return s.Status()[0].ErrorCount == 1 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	assert.Contains(t, s.Status()[0].LastError, "deadline exceeded")
}

func TestScheduler_StopCancelsRunningTask(t *testing.T) {
	started := make(chan struct{})
	s := New(nil)
	require.NoError(t, s.AddTask(Task{
		Name:       "blocking",
		Interval:   time.Hour,
		RunOnStart: true,
		Func: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}))

	s.Start(context.Background())
	<-started
	s.Stop()

	assert.Equal(t, int64(1), s.Status()[0].RunCount)
}
