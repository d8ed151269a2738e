package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddJobRejectsBadSpec(t *testing.T) {
	s := New(time.Second)
	err := s.AddJob("every now and then", JobFunc{JobName: "check", Fn: func(context.Context) error { return nil }})
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())

	require.NoError(t, s.AddJob("*/5 * * * *", JobFunc{JobName: "check", Fn: func(context.Context) error { return nil }}))
	require.NoError(t, s.AddJob("@every 1h", JobFunc{JobName: "other", Fn: func(context.Context) error { return nil }}))
	assert.Equal(t, 2, s.Len())
}

func TestRunNowAppliesTimeout(t *testing.T) {
	s := New(10 * time.Millisecond)
	err := s.RunNow(JobFunc{JobName: "slow", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduledJobRuns(t *testing.T) {
	s := New(time.Second)
	var runs int32
	require.NoError(t, s.AddJob("@every 1s", JobFunc{JobName: "tick", Fn: func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return errors.New("failures are logged, not fatal")
	}}))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 }, 3*time.Second, 50*time.Millisecond)
}
