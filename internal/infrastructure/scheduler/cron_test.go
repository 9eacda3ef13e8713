package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCronSchedulerRejectsBadExpression(t *testing.T) {
	_, err := NewCronScheduler("every tuesday", nil, nil)
	assert.ErrorContains(t, err, "parse cron expression")
}

func TestNextUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	s, err := NewCronScheduler("30 9 * * *", loc, nil)
	require.NoError(t, err)

	next := s.Next(time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC))
	want := time.Date(2026, 6, 1, 9, 30, 0, 0, loc)
	assert.True(t, next.Equal(want), "next trigger %s, want %s", next, want)
}

func TestTriggerSkipsOverlappingRuns(t *testing.T) {
	s, err := NewCronScheduler("@hourly", nil, nil)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	job := func(time.Time) {
		mu.Lock()
		calls++
		mu.Unlock()
		close(started)
		<-release
	}

	done := make(chan struct{})
	go func() {
		s.trigger(job)
		close(done)
	}()
	<-started

	s.trigger(job)
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestStartStop(t *testing.T) {
	s, err := NewCronScheduler("@daily", time.UTC, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx, func(time.Time) {}))
	require.NoError(t, s.Start(ctx, func(time.Time) {}))
	assert.NotNil(t, s.cron)

	require.NoError(t, s.Stop(ctx))
	assert.Nil(t, s.cron)
	require.NoError(t, s.Stop(ctx))
}

func TestStartStopsWithContext(t *testing.T) {
	s, err := NewCronScheduler("@daily", time.UTC, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx, func(time.Time) {}))
	cancel()

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.cron == nil
	}, time.Second, 5*time.Millisecond)
}
