package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/clock"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/config"
	redisclient "github.com/JavaTeamPosTech/meu-hospital-microservices/internal/redis"
)

func TestNextRun(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	at := config.TimeOfDay{Hour: 18, Minute: 0}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2026, 3, 9, 10, 0, 0, 0, loc),
			want: time.Date(2026, 3, 9, 18, 0, 0, 0, loc),
		},
		{
			name: "exactly at trigger rolls to tomorrow",
			now:  time.Date(2026, 3, 9, 18, 0, 0, 0, loc),
			want: time.Date(2026, 3, 10, 18, 0, 0, 0, loc),
		},
		{
			name: "after trigger",
			now:  time.Date(2026, 3, 9, 23, 59, 0, 0, loc),
			want: time.Date(2026, 3, 10, 18, 0, 0, 0, loc),
		},
		{
			name: "utc input is read in location",
			now:  time.Date(2026, 3, 9, 22, 0, 0, 0, time.UTC), // 19:00 local
			want: time.Date(2026, 3, 10, 18, 0, 0, 0, loc),
		},
		{
			name: "month boundary",
			now:  time.Date(2026, 3, 31, 20, 0, 0, 0, loc),
			want: time.Date(2026, 4, 1, 18, 0, 0, 0, loc),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextRun(tt.now, at, loc)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func newScheduler(locker redisclient.Locker, jobs ...Job) *Scheduler {
	return NewScheduler(jobs, locker, clock.NewMockClock(time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)),
		Options{Location: time.UTC, RunTimeout: 5 * time.Second}, zerolog.Nop(), nil)
}

func TestTrigger_OK(t *testing.T) {
	s := newScheduler(redisclient.NewLocalLocker(), Job{
		Name: "completion",
		Run:  func(context.Context) (int, error) { return 3, nil },
	})

	outcome, n, err := s.Trigger(context.Background(), "completion")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, outcome)
	assert.Equal(t, 3, n)
}

func TestTrigger_SkipsWhileRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32

	s := newScheduler(redisclient.NewLocalLocker(), Job{
		Name: "reminders",
		Run: func(ctx context.Context) (int, error) {
			runs.Add(1)
			close(started)
			<-release
			return 1, nil
		},
	})

	done := make(chan Outcome, 1)
	go func() {
		outcome, _, _ := s.Trigger(context.Background(), "reminders")
		done <- outcome
	}()
	<-started

	outcome, _, err := s.Trigger(context.Background(), "reminders")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	close(release)
	assert.Equal(t, OutcomeOK, <-done)
	assert.Equal(t, int32(1), runs.Load())
}

func TestTrigger_SkipsWhenAnotherReplicaHoldsLock(t *testing.T) {
	locker := redisclient.NewLocalLocker()
	var ran atomic.Bool
	s := newScheduler(locker, Job{
		Name: "completion",
		Run: func(context.Context) (int, error) {
			ran.Store(true)
			return 0, nil
		},
	})

	err := locker.WithLock(context.Background(), redisclient.JobLockKey("completion"), func(ctx context.Context) error {
		outcome, _, err := s.Trigger(ctx, "completion")
		assert.Equal(t, OutcomeSkipped, outcome)
		return err
	})
	require.NoError(t, err)
	assert.False(t, ran.Load())
}

func TestTrigger_Failure(t *testing.T) {
	boom := errors.New("db down")
	s := newScheduler(redisclient.NewLocalLocker(), Job{
		Name: "completion",
		Run:  func(context.Context) (int, error) { return 0, boom },
	})

	outcome, _, err := s.Trigger(context.Background(), "completion")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, OutcomeFailed, outcome)

	// a failed run releases the in-process guard
	s.jobs["completion"].Run = func(context.Context) (int, error) { return 2, nil }
	outcome, n, err := s.Trigger(context.Background(), "completion")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, outcome)
	assert.Equal(t, 2, n)
}

func TestTrigger_UnknownJob(t *testing.T) {
	s := newScheduler(redisclient.NewLocalLocker())
	_, _, err := s.Trigger(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestRun_RunOnStartAndStops(t *testing.T) {
	var runs atomic.Int32
	ran := make(chan struct{}, 1)
	s := NewScheduler([]Job{{
		Name: "completion",
		At:   config.TimeOfDay{Hour: 1},
		Run: func(context.Context) (int, error) {
			runs.Add(1)
			ran <- struct{}{}
			return 0, nil
		},
	}}, redisclient.NewLocalLocker(), clock.NewRealClock(), Options{Location: time.UTC, RunOnStart: true}, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run on start")
	}
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int32(1), runs.Load())
}
