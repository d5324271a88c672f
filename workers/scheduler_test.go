package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vidpod/vidpod/models"
)

// handlerFunc adapts a function to the Handler interface.
type handlerFunc func(ctx context.Context, job *models.Job) error

func (f handlerFunc) Process(ctx context.Context, job *models.Job) error {
	return f(ctx, job)
}

func clearJobs(t *testing.T, env *models.Env) {
	t.Helper()
	require.NoError(t, env.DB.Where("1 = 1").Delete(&models.Job{}).Error)
}

func TestNewScheduler(t *testing.T) {
	env := setupTestEnv(t)
	noop := handlerFunc(func(ctx context.Context, job *models.Job) error { return nil })

	t.Run("rejects a handler for an unknown kind", func(t *testing.T) {
		require := require.New(t)
		_, err := NewScheduler(env, Options{}, map[models.JobKind]Handler{
			models.JobKindActivityBroadcast: noop,
			models.JobKind("no-such-kind"):  noop,
		})
		require.Error(err)
	})

	t.Run("rejects a nil handler", func(t *testing.T) {
		require := require.New(t)
		_, err := NewScheduler(env, Options{}, map[models.JobKind]Handler{
			models.JobKindActivityBroadcast: nil,
		})
		require.Error(err)
	})

	t.Run("requires a handler for every known kind", func(t *testing.T) {
		require := require.New(t)
		_, err := NewScheduler(env, Options{}, map[models.JobKind]Handler{})
		require.Error(err)
	})
}

func TestSchedulerSuccess(t *testing.T) {
	require := require.New(t)
	env := setupTestEnv(t)
	clearJobs(t, env)

	var processed []models.JobKind
	var succeeded int
	s, err := NewScheduler(env, Options{
		OnSuccess: func(job *models.Job) { succeeded++ },
	}, map[models.JobKind]Handler{
		models.JobKindActivityBroadcast: handlerFunc(func(ctx context.Context, job *models.Job) error {
			processed = append(processed, job.Kind)
			return nil
		}),
	})
	require.NoError(err)

	job, err := models.NewJobs(env.DB).Enqueue(env.DB, models.JobKindActivityBroadcast, map[string]any{"uris": []string{}})
	require.NoError(err)

	claimed, err := s.runOnce(context.Background())
	require.NoError(err)
	require.True(claimed)
	require.Equal([]models.JobKind{models.JobKindActivityBroadcast}, processed)
	require.Equal(1, succeeded)

	var got models.Job
	require.NoError(env.DB.First(&got, job.ID).Error)
	require.Equal(models.JobStateSuccess, got.State)
	require.Equal(1, got.Attempts)

	// nothing left to claim
	claimed, err = s.runOnce(context.Background())
	require.NoError(err)
	require.False(claimed)
}

func TestSchedulerRetriesThenBuries(t *testing.T) {
	require := require.New(t)
	env := setupTestEnv(t)
	clearJobs(t, env)

	boom := errors.New("peer unreachable")
	var attempts int
	var terminal []bool
	s, err := NewScheduler(env, Options{
		MaxAttempts: 3,
		BackoffBase: time.Minute,
		OnError:     func(job *models.Job, err error, term bool) { terminal = append(terminal, term) },
	}, map[models.JobKind]Handler{
		models.JobKindActivityBroadcast: handlerFunc(func(ctx context.Context, job *models.Job) error {
			attempts++
			return boom
		}),
	})
	require.NoError(err)

	job, err := models.NewJobs(env.DB).Enqueue(env.DB, models.JobKindActivityBroadcast, map[string]any{"uris": []string{}})
	require.NoError(err)

	var got models.Job
	for i := 1; i <= 3; i++ {
		claimed, err := s.runOnce(context.Background())
		require.NoError(err)
		require.True(claimed)
		require.Equal(i, attempts)

		require.NoError(env.DB.First(&got, job.ID).Error)
		require.Equal(i, got.Attempts)
		require.Contains(got.LastError, "peer unreachable")
		if i < 3 {
			require.Equal(models.JobStatePending, got.State)
			// the retry is scheduled in the future, so it is not claimable yet
			claimed, err := s.runOnce(context.Background())
			require.NoError(err)
			require.False(claimed)
			rewind(t, env.DB, job)
		}
	}

	require.Equal(models.JobStateError, got.State)
	require.Equal([]bool{false, false, true}, terminal)

	// buried jobs stay buried
	claimed, err := s.runOnce(context.Background())
	require.NoError(err)
	require.False(claimed)
	require.Equal(3, attempts)
}

func TestSchedulerBackoffDelays(t *testing.T) {
	require := require.New(t)
	env := setupTestEnv(t)

	s, err := NewScheduler(env, Options{
		BackoffBase: time.Second,
		BackoffCap:  10 * time.Second,
	}, map[models.JobKind]Handler{
		models.JobKindActivityBroadcast: handlerFunc(func(ctx context.Context, job *models.Job) error { return nil }),
	})
	require.NoError(err)

	require.Equal(time.Second, s.backoff(1))
	require.Equal(2*time.Second, s.backoff(2))
	require.Equal(4*time.Second, s.backoff(3))
	require.Equal(8*time.Second, s.backoff(4))
	require.Equal(10*time.Second, s.backoff(5))
	require.Equal(10*time.Second, s.backoff(6))
}

func TestSchedulerRecoversHandlerPanic(t *testing.T) {
	require := require.New(t)
	env := setupTestEnv(t)
	clearJobs(t, env)

	s, err := NewScheduler(env, Options{
		MaxAttempts: 1,
	}, map[models.JobKind]Handler{
		models.JobKindActivityBroadcast: handlerFunc(func(ctx context.Context, job *models.Job) error {
			panic("handler bug")
		}),
	})
	require.NoError(err)

	job, err := models.NewJobs(env.DB).Enqueue(env.DB, models.JobKindActivityBroadcast, map[string]any{"uris": []string{}})
	require.NoError(err)

	claimed, err := s.runOnce(context.Background())
	require.NoError(err)
	require.True(claimed)

	var got models.Job
	require.NoError(env.DB.First(&got, job.ID).Error)
	require.Equal(models.JobStateError, got.State)
	require.Contains(got.LastError, "handler bug")
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	require := require.New(t)
	env := setupTestEnv(t)
	clearJobs(t, env)

	s, err := NewScheduler(env, Options{
		PollInterval: 10 * time.Millisecond,
	}, map[models.JobKind]Handler{
		models.JobKindActivityBroadcast: handlerFunc(func(ctx context.Context, job *models.Job) error { return nil }),
	})
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		require.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
