package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJobEnqueue(t *testing.T) {
	db := setupTestDB(t)

	t.Run("unknown kind is rejected at enqueue time", func(t *testing.T) {
		require := require.New(t)
		tx := db.Begin()
		defer tx.Rollback()

		_, err := NewJobs(tx).Enqueue(tx, JobKind("no-such-kind"), nil)
		require.ErrorContains(err, "unknown job kind")
	})

	t.Run("enqueued job is pending and immediately due", func(t *testing.T) {
		require := require.New(t)
		tx := db.Begin()
		defer tx.Rollback()

		job := MockJob(t, tx)
		require.Equal(JobStatePending, job.State)
		require.Equal(JobKindActivityBroadcast, job.Kind)
		require.NotEmpty(job.Payload)
		require.Zero(job.Attempts)
	})

	t.Run("job enqueued in an aborted transaction is never visible", func(t *testing.T) {
		require := require.New(t)
		tx := db.Begin()
		MockJob(t, tx)
		require.NoError(tx.Rollback().Error)

		claimed, err := NewJobs(db).ClaimNext()
		require.NoError(err)
		require.Nil(claimed)
	})
}

func TestJobClaim(t *testing.T) {
	db := setupTestDB(t)

	t.Run("claim moves pending to processing exactly once", func(t *testing.T) {
		require := require.New(t)
		tx := db.Begin()
		defer tx.Rollback()

		job := MockJob(t, tx)

		claimed, err := NewJobs(tx).ClaimNext()
		require.NoError(err)
		require.NotNil(claimed)
		require.Equal(job.ID, claimed.ID)
		require.Equal(JobStateProcessing, claimed.State)

		second, err := NewJobs(tx).ClaimNext()
		require.NoError(err)
		require.Nil(second)
	})

	t.Run("jobs with a future next attempt are not claimed", func(t *testing.T) {
		require := require.New(t)
		tx := db.Begin()
		defer tx.Rollback()

		job := MockJob(t, tx)
		err := tx.Model(job).Update("next_attempt_at", time.Now().Add(time.Hour)).Error
		require.NoError(err)

		claimed, err := NewJobs(tx).ClaimNext()
		require.NoError(err)
		require.Nil(claimed)
	})
}

func TestJobTransitions(t *testing.T) {
	db := setupTestDB(t)

	t.Run("succeed", func(t *testing.T) {
		require := require.New(t)
		tx := db.Begin()
		defer tx.Rollback()

		MockJob(t, tx)
		job, err := NewJobs(tx).ClaimNext()
		require.NoError(err)
		require.NoError(NewJobs(tx).Succeed(job))
		require.Equal(JobStateSuccess, job.State)

		claimed, err := NewJobs(tx).ClaimNext()
		require.NoError(err)
		require.Nil(claimed)
	})

	t.Run("retry returns the job to pending with a later due time", func(t *testing.T) {
		require := require.New(t)
		tx := db.Begin()
		defer tx.Rollback()

		MockJob(t, tx)
		job, err := NewJobs(tx).ClaimNext()
		require.NoError(err)

		due := time.Now().Add(time.Minute)
		require.NoError(NewJobs(tx).Retry(job, errors.New("peer unreachable"), due))
		require.Equal(JobStatePending, job.State)
		require.Equal(1, job.Attempts)

		var stored Job
		require.NoError(tx.Take(&stored, "id = ?", job.ID).Error)
		require.Equal(JobStatePending, stored.State)
		require.Equal("peer unreachable", stored.LastError)

		// not due yet, so not claimable
		claimed, err := NewJobs(tx).ClaimNext()
		require.NoError(err)
		require.Nil(claimed)
	})

	t.Run("bury is terminal", func(t *testing.T) {
		require := require.New(t)
		tx := db.Begin()
		defer tx.Rollback()

		MockJob(t, tx)
		job, err := NewJobs(tx).ClaimNext()
		require.NoError(err)
		require.NoError(NewJobs(tx).Bury(job, errors.New("gave up")))
		require.Equal(JobStateError, job.State)

		claimed, err := NewJobs(tx).ClaimNext()
		require.NoError(err)
		require.Nil(claimed)
	})

	t.Run("transitions require the processing state", func(t *testing.T) {
		require := require.New(t)
		tx := db.Begin()
		defer tx.Rollback()

		job := MockJob(t, tx)
		require.Error(NewJobs(tx).Succeed(job))
	})
}

func TestJobReap(t *testing.T) {
	db := setupTestDB(t)
	require := require.New(t)
	tx := db.Begin()
	defer tx.Rollback()

	MockJob(t, tx)
	job, err := NewJobs(tx).ClaimNext()
	require.NoError(err)

	// a freshly claimed job is not stale
	reaped, err := NewJobs(tx).Reap(time.Now().Add(-time.Minute))
	require.NoError(err)
	require.Zero(reaped)

	reaped, err = NewJobs(tx).Reap(time.Now().Add(time.Minute))
	require.NoError(err)
	require.EqualValues(1, reaped)

	claimed, err := NewJobs(tx).ClaimNext()
	require.NoError(err)
	require.NotNil(claimed)
	require.Equal(job.ID, claimed.ID)
}

func TestJobStats(t *testing.T) {
	db := setupTestDB(t)
	require := require.New(t)
	tx := db.Begin()
	defer tx.Rollback()

	MockJob(t, tx)
	MockJob(t, tx)
	job, err := NewJobs(tx).ClaimNext()
	require.NoError(err)
	require.NoError(NewJobs(tx).Bury(job, errors.New("gave up")))

	stats, err := NewJobs(tx).Stats()
	require.NoError(err)
	require.EqualValues(1, stats[JobStatePending])
	require.EqualValues(1, stats[JobStateError])
}
