package models

import (
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/vidpod/vidpod/internal/snowflake"
)

// JobKind identifies the handler that will process a job. The set of kinds
// is closed; enqueueing an unknown kind is an error, so a job can never
// reach the dispatch loop without a handler.
type JobKind string

const (
	// JobKindActivityBroadcast delivers a signed activity to a list of
	// peer inboxes.
	JobKindActivityBroadcast JobKind = "activitypub-http-broadcast"
)

// Valid reports whether k is a known job kind.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindActivityBroadcast:
		return true
	default:
		return false
	}
}

// JobState is the lifecycle state of a job. Success and error are terminal;
// error means the job exhausted its attempts.
type JobState string

const (
	JobStatePending    JobState = "pending"
	JobStateProcessing JobState = "processing"
	JobStateSuccess    JobState = "success"
	JobStateError      JobState = "error"
)

func (JobState) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql", "postgres":
		return "enum('pending', 'processing', 'success', 'error')"
	case "sqlite":
		return "TEXT"
	default:
		return ""
	}
}

// A Job is a persisted unit of background work. The payload is opaque JSON,
// immutable once enqueued, and self contained so the job survives a process
// restart.
type Job struct {
	ID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Kind          JobKind  `gorm:"size:64;not null"`
	State         JobState `gorm:"default:'pending';not null;index:idx_jobs_state_next_attempt_at"`
	Payload       []byte   `gorm:"not null"`
	Attempts      int      `gorm:"default:0;not null"`
	NextAttemptAt time.Time `gorm:"index:idx_jobs_state_next_attempt_at"`
	LastError     string    `gorm:"size:255"`
}

type Jobs struct {
	db *gorm.DB
}

func NewJobs(db *gorm.DB) *Jobs {
	return &Jobs{db: db}
}

// Enqueue creates a pending job inside the caller's transaction, so the job
// becomes visible only if the surrounding business mutation commits. The
// payload is serialized to JSON; an unknown kind is rejected here rather
// than at dispatch time.
func (j *Jobs) Enqueue(tx *gorm.DB, kind JobKind, payload any) (*Job, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown job kind: %q", kind)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job kind %q: %w", kind, err)
	}
	job := Job{
		ID:            snowflake.Now(),
		Kind:          kind,
		State:         JobStatePending,
		Payload:       body,
		NextAttemptAt: time.Now(),
	}
	if err := tx.Create(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimNext atomically claims the oldest pending, due job, moving it to
// processing. The guarded update means two schedulers sharing the table can
// never claim the same job. Returns nil if no job is due.
func (j *Jobs) ClaimNext() (*Job, error) {
	for {
		var job Job
		err := j.db.
			Where("state = ? AND next_attempt_at <= ?", JobStatePending, time.Now()).
			Order("next_attempt_at asc").
			Take(&job).Error
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		res := j.db.Model(&Job{}).
			Where("id = ? AND state = ?", job.ID, JobStatePending).
			Update("state", JobStateProcessing)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			// lost the race to another worker, try the next candidate
			continue
		}
		job.State = JobStateProcessing
		return &job, nil
	}
}

// Succeed marks a processing job as successfully completed.
func (j *Jobs) Succeed(job *Job) error {
	return j.transition(job, JobStateSuccess, map[string]any{
		"state":      JobStateSuccess,
		"attempts":   job.Attempts + 1,
		"last_error": "",
	})
}

// Retry records a failed attempt and returns the job to pending, due again
// at nextAttemptAt.
func (j *Jobs) Retry(job *Job, attemptErr error, nextAttemptAt time.Time) error {
	return j.transition(job, JobStatePending, map[string]any{
		"state":           JobStatePending,
		"attempts":        job.Attempts + 1,
		"next_attempt_at": nextAttemptAt,
		"last_error":      attemptErr.Error(),
	})
}

// Bury records a failed attempt and marks the job terminally failed. Buried
// jobs are never claimed again; they remain visible to job stats.
func (j *Jobs) Bury(job *Job, attemptErr error) error {
	return j.transition(job, JobStateError, map[string]any{
		"state":      JobStateError,
		"attempts":   job.Attempts + 1,
		"last_error": attemptErr.Error(),
	})
}

func (j *Jobs) transition(job *Job, to JobState, updates map[string]any) error {
	res := j.db.Model(&Job{}).
		Where("id = ? AND state = ?", job.ID, JobStateProcessing).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %d: not in processing state", job.ID)
	}
	job.State = to
	if attempts, ok := updates["attempts"].(int); ok {
		job.Attempts = attempts
	}
	return nil
}

// Reap returns jobs stuck in processing since before cutoff to pending.
// This recovers jobs claimed by a scheduler that crashed mid-attempt.
func (j *Jobs) Reap(cutoff time.Time) (int64, error) {
	res := j.db.Model(&Job{}).
		Where("state = ? AND updated_at < ?", JobStateProcessing, cutoff).
		Updates(map[string]any{
			"state":           JobStatePending,
			"next_attempt_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

// Stats returns the number of jobs in each state.
func (j *Jobs) Stats() (map[JobState]int64, error) {
	var rows []struct {
		State JobState
		Total int64
	}
	err := j.db.Model(&Job{}).
		Select("state, count(*) as total").
		Group("state").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	stats := make(map[JobState]int64, len(rows))
	for _, row := range rows {
		stats[row.State] = row.Total
	}
	return stats, nil
}
