package workers

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vidpod/vidpod/models"
)

func setupTestEnv(t *testing.T) *models.Env {
	t.Helper()
	require := require.New(t)
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	require.NoError(err)

	err = db.AutoMigrate(models.AllTables()...)
	require.NoError(err)

	// enable foreign key constraints
	err = db.Exec("PRAGMA foreign_keys = ON").Error
	require.NoError(err)

	return &models.Env{
		DB:     db,
		Logger: slog.New(slog.NewTextHandler(io.Discard)),
	}
}

// rewind makes a scheduled retry due immediately so a test can drive the
// next attempt without sleeping.
func rewind(t *testing.T, db *gorm.DB, job *models.Job) {
	t.Helper()
	err := db.Model(&models.Job{}).
		Where("id = ?", job.ID).
		Update("next_attempt_at", time.Now().Add(-time.Second)).Error
	require.NoError(t, err)
}
