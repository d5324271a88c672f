package models

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vidpod/vidpod/internal/crypto"
	"github.com/vidpod/vidpod/internal/snowflake"
	"github.com/vidpod/vidpod/internal/webfinger"
)

// WithLocal marks a mock account as hosted on this pod, with a private key.
func WithLocal() func(*Account) {
	return func(a *Account) {
		a.Local = true
	}
}

// MockAccount creates a new account in the database.
func MockAccount(t *testing.T, tx *gorm.DB, name, host string, opts ...func(*Account)) *Account {
	t.Helper()
	require := require.New(t)

	kp, err := crypto.GenerateRSAKeypair()
	require.NoError(err)

	acct := webfinger.Acct{Name: name, Host: host}
	account := &Account{
		ID:             snowflake.Now(),
		Name:           name,
		Host:           host,
		DisplayName:    name,
		URL:            acct.ID(),
		InboxURL:       acct.Inbox(),
		SharedInboxURL: acct.SharedInbox(),
		FollowersURL:   acct.Followers(),
		PublicKey:      kp.PublicKey,
		PrivateKey:     kp.PrivateKey,
	}
	for _, opt := range opts {
		opt(account)
	}
	require.NoError(tx.Create(account).Error)
	return account
}

// MockJob enqueues a broadcast job with a synthetic payload.
func MockJob(t *testing.T, tx *gorm.DB) *Job {
	t.Helper()
	require := require.New(t)

	job, err := NewJobs(tx).Enqueue(tx, JobKindActivityBroadcast, map[string]any{
		"uris": []string{fmt.Sprintf("https://peer.example/inbox/%d", snowflake.Now())},
		"body": map[string]any{"type": "Follow"},
	})
	require.NoError(err)
	return job
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	require := require.New(t)
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	require.NoError(err)

	err = db.AutoMigrate(AllTables()...)
	require.NoError(err)

	// enable foreign key constraints
	err = db.Exec("PRAGMA foreign_keys = ON").Error
	require.NoError(err)

	return db
}
