package activitypub

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vidpod/vidpod/internal/crypto"
	"github.com/vidpod/vidpod/internal/snowflake"
	"github.com/vidpod/vidpod/internal/webfinger"
	"github.com/vidpod/vidpod/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
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

	return db
}

func withLocal() func(*models.Account) {
	return func(a *models.Account) {
		a.Local = true
	}
}

func withSharedInbox(url string) func(*models.Account) {
	return func(a *models.Account) {
		a.SharedInboxURL = url
	}
}

// mockAccount creates an account in the database with a fresh keypair.
func mockAccount(t *testing.T, tx *gorm.DB, name, host string, opts ...func(*models.Account)) *models.Account {
	t.Helper()
	require := require.New(t)

	kp, err := crypto.GenerateRSAKeypair()
	require.NoError(err)

	acct := webfinger.Acct{Name: name, Host: host}
	account := &models.Account{
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

// follow records an accepted follow of target by account.
func follow(t *testing.T, tx *gorm.DB, account, target *models.Account) {
	t.Helper()
	require := require.New(t)
	_, _, err := models.NewRelationships(tx).FindOrCreate(account, target)
	require.NoError(err)
	require.NoError(models.NewRelationships(tx).Accept(account, target))
}
