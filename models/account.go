package models

import (
	"crypto/rsa"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/vidpod/vidpod/internal/algorithms"
	"github.com/vidpod/vidpod/internal/crypto"
	"github.com/vidpod/vidpod/internal/snowflake"
	"github.com/vidpod/vidpod/internal/webfinger"
)

// ServerAccountName is the name of the account that represents the pod
// itself. Pods follow each other through their server accounts.
const ServerAccountName = "vidpod"

// An Account is an actor on this pod or a remote one. Local accounts carry a
// private key and can sign activities; remote accounts are discovered via
// webfinger and hold only the public half.
type Account struct {
	ID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name        string `gorm:"size:64;uniqueIndex:idx_accounts_name_host;not null"`
	Host        string `gorm:"size:255;uniqueIndex:idx_accounts_name_host;not null"`
	DisplayName string `gorm:"size:255"`
	// URL is the account's global identity URL.
	URL   string `gorm:"size:255;uniqueIndex;not null"`
	Local bool   `gorm:"not null;default:false"`

	InboxURL       string `gorm:"size:255;not null"`
	SharedInboxURL string `gorm:"size:255;not null"`
	FollowersURL   string `gorm:"size:255"`

	PublicKey []byte `gorm:"not null"`
	// PrivateKey is empty for remote accounts.
	PrivateKey []byte

	Email             string `gorm:"size:64"`
	EncryptedPassword []byte `gorm:"size:60"`
}

// Acct returns the webfinger identifier for the account.
func (a *Account) Acct() *webfinger.Acct {
	return &webfinger.Acct{Name: a.Name, Host: a.Host}
}

// PublicKeyID returns the identifier of the account's signing key.
func (a *Account) PublicKeyID() string {
	return a.URL + "#main-key"
}

// PrivKey returns the account's RSA private key. It fails for remote
// accounts, which never hold a private key.
func (a *Account) PrivKey() (*rsa.PrivateKey, error) {
	if len(a.PrivateKey) == 0 {
		return nil, errors.New("account has no private key: " + a.URL)
	}
	_, priv, err := crypto.ParseRSAPrivateKey(a.PrivateKey)
	return priv, err
}

// Inbox returns the account's preferred delivery endpoint; the host-wide
// shared inbox when the account advertises one.
func (a *Account) Inbox() string {
	if a.SharedInboxURL != "" {
		return a.SharedInboxURL
	}
	return a.InboxURL
}

type Accounts struct {
	db *gorm.DB
}

func NewAccounts(db *gorm.DB) *Accounts {
	return &Accounts{db: db}
}

// FindByNameAndHost returns the stored account for (name, host), or
// gorm.ErrRecordNotFound if the account has never been seen.
func (a *Accounts) FindByNameAndHost(name, host string) (*Account, error) {
	var account Account
	if err := a.db.Where("name = ? AND host = ?", name, host).Take(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByURL returns the stored account with the given identity URL.
func (a *Accounts) FindByURL(url string) (*Account, error) {
	var account Account
	if err := a.db.Where("url = ?", url).Take(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// ServerAccount returns the local account that represents this pod.
func (a *Accounts) ServerAccount() (*Account, error) {
	var account Account
	if err := a.db.Where("name = ? AND local = ?", ServerAccountName, true).Take(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// Create creates a local account on the given host, generating its keypair.
func (a *Accounts) Create(name, host, email, password string) (*Account, error) {
	keypair, err := crypto.GenerateRSAKeypair()
	if err != nil {
		return nil, err
	}
	passwd, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	acct := webfinger.Acct{Name: name, Host: host}
	account := Account{
		ID:                snowflake.Now(),
		Name:              name,
		Host:              host,
		DisplayName:       name,
		URL:               acct.ID(),
		Local:             true,
		InboxURL:          acct.Inbox(),
		SharedInboxURL:    acct.SharedInbox(),
		FollowersURL:      acct.Followers(),
		PublicKey:         keypair.PublicKey,
		PrivateKey:        keypair.PrivateKey,
		Email:             email,
		EncryptedPassword: passwd,
	}
	if err := a.db.Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// FollowerInboxes returns the deduplicated delivery endpoints of the
// account's accepted followers.
func (a *Accounts) FollowerInboxes(account *Account) ([]string, error) {
	var followers []Account
	err := a.db.
		Joins("JOIN relationships ON relationships.account_id = accounts.id").
		Where("relationships.target_id = ? AND relationships.state = ?", account.ID, FollowStateAccepted).
		Find(&followers).Error
	if err != nil {
		return nil, err
	}
	return algorithms.Uniq(algorithms.Map(followers, func(f Account) string {
		return f.Inbox()
	})), nil
}
