package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vidpod/vidpod/internal/snowflake"
)

// Permission is a bitmask of capabilities granted to a token.
type Permission uint32

const (
	// PermissionManageFederation allows following and unfollowing pods.
	PermissionManageFederation Permission = 1 << iota
)

// A Token is a bearer credential for the HTTP API.
type Token struct {
	AccessToken string `gorm:"size:64;primarykey"`
	CreatedAt   time.Time
	AccountID   snowflake.ID `gorm:"not null"`
	Account     *Account     `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	Permissions Permission   `gorm:"not null;default:0"`
}

// Allows reports whether the token grants the permission.
func (t *Token) Allows(p Permission) bool {
	return t.Permissions&p == p
}

type Tokens struct {
	db *gorm.DB
}

func NewTokens(db *gorm.DB) *Tokens {
	return &Tokens{db: db}
}

// Create issues a new token for the account with the given permissions.
func (t *Tokens) Create(account *Account, permissions Permission) (*Token, error) {
	token := Token{
		AccessToken: uuid.New().String(),
		AccountID:   account.ID,
		Permissions: permissions,
	}
	if err := t.db.Create(&token).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

// FindByAccessToken returns the token for the given bearer credential.
func (t *Tokens) FindByAccessToken(accessToken string) (*Token, error) {
	var token Token
	if err := t.db.Joins("Account").Take(&token, "access_token = ?", accessToken).Error; err != nil {
		return nil, err
	}
	return &token, nil
}
