package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/vidpod/vidpod/internal/snowflake"
)

// FollowState is the lifecycle state of a follow relationship. A new
// relationship starts pending and moves to accepted or rejected when the
// remote pod answers the follow request.
type FollowState string

const (
	FollowStatePending  FollowState = "pending"
	FollowStateAccepted FollowState = "accepted"
	FollowStateRejected FollowState = "rejected"
)

func (FollowState) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql", "postgres":
		return "enum('pending', 'accepted', 'rejected')"
	case "sqlite":
		return "TEXT"
	default:
		return ""
	}
}

// A Relationship records that Account follows Target. The composite primary
// key makes the (account, target) pair unique at the store level; follow
// requests rely on that for idempotence.
type Relationship struct {
	AccountID snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	Account   *Account     `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	TargetID  snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	Target    *Account     `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	State     FollowState  `gorm:"default:'pending';not null"`
	CreatedAt time.Time
}

type Relationships struct {
	db *gorm.DB
}

func NewRelationships(db *gorm.DB) *Relationships {
	return &Relationships{db: db}
}

// FindOrCreate returns the relationship for (account, target), creating it
// in state pending if it does not exist. The second return value reports
// whether a row was created; callers use it to avoid re-announcing a follow
// that is already in flight.
func (r *Relationships) FindOrCreate(account, target *Account) (*Relationship, bool, error) {
	rel := Relationship{
		AccountID: account.ID,
		TargetID:  target.ID,
		State:     FollowStatePending,
	}
	res := r.db.Where("account_id = ? AND target_id = ?", account.ID, target.ID).FirstOrCreate(&rel)
	if res.Error != nil {
		return nil, false, res.Error
	}
	return &rel, res.RowsAffected > 0, nil
}

// Accept moves the relationship for (account, target) from pending to
// accepted. Accepting an already accepted relationship is a no-op.
func (r *Relationships) Accept(account, target *Account) error {
	return r.db.Model(&Relationship{}).
		Where("account_id = ? AND target_id = ? AND state = ?", account.ID, target.ID, FollowStatePending).
		Update("state", FollowStateAccepted).Error
}

// Reject moves the relationship for (account, target) from pending to
// rejected.
func (r *Relationships) Reject(account, target *Account) error {
	return r.db.Model(&Relationship{}).
		Where("account_id = ? AND target_id = ? AND state = ?", account.ID, target.ID, FollowStatePending).
		Update("state", FollowStateRejected).Error
}

// Following returns the relationships where account is the follower, with
// the peer preloaded, plus the total row count before pagination.
func (r *Relationships) Following(account *Account, page *Pagination) ([]Relationship, int64, error) {
	var total int64
	if err := r.db.Model(&Relationship{}).Where("account_id = ?", account.ID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rels []Relationship
	err := r.db.Preload("Target").
		Where("account_id = ?", account.ID).
		Scopes(page.Scope()).
		Find(&rels).Error
	return rels, total, err
}

// Followers returns the relationships where account is the target, with the
// peer preloaded, plus the total row count before pagination.
func (r *Relationships) Followers(account *Account, page *Pagination) ([]Relationship, int64, error) {
	var total int64
	if err := r.db.Model(&Relationship{}).Where("target_id = ?", account.ID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rels []Relationship
	err := r.db.Preload("Account").
		Where("target_id = ?", account.ID).
		Scopes(page.Scope()).
		Find(&rels).Error
	return rels, total, err
}
