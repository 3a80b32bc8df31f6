// Package repository holds the gorm-backed sources the poll core reads from
// and the audit/claim tables it writes.
package repository

import (
	"context"

	"poll-decision-backend/eligibility"
	"poll-decision-backend/models"

	"gorm.io/gorm"
)

// Memberships implements eligibility.MembershipSource.
type Memberships struct {
	db *gorm.DB
}

func NewMemberships(db *gorm.DB) *Memberships {
	return &Memberships{db: db}
}

func (r *Memberships) WithTx(tx *gorm.DB) *Memberships {
	return &Memberships{db: tx}
}

func (r *Memberships) GroupMembers(ctx context.Context, groupID uint) ([]eligibility.GroupMember, error) {
	var rows []eligibility.GroupMember
	err := r.db.WithContext(ctx).Model(&models.Membership{}).
		Select("user_id, admin, archived_at").
		Where("group_id = ?", groupID).
		Order("user_id").
		Scan(&rows).Error
	return rows, err
}

func (r *Memberships) DiscussionReaders(ctx context.Context, discussionID uint) ([]eligibility.Reader, error) {
	var rows []eligibility.Reader
	err := r.db.WithContext(ctx).Model(&models.DiscussionReader{}).
		Select("user_id, inviter_id, admin, revoked_at").
		Where("discussion_id = ?", discussionID).
		Order("user_id").
		Scan(&rows).Error
	return rows, err
}

// Discussion loads a discussion, returning nil when it does not exist.
func (r *Memberships) Discussion(ctx context.Context, id uint) (*models.Discussion, error) {
	var d models.Discussion
	res := r.db.WithContext(ctx).Limit(1).Find(&d, id)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &d, nil
}
