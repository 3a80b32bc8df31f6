package repository

import (
	"context"
	"fmt"
	"time"

	"poll-decision-backend/apperrors"
	"poll-decision-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Polls loads and saves poll rows.
type Polls struct {
	db *gorm.DB
}

func NewPolls(db *gorm.DB) *Polls {
	return &Polls{db: db}
}

func (r *Polls) WithTx(tx *gorm.DB) *Polls {
	return &Polls{db: tx}
}

func (r *Polls) Create(ctx context.Context, poll *models.Poll) error {
	return r.db.WithContext(ctx).Create(poll).Error
}

// Get loads a poll with its options in priority order.
func (r *Polls) Get(ctx context.Context, id uint) (*models.Poll, error) {
	return r.get(ctx, r.db, id)
}

// Lock loads the poll with a row lock held until the transaction ends.
// sqlite has no row locks and drops the clause.
func (r *Polls) Lock(ctx context.Context, id uint) (*models.Poll, error) {
	return r.get(ctx, r.db.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *Polls) get(ctx context.Context, db *gorm.DB, id uint) (*models.Poll, error) {
	var poll models.Poll
	res := db.WithContext(ctx).Limit(1).Find(&poll, id)
	if res.Error != nil {
		return nil, fmt.Errorf("load poll %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.NotFound("poll", id)
	}
	if err := r.db.WithContext(ctx).Where("poll_id = ?", id).Order("priority").Find(&poll.Options).Error; err != nil {
		return nil, fmt.Errorf("load options of poll %d: %w", id, err)
	}
	return &poll, nil
}

// Save writes the poll's own columns. Options are managed by optionset.
func (r *Polls) Save(ctx context.Context, poll *models.Poll) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(poll).Error
}

// LapsedButNotClosed lists ids of polls whose closing time has passed but
// that have not been closed.
func (r *Polls) LapsedButNotClosed(ctx context.Context, now time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Poll{}).
		Where("closed_at IS NULL AND closing_at IS NOT NULL AND closing_at <= ?", now).
		Order("closing_at, id").
		Pluck("id", &ids).Error
	return ids, err
}

// ClosingSoon lists ids of open polls closing within (now, now+lead] that
// want a closing-soon notification.
func (r *Polls) ClosingSoon(ctx context.Context, now time.Time, lead time.Duration) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Poll{}).
		Where("closed_at IS NULL AND closing_at > ? AND closing_at <= ?", now, now.Add(lead)).
		Where("notify_on_closing_soon <> ?", models.NotifyNobody).
		Order("closing_at, id").
		Pluck("id", &ids).Error
	return ids, err
}
