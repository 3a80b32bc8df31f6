package repository

import (
	"context"
	"fmt"
	"time"

	"poll-decision-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const eventablePoll = "Poll"

// Events appends audit events and owns the notification claim table.
type Events struct {
	db  *gorm.DB
	now func() time.Time
}

func NewEvents(db *gorm.DB, now func() time.Time) *Events {
	if now == nil {
		now = time.Now
	}
	return &Events{db: db, now: now}
}

func (r *Events) WithTx(tx *gorm.DB) *Events {
	return &Events{db: tx, now: r.now}
}

// Record appends an event about poll.
func (r *Events) Record(ctx context.Context, kind string, pollID uint, actorID *uint, payload map[string]interface{}) (*models.Event, error) {
	e := &models.Event{
		Kind:          kind,
		EventableType: eventablePoll,
		EventableID:   pollID,
		ActorID:       actorID,
		Payload:       payload,
		CreatedAt:     r.now(),
	}
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, fmt.Errorf("record %s event: %w", kind, err)
	}
	return e, nil
}

// ExistsSince reports whether an event of kind was recorded for the poll at
// or after since.
func (r *Events) ExistsSince(ctx context.Context, kind string, pollID uint, since time.Time) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Event{}).
		Where("kind = ? AND eventable_type = ? AND eventable_id = ? AND created_at >= ?", kind, eventablePoll, pollID, since).
		Count(&n).Error
	return n > 0, err
}

// ForPoll lists a poll's events oldest first.
func (r *Events) ForPoll(ctx context.Context, pollID uint) ([]models.Event, error) {
	var events []models.Event
	err := r.db.WithContext(ctx).
		Where("eventable_type = ? AND eventable_id = ?", eventablePoll, pollID).
		Order("created_at, id").
		Find(&events).Error
	return events, err
}

// Claim inserts the dedupe key and reports whether this caller won it. A
// concurrent or earlier claim with the same key makes it return false.
func (r *Events) Claim(ctx context.Context, key string, pollID uint, kind string, windowStart time.Time) (bool, error) {
	claim := models.NotificationClaim{
		DedupeKey:   key,
		PollID:      pollID,
		Kind:        kind,
		WindowStart: windowStart,
		CreatedAt:   r.now(),
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedupe_key"}}, DoNothing: true}).
		Create(&claim)
	if res.Error != nil {
		return false, fmt.Errorf("claim %s: %w", key, res.Error)
	}
	return res.RowsAffected == 1, nil
}
