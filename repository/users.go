package repository

import (
	"context"

	"poll-decision-backend/models"

	"gorm.io/gorm"
)

// Users implements eligibility.IdentityProvider over the users table.
type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

func (r *Users) WithTx(tx *gorm.DB) *Users {
	return &Users{db: tx}
}

// Active reports which ids belong to existing, non-deactivated users.
func (r *Users) Active(ctx context.Context, ids []uint) (map[uint]bool, error) {
	out := make(map[uint]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var active []uint
	if err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id IN ? AND deactivated = ?", ids, false).
		Pluck("id", &active).Error; err != nil {
		return nil, err
	}
	for _, id := range active {
		out[id] = true
	}
	return out, nil
}

// Locales maps each existing id to its user's locale.
func (r *Users) Locales(ctx context.Context, ids []uint) (map[uint]string, error) {
	out := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := r.db.WithContext(ctx).Select("id, locale").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u.Locale
	}
	return out, nil
}
