package optionset

import (
	"context"
	"fmt"

	"poll-decision-backend/models"

	"gorm.io/gorm"
)

// Store loads and persists a poll's options.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a store bound to tx.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// Load returns the poll's options in priority order.
func (s *Store) Load(ctx context.Context, pollID uint) ([]models.PollOption, error) {
	var opts []models.PollOption
	err := s.db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		Order("priority, id").
		Find(&opts).Error
	return opts, err
}

// Applied summarizes what Apply wrote.
type Applied struct {
	Options         []models.PollOption
	DeletedChoices  int64
	AffectedStances []uint
}

// Apply persists res for pollID. Removing an option deletes every stance
// choice pointing at it; the IDs of the stances that lost choices are
// returned so the caller can refresh derived state.
func (s *Store) Apply(ctx context.Context, pollID uint, res Result) (Applied, error) {
	db := s.db.WithContext(ctx)
	var out Applied

	if len(res.Removed) > 0 {
		ids := make([]uint, len(res.Removed))
		for i, o := range res.Removed {
			ids[i] = o.ID
		}

		if err := db.Model(&models.StanceChoice{}).
			Distinct("stance_id").
			Where("poll_option_id IN ?", ids).
			Pluck("stance_id", &out.AffectedStances).Error; err != nil {
			return out, fmt.Errorf("find affected stances: %w", err)
		}

		del := db.Where("poll_option_id IN ?", ids).Delete(&models.StanceChoice{})
		if del.Error != nil {
			return out, fmt.Errorf("delete stance choices: %w", del.Error)
		}
		out.DeletedChoices = del.RowsAffected

		if err := db.Where("poll_id = ? AND id IN ?", pollID, ids).Delete(&models.PollOption{}).Error; err != nil {
			return out, fmt.Errorf("delete options: %w", err)
		}
	}

	for _, o := range res.Reprioritized {
		if err := db.Model(&models.PollOption{}).
			Where("id = ? AND poll_id = ?", o.ID, pollID).
			Update("priority", o.Priority).Error; err != nil {
			return out, fmt.Errorf("reprioritize option %d: %w", o.ID, err)
		}
	}

	out.Options = make([]models.PollOption, len(res.Options))
	copy(out.Options, res.Options)
	for i := range out.Options {
		if out.Options[i].ID != 0 {
			continue
		}
		out.Options[i].PollID = pollID
		if err := db.Create(&out.Options[i]).Error; err != nil {
			return out, fmt.Errorf("create option %q: %w", out.Options[i].Name, err)
		}
	}
	return out, nil
}
