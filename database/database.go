package database

import (
	"context"
	"fmt"
	"time"

	"poll-decision-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Ping checks the connection within timeout.
func Ping(ctx context.Context, db *gorm.DB, timeout time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// Close closes the pool, logging instead of failing.
func Close(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to get sql.DB", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
		return
	}
	log.Info("database closed")
}

// SeedDevelopment inserts a small group with three members when the users
// table is empty. It is a no-op otherwise.
func SeedDevelopment(ctx context.Context, db *gorm.DB, log *zap.Logger) error {
	var count int64
	if err := db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Info("seed skipped: users exist", zap.Int64("users", count))
		return nil
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group := models.Group{Name: "Demo group"}
		if err := tx.Create(&group).Error; err != nil {
			return fmt.Errorf("seed group: %w", err)
		}
		for i, name := range []string{"alice", "bob", "carol"} {
			u := models.User{Name: name, Email: name + "@example.org", Locale: "en"}
			if err := tx.Create(&u).Error; err != nil {
				return fmt.Errorf("seed user %s: %w", name, err)
			}
			m := models.Membership{GroupID: group.ID, UserID: u.ID, Admin: i == 0}
			if err := tx.Create(&m).Error; err != nil {
				return fmt.Errorf("seed membership %s: %w", name, err)
			}
		}
		log.Info("seeded development data", zap.Uint("group_id", group.ID))
		return nil
	})
}
