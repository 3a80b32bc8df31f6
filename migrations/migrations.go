package migrations

import (
	"fmt"

	"poll-decision-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LatestStanceIndex keeps at most one latest stance per participant and poll.
const LatestStanceIndex = "idx_stances_one_latest"

// Run migrates every model and applies the hand-written schema pieces that
// AutoMigrate cannot express.
func Run(db *gorm.DB, log *zap.Logger) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return EnsureLatestStanceIndex(db, log)
}

// EnsureLatestStanceIndex creates a partial unique index on dialects that
// support one. On the others the ledger's clear-then-set transaction is the
// only guard.
func EnsureLatestStanceIndex(db *gorm.DB, log *zap.Logger) error {
	dialect := db.Dialector.Name()
	if dialect != "sqlite" && dialect != "postgres" {
		log.Info("migration skipped: partial indexes unsupported", zap.String("dialect", dialect))
		return nil
	}

	if db.Migrator().HasIndex(&models.Stance{}, LatestStanceIndex) {
		log.Debug("migration skipped: index exists", zap.String("index", LatestStanceIndex))
		return nil
	}

	stmt := fmt.Sprintf(
		"CREATE UNIQUE INDEX %s ON stances (poll_id, participant_id) WHERE latest",
		LatestStanceIndex,
	)
	if err := db.Exec(stmt).Error; err != nil {
		log.Error("migration failed", zap.String("index", LatestStanceIndex), zap.Error(err))
		return err
	}
	log.Info("migration applied", zap.String("index", LatestStanceIndex))
	return nil
}
