package workers

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/aerosense-dev/aerosense/internal/models"
)

// ResetSweeper periodically purges password resets that can no longer be
// verified or redeemed
type ResetSweeper struct {
	cron *cron.Cron
}

// StartResetSweeper schedules SweepPasswordResets with a standard cron
// expression or descriptor such as "@every 5m"
func StartResetSweeper(schedule string, db *gorm.DB, logger zerolog.Logger) (*ResetSweeper, error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		if _, err := SweepPasswordResets(db, time.Now(), logger); err != nil {
			logger.Error().Err(err).Msg("Password reset sweep failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reset sweep schedule %q: %w", schedule, err)
	}

	c.Start()
	logger.Info().Str("schedule", schedule).Msg("Password reset sweeper started")

	return &ResetSweeper{cron: c}, nil
}

// Stop stops scheduling and waits for a running sweep to finish
func (s *ResetSweeper) Stop() {
	<-s.cron.Stop().Done()
}

// SweepPasswordResets deletes resets that are used, whose code expired
// unverified, or whose verification token expired. It returns the number
// of rows removed.
func SweepPasswordResets(db *gorm.DB, now time.Time, logger zerolog.Logger) (int64, error) {
	result := db.
		Where("used_at IS NOT NULL").
		Or("verified_at IS NULL AND expires_at < ?", now).
		Or("verification_expires_at IS NOT NULL AND verification_expires_at < ?", now).
		Delete(&models.PasswordReset{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete password resets: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		logger.Info().Int64("deleted", result.RowsAffected).Msg("Swept stale password resets")
	} else {
		logger.Debug().Msg("No stale password resets")
	}

	return result.RowsAffected, nil
}
