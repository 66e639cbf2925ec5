package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/drople/metering/internal/models"
)

// Store reads and provisions sponsorship entitlements. The billing engine
// only ever calls HasActiveGrant; Grant and Revoke serve the provisioning
// surface (CLI, seed data).
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// HasActiveGrant reports whether an active entitlement between the account
// and the sponsor covers the given instant. The validity window is
// half-open: starts_at <= now < ends_at.
func (s *Store) HasActiveGrant(ctx context.Context, accountID, sponsorID uuid.UUID, now time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Entitlement{}).
		Where("account_id = ? AND sponsor_id = ? AND is_active = ? AND starts_at <= ? AND ends_at > ?",
			accountID, sponsorID, true, now, now).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Grant creates an entitlement starting now and ending after duration.
func (s *Store) Grant(ctx context.Context, accountID, sponsorID uuid.UUID, duration time.Duration) (*models.Entitlement, error) {
	now := time.Now()
	ent := &models.Entitlement{
		AccountID: accountID,
		SponsorID: sponsorID,
		IsActive:  true,
		StartsAt:  now,
		EndsAt:    now.Add(duration),
	}
	if err := s.db.WithContext(ctx).Create(ent).Error; err != nil {
		return nil, fmt.Errorf("failed to create entitlement: %w", err)
	}
	s.logger.Info("entitlement granted",
		zap.String("account_id", accountID.String()),
		zap.String("sponsor_id", sponsorID.String()),
		zap.Time("ends_at", ent.EndsAt))
	return ent, nil
}

// Revoke deactivates every grant between the account and the sponsor.
func (s *Store) Revoke(ctx context.Context, accountID, sponsorID uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.Entitlement{}).
		Where("account_id = ? AND sponsor_id = ?", accountID, sponsorID).
		Update("is_active", false).Error
}
