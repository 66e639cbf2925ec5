package usage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/drople/metering/internal/models"
	"github.com/drople/metering/internal/services/billing"
)

// Recorder appends immutable usage records. There is deliberately no update
// or delete path: the trail is the audit log of every balance mutation.
type Recorder struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewRecorder(db *gorm.DB, logger *zap.Logger) *Recorder {
	return &Recorder{db: db, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, entry billing.UsageEntry) error {
	rec := &models.UsageRecord{
		AccountID:  entry.AccountID,
		ConsumerID: entry.ConsumerID,
		Amount:     entry.Amount,
		Remaining:  entry.Remaining,
		Category:   entry.Category,
		RawUnits:   entry.RawUnits,
		ContextID:  entry.ContextID,
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to append usage record: %w", err)
	}
	r.logger.Debug("usage recorded",
		zap.String("account_id", entry.AccountID.String()),
		zap.String("consumer_id", entry.ConsumerID.String()),
		zap.Int64("amount", entry.Amount),
		zap.Int64("remaining", entry.Remaining),
		zap.String("category", string(entry.Category)))
	return nil
}

// ListByAccount returns the newest records for the account whose balance
// changed.
func (r *Recorder) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []models.UsageRecord
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&records).Error
	return records, err
}
