package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/drople/metering/internal/models"
	"github.com/drople/metering/internal/services/billing"
)

// Store is the gorm-backed account boundary. Balance mutations are single
// UPDATE statements with the balance condition in the WHERE clause, so
// atomicity comes from the database row lock and no two conditional
// decrements can both pass on the same credits.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var acct models.Account
	if err := s.db.WithContext(ctx).First(&acct, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrAccountNotFound
		}
		return nil, err
	}
	return &acct, nil
}

// ConditionalDecrement subtracts amount from the balance only while the
// balance is at least minBalance, in one atomic statement. Zero rows
// affected means the condition no longer held at mutation time. The new
// balance is read back through RETURNING, not a separate SELECT.
func (s *Store) ConditionalDecrement(ctx context.Context, id uuid.UUID, amount, minBalance int64) (int64, int64, error) {
	var acct models.Account
	result := s.db.WithContext(ctx).Model(&acct).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "balance"}}}).
		Where("id = ? AND balance >= ?", id, minBalance).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return 0, 0, result.Error
	}
	return result.RowsAffected, acct.Balance, nil
}

// Increment credits the balance unconditionally and returns the new value.
func (s *Store) Increment(ctx context.Context, id uuid.UUID, amount int64) (int64, error) {
	var acct models.Account
	result := s.db.WithContext(ctx).Model(&acct).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "balance"}}}).
		Where("id = ?", id).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, billing.ErrAccountNotFound
	}
	return acct.Balance, nil
}

func (s *Store) Create(ctx context.Context, acct *models.Account) error {
	if err := s.db.WithContext(ctx).Create(acct).Error; err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	s.logger.Info("account created",
		zap.String("account_id", acct.ID.String()),
		zap.String("username", acct.Username))
	return nil
}

func (s *Store) List(ctx context.Context, limit, offset int) ([]models.Account, error) {
	if limit <= 0 {
		limit = 50
	}
	var accounts []models.Account
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&accounts).Error
	return accounts, err
}
