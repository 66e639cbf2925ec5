package database

import (
	"time"

	"gorm.io/gorm"

	"github.com/drople/metering/internal/models"
)

// Seed creates a small development dataset: a standalone account, a sponsor
// and a sponsored subordinate with a 30-day entitlement. Idempotent per
// username.
func Seed(db *gorm.DB) error {
	solo := &models.Account{
		Email:    "solo@example.com",
		Username: "solo",
		Balance:  500,
	}
	if err := firstOrCreateAccount(db, solo); err != nil {
		return err
	}

	sponsor := &models.Account{
		Email:     "partner@example.com",
		Username:  "partner",
		Balance:   10000,
		IsSponsor: true,
	}
	if err := firstOrCreateAccount(db, sponsor); err != nil {
		return err
	}

	subordinate := &models.Account{
		Email:      "reseller@example.com",
		Username:   "reseller",
		Balance:    100,
		SuperiorID: &sponsor.ID,
	}
	if err := firstOrCreateAccount(db, subordinate); err != nil {
		return err
	}

	now := time.Now()
	ent := &models.Entitlement{
		AccountID: subordinate.ID,
		SponsorID: sponsor.ID,
		IsActive:  true,
		StartsAt:  now,
		EndsAt:    now.AddDate(0, 0, 30),
	}
	return db.Where("account_id = ? AND sponsor_id = ?", subordinate.ID, sponsor.ID).
		FirstOrCreate(ent).Error
}

func firstOrCreateAccount(db *gorm.DB, acct *models.Account) error {
	return db.Where("username = ?", acct.Username).FirstOrCreate(acct).Error
}
