package models

import (
	"github.com/google/uuid"
)

// Account holds a prepaid balance of usage credits. An account may be linked
// to a superior account; when the superior carries sponsor status, billing
// for this account can be covered (fully or jointly) by the superior.
type Account struct {
	BaseModel
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	// Balance is the current number of usage credits. It is mutated only
	// through the billing engine's conditional updates and never goes
	// negative after a committed mutation.
	Balance int64 `gorm:"not null;default:0" json:"balance"`

	// Sponsorship link
	SuperiorID *uuid.UUID `gorm:"type:uuid;index" json:"superior_id,omitempty"`
	Superior   *Account   `gorm:"foreignKey:SuperiorID" json:"-"`
	IsSponsor  bool       `gorm:"default:false" json:"is_sponsor"`

	// Relationships
	Usage         []UsageRecord  `gorm:"foreignKey:AccountID" json:"-"`
	Notifications []Notification `gorm:"foreignKey:AccountID" json:"-"`
}

func (a *Account) HasSuperior() bool {
	return a.SuperiorID != nil && *a.SuperiorID != uuid.Nil
}

// CanCover reports whether the last read balance covers the given cost.
// Advisory only: the conditional update is what actually enforces coverage.
func (a *Account) CanCover(cost int64) bool {
	return a.Balance >= cost
}
