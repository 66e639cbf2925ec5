package models

import (
	"time"

	"github.com/google/uuid"
)

// Entitlement is a time-bounded grant authorizing sponsor-covered billing
// for a subordinate account. The validity window is half-open: the grant is
// active when StartsAt <= now < EndsAt and IsActive is set. Lifecycle is
// owned by the provisioning flow; the billing engine only reads these.
type Entitlement struct {
	BaseModel
	AccountID uuid.UUID `gorm:"type:uuid;not null;index" json:"account_id"`
	Account   Account   `gorm:"foreignKey:AccountID" json:"-"`
	SponsorID uuid.UUID `gorm:"type:uuid;not null;index" json:"sponsor_id"`
	Sponsor   Account   `gorm:"foreignKey:SponsorID" json:"-"`

	IsActive bool      `gorm:"default:true" json:"is_active"`
	StartsAt time.Time `gorm:"not null" json:"starts_at"`
	EndsAt   time.Time `gorm:"not null" json:"ends_at"`
}

func (e *Entitlement) Covers(now time.Time) bool {
	return e.IsActive && !now.Before(e.StartsAt) && now.Before(e.EndsAt)
}
