package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationSystem NotificationType = "system"
	NotificationAlert  NotificationType = "alert"
)

// Notification is a user-facing message created as a side effect of billing
// events (insufficient balance, sponsorship shortfalls, threshold alerts).
type Notification struct {
	BaseModel
	AccountID uuid.UUID `gorm:"type:uuid;not null;index" json:"account_id"`
	Account   Account   `gorm:"foreignKey:AccountID" json:"-"`

	Type  NotificationType `gorm:"type:varchar(20);default:'system'" json:"type"`
	Title string           `gorm:"not null" json:"title"`
	Body  string           `gorm:"not null" json:"body"`

	ReadAt *time.Time `json:"read_at,omitempty"`
}
