package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UsageCategory classifies what a balance mutation paid for. Debit
// categories map to billable features; credit categories tag balance
// increases.
type UsageCategory string

const (
	// Debit categories
	CategoryChatReply      UsageCategory = "chat_reply"
	CategoryTitleGen       UsageCategory = "title_generation"
	CategoryKnowledgeEdit  UsageCategory = "knowledge_edit"
	CategoryParamExtract   UsageCategory = "param_extraction"
	CategoryClassification UsageCategory = "classification"
	CategoryImageRecognize UsageCategory = "image_recognition"

	// Credit categories
	CategoryTopUp        UsageCategory = "top_up"
	CategoryPackageGrant UsageCategory = "package_grant"
	CategoryCompensation UsageCategory = "compensation"
)

// IsCredit reports whether the category tags a balance increase.
func (c UsageCategory) IsCredit() bool {
	switch c {
	case CategoryTopUp, CategoryPackageGrant, CategoryCompensation:
		return true
	}
	return false
}

// UsageRecord is the immutable audit trail of balance mutations: one row per
// committed debit or credit, never updated or deleted. AccountID is the
// account whose balance changed; ConsumerID is the account that triggered
// the usage, which differs from AccountID under sponsored billing.
type UsageRecord struct {
	BaseModel
	AccountID  uuid.UUID `gorm:"type:uuid;not null;index" json:"account_id"`
	Account    Account   `gorm:"foreignKey:AccountID" json:"-"`
	ConsumerID uuid.UUID `gorm:"type:uuid;not null;index" json:"consumer_id"`
	Consumer   Account   `gorm:"foreignKey:ConsumerID" json:"-"`

	Amount    int64         `gorm:"not null" json:"amount"`
	Remaining int64         `gorm:"not null" json:"remaining"`
	Category  UsageCategory `gorm:"type:varchar(32);not null;index" json:"category"`

	// RawUnits is the metered quantity (token count) the amount was derived
	// from; zero for credits and fixed charges.
	RawUnits int64 `json:"raw_units"`

	// ContextID optionally links the record to the originating store or
	// session.
	ContextID *uuid.UUID     `gorm:"type:uuid;index" json:"context_id,omitempty"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
}
