package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionUpdateSystemConfig = "UPDATE_SYSTEM_CONFIG"
	ActionSeedSystemConfig   = "SEED_SYSTEM_CONFIG"

	// Business-side consequences of finished approvals
	ActionVoidBillConfirmed   = "VOID_BILL_CONFIRMED"
	ActionVoidBillRestored    = "VOID_BILL_RESTORED"
	ActionContractActivated   = "CONTRACT_ACTIVATED"
	ActionContractReturned    = "CONTRACT_RETURNED"
	ActionUserChangeApplied   = "USER_CHANGE_APPLIED"
	ActionUserChangeDiscarded = "USER_CHANGE_DISCARDED"
)

// AuditLog tracks Who, What, and When for changes outside the approval history itself
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable gracefully if automated bot
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(100);index" json:"entity_id"`       // Reference string (uuid/code)
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string     `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
