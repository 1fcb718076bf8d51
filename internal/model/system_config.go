package model

import (
	"time"

	"github.com/google/uuid"
)

// Well-known system config keys
const (
	ConfigVoidSupervisorID = "void_supervisor_id"
	ConfigVoidFinanceID    = "void_finance_id"
)

// SystemConfig is one key/value operator setting (approver assignments, approval routes).
type SystemConfig struct {
	Key         string     `gorm:"type:varchar(100);primaryKey" json:"key"`
	Value       string     `gorm:"type:text;not null" json:"value"`
	Description string     `gorm:"type:varchar(255)" json:"description"`
	UpdatedBy   *uuid.UUID `gorm:"type:uuid" json:"updated_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
