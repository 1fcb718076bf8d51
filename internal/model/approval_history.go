package model

import (
	"time"

	"freightdesk/internal/workflow"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApprovalHistory is one transition of an approval request. Append-only.
type ApprovalHistory struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_history_request_seq" json:"request_id"`
	Seq       int             `gorm:"not null;uniqueIndex:idx_history_request_seq" json:"seq"`
	Action    workflow.Action `gorm:"type:varchar(20);not null" json:"action"`
	ActorID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"actor_id"`
	ActorRole string          `gorm:"type:varchar(50)" json:"actor_role"`
	Comment   string          `gorm:"type:text" json:"comment"`
	OldStatus workflow.Status `gorm:"type:varchar(40)" json:"old_status"`
	NewStatus workflow.Status `gorm:"type:varchar(40);not null" json:"new_status"`
	CreatedAt time.Time       `gorm:"index" json:"created_at"`
}

func (h *ApprovalHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// BeforeUpdate rejects any attempt to rewrite history.
func (h *ApprovalHistory) BeforeUpdate(tx *gorm.DB) error {
	return gorm.ErrInvalidData
}

func (h *ApprovalHistory) BeforeDelete(tx *gorm.DB) error {
	return gorm.ErrInvalidData
}
