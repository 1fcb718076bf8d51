package model

import (
	"time"

	"freightdesk/internal/workflow"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApprovalRequest is one approvable request (void-bill application, contract, user/role change).
// Rows are never deleted; terminal states stay for audit and reporting.
type ApprovalRequest struct {
	ID           uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	RequestNo    string               `gorm:"type:varchar(30);uniqueIndex;not null" json:"request_no"`
	RequestType  workflow.RequestType `gorm:"type:varchar(30);not null;index" json:"request_type"`
	SubjectType  workflow.SubjectKind `gorm:"type:varchar(20);not null;index:idx_approval_subject" json:"subject_type"`
	SubjectID    string               `gorm:"type:varchar(64);not null;index:idx_approval_subject" json:"subject_id"`
	Payload      string               `gorm:"type:jsonb;not null" json:"payload"` // validated per request type
	Priority     workflow.Priority    `gorm:"not null;index" json:"priority"`
	Status       workflow.Status      `gorm:"type:varchar(40);not null;index" json:"status"`
	CurrentStage int                  `gorm:"not null;default:0" json:"current_stage"` // 1-based, 0 when not pending
	StageCount   int                  `gorm:"not null;default:0" json:"stage_count"`
	RequestedBy  uuid.UUID            `gorm:"type:uuid;not null;index" json:"requested_by"`
	Requester    *User                `gorm:"foreignKey:RequestedBy" json:"requester,omitempty"`
	RejectReason string               `gorm:"type:text" json:"reject_reason"`
	CancelReason string               `gorm:"type:text" json:"cancel_reason"`
	DueAt        *time.Time           `gorm:"index" json:"due_at"`
	Version      int                  `gorm:"not null;default:1" json:"version"` // bumped on every transition
	Stages       []ApprovalStage      `gorm:"foreignKey:RequestID" json:"stages,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

func (r *ApprovalRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// WorkflowView returns the fields the transition rules look at.
func (r *ApprovalRequest) WorkflowView() workflow.Request {
	stages := make([]workflow.StageAssignment, 0, len(r.Stages))
	for _, s := range r.Stages {
		stages = append(stages, s.Assignment())
	}
	return workflow.Request{
		Status:       r.Status,
		RequestedBy:  r.RequestedBy,
		CurrentStage: r.CurrentStage,
		Stages:       stages,
		DueAt:        r.DueAt,
	}
}

// Subject returns the tagged subject reference.
func (r *ApprovalRequest) Subject() workflow.SubjectRef {
	return workflow.SubjectRef{Kind: r.SubjectType, ID: r.SubjectID}
}
