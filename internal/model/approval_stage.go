package model

import (
	"time"

	"freightdesk/internal/workflow"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Stage decisions
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// ApprovalStage is the per-stage approver assignment, snapshotted when the request enters its chain.
// The acted fields are written once.
type ApprovalStage struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_stage_request_seq" json:"request_id"`
	Seq          int        `gorm:"not null;uniqueIndex:idx_stage_request_seq" json:"seq"`
	Key          string     `gorm:"type:varchar(40)" json:"key"`
	ApproverID   *uuid.UUID `gorm:"type:uuid;index" json:"approver_id"`
	ApproverRole string     `gorm:"type:varchar(50);index" json:"approver_role"`
	Decision     string     `gorm:"type:varchar(20)" json:"decision"`
	ActedBy      *uuid.UUID `gorm:"type:uuid" json:"acted_by"`
	ActedAt      *time.Time `json:"acted_at"`
	Comment      string     `gorm:"type:text" json:"comment"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (s *ApprovalStage) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (s ApprovalStage) Assignment() workflow.StageAssignment {
	return workflow.StageAssignment{
		Seq:          s.Seq,
		Key:          s.Key,
		ApproverID:   s.ApproverID,
		ApproverRole: s.ApproverRole,
	}
}

// NewApprovalStages builds stage rows from resolved assignments.
func NewApprovalStages(requestID uuid.UUID, assignments []workflow.StageAssignment) []ApprovalStage {
	stages := make([]ApprovalStage, 0, len(assignments))
	for _, a := range assignments {
		stages = append(stages, ApprovalStage{
			RequestID:    requestID,
			Seq:          a.Seq,
			Key:          a.Key,
			ApproverID:   a.ApproverID,
			ApproverRole: a.ApproverRole,
		})
	}
	return stages
}
