package service

import (
	"context"
	"fmt"
	"time"

	"freightdesk/internal/repository"
	"freightdesk/pkg/pagination"
)

// AuditQuery filters the audit trail. EntityName is the subject kind (bill, contract, user, role, system_config).
type AuditQuery struct {
	EntityID   string
	EntityName string
	Action     string
	Page       int
	PageSize   int
}

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, q AuditQuery) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// GetAuditLogs pages through audit rows with the acting user joined in. Rows written by the
// expiry sweeper have no user and are reported as "System".
func (s *auditService) GetAuditLogs(ctx context.Context, q AuditQuery) ([]AuditLogResponse, int64, error) {
	p := pagination.Normalize(q.Page, q.PageSize)
	logs, total, err := s.repo.List(ctx, repository.AuditFilter{
		EntityID:   q.EntityID,
		EntityName: q.EntityName,
		Action:     q.Action,
		Page:       p.Page,
		Limit:      p.PageSize,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		userID := ""
		if l.User != nil {
			username = l.User.Username
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			Username:   username,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		})
	}

	return res, total, nil
}
