package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"freightdesk/internal/model"
	"freightdesk/internal/workflow"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApprovalFilter narrows list queries. Zero values mean "any".
type ApprovalFilter struct {
	Status      string
	RequestType workflow.RequestType
	RequestedBy *uuid.UUID
	Search      string
	Page        int
	Limit       int
}

// PendingFilter selects requests whose current stage belongs to an approver.
// AllApprovers lifts the approver restriction (admin inbox).
type PendingFilter struct {
	RequestType  workflow.RequestType
	ApproverID   uuid.UUID
	ApproverRole string
	AllApprovers bool
	Page         int
	Limit        int
}

type ApprovalRepository interface {
	Create(ctx context.Context, req *model.ApprovalRequest) error
	CreateStages(ctx context.Context, stages []model.ApprovalStage) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	List(ctx context.Context, filter ApprovalFilter) ([]model.ApprovalRequest, int64, error)
	ListPending(ctx context.Context, filter PendingFilter) ([]model.ApprovalRequest, int64, error)
	CountPending(ctx context.Context, filter PendingFilter) (int64, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	CompareAndSwap(ctx context.Context, id uuid.UUID, version int, updates map[string]interface{}) (bool, error)
	RecordStageDecision(ctx context.Context, requestID uuid.UUID, seq int, decision string, actorID uuid.UUID, comment string, at time.Time) (bool, error)
	NextRequestNo(ctx context.Context, day time.Time) (string, error)
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Create(ctx context.Context, req *model.ApprovalRequest) error {
	return GetDB(ctx, r.db).Omit("Stages", "Requester").Create(req).Error
}

func (r *approvalRepository) CreateStages(ctx context.Context, stages []model.ApprovalStage) error {
	if len(stages) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Create(&stages).Error
}

func (r *approvalRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	err := GetDB(ctx, r.db).
		Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&req, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *approvalRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	err := GetDB(ctx, r.db).
		Preload("Requester").
		Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&req, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *approvalRepository) List(ctx context.Context, filter ApprovalFilter) ([]model.ApprovalRequest, int64, error) {
	var requests []model.ApprovalRequest
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		switch filter.Status {
		case "":
		case string(workflow.StatusPending):
			// "pending" as a filter means any pending stage
			q = q.Where("status LIKE ?", string(workflow.StatusPending)+"%")
		default:
			q = q.Where("status = ?", filter.Status)
		}
		if filter.RequestType != "" {
			q = q.Where("request_type = ?", filter.RequestType)
		}
		if filter.RequestedBy != nil {
			q = q.Where("requested_by = ?", *filter.RequestedBy)
		}
		if filter.Search != "" {
			like := "%" + escapeLike(filter.Search) + "%"
			q = q.Where(`(request_no LIKE ? ESCAPE '\' OR subject_id LIKE ? ESCAPE '\')`, like, like)
		}
		return q
	}

	if err := scope(db.Model(&model.ApprovalRequest{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	err := scope(db.Preload("Requester").Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") })).
		Order("created_at DESC").
		Offset(offset).
		Limit(filter.Limit).
		Find(&requests).Error
	if err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

// pendingScope joins the current stage row so the approver test runs in SQL.
func pendingScope(q *gorm.DB, approverID uuid.UUID, approverRole string, all bool) *gorm.DB {
	q = q.Joins("JOIN approval_stages cs ON cs.request_id = approval_requests.id AND cs.seq = approval_requests.current_stage").
		Where("approval_requests.current_stage > 0")
	if !all {
		q = q.Where("(cs.approver_id = ? OR (cs.approver_id IS NULL AND cs.approver_role = ?))", approverID, approverRole)
	}
	return q
}

func (r *approvalRepository) ListPending(ctx context.Context, filter PendingFilter) ([]model.ApprovalRequest, int64, error) {
	var requests []model.ApprovalRequest
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		q = pendingScope(q, filter.ApproverID, filter.ApproverRole, filter.AllApprovers)
		if filter.RequestType != "" {
			q = q.Where("approval_requests.request_type = ?", filter.RequestType)
		}
		return q
	}

	if err := scope(db.Model(&model.ApprovalRequest{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	err := scope(db.Preload("Requester").Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") })).
		Order("approval_requests.priority DESC").
		Order("approval_requests.created_at ASC").
		Offset(offset).
		Limit(filter.Limit).
		Find(&requests).Error
	if err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

// CountPending counts the inbox described by filter; paging fields are ignored.
func (r *approvalRepository) CountPending(ctx context.Context, filter PendingFilter) (int64, error) {
	var total int64
	q := pendingScope(GetDB(ctx, r.db).Model(&model.ApprovalRequest{}), filter.ApproverID, filter.ApproverRole, filter.AllApprovers)
	if filter.RequestType != "" {
		q = q.Where("approval_requests.request_type = ?", filter.RequestType)
	}
	if err := q.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *approvalRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := GetDB(ctx, r.db).Model(&model.ApprovalRequest{}).
		Where("current_stage > 0 AND due_at IS NOT NULL AND due_at <= ?", now).
		Order("due_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// CompareAndSwap applies updates only if the row still carries the expected version.
// It reports false when another transition got there first.
func (r *approvalRepository) CompareAndSwap(ctx context.Context, id uuid.UUID, version int, updates map[string]interface{}) (bool, error) {
	updates["version"] = version + 1
	res := GetDB(ctx, r.db).Model(&model.ApprovalRequest{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RecordStageDecision writes the acted fields of a stage once; a second write is a no-op reported as false.
func (r *approvalRepository) RecordStageDecision(ctx context.Context, requestID uuid.UUID, seq int, decision string, actorID uuid.UUID, comment string, at time.Time) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.ApprovalStage{}).
		Where("request_id = ? AND seq = ? AND acted_at IS NULL", requestID, seq).
		Updates(map[string]interface{}{
			"decision": decision,
			"acted_by": actorID,
			"acted_at": at,
			"comment":  comment,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// NextRequestNo returns AP-YYYYMMDD-NNNNN for the given day. Call it inside a transaction.
func (r *approvalRepository) NextRequestNo(ctx context.Context, day time.Time) (string, error) {
	db := GetDB(ctx, r.db)
	prefix := "AP-" + day.Format("20060102") + "-"

	// Serialise numbering per day; only Postgres has advisory locks
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix).Error; err != nil {
			return "", err
		}
	}

	var count int64
	if err := db.Model(&model.ApprovalRequest{}).
		Where("request_no LIKE ?", prefix+"%").
		Count(&count).Error; err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%05d", prefix, count+1), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// escapeLike makes user input match literally inside a LIKE pattern
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
