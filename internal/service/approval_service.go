package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"freightdesk/internal/cache"
	"freightdesk/internal/metrics"
	"freightdesk/internal/model"
	"freightdesk/internal/repository"
	"freightdesk/internal/workflow"
	"freightdesk/pkg/pagination"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateApprovalRequest struct {
	RequestType string          `json:"request_type" binding:"required"`
	SubjectType string          `json:"subject_type"` // defaults to the request type's subject kind
	SubjectID   string          `json:"subject_id" binding:"required"`
	Payload     json.RawMessage `json:"payload" swaggertype:"object"`
	Priority    string          `json:"priority"` // low, normal, high, urgent
}

type ApproveRequestDTO struct {
	Comment string `json:"comment"`
}

type RejectRequestDTO struct {
	Reason string `json:"reason"`
}

type CancelRequestDTO struct {
	Reason string `json:"reason"`
}

// ListQuery filters the full request list and the caller's own requests
type ListQuery struct {
	Status      string
	RequestType string
	Search      string
	Page        int
	PageSize    int
}

// PendingQuery filters an approver inbox. ApproverID defaults to the caller; only admins may name someone else.
type PendingQuery struct {
	RequestType string
	ApproverID  *uuid.UUID
	Page        int
	PageSize    int
}

type StageResponse struct {
	Seq          int     `json:"seq"`
	Key          string  `json:"key"`
	ApproverID   *string `json:"approver_id"`
	ApproverRole string  `json:"approver_role"`
	Decision     string  `json:"decision"`
	ActedBy      *string `json:"acted_by"`
	ActedAt      *string `json:"acted_at"`
	Comment      string  `json:"comment"`
}

type ApprovalResponse struct {
	ID            string          `json:"id"`
	RequestNo     string          `json:"request_no"`
	RequestType   string          `json:"request_type"`
	SubjectType   string          `json:"subject_type"`
	SubjectID     string          `json:"subject_id"`
	Payload       json.RawMessage `json:"payload" swaggertype:"object"`
	Priority      string          `json:"priority"`
	Status        string          `json:"status"`
	CurrentStage  int             `json:"current_stage"`
	StageCount    int             `json:"stage_count"`
	RequestedBy   string          `json:"requested_by"`
	RequesterName string          `json:"requester_name"`
	RejectReason  string          `json:"reject_reason"`
	CancelReason  string          `json:"cancel_reason"`
	DueAt         *string         `json:"due_at"`
	Version       int             `json:"version"`
	Stages        []StageResponse `json:"stages"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

type HistoryResponse struct {
	Seq       int    `json:"seq"`
	Action    string `json:"action"`
	ActorID   string `json:"actor_id"`
	ActorRole string `json:"actor_role"`
	Comment   string `json:"comment"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	CreatedAt string `json:"created_at"`
}

type ApprovalDetailResponse struct {
	ApprovalResponse
	History []HistoryResponse `json:"history"`
}

// TransitionResult is returned by every state-changing operation. Touched lists the stages
// whose approver inbox changed; collaborators use it to invalidate per-approver state.
type TransitionResult struct {
	Approval ApprovalResponse           `json:"approval"`
	Action   workflow.Action            `json:"action"`
	From     workflow.Status            `json:"from"`
	To       workflow.Status            `json:"to"`
	Actor    workflow.Actor             `json:"-"`
	Subject  workflow.SubjectRef        `json:"-"`
	Touched  []workflow.StageAssignment `json:"-"`
}

// --- Interface ---

type ApprovalService interface {
	Create(ctx context.Context, actor workflow.Actor, req CreateApprovalRequest) (*TransitionResult, error)
	Submit(ctx context.Context, id uuid.UUID, actor workflow.Actor) (*TransitionResult, error)
	Approve(ctx context.Context, id uuid.UUID, actor workflow.Actor, comment string) (*TransitionResult, error)
	Reject(ctx context.Context, id uuid.UUID, actor workflow.Actor, reason string) (*TransitionResult, error)
	Cancel(ctx context.Context, id uuid.UUID, actor workflow.Actor, reason string) (*TransitionResult, error)
	Expire(ctx context.Context, id uuid.UUID) (*TransitionResult, error)
	ExpireOverdue(ctx context.Context, limit int) ([]*TransitionResult, error)

	Get(ctx context.Context, id uuid.UUID) (*ApprovalDetailResponse, error)
	GetHistory(ctx context.Context, id uuid.UUID) ([]HistoryResponse, error)
	GetPending(ctx context.Context, actor workflow.Actor, q PendingQuery) ([]ApprovalResponse, int64, error)
	GetMine(ctx context.Context, actor workflow.Actor, q ListQuery) ([]ApprovalResponse, int64, error)
	List(ctx context.Context, q ListQuery) ([]ApprovalResponse, int64, error)
	PendingCount(ctx context.Context, actor workflow.Actor) (int64, error)
}

// ApprovalOptions tunes an ApprovalService. Zero values select defaults.
type ApprovalOptions struct {
	PendingCountTTL time.Duration
	Now             func() time.Time
}

type approvalService struct {
	txManager repository.TransactionManager
	approvals repository.ApprovalRepository
	histories repository.HistoryRepository
	configs   ConfigService
	counts    cache.Cache
	countTTL  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewApprovalService(
	txManager repository.TransactionManager,
	approvals repository.ApprovalRepository,
	histories repository.HistoryRepository,
	configs ConfigService,
	counts cache.Cache,
	logger *zap.Logger,
	opts ApprovalOptions,
) ApprovalService {
	if opts.PendingCountTTL <= 0 {
		opts.PendingCountTTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &approvalService{
		txManager: txManager,
		approvals: approvals,
		histories: histories,
		configs:   configs,
		counts:    counts,
		countTTL:  opts.PendingCountTTL,
		logger:    logger,
		now:       opts.Now,
	}
}

// --- Transitions ---

func (s *approvalService) Create(ctx context.Context, actor workflow.Actor, req CreateApprovalRequest) (result *TransitionResult, err error) {
	started := s.now()
	requestType := workflow.RequestType(req.RequestType)
	defer func() { metrics.ObserveTransition(workflow.ActionCreate, requestType, err, started) }()

	if !requestType.IsValid() {
		return nil, fmt.Errorf("%w: unknown request type %q", workflow.ErrValidation, req.RequestType)
	}
	subject := workflow.SubjectRef{Kind: workflow.SubjectKind(req.SubjectType), ID: strings.TrimSpace(req.SubjectID)}
	if subject.Kind == "" {
		subject.Kind = requestType.SubjectKind()
	}
	if err := subject.Validate(); err != nil {
		return nil, err
	}
	if subject.Kind != requestType.SubjectKind() {
		return nil, fmt.Errorf("%w: %s requests must reference a %s", workflow.ErrValidation, requestType, requestType.SubjectKind())
	}
	payload, err := workflow.DecodePayload(requestType, req.Payload)
	if err != nil {
		return nil, err
	}
	normalized, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	priority, err := workflow.ParsePriority(req.Priority)
	if err != nil {
		return nil, err
	}

	// The snapshot is read before the transaction opens; the chain is frozen into stage rows below.
	snapshot, err := s.configs.GetSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	route, stages, err := snapshot.ResolveStages(requestType)
	if err != nil {
		return nil, err
	}
	out, err := workflow.Start(route, stages)
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		now := s.now()
		requestNo, err := s.approvals.NextRequestNo(txCtx, now)
		if err != nil {
			return fmt.Errorf("failed to allocate request number: %w", err)
		}

		approval := &model.ApprovalRequest{
			RequestNo:    requestNo,
			RequestType:  requestType,
			SubjectType:  subject.Kind,
			SubjectID:    subject.ID,
			Payload:      string(normalized),
			Priority:     priority,
			Status:       out.To,
			CurrentStage: out.NextStage,
			RequestedBy:  actor.ID,
			Version:      1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if out.To.IsPending() {
			approval.StageCount = len(stages)
			approval.DueAt = dueAt(route, now)
		}
		if err := s.approvals.Create(txCtx, approval); err != nil {
			return fmt.Errorf("failed to create approval request: %w", err)
		}
		if out.To.IsPending() {
			if err := s.approvals.CreateStages(txCtx, model.NewApprovalStages(approval.ID, stages)); err != nil {
				return fmt.Errorf("failed to create approval stages: %w", err)
			}
		}
		if err := s.appendHistory(txCtx, approval.ID, actor, out, "", now); err != nil {
			return err
		}

		reloaded, err := s.approvals.FindByIDWithRelations(txCtx, approval.ID)
		if err != nil {
			return fmt.Errorf("failed to reload approval request: %w", err)
		}
		result = newTransitionResult(reloaded, out, actor, workflow.Request{})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("approval request created",
		zap.String("request_no", result.Approval.RequestNo),
		zap.String("request_type", string(requestType)),
		zap.String("status", string(result.To)),
		zap.String("actor", actor.ID.String()),
	)
	return result, nil
}

func (s *approvalService) Submit(ctx context.Context, id uuid.UUID, actor workflow.Actor) (*TransitionResult, error) {
	snapshot, err := s.configs.GetSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	var route workflow.Route
	var stages []workflow.StageAssignment
	return s.apply(ctx, id, actor, transitionStep{
		action: workflow.ActionSubmit,
		decide: func(req *model.ApprovalRequest) (workflow.Outcome, error) {
			var resolveErr error
			route, stages, resolveErr = snapshot.ResolveStages(req.RequestType)
			if resolveErr != nil {
				// state and permission errors take precedence over a broken route
				if _, err := workflow.Submit(req.WorkflowView(), actor, nil); !errors.Is(err, workflow.ErrConfiguration) {
					return workflow.Outcome{}, err
				}
				return workflow.Outcome{}, resolveErr
			}
			return workflow.Submit(req.WorkflowView(), actor, stages)
		},
		mutate: func(txCtx context.Context, req *model.ApprovalRequest, out workflow.Outcome, now time.Time, updates map[string]interface{}) error {
			if err := s.approvals.CreateStages(txCtx, model.NewApprovalStages(req.ID, stages)); err != nil {
				return fmt.Errorf("failed to create approval stages: %w", err)
			}
			updates["stage_count"] = len(stages)
			updates["due_at"] = dueAt(route, now)
			return nil
		},
	})
}

func (s *approvalService) Approve(ctx context.Context, id uuid.UUID, actor workflow.Actor, comment string) (*TransitionResult, error) {
	return s.apply(ctx, id, actor, transitionStep{
		action:  workflow.ActionApprove,
		comment: strings.TrimSpace(comment),
		decide: func(req *model.ApprovalRequest) (workflow.Outcome, error) {
			return workflow.Approve(req.WorkflowView(), actor)
		},
		mutate: func(_ context.Context, _ *model.ApprovalRequest, out workflow.Outcome, _ time.Time, updates map[string]interface{}) error {
			if out.To == workflow.StatusApproved {
				updates["due_at"] = nil
			}
			return nil
		},
	})
}

func (s *approvalService) Reject(ctx context.Context, id uuid.UUID, actor workflow.Actor, reason string) (*TransitionResult, error) {
	reason = strings.TrimSpace(reason)

	return s.apply(ctx, id, actor, transitionStep{
		action:  workflow.ActionReject,
		comment: reason,
		decide: func(req *model.ApprovalRequest) (workflow.Outcome, error) {
			return workflow.Reject(req.WorkflowView(), actor, reason)
		},
		mutate: func(_ context.Context, _ *model.ApprovalRequest, _ workflow.Outcome, _ time.Time, updates map[string]interface{}) error {
			updates["reject_reason"] = reason
			updates["due_at"] = nil
			return nil
		},
	})
}

func (s *approvalService) Cancel(ctx context.Context, id uuid.UUID, actor workflow.Actor, reason string) (*TransitionResult, error) {
	reason = strings.TrimSpace(reason)
	return s.apply(ctx, id, actor, transitionStep{
		action:  workflow.ActionCancel,
		comment: reason,
		decide: func(req *model.ApprovalRequest) (workflow.Outcome, error) {
			return workflow.Cancel(req.WorkflowView(), actor)
		},
		mutate: func(_ context.Context, _ *model.ApprovalRequest, _ workflow.Outcome, _ time.Time, updates map[string]interface{}) error {
			updates["cancel_reason"] = reason
			updates["due_at"] = nil
			return nil
		},
	})
}

func (s *approvalService) Expire(ctx context.Context, id uuid.UUID) (*TransitionResult, error) {
	return s.apply(ctx, id, workflow.SystemActor, transitionStep{
		action:  workflow.ActionExpire,
		comment: "SLA deadline passed",
		decide: func(req *model.ApprovalRequest) (workflow.Outcome, error) {
			return workflow.Expire(req.WorkflowView(), s.now())
		},
	})
}

// ExpireOverdue expires up to limit overdue requests. A request that moved on between the scan and
// its own transaction is skipped; other failures are logged and the sweep continues.
func (s *approvalService) ExpireOverdue(ctx context.Context, limit int) ([]*TransitionResult, error) {
	ids, err := s.approvals.ListOverdue(ctx, s.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue requests: %w", err)
	}

	results := make([]*TransitionResult, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		res, err := s.Expire(ctx, id)
		if err != nil {
			if !errors.Is(err, workflow.ErrInvalidState) {
				s.logger.Error("failed to expire approval request", zap.String("id", id.String()), zap.Error(err))
			}
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// transitionStep is one state change: decide runs the pure rules against the loaded row,
// mutate adds extra column updates (and rows) inside the same transaction.
type transitionStep struct {
	action  workflow.Action
	comment string
	decide  func(req *model.ApprovalRequest) (workflow.Outcome, error)
	mutate  func(txCtx context.Context, req *model.ApprovalRequest, out workflow.Outcome, now time.Time, updates map[string]interface{}) error
}

func (s *approvalService) apply(ctx context.Context, id uuid.UUID, actor workflow.Actor, step transitionStep) (result *TransitionResult, err error) {
	started := s.now()
	var requestType workflow.RequestType
	defer func() { metrics.ObserveTransition(step.action, requestType, err, started) }()

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := s.approvals.FindByID(txCtx, id)
		if err != nil {
			return notFound(err, id)
		}
		requestType = req.RequestType
		before := req.WorkflowView()

		out, err := step.decide(req)
		if err != nil {
			return err
		}

		now := s.now()
		updates := map[string]interface{}{
			"status":        out.To,
			"current_stage": out.NextStage,
			"updated_at":    now,
		}
		if step.mutate != nil {
			if err := step.mutate(txCtx, req, out, now, updates); err != nil {
				return err
			}
		}

		swapped, err := s.approvals.CompareAndSwap(txCtx, req.ID, req.Version, updates)
		if err != nil {
			return fmt.Errorf("failed to update approval request: %w", err)
		}
		if !swapped {
			return fmt.Errorf("%w: request %s was changed by another transition", workflow.ErrInvalidState, req.RequestNo)
		}

		if out.ActedStage > 0 {
			decision := model.DecisionApproved
			if out.Action == workflow.ActionReject {
				decision = model.DecisionRejected
			}
			recorded, err := s.approvals.RecordStageDecision(txCtx, req.ID, out.ActedStage, decision, actor.ID, step.comment, now)
			if err != nil {
				return fmt.Errorf("failed to record stage decision: %w", err)
			}
			if !recorded {
				return fmt.Errorf("%w: stage %d of %s was already decided", workflow.ErrInvalidState, out.ActedStage, req.RequestNo)
			}
		}

		if err := s.appendHistory(txCtx, req.ID, actor, out, step.comment, now); err != nil {
			return err
		}

		reloaded, err := s.approvals.FindByIDWithRelations(txCtx, req.ID)
		if err != nil {
			return fmt.Errorf("failed to reload approval request: %w", err)
		}
		result = newTransitionResult(reloaded, out, actor, before)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("approval transition",
		zap.String("request_no", result.Approval.RequestNo),
		zap.String("action", string(result.Action)),
		zap.String("from", string(result.From)),
		zap.String("to", string(result.To)),
		zap.String("actor", actor.ID.String()),
	)
	return result, nil
}

func (s *approvalService) appendHistory(ctx context.Context, requestID uuid.UUID, actor workflow.Actor, out workflow.Outcome, comment string, at time.Time) error {
	entry := &model.ApprovalHistory{
		RequestID: requestID,
		Action:    out.Action,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Comment:   comment,
		OldStatus: out.From,
		NewStatus: out.To,
		CreatedAt: at,
	}
	if err := s.histories.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to write approval history: %w", err)
	}
	return nil
}

// --- Queries ---

func (s *approvalService) Get(ctx context.Context, id uuid.UUID) (*ApprovalDetailResponse, error) {
	req, err := s.approvals.FindByIDWithRelations(ctx, id)
	if err != nil {
		return nil, notFound(err, id)
	}
	rows, err := s.histories.ListByRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch approval history: %w", err)
	}
	return &ApprovalDetailResponse{
		ApprovalResponse: toApprovalResponse(*req),
		History:          toHistoryResponses(rows),
	}, nil
}

func (s *approvalService) GetHistory(ctx context.Context, id uuid.UUID) ([]HistoryResponse, error) {
	if _, err := s.approvals.FindByID(ctx, id); err != nil {
		return nil, notFound(err, id)
	}
	rows, err := s.histories.ListByRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch approval history: %w", err)
	}
	return toHistoryResponses(rows), nil
}

func (s *approvalService) GetPending(ctx context.Context, actor workflow.Actor, q PendingQuery) ([]ApprovalResponse, int64, error) {
	p := pagination.Normalize(q.Page, q.PageSize)
	filter := repository.PendingFilter{
		RequestType:  workflow.RequestType(q.RequestType),
		ApproverID:   actor.ID,
		ApproverRole: actor.Role,
		AllApprovers: actor.IsAdmin(),
		Page:         p.Page,
		Limit:        p.PageSize,
	}
	if q.ApproverID != nil && *q.ApproverID != actor.ID {
		if !actor.IsAdmin() {
			return nil, 0, fmt.Errorf("%w: only admins may view another approver's inbox", workflow.ErrForbidden)
		}
		filter.ApproverID = *q.ApproverID
		filter.ApproverRole = ""
		filter.AllApprovers = false
	}

	rows, total, err := s.approvals.ListPending(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch pending approvals: %w", err)
	}
	return toApprovalResponses(rows), total, nil
}

func (s *approvalService) GetMine(ctx context.Context, actor workflow.Actor, q ListQuery) ([]ApprovalResponse, int64, error) {
	requester := actor.ID
	return s.list(ctx, q, &requester)
}

func (s *approvalService) List(ctx context.Context, q ListQuery) ([]ApprovalResponse, int64, error) {
	return s.list(ctx, q, nil)
}

func (s *approvalService) list(ctx context.Context, q ListQuery, requestedBy *uuid.UUID) ([]ApprovalResponse, int64, error) {
	p := pagination.Normalize(q.Page, q.PageSize)
	rows, total, err := s.approvals.List(ctx, repository.ApprovalFilter{
		Status:      q.Status,
		RequestType: workflow.RequestType(q.RequestType),
		RequestedBy: requestedBy,
		Search:      strings.TrimSpace(q.Search),
		Page:        p.Page,
		Limit:       p.PageSize,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch approval requests: %w", err)
	}
	return toApprovalResponses(rows), total, nil
}

// PendingCount is served from the cache. Id-assigned and role-assigned stages are counted
// separately so a transition only invalidates the approvers it touched.
func (s *approvalService) PendingCount(ctx context.Context, actor workflow.Actor) (int64, error) {
	if actor.IsAdmin() {
		return s.cachedCount(ctx, PendingCountKeyAll(), repository.PendingFilter{AllApprovers: true})
	}
	byID, err := s.cachedCount(ctx, PendingCountKeyForUser(actor.ID), repository.PendingFilter{ApproverID: actor.ID})
	if err != nil {
		return 0, err
	}
	byRole, err := s.cachedCount(ctx, PendingCountKeyForRole(actor.Role), repository.PendingFilter{ApproverRole: actor.Role})
	if err != nil {
		return 0, err
	}
	return byID + byRole, nil
}

func (s *approvalService) cachedCount(ctx context.Context, key string, filter repository.PendingFilter) (int64, error) {
	if raw, ok, err := s.counts.Get(ctx, key); err != nil {
		s.logger.Warn("pending count cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var n int64
		if _, scanErr := fmt.Sscan(raw, &n); scanErr == nil {
			return n, nil
		}
	}

	n, err := s.approvals.CountPending(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending approvals: %w", err)
	}
	if err := s.counts.Set(ctx, key, fmt.Sprint(n), s.countTTL); err != nil {
		s.logger.Warn("pending count cache write failed", zap.String("key", key), zap.Error(err))
	}
	return n, nil
}

// Pending-count cache keys
func PendingCountKeyAll() string { return "approvals:pending_count:all" }

func PendingCountKeyForUser(id uuid.UUID) string {
	return "approvals:pending_count:user:" + id.String()
}

func PendingCountKeyForRole(role string) string {
	return "approvals:pending_count:role:" + role
}

// --- Helpers ---

func notFound(err error, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", workflow.ErrNotFound, id)
	}
	return fmt.Errorf("failed to load approval request: %w", err)
}

func dueAt(route workflow.Route, from time.Time) *time.Time {
	if route.SLAHours <= 0 {
		return nil
	}
	t := from.Add(time.Duration(route.SLAHours) * time.Hour)
	return &t
}

func newTransitionResult(req *model.ApprovalRequest, out workflow.Outcome, actor workflow.Actor, before workflow.Request) *TransitionResult {
	var touched []workflow.StageAssignment
	if st, ok := before.CurrentStageAssignment(); ok {
		touched = append(touched, st)
	}
	if out.NextStage > 0 && out.NextStage <= len(req.Stages) {
		touched = append(touched, req.Stages[out.NextStage-1].Assignment())
	}
	return &TransitionResult{
		Approval: toApprovalResponse(*req),
		Action:   out.Action,
		From:     out.From,
		To:       out.To,
		Actor:    actor,
		Subject:  req.Subject(),
		Touched:  touched,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func formatUUID(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func toApprovalResponse(a model.ApprovalRequest) ApprovalResponse {
	requesterName := ""
	if a.Requester != nil {
		requesterName = a.Requester.Username
	}

	stages := make([]StageResponse, 0, len(a.Stages))
	for _, st := range a.Stages {
		stages = append(stages, StageResponse{
			Seq:          st.Seq,
			Key:          st.Key,
			ApproverID:   formatUUID(st.ApproverID),
			ApproverRole: st.ApproverRole,
			Decision:     st.Decision,
			ActedBy:      formatUUID(st.ActedBy),
			ActedAt:      formatTime(st.ActedAt),
			Comment:      st.Comment,
		})
	}

	return ApprovalResponse{
		ID:            a.ID.String(),
		RequestNo:     a.RequestNo,
		RequestType:   string(a.RequestType),
		SubjectType:   string(a.SubjectType),
		SubjectID:     a.SubjectID,
		Payload:       json.RawMessage(a.Payload),
		Priority:      a.Priority.String(),
		Status:        string(a.Status),
		CurrentStage:  a.CurrentStage,
		StageCount:    a.StageCount,
		RequestedBy:   a.RequestedBy.String(),
		RequesterName: requesterName,
		RejectReason:  a.RejectReason,
		CancelReason:  a.CancelReason,
		DueAt:         formatTime(a.DueAt),
		Version:       a.Version,
		Stages:        stages,
		CreatedAt:     a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     a.UpdatedAt.Format(time.RFC3339),
	}
}

func toApprovalResponses(rows []model.ApprovalRequest) []ApprovalResponse {
	res := make([]ApprovalResponse, 0, len(rows))
	for _, r := range rows {
		res = append(res, toApprovalResponse(r))
	}
	return res
}

func toHistoryResponses(rows []model.ApprovalHistory) []HistoryResponse {
	res := make([]HistoryResponse, 0, len(rows))
	for _, h := range rows {
		res = append(res, HistoryResponse{
			Seq:       h.Seq,
			Action:    string(h.Action),
			ActorID:   h.ActorID.String(),
			ActorRole: h.ActorRole,
			Comment:   h.Comment,
			OldStatus: string(h.OldStatus),
			NewStatus: string(h.NewStatus),
			CreatedAt: h.CreatedAt.Format(time.RFC3339),
		})
	}
	return res
}
