package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"freightdesk/internal/model"
	"freightdesk/internal/repository"
	"freightdesk/internal/workflow"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PermissionCacheClearer drops cached permission sets after a role's grants change
type PermissionCacheClearer interface {
	ClearPermissionCache(roleName string)
}

// SubjectEffects applies the business-side consequence of a finished request to its subject.
// It runs after the transition committed and never changes the request itself.
type SubjectEffects interface {
	Apply(ctx context.Context, t *TransitionResult) error
}

type subjectEffects struct {
	txManager repository.TransactionManager
	audits    repository.AuditRepository
	users     repository.UserRepository
	roles     repository.RoleRepository
	permCache PermissionCacheClearer
	logger    *zap.Logger
}

func NewSubjectEffects(
	txManager repository.TransactionManager,
	audits repository.AuditRepository,
	users repository.UserRepository,
	roles repository.RoleRepository,
	permCache PermissionCacheClearer,
	logger *zap.Logger,
) SubjectEffects {
	return &subjectEffects{
		txManager: txManager,
		audits:    audits,
		users:     users,
		roles:     roles,
		permCache: permCache,
		logger:    logger,
	}
}

// effectAction names the audit action for a subject kind reaching a terminal status
func effectAction(kind workflow.SubjectKind, to workflow.Status) string {
	approved := to == workflow.StatusApproved
	switch kind {
	case workflow.SubjectBill:
		if approved {
			return model.ActionVoidBillConfirmed
		}
		return model.ActionVoidBillRestored
	case workflow.SubjectContract:
		if approved {
			return model.ActionContractActivated
		}
		return model.ActionContractReturned
	default:
		if approved {
			return model.ActionUserChangeApplied
		}
		return model.ActionUserChangeDiscarded
	}
}

func (e *subjectEffects) Apply(ctx context.Context, t *TransitionResult) error {
	if !t.To.IsTerminal() {
		return nil
	}

	requestType := workflow.RequestType(t.Approval.RequestType)
	var clearRole string

	err := e.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if t.To == workflow.StatusApproved {
			payload, err := workflow.DecodePayload(requestType, json.RawMessage(t.Approval.Payload))
			if err != nil {
				return err
			}
			switch p := payload.(type) {
			case *workflow.UserCreatePayload:
				if err := e.applyUserCreate(txCtx, p); err != nil {
					return err
				}
			case *workflow.RoleChangePayload:
				if err := e.applyRoleChange(txCtx, p); err != nil {
					return err
				}
			case *workflow.PermissionChangePayload:
				if err := e.applyPermissionChange(txCtx, p); err != nil {
					return err
				}
				clearRole = p.RoleName
			}
		}

		details, _ := json.Marshal(map[string]interface{}{
			"request_no":   t.Approval.RequestNo,
			"request_type": t.Approval.RequestType,
			"status":       t.To,
			"payload":      json.RawMessage(t.Approval.Payload),
		})
		entry := &model.AuditLog{
			Action:     effectAction(t.Subject.Kind, t.To),
			EntityID:   t.Subject.ID,
			EntityName: string(t.Subject.Kind),
			Details:    string(details),
		}
		if t.Actor.ID != uuid.Nil {
			actorID := t.Actor.ID
			entry.UserID = &actorID
		}
		if err := e.audits.Log(txCtx, entry); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if clearRole != "" {
		e.permCache.ClearPermissionCache(clearRole)
	}
	e.logger.Info("subject effect applied",
		zap.String("subject", t.Subject.String()),
		zap.String("request_no", t.Approval.RequestNo),
		zap.String("status", string(t.To)),
	)
	return nil
}

// applyUserCreate opens the account with an unusable password; an operator sets the first
// password through the users API.
func (e *subjectEffects) applyUserCreate(ctx context.Context, p *workflow.UserCreatePayload) error {
	if _, err := e.roles.FindByName(ctx, p.Role); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: role %q does not exist", workflow.ErrValidation, p.Role)
		}
		return fmt.Errorf("failed to look up role %q: %w", p.Role, err)
	}
	if _, err := e.users.GetByEmail(ctx, p.Email); err == nil {
		return fmt.Errorf("%w: email %s is already registered", workflow.ErrValidation, p.Email)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up email %s: %w", p.Email, err)
	}
	if _, err := e.users.GetByUsername(ctx, p.Username); err == nil {
		return fmt.Errorf("%w: username %s is taken", workflow.ErrValidation, p.Username)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up username %s: %w", p.Username, err)
	}

	password, err := unusablePassword()
	if err != nil {
		return err
	}
	user := &model.User{
		Username: p.Username,
		Email:    p.Email,
		Password: password,
		Role:     p.Role,
	}
	if err := e.users.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create user %s: %w", p.Username, err)
	}
	e.logger.Info("user created", zap.String("user_id", user.ID.String()), zap.String("role", user.Role))
	return nil
}

func (e *subjectEffects) applyRoleChange(ctx context.Context, p *workflow.RoleChangePayload) error {
	userID, err := uuid.Parse(p.UserID)
	if err != nil {
		return fmt.Errorf("%w: user_id is not a uuid", workflow.ErrValidation)
	}
	if err := e.users.UpdateRole(ctx, userID, p.ToRole); err != nil {
		return fmt.Errorf("failed to change role of user %s: %w", userID, err)
	}
	return nil
}

func (e *subjectEffects) applyPermissionChange(ctx context.Context, p *workflow.PermissionChangePayload) error {
	role, err := e.roles.FindByName(ctx, p.RoleName)
	if err != nil {
		return fmt.Errorf("role %q not found: %w", p.RoleName, err)
	}
	current, err := e.roles.GetPermissionsByRoleName(ctx, p.RoleName)
	if err != nil {
		return fmt.Errorf("failed to load permissions of %q: %w", p.RoleName, err)
	}

	codes := make(map[string]bool, len(current)+len(p.Grant))
	for _, c := range current {
		codes[c] = true
	}
	for _, c := range p.Grant {
		codes[c] = true
	}
	for _, c := range p.Revoke {
		delete(codes, c)
	}

	perms := make([]model.Permission, 0, len(codes))
	for code := range codes {
		perm := model.Permission{Code: code, Name: code, Group: permissionGroup(code)}
		if err := e.roles.FindOrCreatePermission(ctx, &perm); err != nil {
			return fmt.Errorf("failed to resolve permission %q: %w", code, err)
		}
		perms = append(perms, perm)
	}
	if err := e.roles.ReplacePermissions(ctx, role, perms); err != nil {
		return fmt.Errorf("failed to update permissions of %q: %w", p.RoleName, err)
	}
	return nil
}

func permissionGroup(code string) string {
	if i := strings.Index(code, "."); i > 0 {
		return code[:i]
	}
	return code
}
