package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"freightdesk/internal/model"
	"freightdesk/internal/repository"
	"freightdesk/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSubjectEffects_PermissionChangeApplied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	payload, _ := json.Marshal(workflow.PermissionChangePayload{
		RoleName: "staff",
		Grant:    []string{model.PermAuditLogsRead},
		Revoke:   []string{model.PermApprovalsWrite},
	})
	created, err := env.approvalService.Create(ctx, env.requester, CreateApprovalRequest{
		RequestType: string(workflow.RequestPermissionChange),
		SubjectID:   "staff",
		Payload:     payload,
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPending, created.To)

	// nothing happens until the request is finished
	require.NoError(t, env.effects.Apply(ctx, created))
	codes, err := env.roleService.GetPermissionsByRoleName(ctx, "staff")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{model.PermApprovalsRead, model.PermApprovalsWrite}, codes)

	res, err := env.approvalService.Approve(ctx, mustParseID(t, created.Approval.ID), env.admin, "")
	require.NoError(t, err)
	require.NoError(t, env.effects.Apply(ctx, res))

	codes, err = env.roleService.GetPermissionsByRoleName(ctx, "staff")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{model.PermApprovalsRead, model.PermAuditLogsRead}, codes)
	assert.Equal(t, []string{"staff"}, env.clearer.roles)

	logs, total, err := env.audits.List(ctx, repository.AuditFilter{EntityID: "staff", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, model.ActionUserChangeApplied, logs[0].Action)
	require.NotNil(t, logs[0].UserID)
	assert.Equal(t, env.admin.ID, *logs[0].UserID)
}

func TestSubjectEffects_RoleChangeApplied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	payload, _ := json.Marshal(workflow.RoleChangePayload{
		UserID:   env.other.ID.String(),
		FromRole: "staff",
		ToRole:   "finance",
	})
	created, err := env.approvalService.Create(ctx, env.requester, CreateApprovalRequest{
		RequestType: string(workflow.RequestRoleChange),
		SubjectID:   env.other.ID.String(),
		Payload:     payload,
	})
	require.NoError(t, err)

	res, err := env.approvalService.Approve(ctx, mustParseID(t, created.Approval.ID), env.admin, "")
	require.NoError(t, err)
	require.NoError(t, env.effects.Apply(ctx, res))

	user, err := env.users.GetByID(ctx, env.other.ID)
	require.NoError(t, err)
	assert.Equal(t, "finance", user.Role)
}

func TestSubjectEffects_RejectedVoidBillIsRestored(t *testing.T) {
	env := newTestEnv(t)
	env.configureVoidApprovers(t)
	ctx := context.Background()

	created := env.createVoidBill(t, "BL-FX-1")
	res, err := env.approvalService.Reject(ctx, mustParseID(t, created.Approval.ID), env.supervisor, "bill is correct")
	require.NoError(t, err)
	require.NoError(t, env.effects.Apply(ctx, res))

	logs, total, err := env.audits.List(ctx, repository.AuditFilter{EntityID: "BL-FX-1", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, model.ActionVoidBillRestored, logs[0].Action)
	assert.Equal(t, string(workflow.SubjectBill), logs[0].EntityName)
	assert.Empty(t, env.clearer.roles)
}

func TestSubjectEffects_ExpiredByTheSweeperHasNoUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.approvalService.Create(ctx, env.requester, contractRequest("CT-FX-2"))
	require.NoError(t, err)
	_, err = env.approvalService.Submit(ctx, mustParseID(t, created.Approval.ID), env.requester)
	require.NoError(t, err)

	env.clock.Advance(121 * time.Hour)
	results, err := env.approvalService.ExpireOverdue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, env.effects.Apply(ctx, results[0]))

	logs, _, err := env.audits.List(ctx, repository.AuditFilter{EntityID: "CT-FX-2", Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ActionContractReturned, logs[0].Action)
	assert.Nil(t, logs[0].UserID)

	rows, total, err := NewAuditService(env.audits).GetAuditLogs(ctx, AuditQuery{
		EntityName: string(workflow.SubjectContract),
		Action:     model.ActionContractReturned,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "System", rows[0].Username)
	assert.Empty(t, rows[0].UserID)
}

func userCreateRequest(t *testing.T, username, email, role string) CreateApprovalRequest {
	t.Helper()
	payload, err := json.Marshal(workflow.UserCreatePayload{Username: username, Email: email, Role: role})
	require.NoError(t, err)
	return CreateApprovalRequest{
		RequestType: string(workflow.RequestUserCreate),
		SubjectID:   email,
		Payload:     payload,
	}
}

func TestSubjectEffects_UserCreateApplied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	users := NewUserService(env.users, TokenConfig{Secret: "test-secret", AccessTTL: time.Hour, RefreshTTL: time.Hour}, zap.NewNop())

	created, err := env.approvalService.Create(ctx, env.requester, userCreateRequest(t, "newbie", "newbie@example.com", "finance"))
	require.NoError(t, err)

	// nothing exists while the request waits
	require.NoError(t, env.effects.Apply(ctx, created))
	_, err = env.users.GetByEmail(ctx, "newbie@example.com")
	require.Error(t, err)

	res, err := env.approvalService.Approve(ctx, mustParseID(t, created.Approval.ID), env.admin, "welcome")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusApproved, res.To)
	require.NoError(t, env.effects.Apply(ctx, res))

	user, err := env.users.GetByEmail(ctx, "newbie@example.com")
	require.NoError(t, err)
	assert.Equal(t, "newbie", user.Username)
	assert.Equal(t, "finance", user.Role)
	assert.NotEmpty(t, user.Password)

	// the account cannot log in until an operator sets its first password
	_, err = users.Login(ctx, LoginUserRequest{Email: "newbie@example.com", Password: ""})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.ErrorIs(t, users.SetPassword(ctx, user.ID, "short"), workflow.ErrValidation)
	require.NoError(t, users.SetPassword(ctx, user.ID, "welcome-aboard"))
	tokens, err := users.Login(ctx, LoginUserRequest{Email: "newbie@example.com", Password: "welcome-aboard"})
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.Token)

	logs, _, err := env.audits.List(ctx, repository.AuditFilter{EntityID: "newbie@example.com", Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ActionUserChangeApplied, logs[0].Action)
}

func TestSubjectEffects_UserCreateConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	approve := func(req CreateApprovalRequest) *TransitionResult {
		created, err := env.approvalService.Create(ctx, env.requester, req)
		require.NoError(t, err)
		res, err := env.approvalService.Approve(ctx, mustParseID(t, created.Approval.ID), env.admin, "")
		require.NoError(t, err)
		return res
	}

	tests := []struct {
		name string
		req  CreateApprovalRequest
	}{
		{"email already registered", userCreateRequest(t, "alice2", "alice@example.com", "staff")},
		{"username taken", userCreateRequest(t, "alice", "alice2@example.com", "staff")},
		{"unknown role", userCreateRequest(t, "carol", "carol@example.com", "intern")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.effects.Apply(ctx, approve(tt.req))
			assert.ErrorIs(t, err, workflow.ErrValidation)
		})
	}

	_, err := env.users.GetByEmail(ctx, "carol@example.com")
	assert.Error(t, err)
}

func TestSubjectEffects_RejectedUserCreateCreatesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.approvalService.Create(ctx, env.requester, userCreateRequest(t, "dave", "dave@example.com", "staff"))
	require.NoError(t, err)
	res, err := env.approvalService.Reject(ctx, mustParseID(t, created.Approval.ID), env.admin, "not hiring")
	require.NoError(t, err)
	require.NoError(t, env.effects.Apply(ctx, res))

	_, err = env.users.GetByEmail(ctx, "dave@example.com")
	assert.Error(t, err)

	logs, _, err := env.audits.List(ctx, repository.AuditFilter{EntityID: "dave@example.com", Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ActionUserChangeDiscarded, logs[0].Action)
}
