package service

import (
	"context"
	"testing"

	"freightdesk/internal/model"
	"freightdesk/internal/repository"
	"freightdesk/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigService_SeedDefaultsKeepsOperatorChanges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	custom := `{"start_in_draft":false,"stages":[{"approver_role":"finance"}]}`
	_, err := env.configService.Upsert(ctx, env.admin, UpsertSystemConfigRequest{
		Key:   workflow.RouteKey(workflow.RequestContract),
		Value: custom,
	})
	require.NoError(t, err)

	require.NoError(t, env.configService.SeedDefaults(ctx))

	snapshot, err := env.configService.GetSnapshot(ctx)
	require.NoError(t, err)
	raw, ok := snapshot.Get(workflow.RouteKey(workflow.RequestContract))
	require.True(t, ok)
	assert.Equal(t, custom, raw)

	for _, rt := range workflow.RequestTypes() {
		_, err := snapshot.Route(rt)
		assert.NoError(t, err, rt)
	}
}

func TestConfigService_UpsertInvalidatesSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	before, err := env.configService.GetSnapshot(ctx)
	require.NoError(t, err)
	_, ok := before.Get(model.ConfigVoidSupervisorID)
	assert.False(t, ok)

	saved, err := env.configService.Upsert(ctx, env.admin, UpsertSystemConfigRequest{
		Key:         model.ConfigVoidSupervisorID,
		Value:       "  " + env.supervisor.ID.String() + " ",
		Description: "First void-bill approver",
	})
	require.NoError(t, err)
	assert.Equal(t, env.supervisor.ID.String(), saved.Value)
	require.NotNil(t, saved.UpdatedBy)
	assert.Equal(t, env.admin.ID.String(), *saved.UpdatedBy)

	after, err := env.configService.GetSnapshot(ctx)
	require.NoError(t, err)
	v, ok := after.Get(model.ConfigVoidSupervisorID)
	require.True(t, ok)
	assert.Equal(t, env.supervisor.ID.String(), v)

	logs, total, err := env.audits.List(ctx, repository.AuditFilter{EntityID: model.ConfigVoidSupervisorID, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, model.ActionUpdateSystemConfig, logs[0].Action)
}

func TestConfigService_UpsertValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"blank key", " ", "x"},
		{"route for unknown type", "approval.route.refund", `{"stages":[{"approver_role":"admin"}]}`},
		{"malformed route", workflow.RouteKey(workflow.RequestVoidBill), `{"stages":`},
		{"route without stages", workflow.RouteKey(workflow.RequestVoidBill), `{"stages":[]}`},
		{"stage with two approvers", workflow.RouteKey(workflow.RequestVoidBill), `{"stages":[{"approver_role":"admin","approver_ref":"void_finance_id"}]}`},
		{"approver id not a uuid", model.ConfigVoidFinanceID, "fiona"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.configService.Upsert(ctx, env.admin, UpsertSystemConfigRequest{Key: tt.key, Value: tt.value})
			assert.ErrorIs(t, err, workflow.ErrValidation)
		})
	}

	// the seeded route is untouched
	snapshot, err := env.configService.GetSnapshot(ctx)
	require.NoError(t, err)
	route, err := snapshot.Route(workflow.RequestVoidBill)
	require.NoError(t, err)
	assert.Len(t, route.Stages, 2)
}

func TestConfigService_RouteChangeAppliesToNewRequestsOnly(t *testing.T) {
	env := newTestEnv(t)
	env.configureVoidApprovers(t)
	ctx := context.Background()

	inFlight := env.createVoidBill(t, "BL-CFG-1")

	// swap the finance approver; the in-flight request keeps its snapshotted chain
	_, err := env.configService.Upsert(ctx, env.admin, UpsertSystemConfigRequest{
		Key:   model.ConfigVoidFinanceID,
		Value: env.manager.ID.String(),
	})
	require.NoError(t, err)

	next := env.createVoidBill(t, "BL-CFG-2")
	assert.Equal(t, env.finance.ID.String(), *inFlight.Approval.Stages[1].ApproverID)
	assert.Equal(t, env.manager.ID.String(), *next.Approval.Stages[1].ApproverID)

	id := mustParseID(t, inFlight.Approval.ID)
	_, err = env.approvalService.Approve(ctx, id, env.supervisor, "")
	require.NoError(t, err)
	_, err = env.approvalService.Approve(ctx, id, env.manager, "")
	assert.ErrorIs(t, err, workflow.ErrForbidden)
	res, err := env.approvalService.Approve(ctx, id, env.finance, "")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, res.To)
}
