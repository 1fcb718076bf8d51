package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"freightdesk/internal/model"
	"freightdesk/internal/workflow"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprovalService_VoidBillWalksBothStages(t *testing.T) {
	env := newTestEnv(t)
	env.configureVoidApprovers(t)
	ctx := context.Background()

	created := env.createVoidBill(t, "BL-1001")
	assert.Equal(t, workflow.PendingStatus("supervisor"), created.To)
	assert.Equal(t, "AP-20260302-00001", created.Approval.RequestNo)
	assert.Equal(t, 1, created.Approval.CurrentStage)
	assert.Equal(t, 2, created.Approval.StageCount)
	assert.Equal(t, "normal", created.Approval.Priority)
	require.NotNil(t, created.Approval.DueAt)
	assert.Equal(t, env.clock.Now().Add(72*time.Hour).Format(time.RFC3339), *created.Approval.DueAt)
	require.Len(t, created.Approval.Stages, 2)
	assert.Equal(t, env.supervisor.ID.String(), *created.Approval.Stages[0].ApproverID)
	assert.Equal(t, env.finance.ID.String(), *created.Approval.Stages[1].ApproverID)

	id := mustParseID(t, created.Approval.ID)

	first, err := env.approvalService.Approve(ctx, id, env.supervisor, "checked against ledger")
	require.NoError(t, err)
	assert.Equal(t, workflow.PendingStatus("finance"), first.To)
	assert.Equal(t, 2, first.Approval.CurrentStage)
	assert.Equal(t, model.DecisionApproved, first.Approval.Stages[0].Decision)
	assert.Equal(t, "checked against ledger", first.Approval.Stages[0].Comment)

	second, err := env.approvalService.Approve(ctx, id, env.finance, "")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, second.To)
	assert.Equal(t, 0, second.Approval.CurrentStage)
	assert.Nil(t, second.Approval.DueAt)
	assert.Equal(t, 3, second.Approval.Version)

	history, err := env.approvalService.GetHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"create", "approve", "approve"},
		[]string{history[0].Action, history[1].Action, history[2].Action})
	for i, h := range history {
		assert.Equal(t, i+1, h.Seq)
	}
	assert.Equal(t, "pending_finance", history[2].OldStatus)
	assert.Equal(t, "approved", history[2].NewStatus)
}

func TestApprovalService_ApproveByWrongApproverIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	env.configureVoidApprovers(t)
	ctx := context.Background()

	created := env.createVoidBill(t, "BL-1002")
	id := mustParseID(t, created.Approval.ID)

	_, err := env.approvalService.Approve(ctx, id, env.finance, "")
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	// admins do not bypass stage approvers
	_, err = env.approvalService.Approve(ctx, id, env.admin, "")
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	detail, err := env.approvalService.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "pending_supervisor", detail.Status)
	assert.Equal(t, 1, detail.Version)
	assert.Len(t, detail.History, 1)
}

func TestApprovalService_RejectIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	env.configureVoidApprovers(t)
	ctx := context.Background()

	created := env.createVoidBill(t, "BL-1003")
	id := mustParseID(t, created.Approval.ID)

	res, err := env.approvalService.Reject(ctx, id, env.supervisor, "  bill already settled  ")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusRejected, res.To)
	assert.Equal(t, "bill already settled", res.Approval.RejectReason)
	assert.Equal(t, model.DecisionRejected, res.Approval.Stages[0].Decision)
	assert.Empty(t, res.Approval.Stages[1].Decision)

	_, err = env.approvalService.Approve(ctx, id, env.supervisor, "")
	assert.ErrorIs(t, err, workflow.ErrInvalidState)
	_, err = env.approvalService.Reject(ctx, id, env.supervisor, "again")
	assert.ErrorIs(t, err, workflow.ErrInvalidState)
	_, err = env.approvalService.Reject(ctx, id, env.supervisor, "")
	assert.ErrorIs(t, err, workflow.ErrInvalidState)
	_, err = env.approvalService.Cancel(ctx, id, env.requester, "")
	assert.ErrorIs(t, err, workflow.ErrInvalidState)

	assert.Equal(t, 2, env.historyCount(t, id))

	// a blank reason on an unknown request is still a missing request
	_, err = env.approvalService.Reject(ctx, uuid.New(), env.supervisor, "")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestApprovalService_RejectRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	env.configureVoidApprovers(t)
	ctx := context.Background()

	created := env.createVoidBill(t, "BL-1004")
	id := mustParseID(t, created.Approval.ID)

	_, err := env.approvalService.Reject(ctx, id, env.supervisor, "   ")
	assert.ErrorIs(t, err, workflow.ErrValidation)

	detail, err := env.approvalService.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "pending_supervisor", detail.Status)
	assert.Empty(t, detail.Stages[0].Decision)
	assert.Len(t, detail.History, 1)
}

func TestApprovalService_ConcurrentApproveHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	env.configureVoidApprovers(t)
	ctx := context.Background()

	created := env.createVoidBill(t, "BL-1005")
	id := mustParseID(t, created.Approval.ID)

	const workers = 4
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.approvalService.Approve(ctx, id, env.supervisor, "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, workflow.ErrInvalidState)
	}
	assert.Equal(t, 1, succeeded)

	detail, err := env.approvalService.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "pending_finance", detail.Status)
	assert.Equal(t, 2, detail.Version)
	assert.Len(t, detail.History, 2)
}

func TestApprovalService_Cancel(t *testing.T) {
	env := newTestEnv(t)
	env.configureVoidApprovers(t)
	ctx := context.Background()

	t.Run("only requester or admin", func(t *testing.T) {
		created := env.createVoidBill(t, "BL-2001")
		id := mustParseID(t, created.Approval.ID)

		_, err := env.approvalService.Cancel(ctx, id, env.other, "")
		assert.ErrorIs(t, err, workflow.ErrForbidden)
		_, err = env.approvalService.Cancel(ctx, id, env.supervisor, "")
		assert.ErrorIs(t, err, workflow.ErrForbidden)

		res, err := env.approvalService.Cancel(ctx, id, env.requester, "raised by mistake")
		require.NoError(t, err)
		assert.Equal(t, workflow.StatusCancelled, res.To)
		assert.Equal(t, "raised by mistake", res.Approval.CancelReason)
		assert.Nil(t, res.Approval.DueAt)

		_, err = env.approvalService.Cancel(ctx, id, env.requester, "")
		assert.ErrorIs(t, err, workflow.ErrInvalidState)
	})

	t.Run("only requester or admin at the finance stage", func(t *testing.T) {
		created := env.createVoidBill(t, "BL-2003")
		id := mustParseID(t, created.Approval.ID)

		res, err := env.approvalService.Approve(ctx, id, env.supervisor, "")
		require.NoError(t, err)
		require.Equal(t, workflow.Status("pending_finance"), res.To)

		for _, actor := range []workflow.Actor{env.other, env.supervisor, env.finance} {
			_, err = env.approvalService.Cancel(ctx, id, actor, "")
			assert.ErrorIs(t, err, workflow.ErrForbidden)
		}

		res, err = env.approvalService.Cancel(ctx, id, env.requester, "")
		require.NoError(t, err)
		assert.Equal(t, workflow.StatusCancelled, res.To)
		assert.Equal(t, 3, env.historyCount(t, id))
	})

	t.Run("admin on behalf of requester", func(t *testing.T) {
		created := env.createVoidBill(t, "BL-2002")
		res, err := env.approvalService.Cancel(ctx, mustParseID(t, created.Approval.ID), env.admin, "")
		require.NoError(t, err)
		assert.Equal(t, workflow.StatusCancelled, res.To)
	})
}

func TestApprovalService_ContractDraftThenSubmit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.approvalService.Create(ctx, env.requester, contractRequest("CT-77"))
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusDraft, created.To)
	assert.Equal(t, 0, created.Approval.StageCount)
	assert.Empty(t, created.Approval.Stages)
	assert.Nil(t, created.Approval.DueAt)
	id := mustParseID(t, created.Approval.ID)

	// a draft sits in nobody's inbox
	_, err = env.approvalService.Approve(ctx, id, env.manager, "")
	assert.ErrorIs(t, err, workflow.ErrInvalidState)

	_, err = env.approvalService.Submit(ctx, id, env.other)
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	submitted, err := env.approvalService.Submit(ctx, id, env.requester)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPending, submitted.To)
	assert.Equal(t, 1, submitted.Approval.StageCount)
	require.Len(t, submitted.Approval.Stages, 1)
	assert.Equal(t, "manager", submitted.Approval.Stages[0].ApproverRole)
	require.NotNil(t, submitted.Approval.DueAt)
	assert.Equal(t, env.clock.Now().Add(120*time.Hour).Format(time.RFC3339), *submitted.Approval.DueAt)

	_, err = env.approvalService.Submit(ctx, id, env.requester)
	assert.ErrorIs(t, err, workflow.ErrInvalidState)

	approved, err := env.approvalService.Approve(ctx, id, env.manager, "terms ok")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, approved.To)
	assert.Equal(t, 3, env.historyCount(t, id))
}

func TestApprovalService_MissingApproverIsConfigurationError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.approvalService.Create(ctx, env.requester, voidBillRequest("BL-3001", ""))
	assert.ErrorIs(t, err, workflow.ErrConfiguration)

	rows, total, err := env.approvalService.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, total)
}

func TestApprovalService_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	env.configureVoidApprovers(t)
	ctx := context.Background()

	badPayload := voidBillRequest("BL-4001", "")
	badPayload.Payload = json.RawMessage(`{"bill_no":"BL-4001","amount":"-5","currency":"USD","reason":"x"}`)

	wrongSubject := voidBillRequest("BL-4002", "")
	wrongSubject.SubjectType = string(workflow.SubjectContract)

	tests := []struct {
		name string
		req  CreateApprovalRequest
	}{
		{"unknown type", CreateApprovalRequest{RequestType: "refund", SubjectID: "x", Payload: json.RawMessage(`{}`)}},
		{"blank subject", CreateApprovalRequest{RequestType: "void_bill", SubjectID: "  ", Payload: voidBillRequest("x", "").Payload}},
		{"invalid payload", badPayload},
		{"subject kind mismatch", wrongSubject},
		{"unknown priority", voidBillRequest("BL-4003", "critical")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.approvalService.Create(ctx, env.requester, tt.req)
			assert.ErrorIs(t, err, workflow.ErrValidation)
		})
	}
}

func TestApprovalService_RequestNumbersArePerDay(t *testing.T) {
	env := newTestEnv(t)
	env.configureVoidApprovers(t)

	a := env.createVoidBill(t, "BL-5001")
	b := env.createVoidBill(t, "BL-5002")
	env.clock.Advance(24 * time.Hour)
	c := env.createVoidBill(t, "BL-5003")

	assert.Equal(t, "AP-20260302-00001", a.Approval.RequestNo)
	assert.Equal(t, "AP-20260302-00002", b.Approval.RequestNo)
	assert.Equal(t, "AP-20260303-00001", c.Approval.RequestNo)
}

func TestApprovalService_GetUnknownIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.approvalService.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	_, err = env.approvalService.GetHistory(ctx, uuid.New())
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	_, err = env.approvalService.Approve(ctx, uuid.New(), env.supervisor, "")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestApprovalService_PendingInbox(t *testing.T) {
	env := newTestEnv(t)
	env.configureVoidApprovers(t)
	ctx := context.Background()

	normal := env.createVoidBill(t, "BL-6001")
	env.clock.Advance(time.Minute)
	urgent, err := env.approvalService.Create(ctx, env.requester, voidBillRequest("BL-6002", "urgent"))
	require.NoError(t, err)

	contract, err := env.approvalService.Create(ctx, env.requester, contractRequest("CT-6003"))
	require.NoError(t, err)
	_, err = env.approvalService.Submit(ctx, mustParseID(t, contract.Approval.ID), env.requester)
	require.NoError(t, err)

	items, total, err := env.approvalService.GetPending(ctx, env.supervisor, PendingQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, items, 2)
	assert.Equal(t, urgent.Approval.ID, items[0].ID)
	assert.Equal(t, normal.Approval.ID, items[1].ID)

	_, total, err = env.approvalService.GetPending(ctx, env.finance, PendingQuery{})
	require.NoError(t, err)
	assert.Zero(t, total)

	// role-assigned stages reach every holder of the role
	otherManager := env.createUser(t, "mike", "manager")
	for _, m := range []workflow.Actor{env.manager, otherManager} {
		items, _, err := env.approvalService.GetPending(ctx, m, PendingQuery{})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, contract.Approval.ID, items[0].ID)
	}

	_, total, err = env.approvalService.GetPending(ctx, env.admin, PendingQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)

	_, total, err = env.approvalService.GetPending(ctx, env.admin, PendingQuery{RequestType: "contract"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	supervisorID := env.supervisor.ID
	_, total, err = env.approvalService.GetPending(ctx, env.admin, PendingQuery{ApproverID: &supervisorID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	_, _, err = env.approvalService.GetPending(ctx, env.finance, PendingQuery{ApproverID: &supervisorID})
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	// after the supervisor acts, the request moves to finance
	_, err = env.approvalService.Approve(ctx, mustParseID(t, normal.Approval.ID), env.supervisor, "")
	require.NoError(t, err)
	items, _, err = env.approvalService.GetPending(ctx, env.finance, PendingQuery{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, normal.Approval.ID, items[0].ID)
}

func TestApprovalService_ListAndMine(t *testing.T) {
	env := newTestEnv(t)
	env.configureVoidApprovers(t)
	ctx := context.Background()

	a := env.createVoidBill(t, "BL-7001")
	_, err := env.approvalService.Create(ctx, env.other, voidBillRequest("BL-7002", ""))
	require.NoError(t, err)
	_, err = env.approvalService.Reject(ctx, mustParseID(t, a.Approval.ID), env.supervisor, "no")
	require.NoError(t, err)

	_, total, err := env.approvalService.List(ctx, ListQuery{Status: "pending"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	_, total, err = env.approvalService.List(ctx, ListQuery{Status: "rejected"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	items, total, err := env.approvalService.List(ctx, ListQuery{Search: "7002"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "BL-7002", items[0].SubjectID)

	// wildcard characters in the search match only themselves
	for _, search := range []string{"%", "BL_7002", `BL\-7002`} {
		_, total, err = env.approvalService.List(ctx, ListQuery{Search: search})
		require.NoError(t, err)
		assert.EqualValues(t, 0, total, search)
	}

	mine, total, err := env.approvalService.GetMine(ctx, env.requester, ListQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, a.Approval.ID, mine[0].ID)
	assert.Equal(t, "alice", mine[0].RequesterName)
}

func TestApprovalService_PendingCountIsCachedUntilNotified(t *testing.T) {
	env := newTestEnv(t)
	env.configureVoidApprovers(t)
	ctx := context.Background()

	first := env.createVoidBill(t, "BL-8001")
	env.notifier.Transitioned(ctx, first)

	n, err := env.approvalService.PendingCount(ctx, env.supervisor)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// without a notification the cached value is served
	second := env.createVoidBill(t, "BL-8002")
	n, err = env.approvalService.PendingCount(ctx, env.supervisor)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	env.notifier.Transitioned(ctx, second)
	n, err = env.approvalService.PendingCount(ctx, env.supervisor)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, 2, env.publisher.count())

	n, err = env.approvalService.PendingCount(ctx, env.admin)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	res, err := env.approvalService.Approve(ctx, mustParseID(t, first.Approval.ID), env.supervisor, "")
	require.NoError(t, err)
	env.notifier.Transitioned(ctx, res)

	n, err = env.approvalService.PendingCount(ctx, env.supervisor)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = env.approvalService.PendingCount(ctx, env.finance)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestApprovalService_ExpireOverdue(t *testing.T) {
	env := newTestEnv(t)
	env.configureVoidApprovers(t)
	ctx := context.Background()

	overdue := env.createVoidBill(t, "BL-9001")
	env.clock.Advance(48 * time.Hour)
	fresh := env.createVoidBill(t, "BL-9002")

	results, err := env.approvalService.ExpireOverdue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	env.clock.Advance(25 * time.Hour)
	results, err = env.approvalService.ExpireOverdue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, overdue.Approval.ID, results[0].Approval.ID)
	assert.Equal(t, workflow.StatusExpired, results[0].To)
	assert.Equal(t, 0, results[0].Approval.CurrentStage)

	history, err := env.approvalService.GetHistory(ctx, mustParseID(t, overdue.Approval.ID))
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, "expire", last.Action)
	assert.Equal(t, uuid.Nil.String(), last.ActorID)
	assert.Equal(t, workflow.RoleSystem, last.ActorRole)

	_, err = env.approvalService.Approve(ctx, mustParseID(t, overdue.Approval.ID), env.supervisor, "")
	assert.ErrorIs(t, err, workflow.ErrInvalidState)

	results, err = env.approvalService.ExpireOverdue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	detail, err := env.approvalService.Get(ctx, mustParseID(t, fresh.Approval.ID))
	require.NoError(t, err)
	assert.Equal(t, "pending_supervisor", detail.Status)
}
