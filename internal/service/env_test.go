package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"freightdesk/internal/cache"
	"freightdesk/internal/database/dbtest"
	"freightdesk/internal/model"
	"freightdesk/internal/repository"
	"freightdesk/internal/workflow"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) Publish(event string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type recordingClearer struct {
	mu    sync.Mutex
	roles []string
}

func (c *recordingClearer) ClearPermissionCache(roleName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roles = append(c.roles, roleName)
}

type testEnv struct {
	db        *gorm.DB
	clock     *testClock
	cache     *cache.Memory
	publisher *recordingPublisher
	clearer   *recordingClearer

	users     repository.UserRepository
	roles     repository.RoleRepository
	approvals repository.ApprovalRepository
	histories repository.HistoryRepository
	audits    repository.AuditRepository

	configService   ConfigService
	approvalService ApprovalService
	roleService     RoleService
	notifier        Notifier
	effects         SubjectEffects

	admin, requester, other, supervisor, finance, manager workflow.Actor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := dbtest.NewTestDB(t)
	logger := zap.NewNop()
	clock := &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	mem := cache.NewMemory()

	txManager := repository.NewTransactionManager(db)
	env := &testEnv{
		db:        db,
		clock:     clock,
		cache:     mem,
		publisher: &recordingPublisher{},
		clearer:   &recordingClearer{},
		users:     repository.NewUserRepository(db),
		roles:     repository.NewRoleRepository(db),
		approvals: repository.NewApprovalRepository(db),
		histories: repository.NewHistoryRepository(db),
		audits:    repository.NewAuditRepository(db),
	}

	env.configService = NewConfigService(txManager, repository.NewSystemConfigRepository(db), env.audits, mem, time.Minute, logger)
	env.approvalService = NewApprovalService(txManager, env.approvals, env.histories, env.configService, mem, logger,
		ApprovalOptions{PendingCountTTL: time.Hour, Now: clock.Now})
	env.roleService = NewRoleService(txManager, env.roles, logger)
	env.notifier = NewNotifier(env.publisher, mem, logger)
	env.effects = NewSubjectEffects(txManager, env.audits, env.users, env.roles, env.clearer, logger)

	ctx := context.Background()
	require.NoError(t, env.roleService.SeedDefaultRolesAndPermissions(ctx))
	require.NoError(t, env.configService.SeedDefaults(ctx))

	env.admin = env.createUser(t, "admin", "admin")
	env.requester = env.createUser(t, "alice", "staff")
	env.other = env.createUser(t, "bob", "staff")
	env.supervisor = env.createUser(t, "sam", "supervisor")
	env.finance = env.createUser(t, "fiona", "finance")
	env.manager = env.createUser(t, "maria", "manager")
	return env
}

func (e *testEnv) createUser(t *testing.T, username, role string) workflow.Actor {
	t.Helper()
	u := &model.User{Username: username, Email: username + "@example.com", Password: "x", Role: role}
	require.NoError(t, e.users.Create(context.Background(), u))
	return workflow.Actor{ID: u.ID, Role: role}
}

// configureVoidApprovers points the void-bill route at the supervisor and finance users
func (e *testEnv) configureVoidApprovers(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := e.configService.Upsert(ctx, e.admin, UpsertSystemConfigRequest{Key: model.ConfigVoidSupervisorID, Value: e.supervisor.ID.String()})
	require.NoError(t, err)
	_, err = e.configService.Upsert(ctx, e.admin, UpsertSystemConfigRequest{Key: model.ConfigVoidFinanceID, Value: e.finance.ID.String()})
	require.NoError(t, err)
}

func voidBillRequest(billNo, priority string) CreateApprovalRequest {
	payload, _ := json.Marshal(map[string]interface{}{
		"bill_no":  billNo,
		"amount":   "1250.00",
		"currency": "USD",
		"reason":   "duplicate issue",
	})
	return CreateApprovalRequest{
		RequestType: string(workflow.RequestVoidBill),
		SubjectID:   billNo,
		Payload:     payload,
		Priority:    priority,
	}
}

func contractRequest(contractNo string) CreateApprovalRequest {
	payload, _ := json.Marshal(map[string]interface{}{
		"contract_no":   contractNo,
		"customer_name": "Blue Harbor Logistics",
		"value":         "50000",
		"currency":      "EUR",
	})
	return CreateApprovalRequest{
		RequestType: string(workflow.RequestContract),
		SubjectID:   contractNo,
		Payload:     payload,
	}
}

func (e *testEnv) createVoidBill(t *testing.T, billNo string) *TransitionResult {
	t.Helper()
	res, err := e.approvalService.Create(context.Background(), e.requester, voidBillRequest(billNo, ""))
	require.NoError(t, err)
	return res
}

func mustParseID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

func (e *testEnv) historyCount(t *testing.T, id uuid.UUID) int {
	t.Helper()
	rows, err := e.histories.ListByRequest(context.Background(), id)
	require.NoError(t, err)
	return len(rows)
}
