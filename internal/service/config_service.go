package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"freightdesk/internal/cache"
	"freightdesk/internal/model"
	"freightdesk/internal/repository"
	"freightdesk/internal/workflow"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const snapshotCacheKey = "system_configs:snapshot"

// --- DTOs ---

type UpsertSystemConfigRequest struct {
	Key         string `json:"key" binding:"required"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

type SystemConfigResponse struct {
	Key         string  `json:"key"`
	Value       string  `json:"value"`
	Description string  `json:"description"`
	UpdatedBy   *string `json:"updated_by"`
	UpdatedAt   string  `json:"updated_at"`
}

// --- Interface ---

// ConfigService owns the system_configs table and the snapshot the approval engine reads from it.
type ConfigService interface {
	GetSnapshot(ctx context.Context) (workflow.ConfigSnapshot, error)
	Invalidate(ctx context.Context) error
	List(ctx context.Context) ([]SystemConfigResponse, error)
	Upsert(ctx context.Context, actor workflow.Actor, req UpsertSystemConfigRequest) (*SystemConfigResponse, error)
	SeedDefaults(ctx context.Context) error
}

type configService struct {
	txManager repository.TransactionManager
	configs   repository.SystemConfigRepository
	audits    repository.AuditRepository
	cache     cache.Cache
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewConfigService(
	txManager repository.TransactionManager,
	configs repository.SystemConfigRepository,
	audits repository.AuditRepository,
	c cache.Cache,
	ttl time.Duration,
	logger *zap.Logger,
) ConfigService {
	return &configService{
		txManager: txManager,
		configs:   configs,
		audits:    audits,
		cache:     c,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// DefaultRoutes are the stage chains seeded when no route is configured for a request type.
func DefaultRoutes() map[workflow.RequestType]workflow.Route {
	adminOnly := workflow.Route{Stages: []workflow.StageDef{{ApproverRole: workflow.RoleAdmin}}}
	return map[workflow.RequestType]workflow.Route{
		workflow.RequestVoidBill: {
			SLAHours: 72,
			Stages: []workflow.StageDef{
				{Key: "supervisor", ApproverRef: model.ConfigVoidSupervisorID},
				{Key: "finance", ApproverRef: model.ConfigVoidFinanceID},
			},
		},
		workflow.RequestContract: {
			StartInDraft: true,
			SLAHours:     120,
			Stages:       []workflow.StageDef{{ApproverRole: "manager"}},
		},
		workflow.RequestUserCreate:       adminOnly,
		workflow.RequestRoleChange:       adminOnly,
		workflow.RequestPermissionChange: adminOnly,
	}
}

// --- Implementation ---

func (s *configService) GetSnapshot(ctx context.Context) (workflow.ConfigSnapshot, error) {
	if raw, ok, err := s.cache.Get(ctx, snapshotCacheKey); err != nil {
		s.logger.Warn("config snapshot cache read failed", zap.Error(err))
	} else if ok {
		var cached struct {
			Values  map[string]string `json:"values"`
			TakenAt time.Time         `json:"taken_at"`
		}
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			return workflow.NewConfigSnapshot(cached.Values, cached.TakenAt), nil
		}
	}

	rows, err := s.configs.List(ctx)
	if err != nil {
		return workflow.ConfigSnapshot{}, fmt.Errorf("failed to load system configs: %w", err)
	}
	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Key] = r.Value
	}
	snapshot := workflow.NewConfigSnapshot(values, s.now())

	encoded, _ := json.Marshal(map[string]interface{}{"values": values, "taken_at": snapshot.TakenAt()})
	if err := s.cache.Set(ctx, snapshotCacheKey, string(encoded), s.ttl); err != nil {
		s.logger.Warn("config snapshot cache write failed", zap.Error(err))
	}
	return snapshot, nil
}

func (s *configService) Invalidate(ctx context.Context) error {
	return s.cache.Delete(ctx, snapshotCacheKey)
}

func (s *configService) List(ctx context.Context) ([]SystemConfigResponse, error) {
	rows, err := s.configs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch system configs: %w", err)
	}
	res := make([]SystemConfigResponse, 0, len(rows))
	for _, r := range rows {
		res = append(res, toSystemConfigResponse(r))
	}
	return res, nil
}

func (s *configService) Upsert(ctx context.Context, actor workflow.Actor, req UpsertSystemConfigRequest) (*SystemConfigResponse, error) {
	key := strings.TrimSpace(req.Key)
	value := strings.TrimSpace(req.Value)
	if err := validateConfigValue(key, value); err != nil {
		return nil, err
	}

	var oldValue string
	var saved *model.SystemConfig
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.configs.Get(txCtx, key)
		switch {
		case err == nil:
			oldValue = existing.Value
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to load system config: %w", err)
		}

		updatedBy := actor.ID
		row := &model.SystemConfig{
			Key:         key,
			Value:       value,
			Description: req.Description,
			UpdatedBy:   &updatedBy,
			UpdatedAt:   s.now(),
		}
		if err := s.configs.Upsert(txCtx, row); err != nil {
			return fmt.Errorf("failed to save system config: %w", err)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"key":       key,
			"old_value": oldValue,
			"new_value": value,
		})
		if err := s.audits.Log(txCtx, &model.AuditLog{
			UserID:     &updatedBy,
			Action:     model.ActionUpdateSystemConfig,
			EntityID:   key,
			EntityName: "system_config",
			Details:    string(details),
		}); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}

		saved, err = s.configs.Get(txCtx, key)
		if err != nil {
			return fmt.Errorf("failed to reload system config: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.Invalidate(ctx); err != nil {
		s.logger.Warn("config snapshot invalidation failed", zap.String("key", key), zap.Error(err))
	}
	s.logger.Info("system config updated", zap.String("key", key), zap.String("actor", actor.ID.String()))

	resp := toSystemConfigResponse(*saved)
	return &resp, nil
}

// SeedDefaults writes the default route of every request type that has none. Existing rows are left alone.
func (s *configService) SeedDefaults(ctx context.Context) error {
	seeded := 0
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		for t, route := range DefaultRoutes() {
			raw, err := json.Marshal(route)
			if err != nil {
				return err
			}
			row := &model.SystemConfig{
				Key:         workflow.RouteKey(t),
				Value:       string(raw),
				Description: fmt.Sprintf("Approval stage route for %s requests", t),
			}
			created, err := s.configs.CreateIfMissing(txCtx, row)
			if err != nil {
				return fmt.Errorf("failed to seed %s: %w", row.Key, err)
			}
			if !created {
				continue
			}
			seeded++
			if err := s.audits.Log(txCtx, &model.AuditLog{
				Action:     model.ActionSeedSystemConfig,
				EntityID:   row.Key,
				EntityName: "system_config",
				Details:    row.Value,
			}); err != nil {
				return fmt.Errorf("failed to write audit log: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if seeded > 0 {
		s.logger.Info("seeded default approval routes", zap.Int("count", seeded))
		return s.Invalidate(ctx)
	}
	return nil
}

// validateConfigValue rejects values the engine could not use later: malformed routes and non-uuid user ids.
func validateConfigValue(key, value string) error {
	if key == "" {
		return fmt.Errorf("%w: key is required", workflow.ErrValidation)
	}

	if strings.HasPrefix(key, workflow.RouteKeyPrefix) {
		t := workflow.RequestType(strings.TrimPrefix(key, workflow.RouteKeyPrefix))
		if !t.IsValid() {
			return fmt.Errorf("%w: unknown request type %q", workflow.ErrValidation, t)
		}
		if _, err := workflow.ParseRoute(value); err != nil {
			return fmt.Errorf("%w: %v", workflow.ErrValidation, err)
		}
		return nil
	}

	if strings.HasSuffix(key, "_id") && value != "" {
		if _, err := uuid.Parse(value); err != nil {
			return fmt.Errorf("%w: %s must be a user id", workflow.ErrValidation, key)
		}
	}
	return nil
}

func toSystemConfigResponse(c model.SystemConfig) SystemConfigResponse {
	var updatedBy *string
	if c.UpdatedBy != nil {
		s := c.UpdatedBy.String()
		updatedBy = &s
	}
	return SystemConfigResponse{
		Key:         c.Key,
		Value:       c.Value,
		Description: c.Description,
		UpdatedBy:   updatedBy,
		UpdatedAt:   c.UpdatedAt.Format(time.RFC3339),
	}
}
