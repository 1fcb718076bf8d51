package service

import (
	"context"
	"errors"
	"fmt"

	"freightdesk/internal/model"
	"freightdesk/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type RoleService interface {
	GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error)
	SeedDefaultRolesAndPermissions(ctx context.Context) error
}

type roleService struct {
	txManager repository.TransactionManager
	roles     repository.RoleRepository
	logger    *zap.Logger
}

func NewRoleService(txManager repository.TransactionManager, roles repository.RoleRepository, logger *zap.Logger) RoleService {
	return &roleService{txManager: txManager, roles: roles, logger: logger}
}

// GetPermissionsByRoleName returns the permission codes of a role; an unknown role has none
func (s *roleService) GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error) {
	codes, err := s.roles.GetPermissionsByRoleName(ctx, roleName)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []string{}, nil
	}
	return codes, err
}

// DefaultPermissions lists every permission code the API checks
func DefaultPermissions() []model.Permission {
	return []model.Permission{
		{Code: model.PermApprovalsRead, Name: "View approval requests", Group: "approvals"},
		{Code: model.PermApprovalsWrite, Name: "Create and withdraw approval requests", Group: "approvals"},
		{Code: model.PermApprovalsApprove, Name: "Approve or reject approval requests", Group: "approvals"},
		{Code: model.PermSystemConfigsRead, Name: "View system configuration", Group: "system_configs"},
		{Code: model.PermSystemConfigsWrite, Name: "Change system configuration", Group: "system_configs"},
		{Code: model.PermAuditLogsRead, Name: "View audit logs", Group: "audit"},
		{Code: model.PermUsersRead, Name: "View user accounts", Group: "users"},
		{Code: model.PermUsersWrite, Name: "Set initial passwords of user accounts", Group: "users"},
	}
}

// DefaultRolePermissions maps the built-in roles to their permission codes. Admin gets everything.
func DefaultRolePermissions() map[string][]string {
	approver := []string{model.PermApprovalsRead, model.PermApprovalsWrite, model.PermApprovalsApprove}
	return map[string][]string{
		"manager":    append(append([]string{}, approver...), model.PermAuditLogsRead, model.PermSystemConfigsRead, model.PermUsersRead),
		"supervisor": approver,
		"finance":    approver,
		"staff":      {model.PermApprovalsRead, model.PermApprovalsWrite},
	}
}

// SeedDefaultRolesAndPermissions creates the default permissions and roles if not already present
func (s *roleService) SeedDefaultRolesAndPermissions(ctx context.Context) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		byCode := make(map[string]model.Permission)
		all := DefaultPermissions()
		for i := range all {
			p := &all[i]
			if err := s.roles.FindOrCreatePermission(txCtx, p); err != nil {
				return fmt.Errorf("failed to seed permission '%s': %w", p.Code, err)
			}
			byCode[p.Code] = *p
		}

		grants := DefaultRolePermissions()
		grants["admin"] = nil
		for name, codes := range grants {
			role, err := s.roles.FindByName(txCtx, name)
			if err == nil {
				if name == "admin" {
					if err := s.roles.ReplacePermissions(txCtx, role, all); err != nil {
						return fmt.Errorf("failed to sync admin permissions: %w", err)
					}
				}
				continue // other existing roles keep whatever grants operators gave them
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to look up role '%s': %w", name, err)
			}

			role = &model.Role{Name: name, Description: "Built-in " + name + " role", IsSystem: true}
			if err := s.roles.Create(txCtx, role); err != nil {
				return fmt.Errorf("failed to seed role '%s': %w", name, err)
			}

			perms := all
			if name != "admin" {
				perms = make([]model.Permission, 0, len(codes))
				for _, c := range codes {
					perms = append(perms, byCode[c])
				}
			}
			if err := s.roles.ReplacePermissions(txCtx, role, perms); err != nil {
				return fmt.Errorf("failed to assign permissions to '%s': %w", name, err)
			}
			s.logger.Info("seeded role", zap.String("role", name), zap.Int("permissions", len(perms)))
		}
		return nil
	})
}
