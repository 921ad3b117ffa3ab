package role

import (
	"context"
	"log/slog"
	"time"

	"github.com/signagecloud/access-management/internal"
	rbacDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/rbac"
	"github.com/signagecloud/access-management/internal/core/events"
	"github.com/signagecloud/access-management/internal/permission"
)

type RepositoryAPI interface {
	GetByID(id int64) (*rbacDatamodel.Role, error)
	ListForTenant(tenantID int64) ([]*rbacDatamodel.Role, error)
	// ListChildren returns the active roles whose parent is roleID.
	ListChildren(roleID int64) ([]*rbacDatamodel.Role, error)
	Create(role *rbacDatamodel.Role) error
	Update(role *rbacDatamodel.Role) error
	// DeactivateCascade soft-deletes the role and every active membership
	// referencing it inside one transaction, returning affected role ids.
	DeactivateCascade(roleID int64) ([]int64, error)
	GetActiveBinding(roleID, permissionID int64, objectID *string) (*rbacDatamodel.RolePermission, error)
	CreateBinding(binding *rbacDatamodel.RolePermission) error
	GetBinding(bindingID int64) (*rbacDatamodel.RolePermission, error)
	DeactivateBinding(bindingID int64) error
}

// CacheInvalidator is satisfied by the resolver's decision cache. Every role
// or binding mutation must call it synchronously; a stale granted entry is a
// security defect.
type CacheInvalidator interface {
	InvalidateRoles(roleIDs ...int64)
}

type Service struct {
	repo        RepositoryAPI
	permissions *permission.Service
	cache       CacheInvalidator
	bus         *events.EventBus
	logger      *slog.Logger
}

func NewService(repo RepositoryAPI, permissions *permission.Service, cache CacheInvalidator, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		permissions: permissions,
		cache:       cache,
		bus:         bus,
		logger:      logger,
	}
}

func (s *Service) CreateRole(ctx context.Context, actorID int64, dto CreateRoleDTO) (*Role, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	r := NewRole(dto.Name, dto.Level, dto.TenantID, dto.ParentID)
	r.CanDelegate = dto.CanDelegate
	r.MaxDelegationDepth = dto.MaxDelegationDepth

	if dto.ParentID != nil {
		parentDM, err := s.repo.GetByID(*dto.ParentID)
		if err != nil {
			s.logger.Error("failed to load parent role", "error", err, "parent_id", *dto.ParentID)
			return nil, err
		}
		if parentDM == nil || !parentDM.IsActive {
			return nil, internal.ErrRoleNotFound
		}
		if appErr := r.ValidateParent(FromDataModel(parentDM)); appErr != nil {
			return nil, appErr
		}
	}

	dm := ToDataModel(r)
	if err := s.repo.Create(dm); err != nil {
		s.logger.Error("failed to create role", "error", err, "name", dto.Name)
		return nil, err
	}
	r.ID = dm.ID

	s.publish(ctx, "role.created", map[string]interface{}{
		"role_id": r.ID, "name": r.Name, "level": r.Level, "actor_id": actorID,
	})
	s.logger.Info("role created", "role_id", r.ID, "name", r.Name, "level", r.Level)
	return r, nil
}

func (s *Service) GetRole(id int64) (*Role, error) {
	dm, err := s.repo.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get role", "error", err, "role_id", id)
		return nil, err
	}
	if dm == nil {
		return nil, internal.ErrRoleNotFound
	}
	return FromDataModel(dm), nil
}

// ListRoles returns the tenant's roles plus the system-wide ones.
func (s *Service) ListRoles(tenantID int64) ([]RoleResponse, error) {
	rows, err := s.repo.ListForTenant(tenantID)
	if err != nil {
		s.logger.Error("failed to list roles", "error", err, "tenant_id", tenantID)
		return nil, err
	}

	responses := make([]RoleResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, FromDataModel(row).ToResponse())
	}
	return responses, nil
}

func (s *Service) UpdateRole(ctx context.Context, actorID, id int64, dto UpdateRoleDTO) (*Role, error) {
	dm, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if dm == nil || !dm.IsActive {
		return nil, internal.ErrRoleNotFound
	}

	r := FromDataModel(dm)
	if dto.Name != nil {
		r.Name = *dto.Name
	}
	if dto.Level != nil {
		r.Level = *dto.Level
	}
	if dto.CanDelegate != nil {
		r.CanDelegate = *dto.CanDelegate
	}
	if dto.MaxDelegationDepth != nil {
		r.MaxDelegationDepth = *dto.MaxDelegationDepth
	}
	r.UpdatedAt = time.Now()

	if r.ParentID != nil {
		parentDM, err := s.repo.GetByID(*r.ParentID)
		if err != nil {
			return nil, err
		}
		if parentDM != nil {
			if appErr := r.ValidateParent(FromDataModel(parentDM)); appErr != nil {
				return nil, appErr
			}
		}
	}

	// a level change must also hold against existing children
	if dto.Level != nil && r.Level != dm.Level {
		children, err := s.repo.ListChildren(id)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if child.Level < r.Level {
				return nil, internal.NewValidationError(
					"role cannot be made less privileged than its child roles",
					internal.ErrCodeRoleLevelInvalid,
				)
			}
		}
	}

	if err := s.repo.Update(ToDataModel(r)); err != nil {
		s.logger.Error("failed to update role", "error", err, "role_id", id)
		return nil, err
	}

	s.invalidate(id)
	s.publish(ctx, "role.updated", map[string]interface{}{"role_id": id, "actor_id": actorID})
	s.logger.Info("role updated", "role_id", id)
	return r, nil
}

// DeactivateRole soft-deletes a role and cascades deactivation to every
// membership referencing it. The audit trail keeps the row.
func (s *Service) DeactivateRole(ctx context.Context, actorID, id int64) error {
	dm, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}
	if dm == nil || !dm.IsActive {
		return internal.ErrRoleNotFound
	}

	affected, err := s.repo.DeactivateCascade(id)
	if err != nil {
		s.logger.Error("failed to deactivate role", "error", err, "role_id", id)
		return err
	}

	s.invalidate(affected...)
	s.publish(ctx, "role.deactivated", map[string]interface{}{"role_id": id, "actor_id": actorID})
	s.logger.Info("role deactivated", "role_id", id, "affected_roles", len(affected))
	return nil
}

// BindPermission creates a grant or explicit-deny binding on the role. At most
// one active binding may exist per (role, permission, object) tuple.
func (s *Service) BindPermission(ctx context.Context, actorID, roleID int64, dto BindPermissionDTO) (*rbacDatamodel.RolePermission, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	roleDM, err := s.repo.GetByID(roleID)
	if err != nil {
		return nil, err
	}
	if roleDM == nil || !roleDM.IsActive {
		return nil, internal.ErrRoleNotFound
	}

	codename, err := permission.ParseCodename(dto.Permission)
	if err != nil {
		return nil, internal.NewValidationFieldError("permission", err.Error(), internal.ErrCodeInvalidCodename)
	}
	perm, err := s.permissions.Lookup(codename)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetActiveBinding(roleID, perm.ID, dto.ObjectID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, internal.NewConflictError(
			"an active binding already exists for this role, permission and object",
			internal.ErrCodeBindingConflict,
		)
	}

	binding := &rbacDatamodel.RolePermission{
		RoleID:       roleID,
		PermissionID: perm.ID,
		IsGranted:    dto.IsGranted,
		ObjectID:     dto.ObjectID,
		CanOverride:  dto.CanOverride,
		ExpiresAt:    dto.ExpiresAt,
		GrantedBy:    &actorID,
		GrantedAt:    time.Now(),
		IsActive:     true,
	}
	if err := s.repo.CreateBinding(binding); err != nil {
		s.logger.Error("failed to create binding", "error", err, "role_id", roleID, "permission", codename)
		return nil, err
	}

	s.invalidate(roleID)
	s.publish(ctx, "role.binding_created", map[string]interface{}{
		"role_id": roleID, "permission": codename.String(), "granted": dto.IsGranted,
		"can_override": dto.CanOverride, "actor_id": actorID,
	})
	s.logger.Info("permission binding created",
		"role_id", roleID,
		"permission", codename,
		"granted", dto.IsGranted,
		"can_override", dto.CanOverride)
	return binding, nil
}

// UnbindPermission deactivates a binding; the row survives for audit.
func (s *Service) UnbindPermission(ctx context.Context, actorID, roleID, bindingID int64) error {
	binding, err := s.repo.GetBinding(bindingID)
	if err != nil {
		return err
	}
	if binding == nil || !binding.IsActive || binding.RoleID != roleID {
		return internal.NewNotFoundError("binding not found", internal.ErrCodeBindingNotFound)
	}

	if err := s.repo.DeactivateBinding(bindingID); err != nil {
		s.logger.Error("failed to deactivate binding", "error", err, "binding_id", bindingID)
		return err
	}

	s.invalidate(roleID)
	s.publish(ctx, "role.binding_removed", map[string]interface{}{
		"role_id": roleID, "binding_id": bindingID, "actor_id": actorID,
	})
	s.logger.Info("permission binding removed", "role_id", roleID, "binding_id", bindingID)
	return nil
}

func (s *Service) invalidate(roleIDs ...int64) {
	if s.cache != nil && len(roleIDs) > 0 {
		s.cache.InvalidateRoles(roleIDs...)
	}
}

func (s *Service) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, events.NewBaseEvent(eventType, data)); err != nil {
		s.logger.Error("failed to publish event", "event_type", eventType, "error", err)
	}
}
