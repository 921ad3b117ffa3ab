package tenant

import (
	"context"
	"log/slog"
	"time"

	"github.com/signagecloud/access-management/internal"
	membershipDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/membership"
	rbacDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/rbac"
	tenantDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/tenant"
	"github.com/signagecloud/access-management/internal/core/events"
)

type RepositoryAPI interface {
	GetByID(id int64) (*tenantDatamodel.Tenant, error)
	GetBySlug(slug string) (*tenantDatamodel.Tenant, error)
	List() ([]*tenantDatamodel.Tenant, error)
	// CreateWithOwner inserts the tenant and the creator's owner membership in
	// one transaction. A tenant without an owner is unreachable.
	CreateWithOwner(t *tenantDatamodel.Tenant, owner *membershipDatamodel.UserTenantMembership) error
	Update(t *tenantDatamodel.Tenant) error
	Deactivate(id int64) error
	GetSystemRoleByName(name string) (*rbacDatamodel.Role, error)
}

type Service struct {
	repo   RepositoryAPI
	bus    *events.EventBus
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		bus:    bus,
		logger: logger,
	}
}

// CreateTenant provisions a tenant and seats the creating user as its owner.
func (s *Service) CreateTenant(ctx context.Context, creatorID int64, dto CreateTenantDTO) (*Tenant, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetBySlug(dto.Slug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, internal.NewConflictError("slug is already taken", internal.ErrCodeSlugTaken)
	}

	ownerRole, err := s.repo.GetSystemRoleByName(OwnerRoleName)
	if err != nil {
		return nil, err
	}
	if ownerRole == nil {
		return nil, internal.NewInternalError("owner role is not seeded", nil)
	}

	dm := &tenantDatamodel.Tenant{
		Name:     dto.Name,
		Slug:     dto.Slug,
		IsActive: true,
	}
	owner := &membershipDatamodel.UserTenantMembership{
		UserID:    creatorID,
		RoleID:    ownerRole.ID,
		IsPrimary: true,
		IsActive:  true,
		JoinedAt:  time.Now(),
	}
	if err := s.repo.CreateWithOwner(dm, owner); err != nil {
		s.logger.Error("failed to create tenant", "error", err, "slug", dto.Slug)
		return nil, err
	}

	s.publish(ctx, "tenant.created", map[string]interface{}{
		"tenant_id": dm.ID, "slug": dm.Slug, "owner_id": creatorID,
	})
	s.logger.Info("tenant created", "tenant_id", dm.ID, "slug", dm.Slug, "owner_id", creatorID)
	return FromDataModel(dm), nil
}

func (s *Service) GetTenant(id int64) (*Tenant, error) {
	dm, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if dm == nil {
		return nil, internal.ErrTenantNotFound
	}
	return FromDataModel(dm), nil
}

func (s *Service) ListTenants() ([]TenantResponse, error) {
	rows, err := s.repo.List()
	if err != nil {
		s.logger.Error("failed to list tenants", "error", err)
		return nil, err
	}
	responses := make([]TenantResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, FromDataModel(row).ToResponse())
	}
	return responses, nil
}

func (s *Service) UpdateTenant(ctx context.Context, actorID, id int64, dto UpdateTenantDTO) (*Tenant, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	dm, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if dm == nil || !dm.IsActive {
		return nil, internal.ErrTenantNotFound
	}

	if dto.Name != nil {
		dm.Name = *dto.Name
	}
	dm.UpdatedAt = time.Now()

	if err := s.repo.Update(dm); err != nil {
		s.logger.Error("failed to update tenant", "error", err, "tenant_id", id)
		return nil, err
	}

	s.publish(ctx, "tenant.updated", map[string]interface{}{"tenant_id": id, "actor_id": actorID})
	return FromDataModel(dm), nil
}

// DeactivateTenant soft-deletes the tenant. Memberships stay in place but
// every access check against the tenant resolves to a default denial once the
// tenant is inactive.
func (s *Service) DeactivateTenant(ctx context.Context, actorID, id int64) error {
	dm, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}
	if dm == nil || !dm.IsActive {
		return internal.ErrTenantNotFound
	}

	if err := s.repo.Deactivate(id); err != nil {
		s.logger.Error("failed to deactivate tenant", "error", err, "tenant_id", id)
		return err
	}

	s.publish(ctx, "tenant.deactivated", map[string]interface{}{"tenant_id": id, "actor_id": actorID})
	s.logger.Info("tenant deactivated", "tenant_id", id)
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, events.NewBaseEvent(eventType, data)); err != nil {
		s.logger.Error("failed to publish event", "event_type", eventType, "error", err)
	}
}
