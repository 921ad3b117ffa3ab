package membership

import (
	"context"
	"log/slog"
	"time"

	"github.com/signagecloud/access-management/internal"
	membershipDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/membership"
	rbacDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/rbac"
	"github.com/signagecloud/access-management/internal/core/events"
)

type RepositoryAPI interface {
	GetByID(id int64) (*membershipDatamodel.UserTenantMembership, error)
	FindActive(userID, tenantID int64) (*membershipDatamodel.UserTenantMembership, error)
	// FindPending returns the user's unaccepted invitation in the tenant, or nil.
	FindPending(userID, tenantID int64) (*membershipDatamodel.UserTenantMembership, error)
	// Activate flips a pending invitation live, stamping acceptance and join time.
	Activate(membershipID int64, acceptedAt time.Time) error
	ListForTenant(tenantID int64) ([]*membershipDatamodel.UserTenantMembership, error)
	ListForUser(userID int64) ([]*membershipDatamodel.UserTenantMembership, error)
	Create(m *membershipDatamodel.UserTenantMembership) error
	UpdateRole(membershipID, roleID int64) error
	GetRole(id int64) (*rbacDatamodel.Role, error)
	// RemoveCascade deactivates the membership and every active delegation the
	// member issued in the tenant, transitively, in one transaction.
	RemoveCascade(membershipID int64, actorID *int64) ([]*membershipDatamodel.UserTenantMembership, error)
}

type CacheInvalidator interface {
	InvalidateMembership(userID, tenantID int64)
}

type Service struct {
	repo   RepositoryAPI
	cache  CacheInvalidator
	bus    *events.EventBus
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, cache CacheInvalidator, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		bus:    bus,
		logger: logger,
	}
}

// AssignMember creates a direct membership: delegation level zero, no
// delegator, no depth accounting. Delegated grants go through the delegation
// service instead. With Invite set the membership is created pending and grants
// nothing until the user accepts it.
func (s *Service) AssignMember(ctx context.Context, actorID int64, dto AssignMemberDTO) (*Membership, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	role, err := s.repo.GetRole(dto.RoleID)
	if err != nil {
		return nil, err
	}
	if role == nil || !role.IsActive {
		return nil, internal.ErrRoleNotFound
	}
	if role.TenantID != nil && *role.TenantID != dto.TenantID {
		return nil, internal.NewValidationError(
			"role belongs to a different tenant",
			internal.ErrCodeRoleTenantInvalid,
		)
	}

	existing, err := s.repo.FindActive(dto.UserID, dto.TenantID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		existing, err = s.repo.FindPending(dto.UserID, dto.TenantID)
		if err != nil {
			return nil, err
		}
	}
	if existing != nil {
		return nil, internal.NewConflictError(
			"user already holds an active or pending membership in this tenant",
			internal.ErrCodeAlreadyMember,
		)
	}

	now := time.Now()
	dm := &membershipDatamodel.UserTenantMembership{
		UserID:    dto.UserID,
		TenantID:  dto.TenantID,
		RoleID:    dto.RoleID,
		IsPrimary: dto.IsPrimary,
		IsActive:  !dto.Invite,
		JoinedAt:  now,
		InvitedBy: &actorID,
		ExpiresAt: dto.ExpiresAt,
		Reason:    dto.Reason,
	}
	if !dto.Invite {
		dm.AcceptedAt = &now
	}
	if err := s.repo.Create(dm); err != nil {
		s.logger.Error("failed to create membership", "error", err, "user_id", dto.UserID, "tenant_id", dto.TenantID)
		return nil, err
	}

	if dto.Invite {
		s.publish(ctx, "membership.invited", map[string]interface{}{
			"membership_id": dm.ID, "user_id": dto.UserID, "tenant_id": dto.TenantID,
			"role_id": dto.RoleID, "actor_id": actorID,
		})
		s.logger.Info("member invited", "membership_id", dm.ID, "user_id", dto.UserID, "tenant_id", dto.TenantID, "role_id", dto.RoleID)
		return FromDataModel(dm), nil
	}

	s.invalidate(dto.UserID, dto.TenantID)
	s.publish(ctx, "membership.created", map[string]interface{}{
		"membership_id": dm.ID, "user_id": dto.UserID, "tenant_id": dto.TenantID,
		"role_id": dto.RoleID, "actor_id": actorID,
	})
	s.logger.Info("member assigned", "membership_id", dm.ID, "user_id", dto.UserID, "tenant_id", dto.TenantID, "role_id", dto.RoleID)
	return FromDataModel(dm), nil
}

// AcceptInvitation activates the calling user's pending invitation in the
// tenant. The invitation is a fresh direct seat: level zero, no delegation
// depth accounting.
func (s *Service) AcceptInvitation(ctx context.Context, userID int64, dto AcceptInvitationDTO) (*Membership, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	pending, err := s.repo.FindPending(userID, dto.TenantID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, internal.ErrMembershipMissing
	}
	if pending.Expired(time.Now()) {
		return nil, internal.NewValidationError(
			"invitation has expired",
			internal.ErrCodeInvalidExpiry,
		)
	}

	role, err := s.repo.GetRole(pending.RoleID)
	if err != nil {
		return nil, err
	}
	if role == nil || !role.IsActive {
		return nil, internal.ErrRoleNotFound
	}

	now := time.Now()
	if err := s.repo.Activate(pending.ID, now); err != nil {
		s.logger.Error("failed to accept invitation", "error", err, "membership_id", pending.ID)
		return nil, err
	}
	pending.IsActive = true
	pending.AcceptedAt = &now
	pending.JoinedAt = now

	s.invalidate(userID, dto.TenantID)
	s.publish(ctx, "membership.accepted", map[string]interface{}{
		"membership_id": pending.ID, "user_id": userID, "tenant_id": dto.TenantID,
		"role_id": pending.RoleID, "actor_id": userID,
	})
	s.logger.Info("invitation accepted", "membership_id", pending.ID, "user_id", userID, "tenant_id", dto.TenantID)
	return FromDataModel(pending), nil
}

func (s *Service) GetMembership(id int64) (*Membership, error) {
	dm, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if dm == nil {
		return nil, internal.ErrMembershipMissing
	}
	return FromDataModel(dm), nil
}

func (s *Service) ListMembers(tenantID int64) ([]MembershipResponse, error) {
	rows, err := s.repo.ListForTenant(tenantID)
	if err != nil {
		s.logger.Error("failed to list members", "error", err, "tenant_id", tenantID)
		return nil, err
	}
	responses := make([]MembershipResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, FromDataModel(row).ToResponse())
	}
	return responses, nil
}

func (s *Service) ListUserMemberships(userID int64) ([]MembershipResponse, error) {
	rows, err := s.repo.ListForUser(userID)
	if err != nil {
		s.logger.Error("failed to list user memberships", "error", err, "user_id", userID)
		return nil, err
	}
	responses := make([]MembershipResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, FromDataModel(row).ToResponse())
	}
	return responses, nil
}

// ChangeRole swaps the membership's effective role. Only direct memberships
// can be re-roled; a delegated seat is bounded by its delegator and must be
// revoked and re-delegated instead.
func (s *Service) ChangeRole(ctx context.Context, actorID, membershipID int64, dto ChangeRoleDTO) (*Membership, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	dm, err := s.repo.GetByID(membershipID)
	if err != nil {
		return nil, err
	}
	if dm == nil || !dm.IsActive {
		return nil, internal.ErrMembershipMissing
	}
	if dm.Delegated() {
		return nil, internal.NewForbiddenError(
			"delegated memberships cannot change role",
			internal.ErrCodeDelegationNotPermitted,
		)
	}

	role, err := s.repo.GetRole(dto.RoleID)
	if err != nil {
		return nil, err
	}
	if role == nil || !role.IsActive {
		return nil, internal.ErrRoleNotFound
	}
	if role.TenantID != nil && *role.TenantID != dm.TenantID {
		return nil, internal.NewValidationError(
			"role belongs to a different tenant",
			internal.ErrCodeRoleTenantInvalid,
		)
	}

	if err := s.repo.UpdateRole(membershipID, dto.RoleID); err != nil {
		s.logger.Error("failed to change membership role", "error", err, "membership_id", membershipID)
		return nil, err
	}
	dm.RoleID = dto.RoleID

	s.invalidate(dm.UserID, dm.TenantID)
	s.publish(ctx, "membership.role_changed", map[string]interface{}{
		"membership_id": membershipID, "role_id": dto.RoleID, "actor_id": actorID,
	})
	s.logger.Info("membership role changed", "membership_id", membershipID, "role_id", dto.RoleID)
	return FromDataModel(dm), nil
}

// RemoveMember deactivates the membership and cascades through every
// delegation the member issued in the tenant. Each affected user's cached
// decisions are invalidated before the call returns.
func (s *Service) RemoveMember(ctx context.Context, actorID, membershipID int64) error {
	dm, err := s.repo.GetByID(membershipID)
	if err != nil {
		return err
	}
	if dm == nil || !dm.IsActive {
		return internal.ErrMembershipMissing
	}

	removed, err := s.repo.RemoveCascade(membershipID, &actorID)
	if err != nil {
		s.logger.Error("failed to remove member", "error", err, "membership_id", membershipID)
		return err
	}

	for _, m := range removed {
		s.invalidate(m.UserID, m.TenantID)
	}
	s.publish(ctx, "membership.removed", map[string]interface{}{
		"membership_id": membershipID, "cascaded": len(removed), "actor_id": actorID,
	})
	s.logger.Info("member removed", "membership_id", membershipID, "cascaded", len(removed))
	return nil
}

func (s *Service) invalidate(userID, tenantID int64) {
	if s.cache != nil {
		s.cache.InvalidateMembership(userID, tenantID)
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
