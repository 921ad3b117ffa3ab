package delegation

import (
	"context"
	"log/slog"
	"time"

	auditDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/audit"
	membershipDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/membership"
	rbacDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/rbac"
	"github.com/signagecloud/access-management/internal/core/events"
)

type RepositoryAPI interface {
	FindActiveMembership(userID, tenantID int64) (*membershipDatamodel.UserTenantMembership, error)
	GetMembership(id int64) (*membershipDatamodel.UserTenantMembership, error)
	GetRole(id int64) (*rbacDatamodel.Role, error)
	// CreateWithAudit inserts the membership and its audit record in one
	// transaction.
	CreateWithAudit(m *membershipDatamodel.UserTenantMembership, event *auditDatamodel.AuditEvent) error
	// RevokeCascade deactivates the membership and, transitively, every
	// membership delegated by its holder, writing one audit record per row,
	// all in one transaction. Deactivation is conditional on is_active so
	// concurrent sweeps cannot double-cascade. Returns the memberships it
	// actually deactivated.
	RevokeCascade(membershipID int64, action string, actorID *int64) ([]*membershipDatamodel.UserTenantMembership, error)
	// FindExpired returns active memberships whose expiry has elapsed.
	FindExpired(now time.Time, limit int) ([]*membershipDatamodel.UserTenantMembership, error)
}

// CacheInvalidator drops cached decisions for a user in a tenant. Satisfied by
// the resolver's decision cache.
type CacheInvalidator interface {
	InvalidateMembership(userID, tenantID int64)
}

// Service creates and revokes time-boxed delegated role assignments, separate
// from the static inheritance path.
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

// Delegate hands the role to delegateID on behalf of delegatorID. Every
// precondition failure carries its own error kind so the HTTP layer can
// surface a precise validation message.
func (s *Service) Delegate(ctx context.Context, delegatorID int64, dto DelegateDTO) (*membershipDatamodel.UserTenantMembership, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	delegatorM, err := s.repo.FindActiveMembership(delegatorID, dto.TenantID)
	if err != nil {
		return nil, err
	}
	if delegatorM == nil {
		return nil, ErrDelegationNotPermitted
	}

	delegatorRole, err := s.repo.GetRole(delegatorM.RoleID)
	if err != nil {
		return nil, err
	}
	if delegatorRole == nil || !delegatorRole.IsActive || !delegatorRole.CanDelegate {
		return nil, ErrDelegationNotPermitted
	}

	targetRole, err := s.repo.GetRole(dto.RoleID)
	if err != nil {
		return nil, err
	}
	if targetRole == nil || !targetRole.IsActive {
		return nil, ErrDelegationNotFound
	}
	// lower level = more privilege; the delegate may never end up above the
	// delegator
	if targetRole.Level < delegatorRole.Level {
		return nil, ErrRoleEscalation
	}

	if delegatorM.DelegationLevel+1 > targetRole.MaxDelegationDepth {
		return nil, ErrDelegationDepthExceeded
	}

	existing, err := s.repo.FindActiveMembership(dto.DelegateUserID, dto.TenantID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyMember
	}

	if dto.ExpiresAt != nil && !dto.ExpiresAt.After(time.Now()) {
		return nil, ErrInvalidExpiry
	}

	now := time.Now()
	m := &membershipDatamodel.UserTenantMembership{
		UserID:          dto.DelegateUserID,
		TenantID:        dto.TenantID,
		RoleID:          dto.RoleID,
		IsActive:        true,
		JoinedAt:        now,
		AcceptedAt:      &now,
		DelegatedBy:     &delegatorID,
		DelegationLevel: delegatorM.DelegationLevel + 1,
		ExpiresAt:       dto.ExpiresAt,
		Reason:          dto.Reason,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	event := &auditDatamodel.AuditEvent{
		ActorID:    &delegatorID,
		TenantID:   &dto.TenantID,
		Action:     "delegation.created",
		Entity:     "membership",
		EntityID:   "",
		Metadata:   delegationMetadata(dto, m.DelegationLevel),
		OccurredAt: now,
	}

	if err := s.repo.CreateWithAudit(m, event); err != nil {
		s.logger.Error("failed to create delegation",
			"error", err,
			"delegator_id", delegatorID,
			"delegate_id", dto.DelegateUserID,
			"tenant_id", dto.TenantID)
		return nil, err
	}

	s.invalidate(m)
	s.publish(ctx, "delegation.created", map[string]interface{}{
		"membership_id": m.ID,
		"delegator_id":  delegatorID,
		"delegate_id":   dto.DelegateUserID,
		"tenant_id":     dto.TenantID,
		"role_id":       dto.RoleID,
		"level":         m.DelegationLevel,
	})
	s.logger.Info("delegation created",
		"membership_id", m.ID,
		"delegator_id", delegatorID,
		"delegate_id", dto.DelegateUserID,
		"role_id", dto.RoleID,
		"delegation_level", m.DelegationLevel)
	return m, nil
}

// Revoke deactivates the delegation and everything chained from it. Revoking
// a delegator's access revokes everything they in turn delegated.
func (s *Service) Revoke(ctx context.Context, actorID, membershipID int64) error {
	m, err := s.repo.GetMembership(membershipID)
	if err != nil {
		return err
	}
	if m == nil || !m.IsActive || !m.Delegated() {
		return ErrDelegationNotFound
	}

	revoked, err := s.repo.RevokeCascade(membershipID, "delegation.revoked", &actorID)
	if err != nil {
		s.logger.Error("failed to revoke delegation", "error", err, "membership_id", membershipID)
		return err
	}

	for _, rm := range revoked {
		s.invalidate(rm)
	}
	s.publish(ctx, "delegation.revoked", map[string]interface{}{
		"membership_id": membershipID,
		"actor_id":      actorID,
		"cascaded":      len(revoked),
	})
	s.logger.Info("delegation revoked",
		"membership_id", membershipID,
		"actor_id", actorID,
		"cascaded", len(revoked))
	return nil
}

// SweepExpired deactivates lapsed delegations with the same cascade rule. The
// conditional update inside RevokeCascade makes the sweep idempotent and safe
// to run concurrently across instances.
func (s *Service) SweepExpired(ctx context.Context, batchSize int) (int, error) {
	expired, err := s.repo.FindExpired(time.Now(), batchSize)
	if err != nil {
		s.logger.Error("expiry sweep query failed", "error", err)
		return 0, err
	}

	total := 0
	for _, m := range expired {
		revoked, err := s.repo.RevokeCascade(m.ID, "delegation.expired", nil)
		if err != nil {
			s.logger.Error("expiry cascade failed", "error", err, "membership_id", m.ID)
			return total, err
		}
		for _, rm := range revoked {
			s.invalidate(rm)
		}
		total += len(revoked)
	}

	if total > 0 {
		s.logger.Info("expiry sweep completed", "deactivated", total)
	}
	return total, nil
}

func (s *Service) invalidate(m *membershipDatamodel.UserTenantMembership) {
	if s.cache != nil {
		s.cache.InvalidateMembership(m.UserID, m.TenantID)
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
