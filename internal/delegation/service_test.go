package delegation

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	auditDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/audit"
	membershipDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/membership"
	rbacDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/rbac"
)

func TestDelegation(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Delegation Module Suite")
}

type fakeRepository struct {
	memberships map[int64]*membershipDatamodel.UserTenantMembership
	roles       map[int64]*rbacDatamodel.Role
	auditEvents []*auditDatamodel.AuditEvent
	nextID      int64
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		memberships: make(map[int64]*membershipDatamodel.UserTenantMembership),
		roles:       make(map[int64]*rbacDatamodel.Role),
		nextID:      1000,
	}
}

func (r *fakeRepository) addMembership(m *membershipDatamodel.UserTenantMembership) *membershipDatamodel.UserTenantMembership {
	r.nextID++
	m.ID = r.nextID
	r.memberships[m.ID] = m
	return m
}

func (r *fakeRepository) FindActiveMembership(userID, tenantID int64) (*membershipDatamodel.UserTenantMembership, error) {
	for _, m := range r.memberships {
		if m.UserID == userID && m.TenantID == tenantID && m.IsActive && !m.Expired(time.Now()) {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeRepository) GetMembership(id int64) (*membershipDatamodel.UserTenantMembership, error) {
	return r.memberships[id], nil
}

func (r *fakeRepository) GetRole(id int64) (*rbacDatamodel.Role, error) {
	return r.roles[id], nil
}

func (r *fakeRepository) CreateWithAudit(m *membershipDatamodel.UserTenantMembership, event *auditDatamodel.AuditEvent) error {
	r.addMembership(m)
	r.auditEvents = append(r.auditEvents, event)
	return nil
}

func (r *fakeRepository) RevokeCascade(membershipID int64, action string, actorID *int64) ([]*membershipDatamodel.UserTenantMembership, error) {
	root := r.memberships[membershipID]
	if root == nil || !root.IsActive {
		return nil, nil
	}

	var revoked []*membershipDatamodel.UserTenantMembership
	queue := []*membershipDatamodel.UserTenantMembership{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if !cur.IsActive {
			continue
		}
		cur.IsActive = false
		revoked = append(revoked, cur)
		r.auditEvents = append(r.auditEvents, &auditDatamodel.AuditEvent{
			ActorID:  actorID,
			TenantID: &cur.TenantID,
			Action:   action,
			Entity:   "membership",
		})
		for _, m := range r.memberships {
			if m.DelegatedBy != nil && *m.DelegatedBy == cur.UserID && m.TenantID == cur.TenantID && m.IsActive {
				queue = append(queue, m)
			}
		}
	}
	return revoked, nil
}

func (r *fakeRepository) FindExpired(now time.Time, limit int) ([]*membershipDatamodel.UserTenantMembership, error) {
	var out []*membershipDatamodel.UserTenantMembership
	for _, m := range r.memberships {
		if m.IsActive && m.ExpiresAt != nil && m.ExpiresAt.Before(now) {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeInvalidator struct {
	invalidated [][2]int64
}

func (f *fakeInvalidator) InvalidateMembership(userID, tenantID int64) {
	f.invalidated = append(f.invalidated, [2]int64{userID, tenantID})
}

var _ = Describe("DelegationService", func() {
	const (
		tenantID   int64 = 5
		adminRole  int64 = 20
		editorRole int64 = 10
		viewerRole int64 = 40
	)

	var (
		delegatorID int64 = 1
		delegateID  int64 = 2
	)

	var (
		repo    *fakeRepository
		cache   *fakeInvalidator
		service *Service
		ctx     context.Context
	)

	futureExpiry := time.Now().Add(24 * time.Hour)

	BeforeEach(func() {
		repo = newFakeRepository()
		cache = &fakeInvalidator{}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		service = NewService(repo, cache, nil, logger)
		ctx = context.Background()

		repo.roles[adminRole] = &rbacDatamodel.Role{
			ID: adminRole, Name: "Admin", Level: 10,
			CanDelegate: true, MaxDelegationDepth: 2, IsActive: true,
		}
		repo.roles[editorRole] = &rbacDatamodel.Role{
			ID: editorRole, Name: "Editor", Level: 20,
			CanDelegate: false, MaxDelegationDepth: 0, IsActive: true,
		}
		repo.roles[viewerRole] = &rbacDatamodel.Role{
			ID: viewerRole, Name: "Viewer", Level: 40,
			CanDelegate: false, MaxDelegationDepth: 2, IsActive: true,
		}

		repo.addMembership(&membershipDatamodel.UserTenantMembership{
			UserID: delegatorID, TenantID: tenantID, RoleID: adminRole, IsActive: true,
		})
	})

	delegateDTO := func(roleID int64) DelegateDTO {
		return DelegateDTO{
			DelegateUserID: delegateID,
			TenantID:       tenantID,
			RoleID:         roleID,
			ExpiresAt:      &futureExpiry,
			Reason:         "covering a shift",
		}
	}

	Describe("Delegate", func() {
		It("creates a delegated membership one level below the delegator", func() {
			m, err := service.Delegate(ctx, delegatorID, delegateDTO(viewerRole))
			Expect(err).NotTo(HaveOccurred())

			Expect(m.UserID).To(Equal(delegateID))
			Expect(m.RoleID).To(Equal(viewerRole))
			Expect(m.DelegatedBy).To(HaveValue(Equal(delegatorID)))
			Expect(m.DelegationLevel).To(Equal(1))
			Expect(m.ExpiresAt).To(HaveValue(BeTemporally("~", futureExpiry, time.Second)))
		})

		It("writes the audit record atomically with the membership", func() {
			_, err := service.Delegate(ctx, delegatorID, delegateDTO(viewerRole))
			Expect(err).NotTo(HaveOccurred())

			Expect(repo.auditEvents).To(HaveLen(1))
			Expect(repo.auditEvents[0].Action).To(Equal("delegation.created"))
			Expect(repo.auditEvents[0].ActorID).To(HaveValue(Equal(delegatorID)))
		})

		It("invalidates the delegate's cached decisions", func() {
			_, err := service.Delegate(ctx, delegatorID, delegateDTO(viewerRole))
			Expect(err).NotTo(HaveOccurred())
			Expect(cache.invalidated).To(ContainElement([2]int64{delegateID, tenantID}))
		})

		It("rejects a delegator without a membership in the tenant", func() {
			_, err := service.Delegate(ctx, 99, delegateDTO(viewerRole))
			Expect(err).To(Equal(ErrDelegationNotPermitted))
		})

		It("rejects a delegator whose role cannot delegate", func() {
			repo.addMembership(&membershipDatamodel.UserTenantMembership{
				UserID: 3, TenantID: tenantID, RoleID: editorRole, IsActive: true,
			})

			_, err := service.Delegate(ctx, 3, delegateDTO(viewerRole))
			Expect(err).To(Equal(ErrDelegationNotPermitted))
		})

		It("rejects delegating a role more privileged than the delegator's", func() {
			repo.roles[5] = &rbacDatamodel.Role{ID: 5, Name: "Owner", Level: 0, IsActive: true, MaxDelegationDepth: 3}

			_, err := service.Delegate(ctx, delegatorID, delegateDTO(5))
			Expect(err).To(Equal(ErrRoleEscalation))
		})

		It("rejects a chain deeper than the role allows", func() {
			delegator := int64(7)
			parent := delegatorID
			repo.addMembership(&membershipDatamodel.UserTenantMembership{
				UserID: delegator, TenantID: tenantID, RoleID: adminRole, IsActive: true,
				DelegatedBy: &parent, DelegationLevel: 2,
			})

			_, err := service.Delegate(ctx, delegator, delegateDTO(viewerRole))
			Expect(err).To(Equal(ErrDelegationDepthExceeded))
		})

		It("rejects a delegate who already holds a membership", func() {
			repo.addMembership(&membershipDatamodel.UserTenantMembership{
				UserID: delegateID, TenantID: tenantID, RoleID: viewerRole, IsActive: true,
			})

			_, err := service.Delegate(ctx, delegatorID, delegateDTO(viewerRole))
			Expect(err).To(Equal(ErrAlreadyMember))
		})

		It("rejects an expiry in the past", func() {
			past := time.Now().Add(-time.Hour)
			dto := delegateDTO(viewerRole)
			dto.ExpiresAt = &past

			_, err := service.Delegate(ctx, delegatorID, dto)
			Expect(err).To(HaveOccurred())
			Expect(repo.auditEvents).To(BeEmpty())
		})

		It("rejects a missing reason", func() {
			dto := delegateDTO(viewerRole)
			dto.Reason = ""

			_, err := service.Delegate(ctx, delegatorID, dto)
			Expect(err).To(HaveOccurred())
		})

		It("rejects an unknown target role", func() {
			_, err := service.Delegate(ctx, delegatorID, delegateDTO(404))
			Expect(err).To(Equal(ErrDelegationNotFound))
		})
	})

	Describe("Revoke", func() {
		It("refuses to revoke a direct membership", func() {
			direct, _ := repo.FindActiveMembership(delegatorID, tenantID)

			err := service.Revoke(ctx, delegatorID, direct.ID)
			Expect(err).To(Equal(ErrDelegationNotFound))
		})

		It("cascades through everything the delegate re-delegated", func() {
			first, err := service.Delegate(ctx, delegatorID, delegateDTO(viewerRole))
			Expect(err).NotTo(HaveOccurred())

			second := repo.addMembership(&membershipDatamodel.UserTenantMembership{
				UserID: 3, TenantID: tenantID, RoleID: viewerRole, IsActive: true,
				DelegatedBy: &delegateID, DelegationLevel: 2,
			})

			Expect(service.Revoke(ctx, delegatorID, first.ID)).To(Succeed())

			Expect(repo.memberships[first.ID].IsActive).To(BeFalse())
			Expect(repo.memberships[second.ID].IsActive).To(BeFalse())
			Expect(cache.invalidated).To(ContainElement([2]int64{3, tenantID}))
		})

		It("is idempotent once the chain is already revoked", func() {
			first, err := service.Delegate(ctx, delegatorID, delegateDTO(viewerRole))
			Expect(err).NotTo(HaveOccurred())

			Expect(service.Revoke(ctx, delegatorID, first.ID)).To(Succeed())
			err = service.Revoke(ctx, delegatorID, first.ID)
			Expect(err).To(Equal(ErrDelegationNotFound))
		})
	})

	Describe("SweepExpired", func() {
		It("deactivates lapsed delegations and their chains", func() {
			past := time.Now().Add(-time.Minute)
			expired := repo.addMembership(&membershipDatamodel.UserTenantMembership{
				UserID: delegateID, TenantID: tenantID, RoleID: viewerRole, IsActive: true,
				DelegatedBy: &delegatorID, DelegationLevel: 1, ExpiresAt: &past,
			})
			chained := repo.addMembership(&membershipDatamodel.UserTenantMembership{
				UserID: 3, TenantID: tenantID, RoleID: viewerRole, IsActive: true,
				DelegatedBy: &delegateID, DelegationLevel: 2,
			})

			n, err := service.SweepExpired(ctx, 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
			Expect(repo.memberships[expired.ID].IsActive).To(BeFalse())
			Expect(repo.memberships[chained.ID].IsActive).To(BeFalse())
		})

		It("does nothing on a second pass", func() {
			past := time.Now().Add(-time.Minute)
			repo.addMembership(&membershipDatamodel.UserTenantMembership{
				UserID: delegateID, TenantID: tenantID, RoleID: viewerRole, IsActive: true,
				DelegatedBy: &delegatorID, DelegationLevel: 1, ExpiresAt: &past,
			})

			_, err := service.SweepExpired(ctx, 100)
			Expect(err).NotTo(HaveOccurred())

			n, err := service.SweepExpired(ctx, 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})
	})
})
