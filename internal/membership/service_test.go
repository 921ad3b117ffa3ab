package membership

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/signagecloud/access-management/internal"
	membershipDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/membership"
	rbacDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/rbac"
)

func TestMembership(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Membership Module Suite")
}

type fakeRepository struct {
	memberships map[int64]*membershipDatamodel.UserTenantMembership
	roles       map[int64]*rbacDatamodel.Role
	nextID      int64
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		memberships: make(map[int64]*membershipDatamodel.UserTenantMembership),
		roles:       make(map[int64]*rbacDatamodel.Role),
		nextID:      500,
	}
}

func (r *fakeRepository) GetByID(id int64) (*membershipDatamodel.UserTenantMembership, error) {
	return r.memberships[id], nil
}

func (r *fakeRepository) FindActive(userID, tenantID int64) (*membershipDatamodel.UserTenantMembership, error) {
	for _, m := range r.memberships {
		if m.UserID == userID && m.TenantID == tenantID && m.IsActive && !m.Expired(time.Now()) {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeRepository) FindPending(userID, tenantID int64) (*membershipDatamodel.UserTenantMembership, error) {
	for _, m := range r.memberships {
		if m.UserID == userID && m.TenantID == tenantID && m.Pending() {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeRepository) Activate(membershipID int64, acceptedAt time.Time) error {
	m := r.memberships[membershipID]
	if m == nil || !m.Pending() {
		return nil
	}
	m.IsActive = true
	m.AcceptedAt = &acceptedAt
	m.JoinedAt = acceptedAt
	return nil
}

func (r *fakeRepository) ListForTenant(tenantID int64) ([]*membershipDatamodel.UserTenantMembership, error) {
	var out []*membershipDatamodel.UserTenantMembership
	for _, m := range r.memberships {
		if m.TenantID == tenantID && m.IsActive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeRepository) ListForUser(userID int64) ([]*membershipDatamodel.UserTenantMembership, error) {
	var out []*membershipDatamodel.UserTenantMembership
	for _, m := range r.memberships {
		if m.UserID == userID && m.IsActive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeRepository) Create(m *membershipDatamodel.UserTenantMembership) error {
	r.nextID++
	m.ID = r.nextID
	r.memberships[m.ID] = m
	return nil
}

func (r *fakeRepository) UpdateRole(membershipID, roleID int64) error {
	if m := r.memberships[membershipID]; m != nil {
		m.RoleID = roleID
	}
	return nil
}

func (r *fakeRepository) GetRole(id int64) (*rbacDatamodel.Role, error) {
	return r.roles[id], nil
}

func (r *fakeRepository) RemoveCascade(membershipID int64, actorID *int64) ([]*membershipDatamodel.UserTenantMembership, error) {
	root := r.memberships[membershipID]
	if root == nil || !root.IsActive {
		return nil, nil
	}

	var removed []*membershipDatamodel.UserTenantMembership
	queue := []*membershipDatamodel.UserTenantMembership{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if !cur.IsActive {
			continue
		}
		cur.IsActive = false
		removed = append(removed, cur)
		for _, m := range r.memberships {
			if m.DelegatedBy != nil && *m.DelegatedBy == cur.UserID && m.TenantID == cur.TenantID && m.IsActive {
				queue = append(queue, m)
			}
		}
	}
	return removed, nil
}

type fakeInvalidator struct {
	calls [][2]int64
}

func (f *fakeInvalidator) InvalidateMembership(userID, tenantID int64) {
	f.calls = append(f.calls, [2]int64{userID, tenantID})
}

var _ = Describe("Membership Service", func() {
	const (
		tenantID   = int64(5)
		editorRole = int64(10)
		actorID    = int64(1)
		memberID   = int64(2)
	)

	var (
		repo        *fakeRepository
		invalidator *fakeInvalidator
		svc         *Service
		ctx         context.Context
	)

	BeforeEach(func() {
		repo = newFakeRepository()
		invalidator = &fakeInvalidator{}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		svc = NewService(repo, invalidator, nil, logger)
		ctx = context.Background()

		tid := tenantID
		repo.roles[editorRole] = &rbacDatamodel.Role{
			ID:       editorRole,
			Name:     "Editor",
			Level:    20,
			TenantID: &tid,
			IsActive: true,
		}
	})

	Describe("AssignMember", func() {
		It("should create an active direct membership", func() {
			m, err := svc.AssignMember(ctx, actorID, AssignMemberDTO{
				UserID: memberID, TenantID: tenantID, RoleID: editorRole,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(m.IsActive).To(BeTrue())
			Expect(m.AcceptedAt).NotTo(BeNil())
			Expect(m.DelegationLevel).To(Equal(0))
			Expect(invalidator.calls).To(ContainElement([2]int64{memberID, tenantID}))
		})

		It("should refuse an unknown or inactive role", func() {
			_, err := svc.AssignMember(ctx, actorID, AssignMemberDTO{
				UserID: memberID, TenantID: tenantID, RoleID: 999,
			})
			Expect(err).To(MatchError(internal.ErrRoleNotFound))
		})

		It("should refuse a role from another tenant", func() {
			other := int64(77)
			repo.roles[30] = &rbacDatamodel.Role{ID: 30, Name: "Other", Level: 20, TenantID: &other, IsActive: true}

			_, err := svc.AssignMember(ctx, actorID, AssignMemberDTO{
				UserID: memberID, TenantID: tenantID, RoleID: 30,
			})
			appErr, ok := err.(*internal.AppError)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeRoleTenantInvalid))
		})

		It("should refuse a second membership in the same tenant", func() {
			_, err := svc.AssignMember(ctx, actorID, AssignMemberDTO{
				UserID: memberID, TenantID: tenantID, RoleID: editorRole,
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.AssignMember(ctx, actorID, AssignMemberDTO{
				UserID: memberID, TenantID: tenantID, RoleID: editorRole,
			})
			appErr, ok := err.(*internal.AppError)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeAlreadyMember))
		})
	})

	Describe("Invitations", func() {
		It("should create a pending membership that grants nothing yet", func() {
			m, err := svc.AssignMember(ctx, actorID, AssignMemberDTO{
				UserID: memberID, TenantID: tenantID, RoleID: editorRole, Invite: true,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(m.IsActive).To(BeFalse())
			Expect(m.Pending()).To(BeTrue())
			Expect(invalidator.calls).To(BeEmpty())
		})

		It("should refuse a second invitation while one is pending", func() {
			_, err := svc.AssignMember(ctx, actorID, AssignMemberDTO{
				UserID: memberID, TenantID: tenantID, RoleID: editorRole, Invite: true,
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.AssignMember(ctx, actorID, AssignMemberDTO{
				UserID: memberID, TenantID: tenantID, RoleID: editorRole, Invite: true,
			})
			appErr, ok := err.(*internal.AppError)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeAlreadyMember))
		})

		It("should activate the membership on acceptance", func() {
			invited, err := svc.AssignMember(ctx, actorID, AssignMemberDTO{
				UserID: memberID, TenantID: tenantID, RoleID: editorRole, Invite: true,
			})
			Expect(err).NotTo(HaveOccurred())

			accepted, err := svc.AcceptInvitation(ctx, memberID, AcceptInvitationDTO{TenantID: tenantID})
			Expect(err).NotTo(HaveOccurred())
			Expect(accepted.ID).To(Equal(invited.ID))
			Expect(accepted.IsActive).To(BeTrue())
			Expect(accepted.AcceptedAt).NotTo(BeNil())
			Expect(accepted.DelegationLevel).To(Equal(0))
			Expect(invalidator.calls).To(ContainElement([2]int64{memberID, tenantID}))
		})

		It("should refuse acceptance without a pending invitation", func() {
			_, err := svc.AcceptInvitation(ctx, memberID, AcceptInvitationDTO{TenantID: tenantID})
			Expect(err).To(MatchError(internal.ErrMembershipMissing))
		})

		It("should refuse acceptance of an expired invitation", func() {
			past := time.Now().Add(-time.Hour)
			_, err := svc.AssignMember(ctx, actorID, AssignMemberDTO{
				UserID: memberID, TenantID: tenantID, RoleID: editorRole, Invite: true,
			})
			Expect(err).NotTo(HaveOccurred())
			pending, err := repo.FindPending(memberID, tenantID)
			Expect(err).NotTo(HaveOccurred())
			pending.ExpiresAt = &past

			_, err = svc.AcceptInvitation(ctx, memberID, AcceptInvitationDTO{TenantID: tenantID})
			appErr, ok := err.(*internal.AppError)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidExpiry))
		})

		It("should refuse acceptance when the role was deactivated meanwhile", func() {
			_, err := svc.AssignMember(ctx, actorID, AssignMemberDTO{
				UserID: memberID, TenantID: tenantID, RoleID: editorRole, Invite: true,
			})
			Expect(err).NotTo(HaveOccurred())
			repo.roles[editorRole].IsActive = false

			_, err = svc.AcceptInvitation(ctx, memberID, AcceptInvitationDTO{TenantID: tenantID})
			Expect(err).To(MatchError(internal.ErrRoleNotFound))
		})
	})

	Describe("ChangeRole", func() {
		It("should swap the role on a direct membership", func() {
			tid := tenantID
			repo.roles[40] = &rbacDatamodel.Role{ID: 40, Name: "Viewer", Level: 40, TenantID: &tid, IsActive: true}
			m, err := svc.AssignMember(ctx, actorID, AssignMemberDTO{
				UserID: memberID, TenantID: tenantID, RoleID: editorRole,
			})
			Expect(err).NotTo(HaveOccurred())

			updated, err := svc.ChangeRole(ctx, actorID, m.ID, ChangeRoleDTO{RoleID: 40})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.RoleID).To(Equal(int64(40)))
		})

		It("should refuse to re-role a delegated membership", func() {
			delegator := actorID
			dm := &membershipDatamodel.UserTenantMembership{
				UserID: memberID, TenantID: tenantID, RoleID: editorRole,
				IsActive: true, DelegatedBy: &delegator, DelegationLevel: 1,
			}
			Expect(repo.Create(dm)).To(Succeed())

			_, err := svc.ChangeRole(ctx, actorID, dm.ID, ChangeRoleDTO{RoleID: editorRole})
			appErr, ok := err.(*internal.AppError)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeDelegationNotPermitted))
		})
	})

	Describe("RemoveMember", func() {
		It("should cascade and invalidate every affected user", func() {
			m, err := svc.AssignMember(ctx, actorID, AssignMemberDTO{
				UserID: memberID, TenantID: tenantID, RoleID: editorRole,
			})
			Expect(err).NotTo(HaveOccurred())
			delegator := memberID
			delegated := &membershipDatamodel.UserTenantMembership{
				UserID: int64(3), TenantID: tenantID, RoleID: editorRole,
				IsActive: true, DelegatedBy: &delegator, DelegationLevel: 1,
			}
			Expect(repo.Create(delegated)).To(Succeed())

			invalidator.calls = nil
			Expect(svc.RemoveMember(ctx, actorID, m.ID)).To(Succeed())
			Expect(invalidator.calls).To(ConsistOf(
				[2]int64{memberID, tenantID},
				[2]int64{int64(3), tenantID},
			))
		})

		It("should refuse to remove an already inactive membership", func() {
			m, err := svc.AssignMember(ctx, actorID, AssignMemberDTO{
				UserID: memberID, TenantID: tenantID, RoleID: editorRole,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.RemoveMember(ctx, actorID, m.ID)).To(Succeed())

			err = svc.RemoveMember(ctx, actorID, m.ID)
			Expect(err).To(MatchError(internal.ErrMembershipMissing))
		})
	})
})
