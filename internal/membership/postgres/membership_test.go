package postgres_test

import (
	"testing"
	"time"

	auditDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/audit"
	membershipDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/membership"
	"github.com/signagecloud/access-management/internal/membership"
	membershipPostgres "github.com/signagecloud/access-management/internal/membership/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMembershipPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Membership Postgres Suite")
}

// SQLite-compatible models for testing
type SQLiteMembership struct {
	ID              int64      `gorm:"primaryKey"`
	UserID          int64      `gorm:"column:user_id;index;not null"`
	TenantID        int64      `gorm:"column:tenant_id;index;not null"`
	RoleID          int64      `gorm:"column:role_id;index;not null"`
	IsPrimary       bool       `gorm:"column:is_primary;default:false"`
	IsActive        bool       `gorm:"column:is_active;default:true"`
	JoinedAt        time.Time  `gorm:"column:joined_at"`
	AcceptedAt      *time.Time `gorm:"column:accepted_at"`
	InvitedBy       *int64     `gorm:"column:invited_by"`
	DelegatedBy     *int64     `gorm:"column:delegated_by;index"`
	DelegationLevel int        `gorm:"column:delegation_level;default:0"`
	ExpiresAt       *time.Time `gorm:"column:expires_at"`
	Reason          string     `gorm:"column:reason"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

func (SQLiteMembership) TableName() string {
	return "user_tenant_memberships"
}

type SQLiteRole struct {
	ID                 int64     `gorm:"primaryKey"`
	Name               string    `gorm:"column:name;not null"`
	Level              int       `gorm:"column:level;not null"`
	TenantID           *int64    `gorm:"column:tenant_id;index"`
	ParentID           *int64    `gorm:"column:parent_id;index"`
	CanDelegate        bool      `gorm:"column:can_delegate;default:false"`
	MaxDelegationDepth int       `gorm:"column:max_delegation_depth;default:0"`
	IsActive           bool      `gorm:"column:is_active;default:true"`
	CreatedAt          time.Time `gorm:"column:created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

func (SQLiteRole) TableName() string {
	return "roles"
}

type SQLiteAuditEvent struct {
	ID         int64     `gorm:"primaryKey"`
	ActorID    *int64    `gorm:"column:actor_id"`
	TenantID   *int64    `gorm:"column:tenant_id;index"`
	Action     string    `gorm:"column:action;index;not null"`
	Entity     string    `gorm:"column:entity;not null"`
	EntityID   string    `gorm:"column:entity_id"`
	Metadata   string    `gorm:"column:metadata"`
	OccurredAt time.Time `gorm:"column:occurred_at;index"`
}

func (SQLiteAuditEvent) TableName() string {
	return "audit_events"
}

var _ = Describe("Membership PostgreSQL Repository", func() {
	var (
		db   *gorm.DB
		repo membership.RepositoryAPI
	)

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&SQLiteMembership{}, &SQLiteRole{}, &SQLiteAuditEvent{})
		Expect(err).NotTo(HaveOccurred())

		repo = membershipPostgres.NewMembershipRepository(db)
	})

	createMembership := func(userID, tenantID, roleID int64, delegatedBy *int64, level int) *membershipDatamodel.UserTenantMembership {
		m := &membershipDatamodel.UserTenantMembership{
			UserID:          userID,
			TenantID:        tenantID,
			RoleID:          roleID,
			IsActive:        true,
			JoinedAt:        time.Now(),
			DelegatedBy:     delegatedBy,
			DelegationLevel: level,
		}
		Expect(repo.Create(m)).To(Succeed())
		return m
	}

	Describe("FindActive", func() {
		It("should find an active membership", func() {
			created := createMembership(1, 10, 100, nil, 0)

			found, err := repo.FindActive(1, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).NotTo(BeNil())
			Expect(found.ID).To(Equal(created.ID))
		})

		It("should return nil when no membership exists", func() {
			found, err := repo.FindActive(1, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeNil())
		})

		It("should not return an expired membership", func() {
			past := time.Now().Add(-time.Hour)
			m := &membershipDatamodel.UserTenantMembership{
				UserID:    1,
				TenantID:  10,
				RoleID:    100,
				IsActive:  true,
				JoinedAt:  time.Now().Add(-2 * time.Hour),
				ExpiresAt: &past,
			}
			Expect(repo.Create(m)).To(Succeed())

			found, err := repo.FindActive(1, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeNil())
		})

		It("should not return a deactivated membership", func() {
			m := createMembership(1, 10, 100, nil, 0)
			_, err := repo.RemoveCascade(m.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			found, err := repo.FindActive(1, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeNil())
		})
	})

	Describe("FindPending and Activate", func() {
		createInvitation := func(userID, tenantID int64) *membershipDatamodel.UserTenantMembership {
			m := &membershipDatamodel.UserTenantMembership{
				UserID:   userID,
				TenantID: tenantID,
				RoleID:   100,
				IsActive: false,
				JoinedAt: time.Now(),
			}
			Expect(repo.Create(m)).To(Succeed())
			return m
		}

		It("should find a pending invitation", func() {
			created := createInvitation(1, 10)

			pending, err := repo.FindPending(1, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).NotTo(BeNil())
			Expect(pending.ID).To(Equal(created.ID))
		})

		It("should not treat a revoked membership as pending", func() {
			m := createMembership(1, 10, 100, nil, 0)
			now := time.Now()
			m.AcceptedAt = &now
			Expect(db.Save(m).Error).To(Succeed())
			_, err := repo.RemoveCascade(m.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			pending, err := repo.FindPending(1, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeNil())
		})

		It("should activate a pending invitation", func() {
			created := createInvitation(1, 10)
			now := time.Now()

			Expect(repo.Activate(created.ID, now)).To(Succeed())

			found, err := repo.GetByID(created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.IsActive).To(BeTrue())
			Expect(found.AcceptedAt).NotTo(BeNil())

			pending, err := repo.FindPending(1, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeNil())
		})

		It("should not reactivate an already accepted membership", func() {
			created := createInvitation(1, 10)
			Expect(repo.Activate(created.ID, time.Now())).To(Succeed())
			_, err := repo.RemoveCascade(created.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(repo.Activate(created.ID, time.Now())).To(Succeed())

			found, err := repo.GetByID(created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.IsActive).To(BeFalse())
		})
	})

	Describe("ListForTenant", func() {
		It("should list only active memberships of the tenant", func() {
			createMembership(1, 10, 100, nil, 0)
			createMembership(2, 10, 100, nil, 0)
			createMembership(3, 20, 100, nil, 0)
			removed := createMembership(4, 10, 100, nil, 0)
			_, err := repo.RemoveCascade(removed.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			rows, err := repo.ListForTenant(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))
		})
	})

	Describe("UpdateRole", func() {
		It("should change the role on the membership", func() {
			m := createMembership(1, 10, 100, nil, 0)

			Expect(repo.UpdateRole(m.ID, 200)).To(Succeed())

			found, err := repo.GetByID(m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.RoleID).To(Equal(int64(200)))
		})
	})

	Describe("RemoveCascade", func() {
		It("should deactivate a direct membership with no delegations", func() {
			m := createMembership(1, 10, 100, nil, 0)

			removed, err := repo.RemoveCascade(m.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(HaveLen(1))
			Expect(removed[0].ID).To(Equal(m.ID))
		})

		It("should cascade through the full delegation chain", func() {
			// user 1 -> delegated user 2 -> delegated user 3
			root := createMembership(1, 10, 100, nil, 0)
			one := int64(1)
			two := int64(2)
			mid := createMembership(2, 10, 101, &one, 1)
			leaf := createMembership(3, 10, 102, &two, 2)

			removed, err := repo.RemoveCascade(root.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(HaveLen(3))

			for _, id := range []int64{root.ID, mid.ID, leaf.ID} {
				found, err := repo.GetByID(id)
				Expect(err).NotTo(HaveOccurred())
				Expect(found.IsActive).To(BeFalse())
			}
		})

		It("should not cascade into a different tenant", func() {
			root := createMembership(1, 10, 100, nil, 0)
			one := int64(1)
			// same delegator user id, other tenant
			other := createMembership(2, 20, 101, &one, 1)

			removed, err := repo.RemoveCascade(root.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(HaveLen(1))

			found, err := repo.GetByID(other.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.IsActive).To(BeTrue())
		})

		It("should be idempotent on an already revoked membership", func() {
			m := createMembership(1, 10, 100, nil, 0)

			first, err := repo.RemoveCascade(m.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(HaveLen(1))

			second, err := repo.RemoveCascade(m.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(BeEmpty())
		})

		It("should write one audit event per deactivated membership", func() {
			root := createMembership(1, 10, 100, nil, 0)
			one := int64(1)
			createMembership(2, 10, 101, &one, 1)

			actor := int64(99)
			removed, err := repo.RemoveCascade(root.ID, &actor)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(HaveLen(2))

			var events []auditDatamodel.AuditEvent
			Expect(db.Find(&events).Error).To(Succeed())
			Expect(events).To(HaveLen(2))
			Expect(*events[0].ActorID).To(Equal(actor))
		})
	})
})
