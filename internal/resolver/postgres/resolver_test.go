package postgres_test

import (
	"context"
	"testing"
	"time"

	membershipDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/membership"
	rbacDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/rbac"
	tenantDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/tenant"
	"github.com/signagecloud/access-management/internal/resolver"
	resolverPostgres "github.com/signagecloud/access-management/internal/resolver/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestResolverPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Resolver Postgres Suite")
}

// SQLite-compatible models for testing
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

func (SQLiteRole) TableName() string { return "roles" }

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

func (SQLiteMembership) TableName() string { return "user_tenant_memberships" }

type SQLiteTenant struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Slug      string    `gorm:"column:slug;uniqueIndex;not null"`
	IsActive  bool      `gorm:"column:is_active;default:true"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (SQLiteTenant) TableName() string { return "tenants" }

type SQLiteRolePermission struct {
	ID           int64      `gorm:"primaryKey"`
	RoleID       int64      `gorm:"column:role_id;index;not null"`
	PermissionID int64      `gorm:"column:permission_id;index;not null"`
	IsGranted    bool       `gorm:"column:is_granted;not null"`
	ObjectID     *string    `gorm:"column:object_id"`
	CanOverride  bool       `gorm:"column:can_override;default:true"`
	ExpiresAt    *time.Time `gorm:"column:expires_at"`
	GrantedBy    *int64     `gorm:"column:granted_by"`
	GrantedAt    time.Time  `gorm:"column:granted_at"`
	IsActive     bool       `gorm:"column:is_active;default:true"`
}

func (SQLiteRolePermission) TableName() string { return "role_permissions" }

var _ = Describe("Resolver PostgreSQL Repository", func() {
	var (
		db   *gorm.DB
		repo resolver.RepositoryAPI
		ctx  context.Context
	)

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&SQLiteRole{}, &SQLiteMembership{}, &SQLiteTenant{}, &SQLiteRolePermission{})
		Expect(err).NotTo(HaveOccurred())

		repo = resolverPostgres.NewResolverRepository(db)
		ctx = context.Background()
	})

	createRole := func(name string, level int, parentID *int64, active bool) *rbacDatamodel.Role {
		r := &rbacDatamodel.Role{Name: name, Level: level, ParentID: parentID, IsActive: active}
		Expect(db.Create(r).Error).To(Succeed())
		return r
	}

	createTenant := func(id int64, active bool) {
		t := &tenantDatamodel.Tenant{ID: id, Name: "T", Slug: "t", IsActive: active}
		Expect(db.Create(t).Error).To(Succeed())
	}

	Describe("FindRoleChain", func() {
		It("walks leaf to root", func() {
			owner := createRole("Owner", 0, nil, true)
			admin := createRole("Admin", 10, &owner.ID, true)
			editor := createRole("Editor", 20, &admin.ID, true)

			chain, err := repo.FindRoleChain(ctx, editor.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(chain).To(HaveLen(3))
			Expect(chain[0].Name).To(Equal("Editor"))
			Expect(chain[2].Name).To(Equal("Owner"))
		})

		It("ends the chain at a deactivated ancestor", func() {
			owner := createRole("Owner", 0, nil, false)
			editor := createRole("Editor", 20, &owner.ID, true)

			chain, err := repo.FindRoleChain(ctx, editor.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(chain).To(HaveLen(1))
			Expect(chain[0].Name).To(Equal("Editor"))
		})

		It("fails on a missing leaf role", func() {
			_, err := repo.FindRoleChain(ctx, 404)
			Expect(err).To(MatchError(resolver.ErrBrokenHierarchy))
		})

		It("fails on a parent cycle instead of looping", func() {
			a := createRole("A", 10, nil, true)
			b := createRole("B", 20, &a.ID, true)
			Expect(db.Model(&rbacDatamodel.Role{}).Where("id = ?", a.ID).Update("parent_id", b.ID).Error).To(Succeed())

			_, err := repo.FindRoleChain(ctx, b.ID)
			Expect(err).To(MatchError(resolver.ErrBrokenHierarchy))
		})
	})

	Describe("FindActiveMembership", func() {
		It("requires the tenant itself to be active", func() {
			createTenant(10, false)
			role := createRole("Editor", 20, nil, true)
			m := &membershipDatamodel.UserTenantMembership{
				UserID: 1, TenantID: 10, RoleID: role.ID, IsActive: true, JoinedAt: time.Now(),
			}
			Expect(db.Create(m).Error).To(Succeed())

			found, err := repo.FindActiveMembership(ctx, 1, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeNil())
		})

		It("returns the membership when the tenant is active", func() {
			createTenant(10, true)
			role := createRole("Editor", 20, nil, true)
			m := &membershipDatamodel.UserTenantMembership{
				UserID: 1, TenantID: 10, RoleID: role.ID, IsActive: true, JoinedAt: time.Now(),
			}
			Expect(db.Create(m).Error).To(Succeed())

			found, err := repo.FindActiveMembership(ctx, 1, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).NotTo(BeNil())
			Expect(found.RoleID).To(Equal(role.ID))
		})

		It("skips an expired membership", func() {
			createTenant(10, true)
			role := createRole("Editor", 20, nil, true)
			past := time.Now().Add(-time.Minute)
			m := &membershipDatamodel.UserTenantMembership{
				UserID: 1, TenantID: 10, RoleID: role.ID, IsActive: true,
				JoinedAt: time.Now(), ExpiresAt: &past,
			}
			Expect(db.Create(m).Error).To(Succeed())

			found, err := repo.FindActiveMembership(ctx, 1, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeNil())
		})
	})

	Describe("FindRolePermissions", func() {
		It("returns only active, unexpired bindings for the chain", func() {
			role := createRole("Editor", 20, nil, true)
			other := createRole("Admin", 10, nil, true)
			past := time.Now().Add(-time.Hour)

			bindings := []*rbacDatamodel.RolePermission{
				{RoleID: role.ID, PermissionID: 7, IsGranted: true, IsActive: true, GrantedAt: time.Now()},
				{RoleID: role.ID, PermissionID: 7, IsGranted: true, IsActive: false, GrantedAt: time.Now()},
				{RoleID: role.ID, PermissionID: 7, IsGranted: true, IsActive: true, ExpiresAt: &past, GrantedAt: time.Now()},
				{RoleID: role.ID, PermissionID: 8, IsGranted: true, IsActive: true, GrantedAt: time.Now()},
				{RoleID: other.ID, PermissionID: 7, IsGranted: true, IsActive: true, GrantedAt: time.Now()},
			}
			for _, b := range bindings {
				Expect(db.Create(b).Error).To(Succeed())
			}

			found, err := repo.FindRolePermissions(ctx, []int64{role.ID}, 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(1))
			Expect(found[0].RoleID).To(Equal(role.ID))
		})
	})
})
