package postgres

import (
	"context"
	"time"

	membershipDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/membership"
	rbacDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/rbac"
	"github.com/signagecloud/access-management/internal/resolver"
	"gorm.io/gorm"
)

// maxChainDepth caps the ancestor walk regardless of what the data says.
// Legitimate hierarchies are a handful of levels deep.
const maxChainDepth = 32

type ResolverRepository struct {
	db *gorm.DB
}

func NewResolverRepository(db *gorm.DB) resolver.RepositoryAPI {
	return &ResolverRepository{db: db}
}

// FindActiveMembership also requires the tenant itself to be active; a
// deactivated tenant denies by default for everyone at once.
func (r *ResolverRepository) FindActiveMembership(ctx context.Context, userID, tenantID int64) (*membershipDatamodel.UserTenantMembership, error) {
	var m membershipDatamodel.UserTenantMembership
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND tenant_id = ? AND is_active = ?", userID, tenantID, true).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Where("EXISTS (SELECT 1 FROM tenants WHERE tenants.id = user_tenant_memberships.tenant_id AND tenants.is_active = ?)", true).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// FindRoleChain walks parent pointers leaf to root. The visited set guards
// against administrator-introduced cycles: the invariant forbids them, but a
// lookup must never loop on corrupted data.
func (r *ResolverRepository) FindRoleChain(ctx context.Context, roleID int64) ([]*rbacDatamodel.Role, error) {
	var chain []*rbacDatamodel.Role
	visited := make(map[int64]bool)

	current := roleID
	for depth := 0; depth < maxChainDepth; depth++ {
		if visited[current] {
			return nil, resolver.ErrBrokenHierarchy
		}
		visited[current] = true

		var role rbacDatamodel.Role
		err := r.db.WithContext(ctx).
			Where("id = ? AND is_active = ?", current, true).
			First(&role).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				// deactivated ancestors simply end the chain; a missing leaf
				// means the membership points nowhere
				if depth == 0 {
					return nil, resolver.ErrBrokenHierarchy
				}
				return chain, nil
			}
			return nil, err
		}

		chain = append(chain, &role)
		if role.ParentID == nil {
			return chain, nil
		}
		current = *role.ParentID
	}

	return nil, resolver.ErrBrokenHierarchy
}

func (r *ResolverRepository) FindRolePermissions(ctx context.Context, roleIDs []int64, permissionID int64) ([]*rbacDatamodel.RolePermission, error) {
	var bindings []*rbacDatamodel.RolePermission
	err := r.db.WithContext(ctx).
		Where("role_id IN ? AND permission_id = ? AND is_active = ?", roleIDs, permissionID, true).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Find(&bindings).Error
	return bindings, err
}
