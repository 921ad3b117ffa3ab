package postgres

import (
	"time"

	membershipDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/membership"
	rbacDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/rbac"
	"github.com/signagecloud/access-management/internal/role"
	"gorm.io/gorm"
)

type RoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) role.RepositoryAPI {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) GetByID(id int64) (*rbacDatamodel.Role, error) {
	var row rbacDatamodel.Role
	err := r.db.Where("id = ?", id).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *RoleRepository) ListForTenant(tenantID int64) ([]*rbacDatamodel.Role, error) {
	var roles []*rbacDatamodel.Role
	err := r.db.
		Where("is_active = ?", true).
		Where("tenant_id = ? OR tenant_id IS NULL", tenantID).
		Order("level ASC").
		Find(&roles).Error
	return roles, err
}

func (r *RoleRepository) ListChildren(roleID int64) ([]*rbacDatamodel.Role, error) {
	var roles []*rbacDatamodel.Role
	err := r.db.
		Where("parent_id = ? AND is_active = ?", roleID, true).
		Find(&roles).Error
	return roles, err
}

func (r *RoleRepository) Create(role *rbacDatamodel.Role) error {
	return r.db.Create(role).Error
}

func (r *RoleRepository) Update(role *rbacDatamodel.Role) error {
	return r.db.Save(role).Error
}

// DeactivateCascade soft-deletes the role and every active membership bound to
// it in one transaction. Memberships are never hard-deleted.
func (r *RoleRepository) DeactivateCascade(roleID int64) ([]int64, error) {
	affected := []int64{roleID}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := tx.Model(&rbacDatamodel.Role{}).
			Where("id = ? AND is_active = ?", roleID, true).
			Updates(map[string]interface{}{"is_active": false, "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.Model(&membershipDatamodel.UserTenantMembership{}).
			Where("role_id = ? AND is_active = ?", roleID, true).
			Updates(map[string]interface{}{"is_active": false, "updated_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

func (r *RoleRepository) GetActiveBinding(roleID, permissionID int64, objectID *string) (*rbacDatamodel.RolePermission, error) {
	q := r.db.
		Where("role_id = ? AND permission_id = ? AND is_active = ?", roleID, permissionID, true).
		Where("expires_at IS NULL OR expires_at > ?", time.Now())
	if objectID == nil {
		q = q.Where("object_id IS NULL")
	} else {
		q = q.Where("object_id = ?", *objectID)
	}

	var binding rbacDatamodel.RolePermission
	err := q.First(&binding).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &binding, nil
}

func (r *RoleRepository) CreateBinding(binding *rbacDatamodel.RolePermission) error {
	return r.db.Create(binding).Error
}

func (r *RoleRepository) GetBinding(bindingID int64) (*rbacDatamodel.RolePermission, error) {
	var binding rbacDatamodel.RolePermission
	err := r.db.Where("id = ?", bindingID).First(&binding).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &binding, nil
}

func (r *RoleRepository) DeactivateBinding(bindingID int64) error {
	return r.db.Model(&rbacDatamodel.RolePermission{}).
		Where("id = ?", bindingID).
		Update("is_active", false).Error
}
