package postgres

import (
	"time"

	membershipDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/membership"
	rbacDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/rbac"
	tenantDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/tenant"
	"github.com/signagecloud/access-management/internal/tenant"
	"gorm.io/gorm"
)

type TenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) tenant.RepositoryAPI {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) GetByID(id int64) (*tenantDatamodel.Tenant, error) {
	var t tenantDatamodel.Tenant
	err := r.db.Where("id = ?", id).First(&t).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TenantRepository) GetBySlug(slug string) (*tenantDatamodel.Tenant, error) {
	var t tenantDatamodel.Tenant
	err := r.db.Where("slug = ?", slug).First(&t).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TenantRepository) List() ([]*tenantDatamodel.Tenant, error) {
	var rows []*tenantDatamodel.Tenant
	err := r.db.Where("is_active = ?", true).Order("name ASC").Find(&rows).Error
	return rows, err
}

func (r *TenantRepository) CreateWithOwner(t *tenantDatamodel.Tenant, owner *membershipDatamodel.UserTenantMembership) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(t).Error; err != nil {
			return err
		}
		owner.TenantID = t.ID
		return tx.Create(owner).Error
	})
}

func (r *TenantRepository) Update(t *tenantDatamodel.Tenant) error {
	return r.db.Save(t).Error
}

func (r *TenantRepository) Deactivate(id int64) error {
	return r.db.Model(&tenantDatamodel.Tenant{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now()}).Error
}

func (r *TenantRepository) GetSystemRoleByName(name string) (*rbacDatamodel.Role, error) {
	var role rbacDatamodel.Role
	err := r.db.
		Where("name = ? AND tenant_id IS NULL AND is_active = ?", name, true).
		First(&role).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}
