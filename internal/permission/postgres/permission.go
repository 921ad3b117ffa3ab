package postgres

import (
	rbacDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/rbac"
	"github.com/signagecloud/access-management/internal/permission"
	"gorm.io/gorm"
)

type PermissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) permission.RepositoryAPI {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) GetAll() ([]*rbacDatamodel.Permission, error) {
	var permissions []*rbacDatamodel.Permission
	err := r.db.Order("codename ASC").Find(&permissions).Error
	return permissions, err
}

func (r *PermissionRepository) GetByCodename(codename string) (*rbacDatamodel.Permission, error) {
	var p rbacDatamodel.Permission
	err := r.db.Where("codename = ?", codename).First(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PermissionRepository) Create(p *rbacDatamodel.Permission) error {
	return r.db.Create(p).Error
}
