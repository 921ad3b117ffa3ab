package role

import (
	"time"

	"github.com/signagecloud/access-management/internal"
	rbacDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/rbac"
)

// Role is a named, leveled access tier. Lower level means more privilege; a
// child is never more privileged than its parent.
type Role struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Level              int       `json:"level"`
	TenantID           *int64    `json:"tenant_id,omitempty"`
	ParentID           *int64    `json:"parent_id,omitempty"`
	CanDelegate        bool      `json:"can_delegate"`
	MaxDelegationDepth int       `json:"max_delegation_depth"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// SystemWide reports whether the role is shared across tenants.
func (r *Role) SystemWide() bool {
	return r.TenantID == nil
}

// ValidateParent enforces the hierarchy invariants: a child's level must be
// numerically >= the parent's, and a tenant-scoped role may only parent roles
// in the same tenant or system-wide roles.
func (r *Role) ValidateParent(parent *Role) *internal.AppError {
	if parent == nil {
		return nil
	}
	if r.Level < parent.Level {
		return internal.NewValidationError(
			"child role cannot be more privileged than its parent",
			internal.ErrCodeRoleLevelInvalid,
		)
	}
	if !parent.SystemWide() {
		if r.TenantID == nil || *r.TenantID != *parent.TenantID {
			return internal.NewValidationError(
				"parent role must belong to the same tenant or be system-wide",
				internal.ErrCodeRoleTenantInvalid,
			)
		}
	}
	return nil
}

func NewRole(name string, level int, tenantID, parentID *int64) *Role {
	now := time.Now()
	return &Role{
		Name:      name,
		Level:     level,
		TenantID:  tenantID,
		ParentID:  parentID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func ToDataModel(r *Role) *rbacDatamodel.Role {
	return &rbacDatamodel.Role{
		ID:                 r.ID,
		Name:               r.Name,
		Level:              r.Level,
		TenantID:           r.TenantID,
		ParentID:           r.ParentID,
		CanDelegate:        r.CanDelegate,
		MaxDelegationDepth: r.MaxDelegationDepth,
		IsActive:           r.IsActive,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func FromDataModel(r *rbacDatamodel.Role) *Role {
	return &Role{
		ID:                 r.ID,
		Name:               r.Name,
		Level:              r.Level,
		TenantID:           r.TenantID,
		ParentID:           r.ParentID,
		CanDelegate:        r.CanDelegate,
		MaxDelegationDepth: r.MaxDelegationDepth,
		IsActive:           r.IsActive,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}
