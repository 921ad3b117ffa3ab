package role

import (
	"time"

	"github.com/signagecloud/access-management/internal"
	"github.com/signagecloud/access-management/internal/core/common/validation"
)

type CreateRoleDTO struct {
	Name               string `json:"name"`
	Level              int    `json:"level"`
	TenantID           *int64 `json:"tenant_id,omitempty"`
	ParentID           *int64 `json:"parent_id,omitempty"`
	CanDelegate        bool   `json:"can_delegate"`
	MaxDelegationDepth int    `json:"max_delegation_depth"`
}

func (d CreateRoleDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MaxLength(100)
	v.Field("level", int64(d.Level)).MinInt(0, internal.ErrCodeRoleLevelInvalid)
	v.Field("max_delegation_depth", int64(d.MaxDelegationDepth)).
		MinInt(0, internal.ErrCodeValidationFailed).
		MaxInt(10, internal.ErrCodeValidationFailed)
	return v.Validate()
}

type UpdateRoleDTO struct {
	Name               *string `json:"name,omitempty"`
	Level              *int    `json:"level,omitempty"`
	CanDelegate        *bool   `json:"can_delegate,omitempty"`
	MaxDelegationDepth *int    `json:"max_delegation_depth,omitempty"`
}

type BindPermissionDTO struct {
	Permission  string     `json:"permission"`
	IsGranted   bool       `json:"is_granted"`
	ObjectID    *string    `json:"object_id,omitempty"`
	CanOverride bool       `json:"can_override"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (d BindPermissionDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("permission", d.Permission).Required()
	if d.ExpiresAt != nil {
		v.Field("expires_at", d.ExpiresAt).Future(internal.ErrCodeInvalidExpiry)
	}
	return v.Validate()
}

type RoleResponse struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Level              int    `json:"level"`
	TenantID           *int64 `json:"tenant_id,omitempty"`
	ParentID           *int64 `json:"parent_id,omitempty"`
	CanDelegate        bool   `json:"can_delegate"`
	MaxDelegationDepth int    `json:"max_delegation_depth"`
	IsActive           bool   `json:"is_active"`
}

func (r *Role) ToResponse() RoleResponse {
	return RoleResponse{
		ID:                 r.ID,
		Name:               r.Name,
		Level:              r.Level,
		TenantID:           r.TenantID,
		ParentID:           r.ParentID,
		CanDelegate:        r.CanDelegate,
		MaxDelegationDepth: r.MaxDelegationDepth,
		IsActive:           r.IsActive,
	}
}
