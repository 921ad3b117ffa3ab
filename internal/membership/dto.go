package membership

import (
	"time"

	"github.com/signagecloud/access-management/internal"
	"github.com/signagecloud/access-management/internal/core/common/validation"
)

type AssignMemberDTO struct {
	UserID    int64 `json:"user_id"`
	TenantID  int64 `json:"tenant_id"`
	RoleID    int64 `json:"role_id"`
	IsPrimary bool  `json:"is_primary"`
	// Invite creates the membership pending; it grants nothing until accepted.
	Invite    bool       `json:"invite,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

func (d AssignMemberDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("user_id", d.UserID).Required()
	v.Field("tenant_id", d.TenantID).Required()
	v.Field("role_id", d.RoleID).Required()
	v.Field("reason", d.Reason).MaxLength(500)
	if d.ExpiresAt != nil {
		v.Field("expires_at", d.ExpiresAt).Future(internal.ErrCodeInvalidExpiry)
	}
	return v.Validate()
}

type AcceptInvitationDTO struct {
	TenantID int64 `json:"tenant_id"`
}

func (d AcceptInvitationDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("tenant_id", d.TenantID).Required()
	return v.Validate()
}

type ChangeRoleDTO struct {
	RoleID int64 `json:"role_id"`
}

func (d ChangeRoleDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("role_id", d.RoleID).Required()
	return v.Validate()
}
