package delegation

import (
	"encoding/json"
	"time"

	"github.com/signagecloud/access-management/internal"
	"github.com/signagecloud/access-management/internal/core/common/validation"
)

type DelegateDTO struct {
	DelegateUserID int64      `json:"delegate_user_id"`
	TenantID       int64      `json:"tenant_id"`
	RoleID         int64      `json:"role_id"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Reason         string     `json:"reason"`
}

func (d DelegateDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("delegate_user_id", d.DelegateUserID).Required()
	v.Field("tenant_id", d.TenantID).Required()
	v.Field("role_id", d.RoleID).Required()
	v.Field("reason", d.Reason).Required().MaxLength(500)
	if d.ExpiresAt != nil {
		v.Field("expires_at", d.ExpiresAt).Future(internal.ErrCodeInvalidExpiry)
	}
	return v.Validate()
}

// delegationMetadata serializes the audit payload for a delegation create.
func delegationMetadata(dto DelegateDTO, level int) string {
	payload := map[string]interface{}{
		"delegate_user_id": dto.DelegateUserID,
		"role_id":          dto.RoleID,
		"reason":           dto.Reason,
		"delegation_level": level,
	}
	if dto.ExpiresAt != nil {
		payload["expires_at"] = dto.ExpiresAt.Format(time.RFC3339)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(b)
}
