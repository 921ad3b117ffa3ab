package membership

import (
	"time"

	membershipDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/membership"
)

// Membership is the domain view of a user's seat in a tenant. One active
// membership per (user, tenant); the role on it is the user's effective role.
type Membership struct {
	ID              int64
	UserID          int64
	TenantID        int64
	RoleID          int64
	IsPrimary       bool
	IsActive        bool
	JoinedAt        time.Time
	AcceptedAt      *time.Time
	InvitedBy       *int64
	DelegatedBy     *int64
	DelegationLevel int
	ExpiresAt       *time.Time
	Reason          string
}

func (m *Membership) Delegated() bool {
	return m.DelegationLevel > 0
}

// Pending reports an invitation that has not been accepted yet.
func (m *Membership) Pending() bool {
	return !m.IsActive && m.AcceptedAt == nil
}

func FromDataModel(dm *membershipDatamodel.UserTenantMembership) *Membership {
	return &Membership{
		ID:              dm.ID,
		UserID:          dm.UserID,
		TenantID:        dm.TenantID,
		RoleID:          dm.RoleID,
		IsPrimary:       dm.IsPrimary,
		IsActive:        dm.IsActive,
		JoinedAt:        dm.JoinedAt,
		AcceptedAt:      dm.AcceptedAt,
		InvitedBy:       dm.InvitedBy,
		DelegatedBy:     dm.DelegatedBy,
		DelegationLevel: dm.DelegationLevel,
		ExpiresAt:       dm.ExpiresAt,
		Reason:          dm.Reason,
	}
}

func ToDataModel(m *Membership) *membershipDatamodel.UserTenantMembership {
	return &membershipDatamodel.UserTenantMembership{
		ID:              m.ID,
		UserID:          m.UserID,
		TenantID:        m.TenantID,
		RoleID:          m.RoleID,
		IsPrimary:       m.IsPrimary,
		IsActive:        m.IsActive,
		JoinedAt:        m.JoinedAt,
		AcceptedAt:      m.AcceptedAt,
		InvitedBy:       m.InvitedBy,
		DelegatedBy:     m.DelegatedBy,
		DelegationLevel: m.DelegationLevel,
		ExpiresAt:       m.ExpiresAt,
		Reason:          m.Reason,
	}
}

type MembershipResponse struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	TenantID        int64      `json:"tenant_id"`
	RoleID          int64      `json:"role_id"`
	IsPrimary       bool       `json:"is_primary"`
	Pending         bool       `json:"pending,omitempty"`
	JoinedAt        time.Time  `json:"joined_at"`
	DelegatedBy     *int64     `json:"delegated_by,omitempty"`
	DelegationLevel int        `json:"delegation_level"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

func (m *Membership) ToResponse() MembershipResponse {
	return MembershipResponse{
		ID:              m.ID,
		UserID:          m.UserID,
		TenantID:        m.TenantID,
		RoleID:          m.RoleID,
		IsPrimary:       m.IsPrimary,
		Pending:         m.Pending(),
		JoinedAt:        m.JoinedAt,
		DelegatedBy:     m.DelegatedBy,
		DelegationLevel: m.DelegationLevel,
		ExpiresAt:       m.ExpiresAt,
	}
}
