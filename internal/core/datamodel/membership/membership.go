package membership

import "time"

// UserTenantMembership binds a user to a tenant with exactly one effective
// role. DelegationLevel 0 means a direct assignment; delegated memberships
// carry the delegating user and level = delegator's level + 1. Revocation is a
// soft deactivation, rows are never deleted.
type UserTenantMembership struct {
	ID              int64      `gorm:"primaryKey"`
	UserID          int64      `gorm:"column:user_id;index;not null"`
	TenantID        int64      `gorm:"column:tenant_id;index;not null"`
	RoleID          int64      `gorm:"column:role_id;index;not null"`
	IsPrimary       bool       `gorm:"column:is_primary;default:false"`
	IsActive        bool       `gorm:"column:is_active;default:true"`
	JoinedAt        time.Time  `gorm:"column:joined_at;default:now()"`
	AcceptedAt      *time.Time `gorm:"column:accepted_at"`
	InvitedBy       *int64     `gorm:"column:invited_by"`
	DelegatedBy     *int64     `gorm:"column:delegated_by;index"`
	DelegationLevel int        `gorm:"column:delegation_level;default:0"`
	ExpiresAt       *time.Time `gorm:"column:expires_at"`
	Reason          string     `gorm:"column:reason"`
	CreatedAt       time.Time  `gorm:"column:created_at;default:now()"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;default:now()"`
}

func (UserTenantMembership) TableName() string {
	return "user_tenant_memberships"
}

// Delegated reports whether this membership came through a delegation rather
// than a direct assignment or invitation.
func (m *UserTenantMembership) Delegated() bool {
	return m.DelegationLevel > 0
}

// Expired reports whether a time-boxed membership has lapsed at the given time.
func (m *UserTenantMembership) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && m.ExpiresAt.Before(now)
}

// Pending reports whether this is an invitation awaiting acceptance. A revoked
// membership is also inactive but keeps its acceptance timestamp.
func (m *UserTenantMembership) Pending() bool {
	return !m.IsActive && m.AcceptedAt == nil
}
