package rbac

import "time"

// Role is a named, leveled access tier. A lower level means more privilege.
// TenantID is nil for system-wide roles; ParentID is nil for hierarchy roots.
type Role struct {
	ID                 int64     `gorm:"primaryKey"`
	Name               string    `gorm:"column:name;not null"`
	Level              int       `gorm:"column:level;not null"`
	TenantID           *int64    `gorm:"column:tenant_id;index"`
	ParentID           *int64    `gorm:"column:parent_id;index"`
	CanDelegate        bool      `gorm:"column:can_delegate;default:false"`
	MaxDelegationDepth int       `gorm:"column:max_delegation_depth;default:0"`
	IsActive           bool      `gorm:"column:is_active;default:true"`
	CreatedAt          time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt          time.Time `gorm:"column:updated_at;default:now()"`
}

func (Role) TableName() string {
	return "roles"
}

// Permission is an atomic resource.action capability token. Codename is
// globally unique and immutable once any binding references it.
type Permission struct {
	ID        int64     `gorm:"primaryKey"`
	Codename  string    `gorm:"column:codename;uniqueIndex;not null"`
	Name      string    `gorm:"column:name;not null"`
	Category  string    `gorm:"column:category"`
	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
}

func (Permission) TableName() string {
	return "permissions"
}

// RolePermission binds a Permission to a Role as a grant or an explicit deny.
// ObjectID scopes the binding to a single object; nil means global scope.
// A deny with CanOverride=false is terminal for every descendant role.
type RolePermission struct {
	ID           int64      `gorm:"primaryKey"`
	RoleID       int64      `gorm:"column:role_id;index;not null"`
	PermissionID int64      `gorm:"column:permission_id;index;not null"`
	IsGranted    bool       `gorm:"column:is_granted;not null"`
	ObjectID     *string    `gorm:"column:object_id"`
	CanOverride  bool       `gorm:"column:can_override;default:true"`
	ExpiresAt    *time.Time `gorm:"column:expires_at"`
	GrantedBy    *int64     `gorm:"column:granted_by"`
	GrantedAt    time.Time  `gorm:"column:granted_at;default:now()"`
	IsActive     bool       `gorm:"column:is_active;default:true"`
}

func (RolePermission) TableName() string {
	return "role_permissions"
}

// Expired reports whether the binding's expiry has elapsed at the given time.
func (rp *RolePermission) Expired(now time.Time) bool {
	return rp.ExpiresAt != nil && rp.ExpiresAt.Before(now)
}
