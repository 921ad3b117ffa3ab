package audit

import "time"

// Actions recorded in the audit trail. Lifecycle actions arrive through the
// event bus; access denials come straight from the resolver.
const (
	ActionAccessDenied = "access.denied"

	ActionRoleCreated        = "role.created"
	ActionRoleUpdated        = "role.updated"
	ActionRoleDeactivated    = "role.deactivated"
	ActionBindingCreated     = "role.binding_created"
	ActionBindingRemoved     = "role.binding_removed"
	ActionPermissionCreated  = "permission.created"
	ActionMembershipCreated  = "membership.created"
	ActionMembershipInvited  = "membership.invited"
	ActionMembershipAccepted = "membership.accepted"
	ActionMembershipRemoved  = "membership.removed"
	ActionMembershipReroled  = "membership.role_changed"
	ActionDelegationCreated  = "delegation.created"
	ActionDelegationRevoked  = "delegation.revoked"
	ActionDelegationExpired  = "delegation.expired"
	ActionTenantCreated      = "tenant.created"
	ActionTenantUpdated      = "tenant.updated"
	ActionTenantDeactivated  = "tenant.deactivated"
)

// Filter narrows an audit trail query. Zero values mean "any".
type Filter struct {
	TenantID *int64
	ActorID  *int64
	Action   string
	Entity   string
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

type EventResponse struct {
	ID         int64       `json:"id"`
	ActorID    *int64      `json:"actor_id,omitempty"`
	TenantID   *int64      `json:"tenant_id,omitempty"`
	Action     string      `json:"action"`
	Entity     string      `json:"entity"`
	EntityID   string      `json:"entity_id"`
	Metadata   interface{} `json:"metadata,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}
