package delegation

import (
	"github.com/signagecloud/access-management/internal"
)

// Delegation precondition failures. Each maps to a 400-level validation
// response; none of them is an access decision.
var (
	ErrDelegationNotPermitted = internal.NewForbiddenError(
		"delegator's role does not permit delegation",
		internal.ErrCodeDelegationNotPermitted,
	)
	ErrDelegationDepthExceeded = internal.NewValidationError(
		"delegation would exceed the role's maximum delegation depth",
		internal.ErrCodeDelegationDepthExceeded,
	)
	ErrAlreadyMember = internal.NewConflictError(
		"delegate already holds an active membership in this tenant",
		internal.ErrCodeAlreadyMember,
	)
	ErrInvalidExpiry = internal.NewValidationError(
		"expiry must be in the future",
		internal.ErrCodeInvalidExpiry,
	)
	ErrRoleEscalation = internal.NewForbiddenError(
		"cannot delegate a role more privileged than your own",
		internal.ErrCodeDelegationRoleEscalation,
	)
	ErrDelegationNotFound = internal.NewNotFoundError(
		"delegation not found",
		internal.ErrCodeDelegationNotFound,
	)
)
