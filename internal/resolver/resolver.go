package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	membershipDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/membership"
	rbacDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/rbac"
	"github.com/signagecloud/access-management/internal/permission"
)

// Source tags where a decision came from, for audit provenance.
type Source string

const (
	SourceDirect         Source = "direct"
	SourceInherited      Source = "inherited"
	SourceDelegated      Source = "delegated"
	SourceDeniedExplicit Source = "denied_explicit"
	SourceDeniedDefault  Source = "denied_default"
)

// Decision is the outcome of a permission check. Denial is a value, never an
// error: callers cannot bypass a deny through unhandled-error fallthrough.
type Decision struct {
	Granted bool   `json:"granted"`
	Source  Source `json:"source"`
}

var (
	// ErrUnknownPermission marks a codename absent from the registry: a
	// configuration defect that fails closed, not an access decision.
	ErrUnknownPermission = errors.New("unknown permission codename")
	// ErrBrokenHierarchy marks a cycle or dangling parent in the role chain,
	// which indicates data corruption rather than a legitimate deny.
	ErrBrokenHierarchy = errors.New("role hierarchy is broken")
)

// RepositoryAPI is the read-only query surface the resolver needs. The walk is
// bounded: chain depth is small in practice and the repository guards against
// administrator-introduced cycles.
type RepositoryAPI interface {
	// FindActiveMembership returns the active, non-expired membership of the
	// user in the tenant, or nil.
	FindActiveMembership(ctx context.Context, userID, tenantID int64) (*membershipDatamodel.UserTenantMembership, error)
	// FindRoleChain returns the ordered ancestor chain leaf to root starting
	// at roleID. It must terminate on cycles and report them as an error.
	FindRoleChain(ctx context.Context, roleID int64) ([]*rbacDatamodel.Role, error)
	// FindRolePermissions returns the active, non-expired bindings for the
	// permission across the given roles.
	FindRolePermissions(ctx context.Context, roleIDs []int64, permissionID int64) ([]*rbacDatamodel.RolePermission, error)
}

// AuditSink receives every denied decision. Implementations must never block
// the decision path on failure.
type AuditSink interface {
	RecordAccessDecision(ctx context.Context, userID, tenantID int64, permission string, objectID *string, decision Decision)
}

// Resolver evaluates (user, tenant, permission, object) tuples against the
// role hierarchy and delegation chain. It is stateless and safe for
// concurrent use; it performs no writes.
type Resolver struct {
	repo     RepositoryAPI
	registry *permission.Service
	cache    *DecisionCache
	audit    AuditSink
	logger   *slog.Logger
}

func NewResolver(repo RepositoryAPI, registry *permission.Service, cache *DecisionCache, audit AuditSink, logger *slog.Logger) *Resolver {
	return &Resolver{
		repo:     repo,
		registry: registry,
		cache:    cache,
		audit:    audit,
		logger:   logger,
	}
}

// Resolve walks the membership's role chain leaf to root and produces a single
// decision with provenance. Precedence: a non-overridable deny anywhere in the
// chain is terminal; otherwise the most specific explicit verdict wins, with
// an object-scoped binding outranking a global one within the same role; no
// match anywhere defaults to deny.
func (r *Resolver) Resolve(ctx context.Context, userID, tenantID int64, codename permission.Codename, objectID *string) (Decision, error) {
	perm, err := r.registry.Lookup(codename)
	if err != nil {
		r.logger.Error("permission lookup failed", "codename", codename, "error", err)
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownPermission, codename)
	}

	decision, err := r.resolve(ctx, userID, tenantID, perm, codename, objectID, make(map[int64]bool))
	if err != nil {
		return Decision{}, err
	}

	if !decision.Granted {
		r.recordDenial(ctx, userID, tenantID, codename, objectID, decision)
	}
	return decision, nil
}

// resolve carries the set of users already visited along the delegation chain
// so a corrupted delegated_by graph cannot recurse forever.
func (r *Resolver) resolve(ctx context.Context, userID, tenantID int64, perm *permission.Permission, codename permission.Codename, objectID *string, visited map[int64]bool) (Decision, error) {
	if visited[userID] {
		r.logger.Error("delegation chain contains a cycle", "user_id", userID, "tenant_id", tenantID)
		return Decision{}, ErrBrokenHierarchy
	}
	visited[userID] = true

	m, err := r.repo.FindActiveMembership(ctx, userID, tenantID)
	if err != nil {
		return Decision{}, err
	}
	if m == nil || m.TenantID != tenantID || m.Expired(time.Now()) {
		return Decision{Granted: false, Source: SourceDeniedDefault}, nil
	}

	chain, err := r.repo.FindRoleChain(ctx, m.RoleID)
	if err != nil {
		return Decision{}, err
	}
	if len(chain) == 0 {
		return Decision{}, ErrBrokenHierarchy
	}

	roleIDs := make([]int64, len(chain))
	for i, role := range chain {
		roleIDs[i] = role.ID
	}

	var key string
	if r.cache != nil {
		key = r.cache.Key(userID, tenantID, codename, objectID, m, roleIDs)
		if d, hit := r.cache.Get(key); hit {
			return d, nil
		}
	}

	bindings, err := r.repo.FindRolePermissions(ctx, roleIDs, perm.ID)
	if err != nil {
		return Decision{}, err
	}

	decision := evaluateChain(roleIDs, bindings, objectID)

	if decision.Granted && m.Delegated() {
		decision, err = r.revalidateDelegator(ctx, m, tenantID, perm, codename, objectID, visited)
		if err != nil {
			return Decision{}, err
		}
	}

	// A delegated grant also depends on the delegator's chain, which this
	// key does not fingerprint, so it is never cached. The delegator's own
	// decision is cached under the delegator's key above.
	if decision.Granted && !m.Delegated() && r.cache != nil {
		r.cache.Add(key, decision)
	}

	return decision, nil
}

// evaluateChain applies the precedence rules over the leaf-to-root chain.
// roleIDs[0] is the membership's own role.
func evaluateChain(roleIDs []int64, bindings []*rbacDatamodel.RolePermission, objectID *string) Decision {
	byRole := make(map[int64][]*rbacDatamodel.RolePermission, len(bindings))
	now := time.Now()
	for _, b := range bindings {
		if !b.IsActive || b.Expired(now) {
			continue
		}
		byRole[b.RoleID] = append(byRole[b.RoleID], b)
	}

	var (
		verdict      *bool
		verdictDepth int
		lockedDeny   bool
	)

	for depth, roleID := range roleIDs {
		b := selectBinding(byRole[roleID], objectID)
		if b == nil {
			continue
		}
		if !b.IsGranted && !b.CanOverride {
			lockedDeny = true
		}
		if verdict == nil {
			granted := b.IsGranted
			verdict = &granted
			verdictDepth = depth
		}
	}

	switch {
	case lockedDeny:
		return Decision{Granted: false, Source: SourceDeniedExplicit}
	case verdict == nil:
		return Decision{Granted: false, Source: SourceDeniedDefault}
	case !*verdict:
		return Decision{Granted: false, Source: SourceDeniedExplicit}
	case verdictDepth == 0:
		return Decision{Granted: true, Source: SourceDirect}
	default:
		return Decision{Granted: true, Source: SourceInherited}
	}
}

// selectBinding picks the strongest binding within one role: an object-scoped
// match outranks a global (nil object) one.
func selectBinding(bindings []*rbacDatamodel.RolePermission, objectID *string) *rbacDatamodel.RolePermission {
	var global *rbacDatamodel.RolePermission
	for _, b := range bindings {
		if b.ObjectID != nil {
			if objectID != nil && *b.ObjectID == *objectID {
				return b
			}
			continue
		}
		if global == nil {
			global = b
		}
	}
	return global
}

// revalidateDelegator re-checks that the delegating user still independently
// holds the permission: delegated authority can never exceed the delegator's
// current authority. A delegated grant that survives reports its provenance
// as delegated.
func (r *Resolver) revalidateDelegator(ctx context.Context, m *membershipDatamodel.UserTenantMembership, tenantID int64, perm *permission.Permission, codename permission.Codename, objectID *string, visited map[int64]bool) (Decision, error) {
	if m.DelegatedBy == nil {
		return Decision{}, ErrBrokenHierarchy
	}

	delegatorDecision, err := r.resolve(ctx, *m.DelegatedBy, tenantID, perm, codename, objectID, visited)
	if err != nil {
		return Decision{}, err
	}
	if !delegatorDecision.Granted {
		return Decision{Granted: false, Source: SourceDeniedExplicit}, nil
	}
	return Decision{Granted: true, Source: SourceDelegated}, nil
}

func (r *Resolver) recordDenial(ctx context.Context, userID, tenantID int64, codename permission.Codename, objectID *string, decision Decision) {
	r.logger.Warn("access denied",
		"user_id", userID,
		"tenant_id", tenantID,
		"permission", codename,
		"source", decision.Source)
	if r.audit != nil {
		r.audit.RecordAccessDecision(ctx, userID, tenantID, codename.String(), objectID, decision)
	}
}
