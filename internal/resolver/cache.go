package resolver

import (
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	membershipDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/membership"
	"github.com/signagecloud/access-management/internal/permission"
)

// DecisionCache holds granted decisions behind a role-chain fingerprint.
// Every cache key embeds a generation counter per role in the chain and per
// membership; bumping a generation makes all keys built on the old value
// unreachable, so invalidation is synchronous without scanning the LRU. The
// TTL bounds residency of entries orphaned by a bump.
type DecisionCache struct {
	entries *lru.LRU[string, Decision]

	mu            sync.RWMutex
	roleGen       map[int64]uint64
	membershipGen map[string]uint64
}

func NewDecisionCache(maxEntries int, ttl time.Duration) *DecisionCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &DecisionCache{
		entries:       lru.NewLRU[string, Decision](maxEntries, nil, ttl),
		roleGen:       make(map[int64]uint64),
		membershipGen: make(map[string]uint64),
	}
}

// Key builds the fingerprinted cache key for a decision.
func (c *DecisionCache) Key(userID, tenantID int64, codename permission.Codename, objectID *string, m *membershipDatamodel.UserTenantMembership, chain []int64) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "u%d:t%d:p%s", userID, tenantID, codename)
	if objectID != nil {
		fmt.Fprintf(&sb, ":o%s", *objectID)
	}
	fmt.Fprintf(&sb, ":m%d.%d", m.ID, c.membershipGen[memberKey(userID, tenantID)])
	for _, roleID := range chain {
		fmt.Fprintf(&sb, ":r%d.%d", roleID, c.roleGen[roleID])
	}
	return sb.String()
}

func (c *DecisionCache) Get(key string) (Decision, bool) {
	return c.entries.Get(key)
}

// Add stores a decision. Only granted decisions are worth caching; denials are
// cheap to recompute and must always reach the audit trail. The resolver keeps
// delegated grants out as well: their validity tracks the delegator's chain,
// which the key does not fingerprint.
func (c *DecisionCache) Add(key string, d Decision) {
	if !d.Granted {
		return
	}
	c.entries.Add(key, d)
}

// InvalidateRoles makes every cached decision whose chain includes any of the
// roles unreachable. Called synchronously on role or binding mutation.
func (c *DecisionCache) InvalidateRoles(roleIDs ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range roleIDs {
		c.roleGen[id]++
	}
}

// InvalidateMembership drops cached decisions for one user in one tenant,
// called on membership create, revoke or expiry.
func (c *DecisionCache) InvalidateMembership(userID, tenantID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.membershipGen[memberKey(userID, tenantID)]++
}

// Purge drops everything, for tests and administrative resets.
func (c *DecisionCache) Purge() {
	c.entries.Purge()
}

func memberKey(userID, tenantID int64) string {
	return fmt.Sprintf("%d:%d", userID, tenantID)
}
