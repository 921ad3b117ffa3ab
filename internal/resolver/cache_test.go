package resolver

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	membershipDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/membership"
)

var _ = Describe("DecisionCache", func() {
	var cache *DecisionCache

	m := &membershipDatamodel.UserTenantMembership{ID: 100, UserID: 1, TenantID: 5, RoleID: 10}
	chain := []int64{10, 20, 30}

	BeforeEach(func() {
		cache = NewDecisionCache(16, time.Minute)
	})

	It("builds stable keys for identical inputs", func() {
		a := cache.Key(1, 5, "asset.publish", nil, m, chain)
		b := cache.Key(1, 5, "asset.publish", nil, m, chain)
		Expect(a).To(Equal(b))
	})

	It("separates object-scoped checks from global ones", func() {
		screen := "screen-42"
		global := cache.Key(1, 5, "asset.publish", nil, m, chain)
		scoped := cache.Key(1, 5, "asset.publish", &screen, m, chain)
		Expect(scoped).NotTo(Equal(global))
	})

	It("changes keys when a chain role generation is bumped", func() {
		before := cache.Key(1, 5, "asset.publish", nil, m, chain)
		cache.InvalidateRoles(20)
		Expect(cache.Key(1, 5, "asset.publish", nil, m, chain)).NotTo(Equal(before))
	})

	It("leaves keys untouched when an unrelated role is bumped", func() {
		before := cache.Key(1, 5, "asset.publish", nil, m, chain)
		cache.InvalidateRoles(999)
		Expect(cache.Key(1, 5, "asset.publish", nil, m, chain)).To(Equal(before))
	})

	It("changes keys when the membership generation is bumped", func() {
		before := cache.Key(1, 5, "asset.publish", nil, m, chain)
		cache.InvalidateMembership(1, 5)
		Expect(cache.Key(1, 5, "asset.publish", nil, m, chain)).NotTo(Equal(before))
	})

	It("stores grants and refuses denials", func() {
		key := cache.Key(1, 5, "asset.publish", nil, m, chain)

		cache.Add(key, Decision{Granted: false, Source: SourceDeniedExplicit})
		_, hit := cache.Get(key)
		Expect(hit).To(BeFalse())

		cache.Add(key, Decision{Granted: true, Source: SourceDirect})
		d, hit := cache.Get(key)
		Expect(hit).To(BeTrue())
		Expect(d.Source).To(Equal(SourceDirect))
	})

	It("drops everything on purge", func() {
		key := cache.Key(1, 5, "asset.publish", nil, m, chain)
		cache.Add(key, Decision{Granted: true, Source: SourceDirect})

		cache.Purge()

		_, hit := cache.Get(key)
		Expect(hit).To(BeFalse())
	})
})
