package permission

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestPermission(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Permission Module Suite")
}

var _ = Describe("ParseCodename", func() {
	It("accepts the resource.action shape", func() {
		for _, s := range []string{"asset.create", "screen_group.view", "audit.read", "a.b2"} {
			c, err := ParseCodename(s)
			Expect(err).NotTo(HaveOccurred(), s)
			Expect(c.String()).To(Equal(s))
		}
	})

	It("rejects anything else", func() {
		for _, s := range []string{
			"", "asset", "asset.", ".create", "Asset.Create",
			"asset.create.now", "asset creat", "2asset.view", "asset.-view",
		} {
			_, err := ParseCodename(s)
			Expect(err).To(HaveOccurred(), s)
		}
	})

	It("splits resource and action around the dot", func() {
		c, err := ParseCodename("asset.publish")
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Resource()).To(Equal("asset"))
		Expect(c.Action()).To(Equal("publish"))
	})
})
