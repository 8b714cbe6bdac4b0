package products_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"darwin.app/engine/internal/products"
)

var _ = Describe("Catalog", func() {
	const doc = `
products:
  - name: Mobile
    repo: acme/mobile-app
    aliases: [ios, android]
  - name: web
    host: gitlab
    repo: acme/platform/web
    default_branch: develop
`

	It("resolves names and aliases case-insensitively with defaults", func() {
		c, err := products.Parse([]byte(doc))
		Expect(err).NotTo(HaveOccurred())

		p, err := c.Lookup("IOS")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name).To(Equal("Mobile"))
		Expect(p.Host).To(Equal(products.HostGitHub))
		Expect(p.DefaultBranch).To(Equal("main"))
		Expect(p.RepoOwner()).To(Equal("acme"))
		Expect(p.RepoName()).To(Equal("mobile-app"))

		web, err := c.Lookup("web")
		Expect(err).NotTo(HaveOccurred())
		Expect(web.RepoOwner()).To(Equal("acme/platform"))
		Expect(web.DefaultBranch).To(Equal("develop"))
		Expect(c.All()).To(HaveLen(2))
	})

	It("reports unknown products", func() {
		c, err := products.Parse([]byte(doc))
		Expect(err).NotTo(HaveOccurred())
		_, err = c.Lookup("desktop")
		Expect(err).To(MatchError(products.ErrUnknownProduct))
	})

	It("rejects duplicate aliases and unknown hosts", func() {
		_, err := products.Parse([]byte("products:\n  - {name: a, repo: x/a}\n  - {name: b, repo: x/b, aliases: [A]}\n"))
		Expect(err).To(HaveOccurred())

		_, err = products.Parse([]byte("products:\n  - {name: a, repo: x/a, host: bitbucket}\n"))
		Expect(err).To(HaveOccurred())
	})

	It("treats a nil catalog as empty", func() {
		var c *products.Catalog
		_, err := c.Lookup("anything")
		Expect(err).To(MatchError(products.ErrUnknownProduct))
	})
})
