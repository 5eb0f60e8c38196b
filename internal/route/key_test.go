package route_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/scope/internal/route"
)

var _ = Describe("Key", func() {
	DescribeTable("normalization",
		func(method, path string, expected route.Key) {
			Expect(route.NewKey(method, path)).To(Equal(expected))
		},
		Entry("lowercases the method", "GET", "/foo", route.Key{Method: "get", Path: "/foo"}),
		Entry("adds a missing leading slash", "get", "foo", route.Key{Method: "get", Path: "/foo"}),
		Entry("keeps an existing leading slash", "post", "/a/b", route.Key{Method: "post", Path: "/a/b"}),
		Entry("maps the empty path to root", "GET", "", route.Key{Method: "get", Path: "/"}),
	)

	It("should treat bare and slashed paths as the same key", func() {
		Expect(route.NewKey("GET", "foo")).To(Equal(route.NewKey("get", "/foo")))
	})

	It("should render as METHOD path", func() {
		Expect(route.NewKey("get", "x").String()).To(Equal("GET /x"))
	})
})
