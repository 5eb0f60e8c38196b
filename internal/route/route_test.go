package route_test

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/scope/internal/route"
)

var _ = Describe("NewRecordedResponse", func() {
	It("should drop content-length and flatten headers", func() {
		header := http.Header{}
		header.Set("Content-Length", "5")
		header.Set("Content-Type", "text/plain")
		header.Add("X-Multi", "a")
		header.Add("X-Multi", "b")

		resp := route.NewRecordedResponse(http.StatusTeapot, header, []byte("hello"))

		Expect(resp.Status).To(Equal(http.StatusTeapot))
		Expect(resp.Payload).To(Equal("hello"))
		Expect(resp.Headers).NotTo(HaveKey("content-length"))
		Expect(resp.Headers).To(HaveKeyWithValue("content-type", "text/plain"))
		Expect(resp.Headers).To(HaveKeyWithValue("x-multi", "a, b"))
	})
})

var _ = Describe("Route", func() {
	var (
		registry *route.Registry
		rt       *route.Route
	)

	BeforeEach(func() {
		registry = route.NewRegistry()
		rt, _ = registry.GetOrCreate("GET", "/x")
	})

	It("should start without a pin or history", func() {
		_, pinned := rt.Pinned()
		Expect(pinned).To(BeFalse())
		Expect(rt.Responses()).To(BeEmpty())
	})

	It("should expose its canonical key", func() {
		Expect(rt.Key()).To(Equal(route.Key{Method: "get", Path: "/x"}))
	})

	It("should return copies that do not alias internal state", func() {
		Expect(registry.Pin("GET", "/x", route.PinnedResponse{
			Headers: map[string]string{"x-foo": "bar"},
			Payload: "pinned",
		})).To(Succeed())

		p, _ := rt.Pinned()
		p.Headers["x-foo"] = "changed"

		again, _ := rt.Pinned()
		Expect(again.Headers).To(HaveKeyWithValue("x-foo", "bar"))
	})

	It("should describe itself in Info", func() {
		Expect(registry.RecordResponse("get", "x", route.RecordedResponse{Status: 200, Payload: "a"})).To(Succeed())

		info := rt.Info()
		Expect(info.Method).To(Equal("get"))
		Expect(info.Path).To(Equal("/x"))
		Expect(info.Pinned).To(BeNil())
		Expect(info.Responses).To(HaveLen(1))
	})
})
