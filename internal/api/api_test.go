package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/scope/internal/api"
	"github.com/angeloszaimis/scope/internal/route"
	"github.com/angeloszaimis/scope/internal/tap"
	"github.com/angeloszaimis/scope/pkg/logger"
)

var _ = Describe("API", func() {
	var (
		manager      *tap.Manager
		controlPlane *httptest.Server
		mockUpstream *httptest.Server
		hits         atomic.Int64
	)

	BeforeEach(func() {
		hits.Store(0)
		mockUpstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			_, _ = w.Write([]byte("upstream:" + r.URL.Path))
		}))

		manager = tap.NewManager(logger.Nop(), tap.Options{})
		mux := http.NewServeMux()
		api.New(logger.Nop(), manager).Register(mux)
		controlPlane = httptest.NewServer(mux)
	})

	AfterEach(func() {
		controlPlane.Close()
		Expect(manager.Close(context.Background())).To(Succeed())
		mockUpstream.Close()
	})

	call := func(method, path string, body any) *http.Response {
		var reader io.Reader
		switch b := body.(type) {
		case nil:
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(data)
		}

		req, err := http.NewRequest(method, controlPlane.URL+path, reader)
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	decode := func(resp *http.Response, v any) {
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	createTap := func() tap.Info {
		resp := call(http.MethodPost, "/tap", api.CreateTapRequest{Address: mockUpstream.URL, Label: "svc"})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		var info tap.Info
		decode(resp, &info)
		return info
	}

	hitTap := func(info tap.Info, method, path string) {
		req, err := http.NewRequest(method, fmt.Sprintf("http://127.0.0.1:%d%s", info.Port, path), nil)
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	Describe("taps", func() {
		It("should create, list, get and remove a tap", func() {
			info := createTap()
			Expect(info.ID).To(Equal(1))
			Expect(info.Label).To(Equal("svc"))
			Expect(info.Port).To(BeNumerically(">", 0))

			var list api.TapListResponse
			decode(call(http.MethodGet, "/taps", nil), &list)
			Expect(list.Count).To(Equal(1))
			Expect(list.Taps).To(ConsistOf(info))

			var got tap.Info
			resp := call(http.MethodGet, "/tap/1", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			decode(resp, &got)
			Expect(got).To(Equal(info))

			Expect(call(http.MethodDelete, "/tap/1", nil).StatusCode).To(Equal(http.StatusNoContent))
			Expect(call(http.MethodGet, "/tap/1", nil).StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should reject an invalid upstream address", func() {
			resp := call(http.MethodPost, "/tap", api.CreateTapRequest{Address: "ftp://example.com"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var body api.ErrorResponse
			decode(resp, &body)
			Expect(body.Error).To(Equal("invalid_address"))
		})

		It("should reject a missing address", func() {
			resp := call(http.MethodPost, "/tap", api.CreateTapRequest{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var body api.ErrorResponse
			decode(resp, &body)
			Expect(body.Error).To(Equal("validation_error"))
		})

		It("should reject malformed JSON", func() {
			resp := call(http.MethodPost, "/tap", "{not json")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should report a port in use as a conflict", func() {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			defer ln.Close()

			resp := call(http.MethodPost, "/tap", api.CreateTapRequest{
				Address: mockUpstream.URL,
				Port:    ln.Addr().(*net.TCPAddr).Port,
			})
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))

			var body api.ErrorResponse
			decode(resp, &body)
			Expect(body.Error).To(Equal("port_in_use"))
		})

		It("should reject a non-numeric id", func() {
			Expect(call(http.MethodGet, "/tap/abc", nil).StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should report an unknown tap on removal", func() {
			Expect(call(http.MethodDelete, "/tap/9", nil).StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("routes and pins", func() {
		var info tap.Info

		BeforeEach(func() {
			info = createTap()
		})

		It("should list routes observed by the tap", func() {
			hitTap(info, http.MethodGet, "/users")

			var list api.RouteListResponse
			decode(call(http.MethodGet, "/tap/1/routes", nil), &list)
			Expect(list.Count).To(Equal(1))
			Expect(list.Routes[0].Method).To(Equal("get"))
			Expect(list.Routes[0].Path).To(Equal("/users"))
			Expect(list.Routes[0].Pinned).To(BeNil())
			Expect(list.Routes[0].Responses).To(HaveLen(1))
		})

		It("should pin and unpin a route", func() {
			hitTap(info, http.MethodGet, "/users")
			Expect(hits.Load()).To(BeEquivalentTo(1))

			resp := call(http.MethodPost, "/tap/1/pinned", api.PinRequest{
				Method:   "GET",
				Path:     "/users",
				Response: route.PinnedResponse{Status: http.StatusTeapot, Payload: "pinned"},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			hitTap(info, http.MethodGet, "/users")
			Expect(hits.Load()).To(BeEquivalentTo(1))

			var list api.RouteListResponse
			decode(call(http.MethodGet, "/tap/1/routes", nil), &list)
			Expect(list.Routes[0].Pinned).NotTo(BeNil())
			Expect(list.Routes[0].Pinned.Status).To(Equal(http.StatusTeapot))

			resp = call(http.MethodDelete, "/tap/1/pinned", api.UnpinRequest{Method: "get", Path: "users"})
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			hitTap(info, http.MethodGet, "/users")
			Expect(hits.Load()).To(BeEquivalentTo(2))
		})

		It("should refuse to pin an unseen route", func() {
			resp := call(http.MethodPost, "/tap/1/pinned", api.PinRequest{Method: "GET", Path: "/nope"})
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

			var body api.ErrorResponse
			decode(resp, &body)
			Expect(body.Error).To(Equal("route_not_found"))
		})

		It("should reject a pin with an invalid status", func() {
			hitTap(info, http.MethodGet, "/users")
			resp := call(http.MethodPost, "/tap/1/pinned", api.PinRequest{
				Method:   "GET",
				Path:     "/users",
				Response: route.PinnedResponse{Status: 42},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should reject a pin without method", func() {
			resp := call(http.MethodPost, "/tap/1/pinned", api.PinRequest{Path: "/users"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("responses", func() {
		var info tap.Info

		BeforeEach(func() {
			info = createTap()
			hitTap(info, http.MethodGet, "/a")
			hitTap(info, http.MethodGet, "/a")
			hitTap(info, http.MethodGet, "/b")
		})

		It("should return a route's history", func() {
			resp := call(http.MethodGet, "/tap/1/responses?method=GET&path=/a", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body api.ResponseListResponse
			decode(resp, &body)
			Expect(body.Method).To(Equal("get"))
			Expect(body.Path).To(Equal("/a"))
			Expect(body.Responses).To(HaveLen(2))
			Expect(body.Responses[0].Payload).To(Equal("upstream:/a"))
		})

		It("should require method and path", func() {
			Expect(call(http.MethodGet, "/tap/1/responses?method=GET", nil).StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should report an unknown route", func() {
			Expect(call(http.MethodGet, "/tap/1/responses?method=GET&path=/zzz", nil).StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should clear one route's history", func() {
			Expect(call(http.MethodDelete, "/tap/1/responses?method=GET&path=/a", nil).StatusCode).To(Equal(http.StatusNoContent))

			var a, b api.ResponseListResponse
			decode(call(http.MethodGet, "/tap/1/responses?method=GET&path=/a", nil), &a)
			decode(call(http.MethodGet, "/tap/1/responses?method=GET&path=/b", nil), &b)
			Expect(a.Responses).To(BeEmpty())
			Expect(b.Responses).To(HaveLen(1))
		})

		It("should clear every route's history", func() {
			Expect(call(http.MethodDelete, "/tap/1/responses", nil).StatusCode).To(Equal(http.StatusNoContent))

			var list api.RouteListResponse
			decode(call(http.MethodGet, "/tap/1/routes", nil), &list)
			Expect(list.Count).To(Equal(2))
			for _, r := range list.Routes {
				Expect(r.Responses).To(BeEmpty())
			}
		})

		It("should reject a partial clear query", func() {
			Expect(call(http.MethodDelete, "/tap/1/responses?path=/a", nil).StatusCode).To(Equal(http.StatusBadRequest))
		})
	})
})
