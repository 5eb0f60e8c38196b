package httpserver_test

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/scope/internal/httpserver"
)

var _ = Describe("HTTP Server", func() {
	noop := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	Context("server creation", func() {
		It("creates server with valid address", func() {
			srv, err := httpserver.New("localhost:9999", noop)
			Expect(err).NotTo(HaveOccurred())
			Expect(srv).NotTo(BeNil())
		})

		It("creates server with IP address", func() {
			srv, err := httpserver.New("127.0.0.1:9999", noop)
			Expect(err).NotTo(HaveOccurred())
			Expect(srv).NotTo(BeNil())
		})

		It("handles port-only address", func() {
			srv, err := httpserver.New(":9999", noop)
			Expect(err).NotTo(HaveOccurred())
			Expect(srv).NotTo(BeNil())
		})

		It("rejects invalid address", func() {
			srv, err := httpserver.New("invalid:host:port", noop)
			Expect(err).To(HaveOccurred())
			Expect(srv).To(BeNil())
		})

		It("has no address before listening", func() {
			srv, err := httpserver.New("127.0.0.1:0", noop)
			Expect(err).NotTo(HaveOccurred())
			Expect(srv.Addr()).To(BeNil())
		})
	})

	Context("server lifecycle", func() {
		var testServer *httpserver.Server

		BeforeEach(func() {
			testServer = nil
		})

		AfterEach(func() {
			if testServer != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
				defer cancel()
				_ = testServer.Shutdown(ctx)
			}
		})

		start := func(handler http.Handler, opts ...httpserver.Option) string {
			var err error
			testServer, err = httpserver.New("127.0.0.1:0", handler, opts...)
			Expect(err).NotTo(HaveOccurred())
			Expect(testServer.Listen()).To(Succeed())

			go func() {
				_ = testServer.Serve()
			}()

			return testServer.Addr().String()
		}

		It("starts and handles requests", func() {
			addr := start(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("test"))
			}))

			resp, err := http.Get("http://" + addr)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(Equal("test"))
		})

		It("reports bind failures from Listen", func() {
			taken, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			defer taken.Close()

			srv, err := httpserver.New(taken.Addr().String(), noop)
			Expect(err).NotTo(HaveOccurred())
			Expect(srv.Listen()).NotTo(Succeed())
		})

		It("refuses to listen twice", func() {
			start(noop)
			Expect(testServer.Listen()).NotTo(Succeed())
		})

		It("refuses to serve before listening", func() {
			srv, err := httpserver.New("127.0.0.1:0", noop)
			Expect(err).NotTo(HaveOccurred())
			Expect(srv.Serve()).NotTo(Succeed())
		})

		It("shuts down gracefully and releases the port", func() {
			addr := start(noop)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			Expect(testServer.Shutdown(ctx)).To(Succeed())

			_, err := net.DialTimeout("tcp", addr, time.Second)
			Expect(err).To(HaveOccurred())
		})

		It("releases the port when closed before serving", func() {
			srv, err := httpserver.New("127.0.0.1:0", noop)
			Expect(err).NotTo(HaveOccurred())
			Expect(srv.Listen()).To(Succeed())
			addr := srv.Addr().String()

			Expect(srv.Close()).To(Succeed())

			_, err = net.DialTimeout("tcp", addr, time.Second)
			Expect(err).To(HaveOccurred())
		})

		It("terminates TLS when configured", func() {
			// Borrow httptest's self-signed certificate
			certSource := httptest.NewTLSServer(noop)
			cert := certSource.TLS.Certificates[0]
			certSource.Close()

			addr := start(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("secure"))
			}),
				httpserver.WithTLSConfig(&tls.Config{Certificates: []tls.Certificate{cert}}),
				httpserver.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			)

			client := &http.Client{Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}}
			resp, err := client.Get("https://" + addr)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(Equal("secure"))
		})
	})
})
