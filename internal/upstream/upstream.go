package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// Forwarding headers set by earlier proxies. Rewrite strips them by default;
// a tap passes them through untouched.
var forwardedHeaders = []string{
	"Forwarded",
	"X-Forwarded-For",
	"X-Forwarded-Host",
	"X-Forwarded-Proto",
}

// Upstream is the target a tap forwards to.
type Upstream struct {
	url       *url.URL
	transport http.RoundTripper
}

// Hooks observe proxied exchanges.
type Hooks struct {
	// OnResponse receives every upstream response with its full body before
	// it is relayed. resp.Request is the outbound request.
	OnResponse func(resp *http.Response, payload []byte)
	// OnError receives failures to reach upstream, before the 502 is written.
	// It is not called when the client has gone away.
	OnError func(r *http.Request, err error)
}

// New creates an Upstream for the given URL using an insecure transport that
// never negotiates or undoes content encoding.
func New(u *url.URL) *Upstream {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	transport.DisableCompression = true

	return &Upstream{
		url:       u,
		transport: transport,
	}
}

// URL returns the upstream base URL.
func (u *Upstream) URL() *url.URL {
	return u.url
}

// ReverseProxy returns a proxy to the upstream that buffers each response so
// hooks.OnResponse can see the body. Outbound requests are bound to the
// client's context, so a disconnecting client aborts the call and nothing is
// written or reported.
func (u *Upstream) ReverseProxy(hooks Hooks) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Transport: u.transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u.url)
			pr.Out.Header.Del("Accept-Encoding")

			for _, name := range forwardedHeaders {
				if values, ok := pr.In.Header[name]; ok {
					pr.Out.Header[name] = values
				}
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			// Upgraded connections are streamed, never buffered
			if resp.StatusCode == http.StatusSwitchingProtocols {
				return nil
			}

			payload, err := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if err != nil {
				return err
			}
			if err := resp.Request.Context().Err(); err != nil {
				return err
			}

			resp.Body = io.NopCloser(bytes.NewReader(payload))

			if hooks.OnResponse != nil {
				hooks.OnResponse(resp, payload)
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, context.Canceled) || r.Context().Err() != nil {
				return
			}

			if hooks.OnError != nil {
				hooks.OnError(r, err)
			}

			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		},
	}
}
