package route

import (
	"net/http"
	"strings"
)

// PinnedResponse is served in place of contacting upstream while set.
// A zero Status is served as 200 OK.
type PinnedResponse struct {
	Status  int               `json:"status,omitempty"`
	Headers map[string]string `json:"headers"`
	Payload string            `json:"payload"`
}

// RecordedResponse is one response observed from upstream.
type RecordedResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Payload string            `json:"payload"`
}

// NewRecordedResponse flattens upstream headers into a name->value mapping,
// dropping Content-Length.
func NewRecordedResponse(status int, header http.Header, payload []byte) RecordedResponse {
	headers := make(map[string]string, len(header))
	for name, values := range header {
		if strings.EqualFold(name, "Content-Length") {
			continue
		}
		headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}

	return RecordedResponse{
		Status:  status,
		Headers: headers,
		Payload: string(payload),
	}
}

func (p PinnedResponse) clone() PinnedResponse {
	p.Headers = cloneHeaders(p.Headers)
	return p
}

func cloneHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
