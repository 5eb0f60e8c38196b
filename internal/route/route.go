package route

import "sync"

// MaxResponses is how many recorded responses a route keeps.
const MaxResponses = 10

// Route holds the pinned response and recent history for one key.
type Route struct {
	key       Key
	mutex     sync.Mutex
	pinned    *PinnedResponse
	responses []RecordedResponse
}

// Info is a read-only snapshot of a route.
type Info struct {
	Method    string             `json:"method"`
	Path      string             `json:"path"`
	Pinned    *PinnedResponse    `json:"pinned"`
	Responses []RecordedResponse `json:"responses"`
}

func newRoute(key Key) *Route {
	return &Route{
		key:       key,
		responses: []RecordedResponse{},
	}
}

// Key returns the canonical key of the route.
func (r *Route) Key() Key {
	return r.key
}

// Pinned returns a copy of the pinned response, if any.
func (r *Route) Pinned() (PinnedResponse, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.pinned == nil {
		return PinnedResponse{}, false
	}
	return r.pinned.clone(), true
}

func (r *Route) pin(resp PinnedResponse) {
	p := resp.clone()

	r.mutex.Lock()
	r.pinned = &p
	r.mutex.Unlock()
}

func (r *Route) unpin() {
	r.mutex.Lock()
	r.pinned = nil
	r.mutex.Unlock()
}

// record appends resp and evicts the oldest entries beyond MaxResponses.
func (r *Route) record(resp RecordedResponse) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.responses = append(r.responses, resp)
	if trim := len(r.responses) - MaxResponses; trim > 0 {
		r.responses = append([]RecordedResponse(nil), r.responses[trim:]...)
	}
}

func (r *Route) clearResponses() {
	r.mutex.Lock()
	r.responses = []RecordedResponse{}
	r.mutex.Unlock()
}

// Responses returns the recorded history, oldest first.
func (r *Route) Responses() []RecordedResponse {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := make([]RecordedResponse, len(r.responses))
	copy(out, r.responses)
	return out
}

// Info returns a snapshot suitable for display.
func (r *Route) Info() Info {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	info := Info{
		Method:    r.key.Method,
		Path:      r.key.Path,
		Responses: make([]RecordedResponse, len(r.responses)),
	}
	copy(info.Responses, r.responses)

	if r.pinned != nil {
		p := r.pinned.clone()
		info.Pinned = &p
	}

	return info
}
