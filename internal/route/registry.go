package route

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrRouteNotFound = errors.New("route not found")

// Registry owns the routes of one tap.
type Registry struct {
	mutex  sync.RWMutex
	routes map[Key]*Route
}

func NewRegistry() *Registry {
	return &Registry{
		routes: make(map[Key]*Route),
	}
}

// GetOrCreate returns the route for (method, path), creating it on first use.
// The second result reports whether this call created it.
func (r *Registry) GetOrCreate(method, path string) (*Route, bool) {
	key := NewKey(method, path)

	r.mutex.RLock()
	rt, exists := r.routes[key]
	r.mutex.RUnlock()

	if exists {
		return rt, false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another request may have created it
	if rt, exists = r.routes[key]; exists {
		return rt, false
	}

	rt = newRoute(key)
	r.routes[key] = rt
	return rt, true
}

func (r *Registry) Get(method, path string) (*Route, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	rt, exists := r.routes[NewKey(method, path)]
	return rt, exists
}

// Pin sets the pinned response of an existing route. Pinning never creates a route.
func (r *Registry) Pin(method, path string, resp PinnedResponse) error {
	rt, err := r.lookup(method, path)
	if err != nil {
		return err
	}

	rt.pin(resp)
	return nil
}

func (r *Registry) Unpin(method, path string) error {
	rt, err := r.lookup(method, path)
	if err != nil {
		return err
	}

	rt.unpin()
	return nil
}

func (r *Registry) RecordResponse(method, path string, resp RecordedResponse) error {
	rt, err := r.lookup(method, path)
	if err != nil {
		return err
	}

	rt.record(resp)
	return nil
}

// ClearResponses empties the history of one route, leaving its pin alone.
func (r *Registry) ClearResponses(method, path string) error {
	rt, err := r.lookup(method, path)
	if err != nil {
		return err
	}

	rt.clearResponses()
	return nil
}

// ClearAll empties the history of every route.
func (r *Registry) ClearAll() {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, rt := range r.routes {
		rt.clearResponses()
	}
}

// Routes returns snapshots of every route ordered by path, then method.
func (r *Registry) Routes() []Info {
	r.mutex.RLock()
	infos := make([]Info, 0, len(r.routes))
	for _, rt := range r.routes {
		infos = append(infos, rt.Info())
	}
	r.mutex.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Path != infos[j].Path {
			return infos[i].Path < infos[j].Path
		}
		return infos[i].Method < infos[j].Method
	})

	return infos
}

func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.routes)
}

func (r *Registry) lookup(method, path string) (*Route, error) {
	rt, exists := r.Get(method, path)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, NewKey(method, path))
	}
	return rt, nil
}
