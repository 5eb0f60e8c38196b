// Package httpserver binds and serves HTTP listeners for the control plane
// and for every tap. Binding is a separate step so that callers learn about
// an unavailable port before any state is committed.
package httpserver
