// Package route keeps the per (method, path) state of a tap: an optional
// pinned response and the most recent responses observed from upstream.
package route
