// Package interceptor implements the per-request decision of a tap: answer
// from a pinned response, or forward upstream and record what came back.
package interceptor
