// Package upstream forwards intercepted requests to a tap's fixed target
// through httputil.ReverseProxy. Certificate validation is disabled and
// responses are never transparently decompressed, so recorded bodies are
// exactly what upstream sent.
package upstream
