// Package api exposes the tap manager over a JSON HTTP control plane:
// creating and removing taps, listing routes, pinning responses and
// reading or clearing recorded history.
package api
