package server

import "net/http"

// Layer wraps a handler with additional behavior.
// The returned handler must be safe for concurrent use.
type Layer func(http.Handler) http.Handler

// Apply wraps h with layers in order, so the last layer is outermost:
// Apply(h, a, b) is b(a(h)).
func Apply(h http.Handler, layers ...Layer) http.Handler {
	for _, layer := range layers {
		if layer != nil {
			h = layer(h)
		}
	}
	return h
}
