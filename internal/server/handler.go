package server

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tjfontaine/server-kit/internal/core/domain"
)

// HandlerFunc is a handler that can fail.
//
// Errors implementing domain.HTTPError are written as their own status with a
// JSON error body. Any other error becomes a plain-text 500 so the error
// normalization layer decides whether its text may be shown. Once the handler
// has written a status the error is only logged.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// ServeHTTP implements http.Handler.
func (f HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
	err := f(ww, r)
	if err == nil {
		return
	}
	AddError(r.Context(), err)
	if ww.Status() != 0 {
		return
	}

	var httpErr domain.HTTPError
	if errors.As(err, &httpErr) {
		domain.WriteHTTPError(w, err)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// WriteJSON writes v as a JSON response with status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var notFoundResponse = domain.NewErrorResponse("NOT_FOUND", "The requested resource was not found")

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	domain.WriteResponse(w, http.StatusNotFound, notFoundResponse)
}
