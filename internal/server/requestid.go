package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request identifier in both directions.
const RequestIDHeader = "X-Request-Id"

// RequestIDKey is the context key for request IDs
type contextKey string

const RequestIDKey contextKey = "request_id"

// RequestIDMiddleware ensures every request carries an identifier.
// A non-empty X-Request-Id from the caller is kept; otherwise a UUID v4 is
// generated and added to the request headers. The identifier is stored in the
// context and copied to the response, overwriting any value the handler set.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
			r = r.Clone(r.Context())
			r.Header.Set(RequestIDHeader, requestID)
		}
		r = r.WithContext(context.WithValue(r.Context(), RequestIDKey, requestID))

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(&requestIDWriter{ResponseWriter: w, requestID: requestID}, r)
	})
}

// GetRequestID retrieves the request ID from context.
// Returns an empty string if no request ID is set.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// requestIDWriter re-applies the request ID when headers are written.
type requestIDWriter struct {
	http.ResponseWriter
	requestID   string
	wroteHeader bool
}

func (rw *requestIDWriter) WriteHeader(code int) {
	if !rw.wroteHeader && code >= http.StatusOK {
		rw.wroteHeader = true
		rw.Header().Set(RequestIDHeader, rw.requestID)
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *requestIDWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Flush forwards Flush to the underlying ResponseWriter if it supports http.Flusher.
func (rw *requestIDWriter) Flush() {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *requestIDWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
