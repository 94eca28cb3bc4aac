package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// TimeoutMiddleware enforces request timeouts.
// The inner handler runs with a context that is cancelled after timeout. If the
// deadline passes before the handler has written a status, a 408 with an empty
// body is sent and later writes from the handler fail with http.ErrHandlerTimeout.
// A non-positive timeout disables the layer.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			tw := &timeoutWriter{w: w, h: w.Header().Clone()}
			done := make(chan struct{})
			panicChan := make(chan any, 1)

			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicChan <- p
					}
				}()
				next.ServeHTTP(tw, r.WithContext(ctx))
				close(done)
			}()

			select {
			case p := <-panicChan:
				panic(p)
			case <-done:
				tw.finish()
			case <-ctx.Done():
				select {
				case <-done:
					tw.finish()
					return
				default:
				}
				tw.expire(errors.Is(ctx.Err(), context.DeadlineExceeded))
			}
		})
	}
}

// timeoutWriter passes writes through until the request expires.
// Headers are staged in h so a late handler cannot touch the live header map.
type timeoutWriter struct {
	w http.ResponseWriter
	h http.Header

	mu          sync.Mutex
	wroteHeader bool
	timedOut    bool
}

func (tw *timeoutWriter) Header() http.Header { return tw.h }

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.wroteHeader {
		return
	}
	tw.writeHeaderLocked(code)
}

func (tw *timeoutWriter) writeHeaderLocked(code int) {
	dst := tw.w.Header()
	for k := range dst {
		if _, ok := tw.h[k]; !ok {
			delete(dst, k)
		}
	}
	for k, vv := range tw.h {
		dst[k] = vv
	}
	if code >= http.StatusOK {
		tw.wroteHeader = true
	}
	tw.w.WriteHeader(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if !tw.wroteHeader {
		tw.writeHeaderLocked(http.StatusOK)
	}
	return tw.w.Write(b)
}

// Flush forwards Flush to the underlying ResponseWriter if it supports http.Flusher.
func (tw *timeoutWriter) Flush() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return
	}
	if !tw.wroteHeader {
		tw.writeHeaderLocked(http.StatusOK)
	}
	if f, ok := tw.w.(http.Flusher); ok {
		f.Flush()
	}
}

// finish commits the headers of a handler that returned without writing.
func (tw *timeoutWriter) finish() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if !tw.wroteHeader {
		tw.writeHeaderLocked(http.StatusOK)
	}
}

// expire stops the handler from writing. When the deadline passed before a
// status was sent, the client receives 408.
func (tw *timeoutWriter) expire(deadline bool) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.timedOut = true
	if deadline && !tw.wroteHeader {
		tw.wroteHeader = true
		tw.w.WriteHeader(http.StatusRequestTimeout)
	}
}
