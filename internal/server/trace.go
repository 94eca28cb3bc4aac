package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/server-kit/internal/logging"
	"github.com/tjfontaine/server-kit/internal/telemetry"
)

// logFieldsKey identifies request-scoped logging fields.
type logFieldsKey struct{}

// logFields collects fields handlers attach to the request log line.
type logFields struct {
	mu     sync.Mutex
	fields map[string]string
}

func (f *logFields) set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields[key] = value
}

func (f *logFields) attrs() []slog.Attr {
	f.mu.Lock()
	defer f.mu.Unlock()
	attrs := make([]slog.Attr, 0, len(f.fields))
	for k, v := range f.fields {
		attrs = append(attrs, slog.String(k, v))
	}
	return attrs
}

// TraceMiddleware opens a span around each request.
//
// The span carries the method, path and request ID (or "-" when the request has
// none yet). A logger holding those fields is stored in the context, see
// logging.FromContext, and an OpenTelemetry span with the same attributes is
// started. When the inner handler returns, exactly one line is logged with the
// status, latency and any fields added via AddLogField. A panic is logged with
// an error marker and re-raised. Requests and responses pass through unchanged.
func TraceMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	tracer := telemetry.Tracer()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = "-"
			}

			spanLogger := logger.With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("request_id", requestID),
			)

			// Attach mutable log fields map to context for handlers to enrich
			fields := &logFields{fields: make(map[string]string)}
			ctx := context.WithValue(r.Context(), logFieldsKey{}, fields)
			ctx = logging.WithLogger(ctx, spanLogger)

			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("url.path", r.URL.Path),
					attribute.String("http.request_id", requestID),
				),
			)
			defer span.End()

			// Wrap response writer to capture status code
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			spanLogger.DebugContext(ctx, "started processing request")

			defer func() {
				latency := time.Since(start)
				attrs := []slog.Attr{
					slog.Duration("latency", latency),
					slog.Int64("latency_us", latency.Microseconds()),
				}

				if rec := recover(); rec != nil {
					span.SetStatus(codes.Error, "panic")
					attrs = append(attrs,
						slog.String("error", "panic"),
						slog.String("panic", fmt.Sprint(rec)),
					)
					attrs = append(attrs, fields.attrs()...)
					spanLogger.LogAttrs(ctx, slog.LevelError, "finished processing request", attrs...)
					panic(rec)
				}

				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				span.SetAttributes(attribute.Int("http.status_code", status))
				if status >= http.StatusInternalServerError {
					span.SetStatus(codes.Error, http.StatusText(status))
				}

				attrs = append(attrs, slog.Int("status", status))
				attrs = append(attrs, fields.attrs()...)
				spanLogger.LogAttrs(ctx, slog.LevelInfo, "finished processing request", attrs...)
			}()

			next.ServeHTTP(ww, r.WithContext(ctx))
		})
	}
}

// AddLogField attaches a key/value to the request-scoped log fields map so TraceMiddleware can emit it.
// It is safe to call multiple times and from multiple goroutines. No-op if middleware isn't present.
func AddLogField(ctx context.Context, key, value string) {
	if value == "" {
		return
	}
	if fields, ok := ctx.Value(logFieldsKey{}).(*logFields); ok {
		fields.set(key, value)
	}
}

// AddError attaches an error message to the request-scoped log fields map so it
// appears in the structured request log emitted by TraceMiddleware. No-op if
// middleware isn't present or err is nil.
func AddError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	AddLogField(ctx, "error", err.Error())
}
