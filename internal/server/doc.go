/*
Package server assembles the HTTP middleware pipeline and the server around it.

# Overview

A handler is wrapped by an ordered list of layers. Each layer is a plain
func(http.Handler) http.Handler so chi and net/http middleware compose with
the layers defined here. Requests travel from the outermost layer inward and
responses travel back out.

# Middleware Components

## Request ID (requestid.go)

RequestIDMiddleware keeps the caller's X-Request-Id or generates a UUID and adds it to:
  - The request headers and context (accessible via GetRequestID)
  - The X-Request-Id response header

## Tracing (trace.go)

TraceMiddleware provides structured request logging using slog and an OpenTelemetry span:
  - Stores a logger carrying method, path and request_id in the context
  - Logs one completion line (status, latency)
  - Supports custom log fields via AddLogField/AddError

## Timeout (timeout.go)

TimeoutMiddleware enforces request timeouts:
  - Creates context with deadline
  - Answers 408 when the deadline passes before a status was written

## Error normalization (jsonerror.go)

JSONErrorMiddleware turns every non-JSON error response into {"code","message"}.
Production hides the original body.

## Authentication (authmiddleware.go)

AuthMiddleware validates bearer tokens with an auth.Validator:
  - Extracts the token from the Authorization header
  - Rejects with 401 or 403 before the handler runs

## Rate Limiting (ratelimit.go)

RateLimitMiddleware admits requests from a shared token bucket and answers 429
with Retry-After. KeyedRateLimitMiddleware adds a per-client window.

# Middleware Chain Order

DefaultLayers returns the canonical order, outermost last:
 1. Recoverer (catches panics)
 2. RequestIDMiddleware
 3. TraceMiddleware
 4. TimeoutMiddleware
 5. Compress, CORSMiddleware and Metrics when configured
 6. JSONErrorMiddleware

Server adds RateLimitMiddleware and AuthMiddleware to user routes only.

# Example Usage

	// Create server with middleware chain
	srv, err := server.New(cfg, server.WithLogger(logger))

	// Register routes
	srv.Handle("/v1/things", handleThings)

	// Start server
	err = srv.Start(ctx)
*/
package server
