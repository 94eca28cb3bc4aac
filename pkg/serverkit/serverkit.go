// Package serverkit provides the public API for embedding the middleware
// pipeline and server. This is the stable API for external consumers.
package serverkit

import (
	"github.com/tjfontaine/server-kit/internal/auth"
	"github.com/tjfontaine/server-kit/internal/pkg/config"
	"github.com/tjfontaine/server-kit/internal/ratelimit"
	"github.com/tjfontaine/server-kit/internal/server"
	"github.com/tjfontaine/server-kit/internal/telemetry"
)

// Server is an HTTP server with the canonical middleware stack installed.
// See internal/server.Server for full documentation.
type Server = server.Server

// Option is a functional option for configuring a Server.
type Option = server.Option

// Config is the server configuration.
type Config = config.Config

// Layer wraps a handler with additional behavior.
type Layer = server.Layer

// StackConfig configures the canonical middleware stack.
type StackConfig = server.StackConfig

// HandlerFunc is a handler that can fail.
type HandlerFunc = server.HandlerFunc

// Validator decides whether a bearer token is acceptable.
type Validator = auth.Validator

// ValidatorFunc adapts a closure to Validator.
type ValidatorFunc = auth.ValidatorFunc

// New creates a new Server from cfg.
// Example:
//
//	cfg, err := serverkit.NewLoader().WithOptionalFile("config.yaml").Load()
//	srv, err := serverkit.New(cfg, serverkit.WithLogger(logger))
//	srv.Handle("/v1/hello", func(w http.ResponseWriter, r *http.Request) error {
//	    return serverkit.WriteJSON(w, http.StatusOK, map[string]string{"hello": "world"})
//	})
//	err = srv.Start(ctx)
var New = server.New

// Server options
var (
	WithLogger          = server.WithLogger
	WithValidator       = server.WithValidator
	WithRateLimiter     = server.WithRateLimiter
	WithEnvironmentFlag = server.WithEnvironmentFlag
	WithMetricsRegistry = server.WithMetricsRegistry
)

// Middleware composition
var (
	Apply         = server.Apply
	DefaultLayers = server.DefaultLayers
	ApplyStack    = server.ApplyStack
	NewRouter     = server.NewRouter
	WriteJSON     = server.WriteJSON
	AddLogField   = server.AddLogField
	AddError      = server.AddError

	RequestIDMiddleware      = server.RequestIDMiddleware
	TraceMiddleware          = server.TraceMiddleware
	TimeoutMiddleware        = server.TimeoutMiddleware
	JSONErrorMiddleware      = server.JSONErrorMiddleware
	AuthMiddleware           = server.AuthMiddleware
	RateLimitMiddleware      = server.RateLimitMiddleware
	KeyedRateLimitMiddleware = server.KeyedRateLimitMiddleware
	CORSMiddleware           = server.CORSMiddleware
	GetRequestID             = server.GetRequestID
)

// Configuration
var (
	Load               = config.Load
	NewLoader          = config.NewLoader
	NewEnvironmentFlag = config.NewEnvironmentFlag
	Development        = config.Development
	Production         = config.Production
)

// Authentication
var (
	NewJWT     = auth.NewJWT
	NewAPIKeys = auth.NewAPIKeys
	HashAPIKey = auth.HashAPIKey

	ErrForbidden = auth.ErrForbidden
)

// Tracing
var InitTracer = telemetry.InitTracer

// Rate limiting
var (
	NewRateLimiter = ratelimit.New
	PerSecond      = ratelimit.PerSecond
	PerMinute      = ratelimit.PerMinute
)
