package server

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tjfontaine/server-kit/internal/pkg/config"
)

// StackConfig configures the canonical middleware stack.
type StackConfig struct {
	Logger *slog.Logger

	// Environment controls how much detail error responses reveal.
	Environment *config.EnvironmentFlag

	// RequestTimeout of zero disables the timeout layer.
	RequestTimeout time.Duration

	// Compression enables gzip/deflate response compression.
	Compression bool

	// CORSOrigins enables CORS for the listed origins when not empty.
	CORSOrigins []string

	// Metrics records request metrics when not nil.
	Metrics *Metrics
}

// DefaultLayers returns the canonical layers, innermost first:
// panic recovery, request ID, tracing, timeout, compression, CORS, metrics and
// error normalization. Error normalization is always outermost so every error
// produced by the other layers reaches the client as JSON.
func DefaultLayers(cfg StackConfig) []Layer {
	layers := []Layer{
		chimw.Recoverer,
		RequestIDMiddleware,
		TraceMiddleware(cfg.Logger),
		TimeoutMiddleware(cfg.RequestTimeout),
	}
	if cfg.Compression {
		layers = append(layers, chimw.Compress(5))
	}
	if len(cfg.CORSOrigins) > 0 {
		layers = append(layers, CORSMiddleware(cfg.CORSOrigins))
	}
	if cfg.Metrics != nil {
		layers = append(layers, cfg.Metrics.Middleware)
	}
	return append(layers, JSONErrorMiddleware(cfg.Environment))
}

// ApplyStack registers DefaultLayers on r. chi runs middleware in registration
// order, so the layers are registered outermost first.
func ApplyStack(r chi.Router, cfg StackConfig) {
	layers := DefaultLayers(cfg)
	for i := len(layers) - 1; i >= 0; i-- {
		r.Use(layers[i])
	}
}

// NewRouter constructs a chi router with the canonical middleware stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}
