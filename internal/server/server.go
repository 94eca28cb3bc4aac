package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/server-kit/internal/adapters/config/file"
	"github.com/tjfontaine/server-kit/internal/auth"
	"github.com/tjfontaine/server-kit/internal/pkg/config"
	"github.com/tjfontaine/server-kit/internal/ratelimit"
)

// Server is an HTTP server with the canonical middleware stack installed.
//
// Routes registered on Router additionally pass through rate limiting and
// authentication. /health, the metrics endpoint and the JSON 404 fallback
// only get the canonical stack.
type Server struct {
	// Router serves user routes.
	Router chi.Router

	mux        *chi.Mux
	cfg        *config.Config
	logger     *slog.Logger
	env        *config.EnvironmentFlag
	validator  auth.Validator
	limiter    *ratelimit.Limiter
	registry   *prometheus.Registry
	metrics    *Metrics
	httpServer *http.Server
}

// Option is a functional option for configuring a Server.
type Option func(*Server) error

// WithLogger sets the logger used by the tracing layer and lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithValidator authenticates user routes with v instead of the configured auth section.
func WithValidator(v auth.Validator) Option {
	return func(s *Server) error {
		s.validator = v
		return nil
	}
}

// WithRateLimiter shares l across user routes instead of the configured rate_limit section.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) error {
		s.limiter = l
		return nil
	}
}

// WithEnvironmentFlag shares an externally controlled environment flag.
func WithEnvironmentFlag(f *config.EnvironmentFlag) Option {
	return func(s *Server) error {
		if f == nil {
			return errors.New("environment flag cannot be nil")
		}
		s.env = f
		return nil
	}
}

// WithMetricsRegistry records metrics into reg and enables the metrics layer.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) error {
		s.registry = reg
		return nil
	}
}

// New builds a server from cfg.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
		env:    config.NewEnvironmentFlag(cfg.Env()),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.registry == nil && cfg.Metrics.Enabled {
		s.registry = prometheus.NewRegistry()
	}
	if s.registry != nil {
		s.metrics = NewMetrics(s.registry)
	}

	if s.validator == nil {
		v, err := ValidatorFromConfig(cfg.Auth)
		if err != nil {
			return nil, err
		}
		s.validator = v
	}

	if s.limiter == nil && cfg.RateLimit.Enabled() {
		var limiterOpts []ratelimit.Option
		if s.registry != nil {
			limiterOpts = append(limiterOpts, ratelimit.WithRegisterer(s.registry))
		}
		l, err := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Period(), limiterOpts...)
		if err != nil {
			return nil, fmt.Errorf("create rate limiter: %w", err)
		}
		s.limiter = l
	}

	r := chi.NewRouter()
	ApplyStack(r, StackConfig{
		Logger:         s.logger,
		Environment:    s.env,
		RequestTimeout: cfg.Server.RequestTimeout(),
		Compression:    cfg.Server.Compression,
		CORSOrigins:    cfg.Server.CORSOrigins,
		Metrics:        s.metrics,
	})
	r.NotFound(notFoundHandler)
	r.Get("/health", healthHandler)
	if s.metrics != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, s.metrics.Handler())
	}

	var userLayers []func(http.Handler) http.Handler
	if cfg.RateLimit.PerClient && cfg.RateLimit.Enabled() {
		userLayers = append(userLayers, KeyedRateLimitMiddleware(cfg.RateLimit.Requests, cfg.RateLimit.Period()))
	}
	userLayers = append(userLayers, RateLimitMiddleware(s.limiter), AuthMiddleware(s.validator))

	s.mux = r
	s.Router = r.With(userLayers...)
	return s, nil
}

// ValidatorFromConfig builds the validator described by the auth section,
// or nil when authentication is not configured.
func ValidatorFromConfig(a config.AuthConfig) (auth.Validator, error) {
	switch {
	case a.JWTSecret != "" && len(a.APIKeyHashes) > 0:
		return nil, errors.New("auth: jwt_secret and api_key_hashes are mutually exclusive")
	case a.JWTSecret != "":
		j, err := auth.NewJWT([]byte(a.JWTSecret), auth.WithLeeway(a.Leeway()))
		if err != nil {
			return nil, err
		}
		return j, nil
	case len(a.APIKeyHashes) > 0:
		return auth.NewAPIKeys(a.APIKeyHashes), nil
	default:
		return nil, nil
	}
}

// Handle registers an error-returning handler on the user router.
func (s *Server) Handle(pattern string, h HandlerFunc) {
	s.Router.Handle(pattern, h)
}

// Environment returns the flag error normalization reads on every request.
func (s *Server) Environment() *config.EnvironmentFlag {
	return s.env
}

// Handler returns the root handler wrapped with OpenTelemetry HTTP instrumentation.
func (s *Server) Handler() http.Handler {
	operation := s.cfg.Tracing.ServiceName
	if operation == "" {
		operation = "server-kit"
	}
	return otelhttp.NewHandler(s.mux, operation)
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Server.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", slog.String("addr", ln.Addr().String()))
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx := context.WithoutCancel(ctx)
	if timeout := s.cfg.Server.ShutdownTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, timeout)
		defer cancel()
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// WatchConfig reloads path on change and applies the new environment to
// in-flight error normalization.
func (s *Server) WatchConfig(ctx context.Context, path string) (*file.Provider, error) {
	provider, err := file.NewProvider(path, s.logger)
	if err != nil {
		return nil, err
	}
	err = provider.Watch(ctx, func(cfg *config.Config) {
		env := cfg.Env()
		if env != s.env.Get() {
			s.logger.Info("environment changed", slog.String("environment", env.String()))
		}
		s.env.Set(env)
	})
	if err != nil {
		return nil, err
	}
	return provider, nil
}
