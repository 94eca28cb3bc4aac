package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tjfontaine/server-kit/internal/core/domain"
	"github.com/tjfontaine/server-kit/internal/logging"
	"github.com/tjfontaine/server-kit/internal/pkg/config"
	"github.com/tjfontaine/server-kit/internal/server"
	"github.com/tjfontaine/server-kit/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to a yaml, toml, json or .env config file")
	watch := flag.Bool("watch", false, "reload the environment setting when the config file changes")
	flag.Parse()

	// Load .env file if it exists
	cfg, err := config.NewLoader().WithDotenv().WithOptionalFile(*configPath).Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger := logging.New(logging.Options{
		Format: logging.ParseFormat(cfg.Logging.Format),
		Level:  level,
	})
	slog.SetDefault(logger)

	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.Setup{
			ServiceName: cfg.Tracing.ServiceName,
			Environment: cfg.Env().String(),
		}.Install(logger)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	srv.Handle("/v1/whoami", whoami)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *watch {
		provider, err := srv.WatchConfig(ctx, *configPath)
		if err != nil {
			logger.Warn("config watch disabled", slog.String("error", err.Error()))
		} else {
			defer provider.Close()
		}
	}

	logger.Info("server configured",
		slog.String("environment", cfg.Env().String()),
		slog.String("addr", cfg.Server.Addr()),
		slog.Bool("auth", cfg.Auth.JWTSecret != "" || len(cfg.Auth.APIKeyHashes) > 0),
		slog.Int("rate_limit", cfg.RateLimit.Requests),
	)

	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// whoami echoes the request ID so clients can correlate logs.
func whoami(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		return domain.NewAPIError(http.StatusMethodNotAllowed, "Only GET is supported")
	}
	return server.WriteJSON(w, http.StatusOK, map[string]string{
		"request_id": server.GetRequestID(r.Context()),
	})
}
