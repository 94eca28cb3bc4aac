package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv isolates a test from the caller's environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ENVIRONMENT", "APP_ENV", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		in   string
		want Environment
	}{
		{"production", Production},
		{"PRODUCTION", Production},
		{"prod", Production},
		{" Prod ", Production},
		{"development", Development},
		{"staging", Development},
		{"", Development},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseEnvironment(tt.in))
		})
	}
}

func TestEnvironmentFromEnv(t *testing.T) {
	clearEnv(t)
	assert.Equal(t, Development, EnvironmentFromEnv())

	t.Setenv("APP_ENV", "prod")
	assert.Equal(t, Production, EnvironmentFromEnv())

	t.Setenv("ENVIRONMENT", "development")
	assert.Equal(t, Development, EnvironmentFromEnv(), "ENVIRONMENT takes precedence over APP_ENV")
}

func TestEnvironmentFlag(t *testing.T) {
	var nilFlag *EnvironmentFlag
	assert.Equal(t, Development, nilFlag.Get())

	f := NewEnvironmentFlag(Production)
	assert.True(t, f.Get().IsProduction())
	f.Set(Development)
	assert.Equal(t, "development", f.Get().String())
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path    string
		want    FileFormat
		wantErr bool
	}{
		{".env", FormatDotenv, false},
		{"/etc/app/prod.env", FormatDotenv, false},
		{"config.toml", FormatTOML, false},
		{"config.yaml", FormatYAML, false},
		{"config.YML", FormatYAML, false},
		{"config.json", FormatJSON, false},
		{"config.ini", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := DetectFormat(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoader_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, Development, cfg.Env())
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:3000", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout())
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout())
	assert.False(t, cfg.RateLimit.Enabled())
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoader_YAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", `
environment: production
server:
  port: 8080
  request_timeout_secs: 5
  cors_origins:
    - https://example.com
rate_limit:
  requests: 100
  period_secs: 60
auth:
  jwt_secret: ${TEST_JWT_SECRET}
`)
	t.Setenv("TEST_JWT_SECRET", "s3cret")

	cfg, err := NewLoader().WithFile(path).Load()
	require.NoError(t, err)

	assert.Equal(t, Production, cfg.Env())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout())
	assert.Equal(t, []string{"https://example.com"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.RateLimit.Enabled())
	assert.Equal(t, time.Minute, cfg.RateLimit.Period())
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestLoader_TOML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", `
environment = "prod"

[server]
host = "127.0.0.1"
port = 9090

[logging]
format = "json"
level = "debug"
`)

	cfg, err := NewLoader().WithFile(path).Load()
	require.NoError(t, err)

	assert.Equal(t, Production, cfg.Env())
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoader_JSON(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.json", `{"server":{"port":4000},"metrics":{"enabled":true}}`)

	cfg, err := NewLoader().WithFile(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoader_DotenvFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "app.env", "SERVERKIT_SERVER__PORT=7070\n")
	t.Cleanup(func() { os.Unsetenv("SERVERKIT_SERVER__PORT") })

	cfg, err := NewLoader().WithFile(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoader_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", "server:\n  port: 8080\n")
	t.Setenv("SERVERKIT_SERVER__PORT", "9999")
	t.Setenv("SERVERKIT_SERVER__CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("APP_ENV", "production")

	cfg, err := NewLoader().WithFile(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, Production, cfg.Env())
}

func TestLoader_PrefixedEnvironmentWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("SERVERKIT_ENVIRONMENT", "development")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, Development, cfg.Env())
}

func TestLoader_MissingFile(t *testing.T) {
	clearEnv(t)
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	_, err := NewLoader().WithFile(missing).Load()
	assert.ErrorIs(t, err, ErrNotFound)

	cfg, err := NewLoader().WithOptionalFile(missing).Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoader_ParseError(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.json", `{"server": `)

	_, err := NewLoader().WithFile(path).Load()
	assert.ErrorIs(t, err, ErrParse)
}

func TestLoader_WithDotenv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.env")
	require.NoError(t, os.WriteFile(path, []byte("SERVERKIT_LOGGING__LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SERVERKIT_LOGGING__LEVEL") })

	cfg, err := NewLoader().WithDotenv(path, filepath.Join(dir, "missing.env")).Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: 3000, RequestTimeoutSecs: 30},
			Logging: LoggingConfig{Level: "info"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"negative timeout", func(c *Config) { c.Server.RequestTimeoutSecs = -1 }},
		{"rate limit without period", func(c *Config) { c.RateLimit.Requests = 10 }},
		{"negative requests", func(c *Config) { c.RateLimit.Requests = -1 }},
		{"both jwt and api keys", func(c *Config) {
			c.Auth.JWTSecret = "s"
			c.Auth.APIKeyHashes = []string{"h"}
		}},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
