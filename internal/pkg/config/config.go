package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tjfontaine/server-kit/internal/logging"
)

var (
	// ErrNotFound is returned when a required configuration file does not exist.
	ErrNotFound = errors.New("config file not found")

	// ErrParse is returned when a configuration file cannot be decoded.
	ErrParse = errors.New("config parse error")

	// ErrUnsupportedFormat is returned for file extensions without a parser.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrInvalid is returned by Validate.
	ErrInvalid = errors.New("invalid config")
)

// DefaultEnvPrefix prefixes environment overrides, e.g. SERVERKIT_SERVER__PORT=8080.
const DefaultEnvPrefix = "SERVERKIT_"

type Config struct {
	Environment string          `koanf:"environment"`
	Server      ServerConfig    `koanf:"server"`
	RateLimit   RateLimitConfig `koanf:"rate_limit"`
	Auth        AuthConfig      `koanf:"auth"`
	Logging     LoggingConfig   `koanf:"logging"`
	Metrics     MetricsConfig   `koanf:"metrics"`
	Tracing     TracingConfig   `koanf:"tracing"`
}

type ServerConfig struct {
	Host                string   `koanf:"host"`
	Port                int      `koanf:"port"`
	RequestTimeoutSecs  int      `koanf:"request_timeout_secs"`
	ShutdownTimeoutSecs int      `koanf:"shutdown_timeout_secs"`
	CORSOrigins         []string `koanf:"cors_origins"`
	Compression         bool     `koanf:"compression"`
}

type RateLimitConfig struct {
	Requests   int  `koanf:"requests"`    // 0 disables rate limiting
	PeriodSecs int  `koanf:"period_secs"` // refill period for Requests tokens
	PerClient  bool `koanf:"per_client"`  // additionally limit each client IP to Requests per period
}

type AuthConfig struct {
	JWTSecret     string   `koanf:"jwt_secret"`
	JWTLeewaySecs int      `koanf:"jwt_leeway_secs"`
	APIKeyHashes  []string `koanf:"api_key_hashes"`
}

type LoggingConfig struct {
	Format string `koanf:"format"` // text, json
	Level  string `koanf:"level"`  // debug, info, warn, error
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// Env returns the parsed deployment environment.
func (c *Config) Env() Environment {
	return ParseEnvironment(c.Environment)
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// RequestTimeout returns the per-request deadline. Zero disables it.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSecs) * time.Second
}

// ShutdownTimeout returns the graceful shutdown deadline.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSecs) * time.Second
}

// Enabled reports whether a token bucket should be installed.
func (r RateLimitConfig) Enabled() bool { return r.Requests > 0 }

// Period returns the refill period.
func (r RateLimitConfig) Period() time.Duration {
	return time.Duration(r.PeriodSecs) * time.Second
}

// Leeway returns the tolerated clock skew for token expiry.
func (a AuthConfig) Leeway() time.Duration {
	return time.Duration(a.JWTLeewaySecs) * time.Second
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RequestTimeoutSecs < 0 {
		errs = append(errs, errors.New("server.request_timeout_secs must not be negative"))
	}
	if c.Server.ShutdownTimeoutSecs < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout_secs must not be negative"))
	}
	if c.RateLimit.Requests < 0 {
		errs = append(errs, errors.New("rate_limit.requests must not be negative"))
	}
	if c.RateLimit.Enabled() && c.RateLimit.PeriodSecs <= 0 {
		errs = append(errs, errors.New("rate_limit.period_secs must be positive when requests is set"))
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.APIKeyHashes) > 0 {
		errs = append(errs, errors.New("auth.jwt_secret and auth.api_key_hashes are mutually exclusive"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// FileFormat is a configuration file encoding.
type FileFormat string

const (
	FormatDotenv FileFormat = "dotenv"
	FormatTOML   FileFormat = "toml"
	FormatYAML   FileFormat = "yaml"
	FormatJSON   FileFormat = "json"
)

// DetectFormat infers the format from the file extension.
func DetectFormat(path string) (FileFormat, error) {
	base := filepath.Base(path)
	if base == ".env" || strings.HasSuffix(base, ".env") {
		return FormatDotenv, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func parserFor(format FileFormat) koanf.Parser {
	switch format {
	case FormatTOML:
		return TOMLParser()
	case FormatJSON:
		return json.Parser()
	default:
		return yaml.Parser()
	}
}

// Loader builds a Config from defaults, an optional dotenv file, a config file
// and environment variables, in increasing order of precedence.
type Loader struct {
	dotenvPaths []string
	dotenv      bool
	path        string
	optional    bool
	envPrefix   string
}

// NewLoader creates a loader reading only defaults and the environment.
func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix}
}

// WithDotenv loads the given dotenv files (".env" when none) into the process
// environment before reading it. Missing files are ignored.
func (l *Loader) WithDotenv(paths ...string) *Loader {
	l.dotenv = true
	l.dotenvPaths = paths
	return l
}

// WithFile reads a required configuration file.
func (l *Loader) WithFile(path string) *Loader {
	l.path = path
	l.optional = false
	return l
}

// WithOptionalFile reads a configuration file if it exists.
func (l *Loader) WithOptionalFile(path string) *Loader {
	l.path = path
	l.optional = true
	return l
}

// WithEnvPrefix overrides DefaultEnvPrefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Path returns the configured file path.
func (l *Loader) Path() string { return l.path }

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load loads config.yaml if present plus environment overrides.
func Load() (*Config, error) {
	return NewLoader().WithOptionalFile("config.yaml").Load()
}

// Load builds and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if l.dotenv {
		if err := loadDotenv(l.dotenvPaths...); err != nil {
			return nil, err
		}
	}

	k := koanf.New(".")

	if l.path != "" {
		if err := l.loadFile(k); err != nil {
			return nil, err
		}
	}

	if v := environmentVariable(); v != "" {
		if err := k.Set("environment", v); err != nil {
			return nil, err
		}
	}

	prefix := l.envPrefix
	if err := k.Load(env.Provider(prefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, prefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	cfg.Server.CORSOrigins = splitList(cfg.Server.CORSOrigins)
	cfg.Auth.APIKeyHashes = splitList(cfg.Auth.APIKeyHashes)
	cfg.Auth.JWTSecret = substituteEnvVars(cfg.Auth.JWTSecret)
	for i := range cfg.Auth.APIKeyHashes {
		cfg.Auth.APIKeyHashes[i] = substituteEnvVars(cfg.Auth.APIKeyHashes[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) loadFile(k *koanf.Koanf) error {
	format, err := DetectFormat(l.path)
	if err != nil {
		return err
	}

	if _, err := os.Stat(l.path); err != nil {
		if os.IsNotExist(err) {
			if l.optional {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrNotFound, l.path)
		}
		return err
	}

	if format == FormatDotenv {
		if err := godotenv.Load(l.path); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrParse, l.path, err)
		}
		return nil
	}

	if err := k.Load(file.Provider(l.path), parserFor(format)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrParse, l.path, err)
	}
	return nil
}

func loadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: %s: %w", ErrParse, p, err)
		}
	}
	return nil
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"environment":                  Development.String(),
		"server.host":                  "0.0.0.0",
		"server.port":                  3000,
		"server.request_timeout_secs":  30,
		"server.shutdown_timeout_secs": 30,
		"rate_limit.period_secs":       1,
		"logging.format":               string(logging.FormatFromEnv()),
		"logging.level":                logging.LevelFromEnv(),
		"metrics.path":                 "/metrics",
		"tracing.service_name":         "server-kit",
	}
	for key, v := range defaults {
		if !k.Exists(key) {
			_ = k.Set(key, v)
		}
	}
}

// splitList expands comma separated entries, as produced by environment overrides.
func splitList(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
