package config

import (
	"os"
	"strings"
	"sync/atomic"
)

// Environment is the deployment environment. Production hides error details.
type Environment int32

const (
	Development Environment = iota
	Production
)

// ParseEnvironment maps "production" and "prod" (any case) to Production and
// everything else to Development.
func ParseEnvironment(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "prod":
		return Production
	default:
		return Development
	}
}

// EnvironmentFromEnv reads ENVIRONMENT, falling back to APP_ENV.
func EnvironmentFromEnv() Environment {
	return ParseEnvironment(environmentVariable())
}

func environmentVariable() string {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		return v
	}
	return os.Getenv("APP_ENV")
}

func (e Environment) String() string {
	if e == Production {
		return "production"
	}
	return "development"
}

// IsProduction reports whether e is Production.
func (e Environment) IsProduction() bool { return e == Production }

// EnvironmentFlag holds an Environment that can be swapped while requests are in flight.
// A nil flag reads as Development.
type EnvironmentFlag struct {
	v atomic.Int32
}

// NewEnvironmentFlag creates a flag set to e.
func NewEnvironmentFlag(e Environment) *EnvironmentFlag {
	f := &EnvironmentFlag{}
	f.Set(e)
	return f
}

// Get returns the current environment.
func (f *EnvironmentFlag) Get() Environment {
	if f == nil {
		return Development
	}
	return Environment(f.v.Load())
}

// Set replaces the current environment.
func (f *EnvironmentFlag) Set(e Environment) {
	f.v.Store(int32(e))
}
