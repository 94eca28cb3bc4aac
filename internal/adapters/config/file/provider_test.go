package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/server-kit/internal/pkg/config"
)

func TestNewProvider_EmptyPath(t *testing.T) {
	_, err := NewProvider("", nil)
	assert.Error(t, err)
}

func TestProvider_Load(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("APP_ENV", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8081\n"), 0o600))

	p, err := NewProvider(path, nil)
	require.NoError(t, err)
	assert.Nil(t, p.Current())

	cfg, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Same(t, cfg, p.Current())
}

func TestProvider_LoadMissing(t *testing.T) {
	p, err := NewProvider(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.NoError(t, err)

	_, err = p.Load(context.Background())
	assert.ErrorIs(t, err, config.ErrNotFound)
}

func TestProvider_Watch(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("APP_ENV", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: development\n"), 0o600))

	p, err := NewProvider(path, nil)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *config.Config, 8)
	require.NoError(t, p.Watch(ctx, func(cfg *config.Config) { changes <- cfg }))

	require.NoError(t, os.WriteFile(path, []byte("environment: production\n"), 0o600))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Env() == config.Production {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for config reload")
		}
	}
}

func TestProvider_WatchAtomicSave(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("APP_ENV", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: development\n"), 0o600))

	p, err := NewProvider(path, nil)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *config.Config, 8)
	require.NoError(t, p.Watch(ctx, func(cfg *config.Config) { changes <- cfg }))

	// Unrelated files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o600))

	tmp := filepath.Join(dir, "config.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("environment: prod\n"), 0o600))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case cfg := <-changes:
		assert.Equal(t, config.Production, cfg.Env())
		assert.Same(t, cfg, p.Current())
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
