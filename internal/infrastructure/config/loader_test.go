package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/cmdai-go/internal/pkg/logger"
)

func TestLoad_FirstRunWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	l := NewFileLoader(path, logger.Nop{})

	cfg, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, []string{"embedded", "ollama", "openai", "static"}, cfg.OrderedBackends())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoad_ReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
preferences:
  backend_order: [static]
  output: json
generation:
  timeout: 5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := NewFileLoader(path, logger.Nop{}).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"static"}, cfg.OrderedBackends())
	assert.Equal(t, 5, cfg.Generation.TimeoutSeconds)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("preferences: ["), 0o600))

	_, err := NewFileLoader(path, logger.Nop{}).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "preferences:\n  backend_order: [warpdrive]\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := NewFileLoader(path, logger.Nop{}).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestPath_EnvOverride(t *testing.T) {
	t.Setenv("CMDAI_CONFIG", "/tmp/elsewhere/cmdai.yaml")
	l := NewFileLoader("", logger.Nop{})
	assert.Equal(t, "/tmp/elsewhere/cmdai.yaml", l.Path())

	explicit := NewFileLoader("/etc/cmdai.yaml", logger.Nop{})
	assert.Equal(t, "/etc/cmdai.yaml", explicit.Path(), "explicit path wins over the environment")
}

func TestLoad_EmbeddedDefaultParsesAndValidates(t *testing.T) {
	// A first run followed by a reload exercises the embedded template both
	// as written bytes and as parsed config.
	path := filepath.Join(t.TempDir(), "config.yaml")
	l := NewFileLoader(path, logger.Nop{})

	first, err := l.Load(context.Background())
	require.NoError(t, err)
	second, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	require.NoError(t, second.ValidateConsistency())
}
