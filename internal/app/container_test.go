package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildContainerFromEmptyHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CMDAI_HOME", home)
	t.Setenv("CMDAI_CONFIG", "")

	container, err := BuildContainer(context.Background(), false, nil)
	require.NoError(t, err)

	// First run writes the default config next to the other app state.
	assert.Equal(t, filepath.Join(home, "config.yaml"), container.ConfigPath)
	_, statErr := os.Stat(container.ConfigPath)
	require.NoError(t, statErr)

	require.NotNil(t, container.Generator)
	require.NotNil(t, container.Doctor)
	require.NotNil(t, container.History)
	require.NotNil(t, container.Models)

	assert.Equal(t, []string{"embedded", "ollama", "openai", "static"}, container.Cfg.OrderedBackends())
	assert.Len(t, container.Generator.Registry.Backends(), 4)

	_, err = uuid.Parse(container.SessionID)
	assert.NoError(t, err, "session id must be a uuid")

	// The generator and doctor share the one config snapshot.
	assert.Equal(t, container.Cfg, container.Generator.Cfg)
	assert.Equal(t, container.Cfg, container.Doctor.Cfg)

	require.NoError(t, container.History.Close())
}

func TestBuildContainerReusesExistingConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CMDAI_HOME", home)
	t.Setenv("CMDAI_CONFIG", "")

	first, err := BuildContainer(context.Background(), false, nil)
	require.NoError(t, err)
	require.NoError(t, first.History.Close())

	second, err := BuildContainer(context.Background(), false, nil)
	require.NoError(t, err)
	defer second.History.Close()

	assert.Equal(t, first.Cfg, second.Cfg)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}
