// Package config loads cmdai configuration from ~/.cmdai/config.yaml.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/cmdai-go/assets"
	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/pkg/filesystem"
	"github.com/doeshing/cmdai-go/internal/ports"
)

// FileLoader reads YAML configuration from disk, writing the embedded
// default file on first run so users always have a commented template to
// edit. The path resolves as: explicit override, CMDAI_CONFIG, then
// ~/.cmdai/config.yaml.
type FileLoader struct {
	overridePath string
	log          ports.Logger
}

// NewFileLoader builds a loader. path is usually empty; flags may supply one.
func NewFileLoader(path string, log ports.Logger) *FileLoader {
	return &FileLoader{overridePath: path, log: log}
}

// Load implements ports.ConfigProvider.
func (l *FileLoader) Load(context.Context) (domain.Config, error) {
	path := l.Path()
	if err := os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions); err != nil {
		return domain.Config{}, fmt.Errorf("create config directory: %w", err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		l.log.Info("writing default config", map[string]interface{}{"path": path})
		if werr := os.WriteFile(path, assets.DefaultConfigYAML, domain.SecureFilePermissions); werr != nil {
			return domain.Config{}, fmt.Errorf("write default config: %w", werr)
		}
		data = assets.DefaultConfigYAML
	} else if err != nil {
		return domain.Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg domain.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.ValidateConsistency(); err != nil {
		return domain.Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Path returns the config file location without touching the filesystem.
func (l *FileLoader) Path() string {
	if l.overridePath != "" {
		return expandPath(l.overridePath)
	}
	if custom := os.Getenv("CMDAI_CONFIG"); custom != "" {
		return expandPath(custom)
	}
	return filepath.Join(filesystem.AppDir(), "config.yaml")
}

func expandPath(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		return filepath.Join(filesystem.UserHomeDir(), path[2:])
	}
	return filepath.Clean(path)
}

var _ ports.ConfigProvider = (*FileLoader)(nil)
