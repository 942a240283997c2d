package modelcache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/doeshing/cmdai-go/internal/domain"
)

const manifestName = "manifest.json"

// manifest is the on-disk index of cached artifacts. Reader refcounts are
// process-local and never persisted.
type manifest struct {
	Version     string                        `json:"version"`
	Models      map[string]domain.CachedModel `json:"models"`
	TotalBytes  int64                         `json:"total_size_bytes"`
	MaxBytes    int64                         `json:"max_cache_size_bytes"`
	LastUpdated time.Time                     `json:"last_updated"`
}

func loadManifest(dir string) (manifest, error) {
	m := manifest{
		Version: "1.0",
		Models:  map[string]domain.CachedModel{},
	}
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return m, err
	}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, err
	}
	if m.Models == nil {
		m.Models = map[string]domain.CachedModel{}
	}
	return m, nil
}

// saveManifest writes via temp file + rename so a crash never leaves a
// truncated index behind.
func saveManifest(dir string, m manifest) error {
	m.LastUpdated = time.Now().UTC()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, manifestName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, manifestName))
}
