// Package modelcache stores model artifacts on disk behind an LRU size bound.
//
// Entries are pinned by reader refcounts while the embedded backend runs
// inference; pinned entries are never evicted. Concurrent fetches for the
// same artifact collapse into one download.
package modelcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/pkg/filesystem"
	"github.com/doeshing/cmdai-go/internal/ports"
)

// FetchFunc downloads one artifact to dest and returns its size and sha256.
type FetchFunc func(ctx context.Context, spec domain.ModelSpec, dest string) (int64, string, error)

// Store implements ModelStore with a JSON manifest next to the artifacts.
// The mutex guards manifest state only; downloads and checksum reads run
// unlocked, protected by a provisional reader pin.
type Store struct {
	dir      string
	maxBytes int64
	log      ports.Logger
	fetch    FetchFunc

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*storeEntry
}

type storeEntry struct {
	model   domain.CachedModel
	readers int
}

// New opens the store rooted at settings.Dir (default <app dir>/models),
// creating the directory and loading any existing manifest.
func New(settings domain.CacheSettings, log ports.Logger) (*Store, error) {
	dir := settings.Dir
	if dir == "" {
		dir = filepath.Join(filesystem.AppDir(), "models")
	}
	if err := os.MkdirAll(dir, domain.DirectoryPermissions); err != nil {
		return nil, fmt.Errorf("create model cache dir: %w", err)
	}
	maxBytes := settings.MaxSizeBytes
	if maxBytes <= 0 {
		maxBytes = domain.DefaultCacheMaxBytes
	}
	man, err := loadManifest(dir)
	if err != nil {
		return nil, fmt.Errorf("load model cache manifest: %w", err)
	}
	s := &Store{
		dir:      dir,
		maxBytes: maxBytes,
		log:      log,
		fetch:    httpFetch,
		entries:  map[string]*storeEntry{},
	}
	for id, model := range man.Models {
		s.entries[id] = &storeEntry{model: model}
	}
	return s, nil
}

// Ensure returns a pinned handle, downloading the artifact first when absent.
func (s *Store) Ensure(ctx context.Context, spec domain.ModelSpec) (ports.ModelHandle, error) {
	if h, err := s.acquire(spec.ID); err == nil {
		return h, nil
	} else if !errors.Is(err, domain.ErrModelNotCached) {
		return nil, err
	}

	_, err, _ := s.group.Do(spec.ID, func() (interface{}, error) {
		s.mu.Lock()
		_, cached := s.entries[spec.ID]
		s.mu.Unlock()
		if cached {
			return nil, nil
		}
		return nil, s.admit(ctx, spec)
	})
	if err != nil {
		return nil, err
	}
	return s.acquire(spec.ID)
}

// Get returns a pinned handle only when the artifact is already cached.
func (s *Store) Get(ctx context.Context, id string) (ports.ModelHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.acquire(id)
}

func (s *Store) List(ctx context.Context) ([]domain.CachedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	models := make([]domain.CachedModel, 0, len(s.entries))
	for _, e := range s.entries {
		model := e.model
		model.Readers = e.readers
		models = append(models, model)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("model %s: %w", id, domain.ErrModelNotCached)
	}
	if e.readers > 0 {
		return fmt.Errorf("model %s is pinned by %d readers", id, e.readers)
	}
	s.dropLocked(id)
	return s.saveLocked()
}

// Clear removes every unpinned artifact. Pinned entries survive and the call
// reports how many were skipped.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pinned := 0
	for id, e := range s.entries {
		if e.readers > 0 {
			pinned++
			continue
		}
		s.dropLocked(id)
	}
	if err := s.saveLocked(); err != nil {
		return err
	}
	if pinned > 0 {
		return fmt.Errorf("%d models pinned by readers were not removed", pinned)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (domain.CacheStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.CacheStats{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := domain.CacheStats{
		Dir:      s.dir,
		Entries:  len(s.entries),
		MaxBytes: s.maxBytes,
	}
	for _, e := range s.entries {
		stats.TotalBytes += e.model.SizeBytes
		if e.readers > 0 {
			stats.Pinned++
		}
	}
	return stats, nil
}

// acquire pins id and verifies the artifact on disk. The pin is taken before
// verification so eviction cannot delete the file mid-read; verification
// failures unpin, drop the entry, and report ErrModelNotCached so Ensure
// re-fetches.
func (s *Store) acquire(id string) (ports.ModelHandle, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return nil, domain.ErrModelNotCached
	}
	e.readers++
	modelPath := e.model.Path
	wantChecksum := e.model.Checksum
	s.mu.Unlock()

	if err := verifyArtifact(modelPath, wantChecksum); err != nil {
		s.mu.Lock()
		if e, ok := s.entries[id]; ok {
			e.readers--
			s.dropLocked(id)
			_ = s.saveLocked()
		}
		s.mu.Unlock()
		s.log.Warn("cached model failed verification", map[string]interface{}{
			"model": id,
			"error": err.Error(),
		})
		return nil, domain.ErrModelNotCached
	}

	s.mu.Lock()
	if cur, ok := s.entries[id]; ok {
		cur.model.LastAccess = time.Now().UTC()
	}
	err := s.saveLocked()
	s.mu.Unlock()
	if err != nil {
		s.log.Warn("manifest save failed", map[string]interface{}{"error": err.Error()})
	}
	return &handle{store: s, id: id, path: modelPath}, nil
}

// admit downloads spec into the cache, evicting LRU unpinned entries to make
// room. Called with the singleflight lock for spec.ID held.
func (s *Store) admit(ctx context.Context, spec domain.ModelSpec) error {
	if spec.SizeBytes > s.maxBytes {
		return &domain.CacheCapacityError{NeedBytes: spec.SizeBytes, MaxBytes: s.maxBytes}
	}

	dest := filepath.Join(s.dir, artifactName(spec))
	tmp := dest + ".partial"
	size, checksum, err := s.fetch(ctx, spec, tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("fetch model %s: %w", spec.ID, err)
	}

	s.mu.Lock()
	if err := s.evictForLocked(size); err != nil {
		s.mu.Unlock()
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		s.mu.Unlock()
		_ = os.Remove(tmp)
		return fmt.Errorf("install model %s: %w", spec.ID, err)
	}
	s.entries[spec.ID] = &storeEntry{model: domain.CachedModel{
		ID:         spec.ID,
		Path:       dest,
		SizeBytes:  size,
		Checksum:   checksum,
		LastAccess: time.Now().UTC(),
	}}
	err = s.saveLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.log.Info("model cached", map[string]interface{}{
		"model": spec.ID,
		"size":  humanize.Bytes(uint64(size)),
	})
	return nil
}

// evictForLocked frees space for need bytes, oldest last-access first,
// skipping pinned entries. Fails with CacheCapacityError when the remaining
// pinned set still does not leave room.
func (s *Store) evictForLocked(need int64) error {
	used := int64(0)
	for _, e := range s.entries {
		used += e.model.SizeBytes
	}
	if used+need <= s.maxBytes {
		return nil
	}

	type victim struct {
		id     string
		access time.Time
	}
	var victims []victim
	for id, e := range s.entries {
		if e.readers > 0 {
			continue
		}
		victims = append(victims, victim{id: id, access: e.model.LastAccess})
	}
	sort.Slice(victims, func(i, j int) bool { return victims[i].access.Before(victims[j].access) })

	for _, v := range victims {
		if used+need <= s.maxBytes {
			break
		}
		size := s.entries[v.id].model.SizeBytes
		s.dropLocked(v.id)
		used -= size
		s.log.Info("model evicted", map[string]interface{}{
			"model": v.id,
			"freed": humanize.Bytes(uint64(size)),
		})
	}
	if used+need > s.maxBytes {
		pinned := 0
		for _, e := range s.entries {
			if e.readers > 0 {
				pinned++
			}
		}
		return &domain.CacheCapacityError{NeedBytes: need, MaxBytes: s.maxBytes, InUse: pinned}
	}
	return nil
}

func (s *Store) dropLocked(id string) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	if e.model.Path != "" {
		_ = os.Remove(e.model.Path)
	}
	delete(s.entries, id)
}

func (s *Store) saveLocked() error {
	man := manifest{
		Version:  "1.0",
		Models:   make(map[string]domain.CachedModel, len(s.entries)),
		MaxBytes: s.maxBytes,
	}
	for id, e := range s.entries {
		man.Models[id] = e.model
		man.TotalBytes += e.model.SizeBytes
	}
	return saveManifest(s.dir, man)
}

// artifactName derives the on-disk filename from the spec, preferring the
// URL's base name so the embedded runner sees the upstream extension.
func artifactName(spec domain.ModelSpec) string {
	if spec.URL != "" {
		if base := path.Base(spec.URL); base != "." && base != "/" {
			return sanitizeName(base)
		}
	}
	return sanitizeName(spec.ID) + ".gguf"
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}

// handle pins one entry until Release. Release is idempotent.
type handle struct {
	store *Store
	id    string
	path  string
	once  sync.Once
}

func (h *handle) Path() string { return h.path }

func (h *handle) Release() {
	h.once.Do(func() {
		h.store.mu.Lock()
		if e, ok := h.store.entries[h.id]; ok && e.readers > 0 {
			e.readers--
		}
		h.store.mu.Unlock()
	})
}

var _ ports.ModelStore = (*Store)(nil)
var _ ports.ModelHandle = (*handle)(nil)
