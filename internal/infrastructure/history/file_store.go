// Package history persists generation and execution records under
// ~/.cmdai/history. SQLite is the primary store; a jsonl file stands in
// when the driver cannot open, and a no-op store serves disabled configs.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/ports"
)

// FileStore appends records to a jsonl file. It is the fallback when the
// sqlite driver fails to open; durability over features.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore builds a store writing dir/history.jsonl.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, "history.jsonl")}
}

// Append implements ports.HistoryRepository.
func (f *FileStore) Append(_ context.Context, record domain.HistoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stampRecord(&record)
	if err := os.MkdirAll(filepath.Dir(f.path), domain.DirectoryPermissions); err != nil {
		return err
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = file.Write(append(data, '\n'))
	return err
}

// Recent returns up to limit records, newest first.
func (f *FileStore) Recent(_ context.Context, limit int) ([]domain.HistoryRecord, error) {
	records, err := f.readAll()
	if err != nil {
		return nil, err
	}
	return newestFirst(records, limit), nil
}

// Search filters records whose prompt or command contains term,
// case-insensitively, newest first.
func (f *FileStore) Search(_ context.Context, term string, limit int) ([]domain.HistoryRecord, error) {
	records, err := f.readAll()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(term)
	var matched []domain.HistoryRecord
	for _, rec := range records {
		if strings.Contains(strings.ToLower(rec.Prompt), needle) ||
			strings.Contains(strings.ToLower(rec.Command), needle) {
			matched = append(matched, rec)
		}
	}
	return newestFirst(matched, limit), nil
}

// Close implements ports.HistoryRepository; nothing is held open.
func (f *FileStore) Close() error { return nil }

// Path returns the backing file location.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) readAll() ([]domain.HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var records []domain.HistoryRecord
	for _, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var rec domain.HistoryRecord
		if err := json.Unmarshal(line, &rec); err == nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

// newestFirst reverses append order and applies the limit.
func newestFirst(records []domain.HistoryRecord, limit int) []domain.HistoryRecord {
	out := make([]domain.HistoryRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func stampRecord(record *domain.HistoryRecord) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
}

// Disabled is the repository used when history recording is turned off.
// Writes vanish silently; reads explain themselves.
type Disabled struct{}

func (Disabled) Append(context.Context, domain.HistoryRecord) error { return nil }

func (Disabled) Recent(context.Context, int) ([]domain.HistoryRecord, error) {
	return nil, domain.ErrHistoryDisabled
}

func (Disabled) Search(context.Context, string, int) ([]domain.HistoryRecord, error) {
	return nil, domain.ErrHistoryDisabled
}

func (Disabled) Close() error { return nil }

var (
	_ ports.HistoryRepository = (*FileStore)(nil)
	_ ports.HistoryRepository = Disabled{}
)
