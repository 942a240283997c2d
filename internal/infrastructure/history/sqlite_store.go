package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/ports"
)

// SQLiteStore persists history in dir/history.db.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// NewSQLiteStore opens (or creates) the database and its schema. Errors are
// returned rather than swallowed so the caller can fall back to the jsonl
// store.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, domain.DirectoryPermissions); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	path := filepath.Join(dir, "history.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	store := &SQLiteStore{db: db, path: path}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		timestamp TEXT,
		prompt TEXT,
		command TEXT,
		backend TEXT,
		risk_level TEXT,
		refinements INTEGER,
		executed INTEGER,
		execution_state TEXT,
		exit_code INTEGER,
		execution_time_ms INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_records_timestamp ON records(timestamp);`)
	return err
}

// Append implements ports.HistoryRepository.
func (s *SQLiteStore) Append(ctx context.Context, record domain.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stampRecord(&record)
	_, err := s.db.ExecContext(ctx, `INSERT INTO records
		(id, session_id, timestamp, prompt, command, backend, risk_level, refinements, executed, execution_state, exit_code, execution_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.SessionID,
		record.Timestamp.Format(time.RFC3339),
		record.Prompt,
		record.Command,
		record.Backend,
		string(record.RiskLevel),
		record.Refinements,
		boolToInt(record.Executed),
		string(record.ExecutionState),
		record.ExitCode,
		record.ExecutionTimeMS,
	)
	return err
}

// Recent returns up to limit records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]domain.HistoryRecord, error) {
	return s.query(ctx, "", limit)
}

// Search filters on prompt or command substring, newest first.
func (s *SQLiteStore) Search(ctx context.Context, term string, limit int) ([]domain.HistoryRecord, error) {
	return s.query(ctx, term, limit)
}

func (s *SQLiteStore) query(ctx context.Context, search string, limit int) ([]domain.HistoryRecord, error) {
	var b strings.Builder
	b.WriteString(`SELECT id, session_id, timestamp, prompt, command, backend, risk_level, refinements, executed, execution_state, exit_code, execution_time_ms FROM records`)
	var args []interface{}
	if search != "" {
		b.WriteString(" WHERE prompt LIKE ? OR command LIKE ?")
		needle := "%" + search + "%"
		args = append(args, needle, needle)
	}
	b.WriteString(" ORDER BY datetime(timestamp) DESC, id DESC")
	if limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.HistoryRecord
	for rows.Next() {
		var rec domain.HistoryRecord
		var ts, riskLevel, execState string
		var executed int
		if err := rows.Scan(&rec.ID, &rec.SessionID, &ts, &rec.Prompt, &rec.Command, &rec.Backend,
			&riskLevel, &rec.Refinements, &executed, &execState, &rec.ExitCode, &rec.ExecutionTimeMS); err != nil {
			return nil, err
		}
		if t, perr := time.Parse(time.RFC3339, ts); perr == nil {
			rec.Timestamp = t
		}
		rec.RiskLevel = domain.RiskLevel(riskLevel)
		rec.ExecutionState = domain.ExecutionState(execState)
		rec.Executed = executed == 1
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database location.
func (s *SQLiteStore) Path() string { return s.path }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Open picks the best store for the settings: sqlite, jsonl on driver
// failure, no-op when history is disabled.
func Open(settings domain.HistorySettings, dir string, log ports.Logger) ports.HistoryRepository {
	if !settings.Enabled {
		return Disabled{}
	}
	store, err := NewSQLiteStore(dir)
	if err != nil {
		log.Warn("sqlite history unavailable, using jsonl fallback", map[string]interface{}{"error": err.Error()})
		return NewFileStore(dir)
	}
	return store
}

var _ ports.HistoryRepository = (*SQLiteStore)(nil)
