package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/pkg/logger"
	"github.com/doeshing/cmdai-go/internal/ports"
)

func testStores(t *testing.T) map[string]ports.HistoryRepository {
	t.Helper()
	sqlite, err := NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]ports.HistoryRepository{
		"sqlite": sqlite,
		"jsonl":  NewFileStore(t.TempDir()),
	}
}

func recordAt(minute int, prompt, command string) domain.HistoryRecord {
	return domain.HistoryRecord{
		SessionID: "session-1",
		Timestamp: time.Date(2025, 6, 1, 12, minute, 0, 0, time.UTC),
		Prompt:    prompt,
		Command:   command,
		Backend:   "static",
		RiskLevel: domain.RiskSafe,
	}
}

func TestAppendAndRecent(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Append(ctx, recordAt(1, "list files", "ls -la")))
			require.NoError(t, store.Append(ctx, recordAt(2, "disk usage", "du -sh .")))
			require.NoError(t, store.Append(ctx, recordAt(3, "large files", "find . -size +100M")))

			records, err := store.Recent(ctx, 2)
			require.NoError(t, err)
			require.Len(t, records, 2)
			assert.Equal(t, "large files", records[0].Prompt, "newest first")
			assert.Equal(t, "disk usage", records[1].Prompt)
			assert.NotEmpty(t, records[0].ID, "append must assign an id")
			assert.Equal(t, "session-1", records[0].SessionID)
		})
	}
}

func TestSearch(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Append(ctx, recordAt(1, "list all docker containers", "docker ps -a")))
			require.NoError(t, store.Append(ctx, recordAt(2, "disk usage", "du -sh .")))
			require.NoError(t, store.Append(ctx, recordAt(3, "stop everything", "docker stop $(docker ps -q)")))

			records, err := store.Search(ctx, "docker", 10)
			require.NoError(t, err)
			require.Len(t, records, 2, "matches on prompt or command")
			assert.Equal(t, "stop everything", records[0].Prompt)

			records, err = store.Search(ctx, "no-such-term", 10)
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

func TestRecent_ExecutionFieldsRoundTrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := recordAt(1, "clean tmp", "rm -r ./tmp")
			rec.RiskLevel = domain.RiskHigh
			rec.Refinements = 2
			rec.Executed = true
			rec.ExecutionState = domain.StateCompleted
			rec.ExitCode = 1
			rec.ExecutionTimeMS = 340
			require.NoError(t, store.Append(ctx, rec))

			records, err := store.Recent(ctx, 1)
			require.NoError(t, err)
			require.Len(t, records, 1)
			got := records[0]
			assert.Equal(t, domain.RiskHigh, got.RiskLevel)
			assert.Equal(t, 2, got.Refinements)
			assert.True(t, got.Executed)
			assert.Equal(t, domain.StateCompleted, got.ExecutionState)
			assert.Equal(t, 1, got.ExitCode)
			assert.EqualValues(t, 340, got.ExecutionTimeMS)
		})
	}
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), recordAt(1, "list files", "ls")))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ls", records[0].Command)
}

func TestDisabled(t *testing.T) {
	store := Disabled{}
	assert.NoError(t, store.Append(context.Background(), recordAt(1, "x", "y")))

	_, err := store.Recent(context.Background(), 10)
	assert.ErrorIs(t, err, domain.ErrHistoryDisabled)
	_, err = store.Search(context.Background(), "x", 10)
	assert.ErrorIs(t, err, domain.ErrHistoryDisabled)
}

func TestOpen_SelectsStoreForSettings(t *testing.T) {
	disabled := Open(domain.HistorySettings{Enabled: false}, t.TempDir(), logger.Nop{})
	_, err := disabled.Recent(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrHistoryDisabled)

	enabled := Open(domain.HistorySettings{Enabled: true}, t.TempDir(), logger.Nop{})
	defer enabled.Close()
	sqlite, ok := enabled.(*SQLiteStore)
	require.True(t, ok, "sqlite is the primary store")
	assert.Contains(t, sqlite.Path(), "history.db")
}
