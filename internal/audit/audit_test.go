package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	logger := New(filepath.Join(t.TempDir(), "logs", "log_protokoll.csv"))
	logger.now = func() time.Time { return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC) }
	return logger
}

func TestLogAndReadBack(t *testing.T) {
	t.Parallel()

	logger := newTestLogger(t)
	logger.Log("12345678", "📦 Medikament hinzugefügt: Aspirin (Barcode: 11111111)")
	logger.Log("", "🚫 User-Login fehlgeschlagen")

	entries, err := logger.Entries("")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "2026-08-31 12:00:00", entries[0].Timestamp)
	assert.Equal(t, "12345678", entries[0].Customer)
	assert.Contains(t, entries[0].Action, "Aspirin")

	// Missing customer falls back to the unknown marker.
	assert.Equal(t, UnknownCustomer, entries[1].Customer)
}

func TestEntriesFilter(t *testing.T) {
	t.Parallel()

	logger := newTestLogger(t)
	logger.Log("12345678", "✅ User-Login erfolgreich")
	logger.Log("12345678", "📦 Bestellung 123456 aufgegeben mit Medikamenten: Aspirin")

	entries, err := logger.Entries("bestellung")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Action, "Bestellung")
}

func TestEntriesMissingFile(t *testing.T) {
	t.Parallel()

	logger := New(filepath.Join(t.TempDir(), "missing.csv"))
	entries, err := logger.Entries("")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
