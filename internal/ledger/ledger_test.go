package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/keagan/steeltrim/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBoth(t *testing.T) map[string]func(path string) Ledger {
	t.Helper()
	return map[string]func(path string) Ledger{
		config.LedgerJSON: func(path string) Ledger {
			l, err := Open(zerolog.Nop(), config.LedgerJSON, path+".json")
			require.NoError(t, err)
			return l
		},
		config.LedgerSQLite: func(path string) Ledger {
			l, err := Open(zerolog.Nop(), config.LedgerSQLite, path+".db")
			require.NoError(t, err)
			return l
		},
	}
}

func TestLedgerContract(t *testing.T) {
	for name, open := range openBoth(t) {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "processed_videos")

			l := open(path)
			assert.Equal(t, 0, l.Len())
			assert.False(t, l.Contains("a/b.mp4"))

			require.NoError(t, l.MarkDone("a/b.mp4"))
			require.NoError(t, l.MarkDone("c.avi"))
			require.NoError(t, l.MarkDone("a/b.mp4"), "marking twice is harmless")

			assert.True(t, l.Contains("a/b.mp4"))
			assert.True(t, l.Contains("c.avi"))
			assert.False(t, l.Contains("a"))
			assert.Equal(t, 2, l.Len())
			require.NoError(t, l.Close())

			reopened := open(path)
			defer reopened.Close()
			assert.Equal(t, 2, reopened.Len())
			assert.True(t, reopened.Contains("c.avi"))
		})
	}
}

func TestJSONFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	l, err := OpenJSON(zerolog.Nop(), path)
	require.NoError(t, err)

	require.NoError(t, l.MarkDone("z.mp4"))
	require.NoError(t, l.MarkDone("a/y.mkv"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []string
	require.NoError(t, json.Unmarshal(data, &entries))
	assert.Equal(t, []string{"a/y.mkv", "z.mp4"}, entries)
	assert.Equal(t, entries, l.Entries())

	// only the ledger itself remains next to it
	dirEntries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, dirEntries, 1)
	assert.Equal(t, DefaultFileName, dirEntries[0].Name())
}

func TestJSONReplacesPreviousContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "dir", DefaultFileName)
	l, err := OpenJSON(zerolog.Nop(), path)
	require.NoError(t, err)

	require.NoError(t, l.MarkDone("first.mp4"))
	require.NoError(t, l.MarkDone("second.mp4"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `["first.mp4", "second.mp4"]`, string(data))
}

func TestJSONCorruptStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	l, err := OpenJSON(zerolog.Nop(), path)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())

	require.NoError(t, l.MarkDone("x.mp4"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `["x.mp4"]`, string(data))
}

func TestJSONPersistFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	// parent of the ledger is a regular file, so nothing can be written
	l, err := OpenJSON(zerolog.Nop(), filepath.Join(blocker, DefaultFileName))
	require.NoError(t, err)

	assert.Error(t, l.MarkDone("a.mp4"))
	assert.False(t, l.Contains("a.mp4"))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(zerolog.Nop(), "redis", "x")
	assert.Error(t, err)
}

func TestSQLiteInMemory(t *testing.T) {
	l, err := OpenSQLite(zerolog.Nop(), ":memory:")
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.MarkDone("clip.webm"))
	assert.True(t, l.Contains("clip.webm"))
	assert.Equal(t, 1, l.Len())
}
