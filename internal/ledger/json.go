package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

// DefaultFileName of the JSON ledger under the destination root.
const DefaultFileName = "processed_videos.json"

// JSONLedger keeps the set in memory and rewrites the whole file on every
// addition. The file is a JSON array of strings.
type JSONLedger struct {
	mu     sync.Mutex
	logger zerolog.Logger
	path   string
	done   map[string]struct{}
}

// OpenJSON loads path. A missing file starts an empty ledger, as does a file
// that cannot be read or parsed; the latter is logged.
func OpenJSON(logger zerolog.Logger, path string) (*JSONLedger, error) {
	l := &JSONLedger{
		logger: logger,
		path:   path,
		done:   make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug().Str("path", path).Msg("no ledger yet, starting empty")
		return l, nil
	case err != nil:
		logger.Warn().Err(err).Str("path", path).Msg("ledger unreadable, starting empty")
		return l, nil
	}

	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("ledger corrupt, starting empty")
		return l, nil
	}
	for _, rel := range entries {
		l.done[rel] = struct{}{}
	}

	logger.Info().Str("path", path).Int("entries", len(l.done)).Msg("ledger loaded")
	return l, nil
}

func (l *JSONLedger) Contains(rel string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.done[rel]
	return ok
}

func (l *JSONLedger) MarkDone(rel string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.done[rel]; ok {
		return nil
	}
	l.done[rel] = struct{}{}
	if err := l.persist(); err != nil {
		delete(l.done, rel)
		return err
	}
	return nil
}

func (l *JSONLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.done)
}

func (l *JSONLedger) Close() error {
	return nil
}

// Entries returns the completed paths in sorted order.
func (l *JSONLedger) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sorted()
}

func (l *JSONLedger) sorted() []string {
	entries := make([]string, 0, len(l.done))
	for rel := range l.done {
		entries = append(entries, rel)
	}
	sort.Strings(entries)
	return entries
}

func (l *JSONLedger) persist() error {
	data, err := json.MarshalIndent(l.sorted(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("persist ledger %s: %w", l.path, err)
	}
	if err := renameio.WriteFile(l.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("persist ledger %s: %w", l.path, err)
	}
	return nil
}
