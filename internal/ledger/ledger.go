// Package ledger records which source files have been fully processed so a
// later run can skip them.
package ledger

import (
	"fmt"

	"github.com/keagan/steeltrim/internal/config"
	"github.com/keagan/steeltrim/internal/logging"
	"github.com/rs/zerolog"
)

// Ledger is a persisted set of relative source paths.
type Ledger interface {
	// Contains reports whether rel has been completed.
	Contains(rel string) bool
	// MarkDone adds rel and persists the change before returning.
	MarkDone(rel string) error
	// Len is the number of completed entries.
	Len() int
	Close() error
}

// Open returns the ledger selected by driver, stored at path.
func Open(logger zerolog.Logger, driver, path string) (Ledger, error) {
	logger = logging.WithComponent(logger, "ledger").With().Str("driver", driver).Logger()

	switch driver {
	case config.LedgerJSON, "":
		return OpenJSON(logger, path)
	case config.LedgerSQLite:
		return OpenSQLite(logger, path)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", driver)
	}
}
