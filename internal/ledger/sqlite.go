package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// CompletedFile is one row of the SQLite ledger.
type CompletedFile struct {
	RelPath     string `gorm:"primaryKey"`
	CompletedAt time.Time
}

// SQLiteLedger stores completions in a SQLite database. Every MarkDone is
// its own committed insert.
type SQLiteLedger struct {
	logger zerolog.Logger
	db     *gorm.DB
}

// OpenSQLite opens or creates the database at path and migrates the schema.
// Unlike the JSON ledger, failures here are returned.
func OpenSQLite(logger zerolog.Logger, path string) (*SQLiteLedger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger database %s: %w", path, err)
	}
	// one connection keeps ":memory:" databases and write ordering consistent
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open ledger database %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&CompletedFile{}); err != nil {
		return nil, fmt.Errorf("migrate ledger database: %w", err)
	}

	l := &SQLiteLedger{logger: logger, db: db}
	logger.Info().Str("path", path).Int("entries", l.Len()).Msg("ledger loaded")
	return l, nil
}

func (l *SQLiteLedger) Contains(rel string) bool {
	var row CompletedFile
	err := l.db.Select("rel_path").Where("rel_path = ?", rel).Take(&row).Error
	if err == nil {
		return true
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		l.logger.Warn().Err(err).Str("path", rel).Msg("ledger lookup failed")
	}
	return false
}

func (l *SQLiteLedger) MarkDone(rel string) error {
	row := CompletedFile{RelPath: rel, CompletedAt: time.Now().UTC()}
	if err := l.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("record %s: %w", rel, err)
	}
	return nil
}

func (l *SQLiteLedger) Len() int {
	var n int64
	if err := l.db.Model(&CompletedFile{}).Count(&n).Error; err != nil {
		l.logger.Warn().Err(err).Msg("ledger count failed")
		return 0
	}
	return int(n)
}

func (l *SQLiteLedger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
