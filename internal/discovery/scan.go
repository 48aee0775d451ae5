// Package discovery finds the video files a batch run should consider.
package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/keagan/steeltrim/internal/logging"
	"github.com/keagan/steeltrim/pkg/util"
	"github.com/rs/zerolog"
)

// VideoFile is a candidate input.
type VideoFile struct {
	AbsPath string
	RelPath string // relative to the scanned root; also the ledger key
	Size    int64
}

// Scanner walks a source tree.
type Scanner struct {
	logger zerolog.Logger
	exts   map[string]struct{}
}

// NewScanner matches files whose extension is one of exts, ignoring case.
func NewScanner(logger zerolog.Logger, exts []string) *Scanner {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return &Scanner{
		logger: logging.WithComponent(logger, "discovery"),
		exts:   set,
	}
}

// Scan returns every matching file under root sorted by relative path.
// Directories listed in exclude are not descended into; subdirectories that
// cannot be read are skipped with a warning.
func (s *Scanner) Scan(root string, exclude ...string) ([]VideoFile, error) {
	root = filepath.Clean(root)

	var excluded []string
	for _, x := range exclude {
		if x == "" {
			continue
		}
		x = filepath.Clean(x)
		if x != root && util.IsWithin(x, root) {
			excluded = append(excluded, x)
		}
	}

	files := make([]VideoFile, 0, 64)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			s.logger.Warn().Err(walkErr).Str("path", path).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			for _, x := range excluded {
				if path == x {
					s.logger.Debug().Str("path", path).Msg("skipping destination directory")
					return filepath.SkipDir
				}
			}
			return nil
		}

		if !s.Matches(d.Name()) {
			return nil
		}

		var info fs.FileInfo
		var err error
		if d.Type()&fs.ModeSymlink != 0 {
			// follow links to files; WalkDir never descends into linked dirs
			info, err = os.Stat(path)
		} else {
			info, err = d.Info()
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("skipping file without stat")
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, VideoFile{
			AbsPath: path,
			RelPath: rel,
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })

	s.logger.Debug().Str("root", root).Int("files", len(files)).Msg("scan complete")
	return files, nil
}

// Matches reports whether name carries one of the configured extensions.
func (s *Scanner) Matches(name string) bool {
	_, ok := s.exts[strings.ToLower(filepath.Ext(name))]
	return ok
}
