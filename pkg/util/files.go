package util

import (
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// HasExtFold reports whether path ends in ext, ignoring case.
func HasExtFold(path, ext string) bool {
	return strings.EqualFold(filepath.Ext(path), ext)
}

// IsWithin reports whether path is base or lies below it.
func IsWithin(path, base string) bool {
	path = filepath.Clean(path)
	base = filepath.Clean(base)
	if path == base {
		return true
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
