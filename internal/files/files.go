// Package files lists the files a batch metadata lookup should cover.
package files

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// ArchiveExtension is the extension of game content archives
const ArchiveExtension = ".psarc"

// HasExtension returns true if path ends in one of exts (case-insensitive).
// An empty exts matches everything.
func HasExtension(path string, exts ...string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	return slices.ContainsFunc(exts, func(e string) bool {
		return strings.ToLower(e) == ext
	})
}

// Discover finds all regular files below dir, optionally restricted to exts.
// Hidden files and directories (names starting with ".") are skipped, which
// also keeps the metadata store itself out of the listing.
func Discover(dir string, exts ...string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type().IsRegular() && HasExtension(path, exts...) {
			files = append(files, path)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return files, nil
}
