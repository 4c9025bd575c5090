// Package relocate moves the diary database from its legacy location
// into the current layout. It runs on every startup before the store
// is opened; once the move has happened it is a pair of cheap stat
// calls.
package relocate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	dbFileName   = "diary.db"
	legacySubdir = "diaries"
)

// LegacyPath returns the pre-migration database path under dir.
func LegacyPath(dir string) string {
	return filepath.Join(dir, legacySubdir, dbFileName)
}

// CurrentPath returns the current-layout database path under dir.
func CurrentPath(dir string) string {
	return filepath.Join(dir, dbFileName)
}

// Run migrates the legacy database file into the current layout if,
// and only if, the legacy file exists and the current one does not.
// It is idempotent and safe to call on every invocation. Errors are
// non-fatal for the caller: the current path stays authoritative and
// the legacy file is never deleted unless the move verifiably
// succeeded.
func Run(dir string) error {
	legacy := LegacyPath(dir)
	current := CurrentPath(dir)

	if _, err := os.Stat(legacy); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat legacy database: %w", err)
	}
	if _, err := os.Stat(current); err == nil {
		// Both exist: the current file wins, leave the legacy one
		// alone rather than clobbering either.
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat current database: %w", err)
	}

	if err := moveFile(legacy, current); err != nil {
		return fmt.Errorf("migrate database %s -> %s: %w", legacy, current, err)
	}

	// Clean up the legacy directory if it is now empty.
	legacyDir := filepath.Join(dir, legacySubdir)
	if entries, err := os.ReadDir(legacyDir); err == nil && len(entries) == 0 {
		_ = os.Remove(legacyDir)
	}

	return nil
}

// moveFile renames src to dst, falling back to copy-verify-delete
// when rename fails (e.g. across filesystems).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	written, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("copy database: %w", err)
	}

	// Verify before deleting the original.
	if written != srcInfo.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy verification failed: wrote %d of %d bytes", written, srcInfo.Size())
	}

	return os.Remove(src)
}
