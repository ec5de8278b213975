package pathsync

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Pre-flight validation errors. They are surfaced before any filesystem
// mutation and are not retryable.
var (
	// ErrSourceNotFound indicates the source path does not exist.
	ErrSourceNotFound = errors.New("source path does not exist")
	// ErrSourceNotDirectory indicates the source exists but is not a directory.
	ErrSourceNotDirectory = errors.New("source path is not a directory")
	// ErrTargetInsideSource indicates the target is a strict descendant of the source.
	ErrTargetInsideSource = errors.New("target path is inside the source path")
	// ErrSourceInsideTarget indicates the source is a strict descendant of the target.
	ErrSourceInsideTarget = errors.New("source path is inside the target path")
	// ErrSameSourceAndTarget indicates both paths resolve to the same directory.
	// Mirroring a directory onto itself would delete the source before copying it.
	ErrSameSourceAndTarget = errors.New("source and target resolve to the same path")
)

// ValidatePaths runs all pre-flight checks and returns the resolved absolute
// source and target paths. No I/O beyond stat calls is performed, so callers
// that need to prepare state near the target (lock files, parent directories)
// can reject invalid pairs before touching the filesystem.
func ValidatePaths(source, target string) (string, string, error) {
	info, err := os.Stat(source)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", fmt.Errorf("%w: %s", ErrSourceNotFound, source)
		}
		return "", "", fmt.Errorf("could not stat source directory %s: %w", source, err)
	}
	if !info.IsDir() {
		return "", "", fmt.Errorf("%w: %s", ErrSourceNotDirectory, source)
	}

	absSourcePath, err := resolvePath(source)
	if err != nil {
		return "", "", fmt.Errorf("could not resolve source path %s: %w", source, err)
	}
	absTargetPath, err := resolvePath(target)
	if err != nil {
		return "", "", fmt.Errorf("could not resolve target path %s: %w", target, err)
	}

	if pathsEqual(absSourcePath, absTargetPath) || isSameDirEntry(absSourcePath, absTargetPath) {
		return "", "", fmt.Errorf("%w: %s", ErrSameSourceAndTarget, absSourcePath)
	}
	if isStrictDescendant(absTargetPath, absSourcePath) {
		return "", "", fmt.Errorf("%w: target %s, source %s", ErrTargetInsideSource, absTargetPath, absSourcePath)
	}
	if isStrictDescendant(absSourcePath, absTargetPath) {
		return "", "", fmt.Errorf("%w: source %s, target %s", ErrSourceInsideTarget, absSourcePath, absTargetPath)
	}

	return absSourcePath, absTargetPath, nil
}

// resolvePath returns the absolute, cleaned form of a path with symlinks
// resolved. For a not-yet-existing path the nearest existing ancestor is
// resolved and the nonexistent remainder re-attached, so a symlinked parent
// of a fresh target still compares correctly in the overlap checks.
func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	dir := abs
	var rest []string
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached the root
		}
		rest = append(rest, filepath.Base(dir))
		dir = parent
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			for i := len(rest) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, rest[i])
			}
			return resolved, nil
		}
	}
	return abs, nil
}

// pathsEqual compares two resolved paths, case-insensitively on hosts whose
// filesystems are case-insensitive by default.
func pathsEqual(a, b string) bool {
	if util.IsHostCaseInsensitiveFS() {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// isStrictDescendant reports whether path lies strictly below ancestor, i.e.
// path equals ancestor plus a separator plus something.
func isStrictDescendant(path, ancestor string) bool {
	prefix := ancestor
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	if util.IsHostCaseInsensitiveFS() {
		return len(path) > len(prefix) && strings.EqualFold(path[:len(prefix)], prefix)
	}
	return strings.HasPrefix(path, prefix)
}
