package pathsync

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// fallbackStrategy is the portable in-process copier used when the external
// tool is absent or failed. It emulates the tool's mirror-with-delete
// semantics by replacing the target wholesale: no merge, always a full copy.
type fallbackStrategy struct {
	metrics Metrics
}

func (fallbackStrategy) kind() Strategy { return Fallback }

func (st fallbackStrategy) attempt(ctx context.Context, absSourcePath, absTargetPath string) error {
	plog.Debug("Starting fallback copy", "source", absSourcePath, "target", absTargetPath)

	if err := removePath(absTargetPath); err != nil {
		return fmt.Errorf("failed to remove existing target %s: %w", absTargetPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(absTargetPath), util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create target parent directory: %w", err)
	}

	if err := st.copyTree(ctx, absSourcePath, absTargetPath); err != nil {
		// Best-effort removal of the partially written target. A cleanup
		// failure must never mask the original copy error.
		if cleanupErr := removePath(absTargetPath); cleanupErr != nil {
			plog.Warn("Failed to clean up partially written target", "path", absTargetPath, "error", cleanupErr)
		}
		return fmt.Errorf("fallback copy failed: %w", err)
	}

	st.metrics.LogSummary("Fallback copy finished")
	return nil
}

// removePath deletes a path of any kind: files and symlinks via direct
// unlink, directories recursively. A missing path is not an error.
func removePath(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return os.RemoveAll(path)
	}
	return os.Remove(path)
}

// dirTimestamp records a created directory whose modtime must be applied
// after all files inside it have been written.
type dirTimestamp struct {
	path    string
	modTime time.Time
}

// copyTree recursively copies src into trg, preserving permissions (with the
// user-write bit forced), modtimes and symbolic links.
func (st fallbackStrategy) copyTree(ctx context.Context, src, trg string) error {
	var dirTimes []dirTimestamp

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}
		destPath := filepath.Join(trg, relPath)

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		st.metrics.AddEntriesProcessed(1)

		switch {
		case d.IsDir():
			perm := util.WithUserExecutePermission(util.WithUserWritePermission(info.Mode().Perm()))
			if err := os.MkdirAll(destPath, perm); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", destPath, err)
			}
			dirTimes = append(dirTimes, dirTimestamp{path: destPath, modTime: info.ModTime()})
			st.metrics.AddDirsCreated(1)
		case info.Mode()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("failed to read symlink %s: %w", path, err)
			}
			if err := os.Symlink(linkTarget, destPath); err != nil {
				return fmt.Errorf("failed to create symlink %s: %w", destPath, err)
			}
			st.metrics.AddSymlinksCopied(1)
		case info.Mode().IsRegular():
			written, err := copyFile(path, destPath, info)
			if err != nil {
				return err
			}
			st.metrics.AddFilesCopied(1)
			st.metrics.AddBytesWritten(written)
		default:
			// Sockets, devices and FIFOs have no portable copy. Skip them.
			plog.Warn("Skipping unsupported file type", "path", path, "mode", info.Mode().String())
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Directory modtimes are applied last, deepest first, because writing
	// files into a directory updates its modification time.
	for i := len(dirTimes) - 1; i >= 0; i-- {
		if err := os.Chtimes(dirTimes[i].path, dirTimes[i].modTime, dirTimes[i].modTime); err != nil {
			plog.Debug("Could not preserve directory modtime", "path", dirTimes[i].path, "error", err)
		}
	}
	return nil
}

// copyFile copies a single regular file. It writes to a temporary file in the
// destination directory and renames it into place so a crash never leaves a
// half-written file under the final name. Returns the number of bytes written.
func copyFile(src, trg string, srcInfo os.FileInfo) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open source file %s: %w", src, err)
	}
	defer in.Close()

	trgDir := filepath.Dir(trg)
	out, err := os.CreateTemp(trgDir, "pgl-mirror-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file in %s: %w", trgDir, err)
	}

	tempPath := out.Name()
	// If the rename succeeds, tempPath is cleared and this becomes a no-op.
	defer func() {
		if tempPath != "" {
			os.Remove(tempPath)
		}
	}()

	written, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return 0, fmt.Errorf("failed to copy content from %s to %s: %w", src, tempPath, err)
	}

	if err := out.Chmod(util.WithUserWritePermission(srcInfo.Mode().Perm())); err != nil {
		out.Close()
		return 0, fmt.Errorf("failed to set permissions on temporary file %s: %w", tempPath, err)
	}

	// Close flushes data to disk. It must happen before Chtimes, because
	// flushing may update the modification time.
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temporary file %s: %w", tempPath, err)
	}

	if err := os.Chtimes(tempPath, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return 0, fmt.Errorf("failed to set timestamps on %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, trg); err != nil {
		return 0, err
	}
	tempPath = ""
	return written, nil
}
