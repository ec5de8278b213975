// Package safeguard archives a directory into a compressed tarball before a
// mirror operation destructively replaces it. The archive lands next to the
// directory (never inside it), named after the directory plus a UTC timestamp
// and the format extension.
package safeguard

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

// timestampLayout is the UTC timestamp embedded in archive names.
const timestampLayout = "20060102T150405Z"

// Archiver writes safeguard archives in a fixed format.
type Archiver struct {
	format Format

	// now is swappable for deterministic archive names in tests.
	now func() time.Time
}

// NewArchiver creates an Archiver for the given format.
func NewArchiver(format Format) *Archiver {
	return &Archiver{
		format: format,
		now:    time.Now,
	}
}

// Archive writes the directory's contents into a compressed tarball beside it
// and returns the archive's path. The archive is written under a temporary
// name and renamed into place, so a failed run never leaves a plausible-
// looking but truncated archive behind.
func (a *Archiver) Archive(ctx context.Context, absDirPath string) (string, error) {
	info, err := os.Lstat(absDirPath)
	if err != nil {
		return "", fmt.Errorf("could not stat safeguard source %s: %w", absDirPath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("safeguard source %s is not a directory", absDirPath)
	}

	timestamp := a.now().UTC().Format(timestampLayout)
	archivePath := absDirPath + "." + timestamp + a.format.Extension()

	plog.Notice("Archiving target before mirror", "target", absDirPath, "archive", archivePath)

	out, err := os.CreateTemp(filepath.Dir(archivePath), filepath.Base(archivePath)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create safeguard archive: %w", err)
	}
	tempPath := out.Name()
	defer func() {
		if tempPath != "" {
			out.Close()
			os.Remove(tempPath)
		}
	}()

	if err := a.writeArchive(ctx, absDirPath, out); err != nil {
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to close safeguard archive: %w", err)
	}
	if err := os.Rename(tempPath, archivePath); err != nil {
		return "", fmt.Errorf("failed to move safeguard archive into place: %w", err)
	}
	tempPath = ""
	return archivePath, nil
}

// writeArchive streams the directory tree through the compressor into w.
func (a *Archiver) writeArchive(ctx context.Context, absDirPath string, w io.Writer) (retErr error) {
	compressor, err := a.newCompressor(w)
	if err != nil {
		return err
	}
	defer func() {
		if err := compressor.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("failed to finalize compressor: %w", err)
		}
	}()

	tw := tar.NewWriter(compressor)
	defer func() {
		if err := tw.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("failed to finalize tar stream: %w", err)
		}
	}()

	return filepath.WalkDir(absDirPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		relPath, err := filepath.Rel(absDirPath, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}
		if relPath == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		var linkTarget string
		if info.Mode()&os.ModeSymlink != 0 {
			if linkTarget, err = os.Readlink(path); err != nil {
				return fmt.Errorf("failed to read symlink %s: %w", path, err)
			}
		}

		hdr, err := tar.FileInfoHeader(info, linkTarget)
		if err != nil {
			return fmt.Errorf("failed to build tar header for %s: %w", path, err)
		}
		hdr.Name = filepath.ToSlash(relPath)
		if info.IsDir() {
			hdr.Name += "/"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to write tar header for %s: %w", path, err)
		}

		if info.Mode().IsRegular() {
			in, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			_, err = io.Copy(tw, in)
			in.Close()
			if err != nil {
				return fmt.Errorf("failed to archive %s: %w", path, err)
			}
		}
		return nil
	})
}

// newCompressor wraps w in the configured compression writer.
func (a *Archiver) newCompressor(w io.Writer) (io.WriteCloser, error) {
	switch a.format {
	case TarGz:
		return pgzip.NewWriter(w), nil
	case TarZst:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("unknown safeguard format: %v", a.format)
	}
}
