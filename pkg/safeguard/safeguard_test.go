package safeguard

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// fixedClock pins the archiver's clock for deterministic archive names.
func fixedClock(a *Archiver) {
	a.now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	}
}

func buildSampleDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "data")
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("alpha"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("beta"), 0644); err != nil {
		t.Fatal(err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Symlink("a.txt", filepath.Join(src, "link")); err != nil {
			t.Fatal(err)
		}
	}
	return src
}

// readTarEntries decompresses the archive and returns name -> content for
// regular files and name -> link target for symlinks.
func readTarEntries(t *testing.T, archivePath string, format Format) map[string]string {
	t.Helper()

	f, err := os.Open(archivePath)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer f.Close()

	var decompressed io.Reader
	switch format {
	case TarGz:
		gz, err := pgzip.NewReader(f)
		if err != nil {
			t.Fatalf("failed to open gzip stream: %v", err)
		}
		defer gz.Close()
		decompressed = gz
	case TarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			t.Fatalf("failed to open zstd stream: %v", err)
		}
		defer zr.Close()
		decompressed = zr
	default:
		t.Fatalf("unknown format %v", format)
	}

	entries := make(map[string]string)
	tr := tar.NewReader(decompressed)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read tar entry: %v", err)
		}
		switch hdr.Typeflag {
		case tar.TypeReg:
			content, err := io.ReadAll(tr)
			if err != nil {
				t.Fatalf("failed to read tar content: %v", err)
			}
			entries[hdr.Name] = string(content)
		case tar.TypeSymlink:
			entries[hdr.Name] = hdr.Linkname
		case tar.TypeDir:
			entries[hdr.Name] = ""
		}
	}
	return entries
}

func TestArchive_RoundTrip(t *testing.T) {
	for _, format := range []Format{TarGz, TarZst} {
		t.Run(format.String(), func(t *testing.T) {
			src := buildSampleDir(t)
			archiver := NewArchiver(format)
			fixedClock(archiver)

			archivePath, err := archiver.Archive(context.Background(), src)
			if err != nil {
				t.Fatalf("Archive returned error: %v", err)
			}

			wantPath := src + ".20260314T092653Z" + format.Extension()
			if archivePath != wantPath {
				t.Errorf("archive path = %q; want %q", archivePath, wantPath)
			}
			if !strings.HasPrefix(archivePath, filepath.Dir(src)) {
				t.Errorf("archive must live beside the directory, got %q", archivePath)
			}

			entries := readTarEntries(t, archivePath, format)
			if entries["a.txt"] != "alpha" {
				t.Errorf("a.txt content = %q; want %q", entries["a.txt"], "alpha")
			}
			if entries["sub/b.txt"] != "beta" {
				t.Errorf("sub/b.txt content = %q; want %q", entries["sub/b.txt"], "beta")
			}
			if _, ok := entries["sub/"]; !ok {
				t.Error("expected directory entry sub/ in archive")
			}
			if runtime.GOOS != "windows" {
				if entries["link"] != "a.txt" {
					t.Errorf("symlink entry = %q; want link target %q", entries["link"], "a.txt")
				}
			}
		})
	}
}

func TestArchive_Errors(t *testing.T) {
	t.Run("Missing directory", func(t *testing.T) {
		archiver := NewArchiver(TarGz)
		if _, err := archiver.Archive(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
			t.Fatal("expected an error for a missing directory")
		}
	})

	t.Run("Not a directory", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "file.txt")
		if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		archiver := NewArchiver(TarGz)
		if _, err := archiver.Archive(context.Background(), file); err == nil {
			t.Fatal("expected an error for a non-directory source")
		}
	})

	t.Run("Canceled context leaves no archive", func(t *testing.T) {
		src := buildSampleDir(t)
		archiver := NewArchiver(TarGz)
		fixedClock(archiver)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := archiver.Archive(ctx, src); err == nil {
			t.Fatal("expected an error for a canceled context")
		}
		if _, err := os.Stat(src + ".20260314T092653Z.tar.gz"); !os.IsNotExist(err) {
			t.Error("expected no archive file after a failed run")
		}
	})
}

func TestParseFormat(t *testing.T) {
	testCases := []struct {
		input    string
		expected Format
		wantErr  bool
	}{
		{"tar.gz", TarGz, false},
		{"TAR.GZ", TarGz, false},
		{"tar.zst", TarZst, false},
		{"zip", 0, true},
		{"", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseFormat(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseFormat(%q) expected error, got %v", tc.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFormat(%q) returned error: %v", tc.input, err)
			}
			if got != tc.expected {
				t.Errorf("ParseFormat(%q) = %v; want %v", tc.input, got, tc.expected)
			}
		})
	}
}
