package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(context.Background(), dir, "test-app")
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}

	lockPath := filepath.Join(dir, LockFileName)
	if _, err := os.Stat(lockPath); err != nil {
		t.Fatalf("expected lock file to exist: %v", err)
	}

	data, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatal(err)
	}
	var content LockContent
	if err := json.Unmarshal(data, &content); err != nil {
		t.Fatalf("lock file is not valid JSON: %v", err)
	}
	if content.PID != int64(os.Getpid()) {
		t.Errorf("lock PID = %d; want %d", content.PID, os.Getpid())
	}
	if content.AppID != "test-app" {
		t.Errorf("lock AppID = %q; want %q", content.AppID, "test-app")
	}

	lock.Release()
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("expected lock file to be removed after release")
	}

	// Releasing twice must be harmless.
	lock.Release()
}

func TestAcquire_ActiveLockIsRejected(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(context.Background(), dir, "holder")
	if err != nil {
		t.Fatalf("first Acquire returned error: %v", err)
	}
	defer first.Release()

	_, err = Acquire(context.Background(), dir, "second")
	var lockErr *ErrLockActive
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *ErrLockActive, got: %v", err)
	}
	if lockErr.AppID != "holder" {
		t.Errorf("ErrLockActive.AppID = %q; want %q", lockErr.AppID, "holder")
	}
}

func TestAcquire_StaleLockIsTakenOver(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName)

	stale := LockContent{
		PID:        99999,
		Hostname:   "ghost",
		LastUpdate: time.Now().UTC().Add(-24 * time.Hour),
		AppID:      "crashed-run",
	}
	data, err := json.Marshal(stale)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		t.Fatal(err)
	}

	lock, err := Acquire(context.Background(), dir, "fresh-run")
	if err != nil {
		t.Fatalf("expected stale lock to be taken over, got: %v", err)
	}
	defer lock.Release()

	content, err := readLockContent(lockPath)
	if err != nil {
		t.Fatal(err)
	}
	if content.AppID != "fresh-run" {
		t.Errorf("lock AppID = %q; want %q", content.AppID, "fresh-run")
	}
}

func TestAcquire_CorruptLockIsTakenOver(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName)
	if err := os.WriteFile(lockPath, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	lock, err := Acquire(context.Background(), dir, "fresh-run")
	if err != nil {
		t.Fatalf("expected corrupt lock to be taken over, got: %v", err)
	}
	lock.Release()
}

func TestAcquire_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Acquire(ctx, t.TempDir(), "app"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
}

func TestReadLockContent_Empty(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName)
	if err := os.WriteFile(lockPath, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := readLockContent(lockPath); !errors.Is(err, ErrCorruptLockFile) {
		t.Fatalf("expected ErrCorruptLockFile, got: %v", err)
	}
}
