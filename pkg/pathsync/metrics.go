package pathsync

import (
	"sync/atomic"
	"time"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Metrics defines the interface for collecting and reporting fallback-copy
// statistics. The external tool runs opaquely, so only the fallback strategy
// feeds these counters.
type Metrics interface {
	AddEntriesProcessed(n int64)
	AddFilesCopied(n int64)
	AddSymlinksCopied(n int64)
	AddDirsCreated(n int64)
	AddBytesWritten(n int64)
	LogSummary(msg string)
}

// SyncMetrics holds the atomic counters for tracking the copy's progress.
// It is the concrete implementation of the Metrics interface.
type SyncMetrics struct {
	EntriesProcessed atomic.Int64
	FilesCopied      atomic.Int64
	SymlinksCopied   atomic.Int64
	DirsCreated      atomic.Int64
	BytesWritten     atomic.Int64

	startTime time.Time
}

// NewSyncMetrics creates a SyncMetrics with its duration clock started.
func NewSyncMetrics() *SyncMetrics {
	return &SyncMetrics{startTime: time.Now()}
}

func (m *SyncMetrics) AddEntriesProcessed(n int64) { m.EntriesProcessed.Add(n) }
func (m *SyncMetrics) AddFilesCopied(n int64)      { m.FilesCopied.Add(n) }
func (m *SyncMetrics) AddSymlinksCopied(n int64)   { m.SymlinksCopied.Add(n) }
func (m *SyncMetrics) AddDirsCreated(n int64)      { m.DirsCreated.Add(n) }
func (m *SyncMetrics) AddBytesWritten(n int64)     { m.BytesWritten.Add(n) }

// LogSummary prints a summary of the copy with a custom message.
func (m *SyncMetrics) LogSummary(msg string) {
	duration := time.Duration(0)
	if !m.startTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	plog.Info(msg,
		"entries_processed", m.EntriesProcessed.Load(),
		"files_copied", m.FilesCopied.Load(),
		"symlinks_copied", m.SymlinksCopied.Load(),
		"dirs_created", m.DirsCreated.Load(),
		"bytes_written", util.ByteCountIEC(m.BytesWritten.Load()),
		"duration", duration.Round(time.Millisecond),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no
// operations. It disables metrics collection without changing calling code.
type NoopMetrics struct{}

func (m *NoopMetrics) AddEntriesProcessed(n int64) {}
func (m *NoopMetrics) AddFilesCopied(n int64)      {}
func (m *NoopMetrics) AddSymlinksCopied(n int64)   {}
func (m *NoopMetrics) AddDirsCreated(n int64)      {}
func (m *NoopMetrics) AddBytesWritten(n int64)     {}
func (m *NoopMetrics) LogSummary(msg string)       {}

// Statically assert that our types implement the interface.
var _ Metrics = (*SyncMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
