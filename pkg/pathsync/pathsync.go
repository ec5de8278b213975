// Package pathsync mirrors one directory tree onto another. It prefers the
// external rsync tool when the host provides it and falls back to a portable
// in-process recursive copy otherwise. Either way the target ends up as an
// exact mirror of the source: entries present only in the target are removed.
package pathsync

import (
	"context"
	"fmt"
	"os"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/toolcheck"
	"github.com/paulschiretz/pgl-mirror/pkg/toolexec"
)

// Safeguarder archives a directory before it is destructively replaced.
// Implemented by pkg/safeguard; nil disables the safeguard.
type Safeguarder interface {
	Archive(ctx context.Context, absDirPath string) (string, error)
}

// Syncer is the directory synchronization engine. It is stateless apart from
// its collaborators and safe for concurrent use on non-overlapping targets;
// concurrent calls against the same target are the caller's responsibility
// to serialize.
type Syncer struct {
	runner    toolexec.Runner
	tool      *toolcheck.ToolCheck
	metrics   Metrics
	safeguard Safeguarder
}

// NewSyncer creates a Syncer. A nil metrics disables counters; a nil
// safeguarder disables pre-replacement archiving.
func NewSyncer(runner toolexec.Runner, tool *toolcheck.ToolCheck, metrics Metrics, safeguard Safeguarder) *Syncer {
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &Syncer{
		runner:    runner,
		tool:      tool,
		metrics:   metrics,
		safeguard: safeguard,
	}
}

// Sync mirrors the contents of source into target and reports which strategy
// completed the copy. It fails before any filesystem mutation on validation
// errors; an external-tool failure is recovered by the fallback copier and
// never surfaced; a fallback failure is fatal.
func (s *Syncer) Sync(ctx context.Context, source, target string) (Strategy, error) {
	// Check for cancellation before touching the filesystem.
	select {
	case <-ctx.Done():
		return None, ctx.Err()
	default:
	}

	absSourcePath, absTargetPath, err := ValidatePaths(source, target)
	if err != nil {
		return None, err
	}

	plog.Info("Syncing directories", "source", absSourcePath, "target", absTargetPath)

	// The mirror deletes extraneous target entries, so the optional safeguard
	// archives the current target before the first destructive step.
	if s.safeguard != nil {
		if _, err := os.Lstat(absTargetPath); err == nil {
			archivePath, err := s.safeguard.Archive(ctx, absTargetPath)
			if err != nil {
				return None, fmt.Errorf("target safeguard failed, aborting before any destructive step: %w", err)
			}
			plog.Notice("Target archived before mirror", "archive", archivePath)
		}
	}

	strategies := s.buildStrategies()
	var lastErr error
	for i, st := range strategies {
		select {
		case <-ctx.Done():
			return None, ctx.Err()
		default:
		}

		err := st.attempt(ctx, absSourcePath, absTargetPath)
		if err == nil {
			plog.Info("Sync finished", "strategy", st.kind().String())
			return st.kind(), nil
		}

		if i < len(strategies)-1 {
			// Recovered locally: log through the error sink and fall
			// through to the next strategy.
			plog.Error("External tool sync failed, falling back to recursive copy", "error", err)
			continue
		}
		lastErr = err
	}
	return None, fmt.Errorf("sync of %s to %s failed: %w", absSourcePath, absTargetPath, lastErr)
}

// buildStrategies assembles the ordered attempt chain for one call. The
// external tool leads only when the availability cache says it is usable;
// the fallback copier always terminates the chain.
func (s *Syncer) buildStrategies() []strategy {
	var strategies []strategy
	if s.tool.Detect() {
		strategies = append(strategies, rsyncStrategy{runner: s.runner})
	} else {
		plog.Debug("External tool unavailable, using fallback copy only")
	}
	return append(strategies, fallbackStrategy{metrics: s.metrics})
}
