package pathsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/toolcheck"
	"github.com/paulschiretz/pgl-mirror/pkg/toolexec"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// rsyncStrategy mirrors the source's contents into the target via the external
// rsync tool.
type rsyncStrategy struct {
	runner toolexec.Runner
}

func (rsyncStrategy) kind() Strategy { return ExternalTool }

func (st rsyncStrategy) attempt(ctx context.Context, absSourcePath, absTargetPath string) error {
	// rsync creates the target itself, but only if its parent exists.
	if err := os.MkdirAll(filepath.Dir(absTargetPath), util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create target parent directory: %w", err)
	}

	// rsync arguments:
	// -a       :: archive mode (recursive, preserves permissions, modtimes, symlinks).
	// --delete :: remove entries in the target that are not present in the source.
	// The trailing slash on the source copies its contents, not the directory itself.
	args := []string{"-a", "--delete", ensureTrailingSeparator(absSourcePath), absTargetPath}

	plog.Debug("Starting sync with rsync", "command", toolcheck.ToolName+" "+strings.Join(args, " "))
	res, err := st.runner.Run(ctx, toolcheck.ToolName, args...)
	if err != nil {
		return fmt.Errorf("rsync invocation failed: %w", err)
	}
	if !res.Success() {
		if res.Stderr != "" {
			return fmt.Errorf("rsync exited with code %d: %s", res.ExitCode, res.Stderr)
		}
		return fmt.Errorf("rsync exited with code %d", res.ExitCode)
	}

	plog.Debug("rsync completed", "source", absSourcePath, "target", absTargetPath)
	return nil
}

// ensureTrailingSeparator appends the platform separator unless one is
// already present.
func ensureTrailingSeparator(path string) string {
	if strings.HasSuffix(path, string(os.PathSeparator)) {
		return path
	}
	return path + string(os.PathSeparator)
}
