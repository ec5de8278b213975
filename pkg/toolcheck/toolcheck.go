// Package toolcheck answers whether the external mirroring tool (rsync) is
// usable on this host. The answer is probed once and cached for the lifetime
// of the ToolCheck, so repeated sync calls never pay for repeated probes.
package toolcheck

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/toolexec"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// ToolName is the external mirroring tool probed for.
const ToolName = "rsync"

// State is the tri-state detection cache value.
type State int

const (
	// StateUnknown means no probe has run yet; the next Detect will probe.
	StateUnknown State = iota
	// StateAvailable means the tool was found on the host.
	StateAvailable
	// StateUnavailable means the tool was not found (or the probe failed).
	StateUnavailable
)

var stateToString = map[State]string{
	StateUnknown:     "unknown",
	StateAvailable:   "available",
	StateUnavailable: "unavailable",
}

var stringToState map[string]State

func init() {
	stringToState = util.InvertMap(stateToString)
}

// String returns the string representation of a State.
func (s State) String() string {
	if str, ok := stateToString[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown_state(%d)", int(s))
}

// ParseState parses a string and returns the corresponding State.
func ParseState(s string) (State, error) {
	if state, ok := stringToState[s]; ok {
		return state, nil
	}
	return 0, fmt.Errorf("invalid tool state: %q. Must be 'unknown', 'available' or 'unavailable'", s)
}

// ToolCheck detects and caches the availability of one external tool.
// It is safe for concurrent use; concurrent first-time detections are
// collapsed into a single probe.
type ToolCheck struct {
	tool   string
	runner toolexec.Runner

	mu    sync.Mutex
	state State

	probeGroup singleflight.Group
}

// New creates a ToolCheck for the given tool, starting in the unknown state.
func New(tool string, runner toolexec.Runner) *ToolCheck {
	return &ToolCheck{
		tool:   tool,
		runner: runner,
	}
}

// Detect returns whether the tool is usable. The first call probes the host's
// command resolution; every later call answers from the cache until Reset.
// Probe errors are never propagated, they simply mean "unavailable".
func (c *ToolCheck) Detect() bool {
	c.mu.Lock()
	if c.state != StateUnknown {
		cached := c.state
		c.mu.Unlock()
		return cached == StateAvailable
	}
	c.mu.Unlock()

	available, _, _ := c.probeGroup.Do(c.tool, func() (any, error) {
		path, err := c.runner.LookPath(c.tool)
		found := err == nil

		c.mu.Lock()
		// An Override/Reset may have raced in; the cache write happens at
		// most once per detection cycle.
		if c.state == StateUnknown {
			if found {
				c.state = StateAvailable
			} else {
				c.state = StateUnavailable
			}
		}
		c.mu.Unlock()

		if found {
			plog.Debug("External tool found", "tool", c.tool, "path", path)
		} else {
			plog.Debug("External tool not found", "tool", c.tool, "error", err)
		}
		return found, nil
	})
	return available.(bool)
}

// Reset forces the cache back to unknown so the next Detect re-probes.
func (c *ToolCheck) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateUnknown
}

// Override forces the cached state directly, bypassing the probe. Passing nil
// clears the override and re-enables probing. Intended for tests and for the
// CLI's explicit tool-mode settings.
func (c *ToolCheck) Override(available *bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case available == nil:
		c.state = StateUnknown
	case *available:
		c.state = StateAvailable
	default:
		c.state = StateUnavailable
	}
}

// State returns the current cache value without triggering a probe.
func (c *ToolCheck) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// defaultCheck is the process-wide instance used by the CLI.
var defaultCheck = New(ToolName, toolexec.NewExecRunner())

// Default returns the process-wide ToolCheck for rsync.
func Default() *ToolCheck {
	return defaultCheck
}

// ResetCache resets the process-wide detection cache to unknown.
func ResetCache() {
	defaultCheck.Reset()
}

// OverrideAvailable forces the process-wide cache; nil clears the override.
func OverrideAvailable(available *bool) {
	defaultCheck.Override(available)
}
