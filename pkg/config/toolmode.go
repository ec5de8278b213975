package config

import (
	"encoding/json"
	"fmt"

	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// ToolMode controls whether the external sync tool is probed, forced or
// disabled for a run.
type ToolMode int

const (
	// ToolModeAuto probes the system for the external tool and uses it
	// when available.
	ToolModeAuto ToolMode = iota
	// ToolModeAlways skips the probe and assumes the tool is available.
	ToolModeAlways
	// ToolModeNever disables the external tool and always uses the
	// recursive copy fallback.
	ToolModeNever
)

var toolModeToString = map[ToolMode]string{
	ToolModeAuto:   "auto",
	ToolModeAlways: "always",
	ToolModeNever:  "never",
}

var stringToToolMode map[string]ToolMode

func init() {
	stringToToolMode = util.InvertMap(toolModeToString)
}

func (m ToolMode) String() string {
	if str, ok := toolModeToString[m]; ok {
		return str
	}
	return fmt.Sprintf("unknown_tool_mode(%d)", m)
}

// ParseToolMode converts a string into a ToolMode.
func ParseToolMode(s string) (ToolMode, error) {
	if mode, ok := stringToToolMode[s]; ok {
		return mode, nil
	}
	return ToolModeAuto, fmt.Errorf("invalid tool mode: %q. Must be 'auto', 'always' or 'never'", s)
}

// Override maps the mode onto the tool availability override used by the
// detection cache: nil means probe, otherwise the forced availability.
func (m ToolMode) Override() *bool {
	switch m {
	case ToolModeAlways:
		available := true
		return &available
	case ToolModeNever:
		available := false
		return &available
	default:
		return nil
	}
}

// MarshalJSON implements the json.Marshaler interface for ToolMode.
func (m ToolMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for ToolMode.
func (m *ToolMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("tool mode must be a JSON string: %w", err)
	}
	mode, err := ParseToolMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
