package pathsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Strategy identifies which copy strategy completed a sync.
type Strategy int

const (
	// None means no strategy completed; it is the outcome on every error path.
	None Strategy = iota
	// ExternalTool means the external mirroring tool (rsync) did the copy.
	ExternalTool
	// Fallback means the portable in-process recursive copy did the copy.
	Fallback
)

var strategyToString = map[Strategy]string{None: "none", ExternalTool: "external-tool", Fallback: "fallback"}
var stringToStrategy map[string]Strategy

func init() {
	stringToStrategy = util.InvertMap(strategyToString)
}

// String returns the string representation of a Strategy.
func (s Strategy) String() string {
	if str, ok := strategyToString[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown_strategy(%d)", int(s))
}

// ParseStrategy parses a string and returns the corresponding Strategy.
func ParseStrategy(s string) (Strategy, error) {
	if strategy, ok := stringToStrategy[s]; ok {
		return strategy, nil
	}
	return None, fmt.Errorf("invalid strategy: %q. Must be 'none', 'external-tool' or 'fallback'", s)
}

// MarshalJSON implements the json.Marshaler interface for Strategy.
func (s Strategy) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Strategy.
func (s *Strategy) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("Strategy should be a string, got %s", data)
	}

	strategy, err := ParseStrategy(str)
	if err != nil {
		return err
	}
	*s = strategy
	return nil
}

// strategy is one entry in the engine's ordered attempt chain.
type strategy interface {
	kind() Strategy
	attempt(ctx context.Context, absSourcePath, absTargetPath string) error
}
