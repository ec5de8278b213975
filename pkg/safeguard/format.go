package safeguard

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Format is the archive format used for target safeguards.
type Format int

const (
	// TarGz produces a gzip-compressed tarball (parallel gzip via pgzip).
	TarGz Format = iota
	// TarZst produces a zstd-compressed tarball.
	TarZst
)

var formatToString = map[Format]string{TarGz: "tar.gz", TarZst: "tar.zst"}
var stringToFormat map[string]Format

func init() {
	stringToFormat = util.InvertMap(formatToString)
}

// String returns the string representation of a Format.
func (f Format) String() string {
	if str, ok := formatToString[f]; ok {
		return str
	}
	return fmt.Sprintf("unknown_format(%d)", int(f))
}

// Extension returns the file extension for the format, including the dot.
func (f Format) Extension() string {
	return "." + f.String()
}

// ParseFormat parses a string and returns the corresponding Format.
func ParseFormat(s string) (Format, error) {
	if format, ok := stringToFormat[strings.ToLower(s)]; ok {
		return format, nil
	}
	return 0, fmt.Errorf("invalid safeguard format: %q. Must be 'tar.gz' or 'tar.zst'", s)
}

// MarshalJSON implements the json.Marshaler interface for Format.
func (f Format) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Format.
func (f *Format) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("Format should be a string, got %s", data)
	}

	format, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = format
	return nil
}
