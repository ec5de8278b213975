//go:build windows

package pathsync

import "os"

// isSameDirEntry reports whether both paths name the same filesystem entry.
// Either path not existing means "not the same".
func isSameDirEntry(a, b string) bool {
	infoA, err := os.Stat(a)
	if err != nil {
		return false
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(infoA, infoB)
}
