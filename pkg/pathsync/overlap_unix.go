//go:build !windows

package pathsync

import (
	"os"

	"golang.org/x/sys/unix"
)

// isSameDirEntry reports whether both paths name the same filesystem entry,
// compared by device and inode number. This catches aliases the lexical
// overlap check cannot see (hard links, bind mounts). Either path not
// existing means "not the same".
func isSameDirEntry(a, b string) bool {
	infoA, err := os.Stat(a)
	if err != nil {
		return false
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false
	}

	statA, okA := infoA.Sys().(*unix.Stat_t)
	statB, okB := infoB.Sys().(*unix.Stat_t)
	if !okA || !okB {
		return os.SameFile(infoA, infoB)
	}
	return statA.Dev == statB.Dev && statA.Ino == statB.Ino
}
