package util

import (
	"os"
	"syscall"
)

// IsSameFilesystem reports whether two existing paths share a device (st_dev).
// Transfers use it to decide whether a hardlink or rename can replace a copy.
// When device IDs are unavailable the paths are treated as different.
func IsSameFilesystem(path1, path2 string) (bool, error) {
	stat1, err := os.Stat(path1)
	if err != nil {
		return false, err
	}

	stat2, err := os.Stat(path2)
	if err != nil {
		return false, err
	}

	sys1, ok1 := stat1.Sys().(*syscall.Stat_t)
	sys2, ok2 := stat2.Sys().(*syscall.Stat_t)
	if !ok1 || !ok2 {
		return false, nil
	}

	return sys1.Dev == sys2.Dev, nil
}
