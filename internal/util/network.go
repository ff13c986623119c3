package util

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MountInfo describes the filesystem a location root lives on.
type MountInfo struct {
	IsNetwork bool
	Protocol  string // nfs, cifs, smbfs, fuse.sshfs ... empty when local
	MountPath string
}

var networkFSNames = []string{"nfs", "cifs", "smb", "ncpfs", "afpfs", "webdav", "fuse.sshfs", "fuse.rclone"}

// isNetworkFSName reports whether a filesystem type name denotes network storage.
func isNetworkFSName(name string) bool {
	name = strings.ToLower(name)
	for _, candidate := range networkFSNames {
		if strings.Contains(name, candidate) {
			return true
		}
	}
	return false
}

// DetectMount inspects the filesystem holding path.
func DetectMount(path string) (*MountInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	info, err := detectPlatformMount(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect filesystem for %s: %w", abs, err)
	}
	return info, nil
}

// IsNetworkPath is DetectMount reduced to a bool; errors count as local.
func IsNetworkPath(path string) bool {
	info, err := DetectMount(path)
	if err != nil {
		return false
	}
	return info.IsNetwork
}

// longestMountPrefix picks the most specific mount point containing path.
func longestMountPrefix(path string, mounts map[string]string) (string, string) {
	best, bestType := "", ""
	for mountPoint, fsType := range mounts {
		if !pathHasPrefix(path, mountPoint) {
			continue
		}
		if len(mountPoint) > len(best) {
			best, bestType = mountPoint, fsType
		}
	}
	return best, bestType
}

func pathHasPrefix(path, prefix string) bool {
	if prefix == "/" || path == prefix {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/")
}
