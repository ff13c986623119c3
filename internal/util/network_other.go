//go:build !linux && !darwin

package util

import "os"

// Unsupported platforms report every path as local.
func detectPlatformMount(path string) (*MountInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return &MountInfo{}, nil
}
