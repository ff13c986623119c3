//go:build darwin

package util

import "syscall"

func detectPlatformMount(path string) (*MountInfo, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil, err
	}

	fsType := cString(stat.Fstypename[:])
	info := &MountInfo{MountPath: cString(stat.Mntonname[:])}
	if isNetworkFSName(fsType) || fsType == "osxfuse" {
		info.IsNetwork = true
		info.Protocol = fsType
	}
	return info, nil
}

func cString(arr []int8) string {
	b := make([]byte, 0, len(arr))
	for _, c := range arr {
		if c == 0 {
			break
		}
		b = append(b, byte(c))
	}
	return string(b)
}
