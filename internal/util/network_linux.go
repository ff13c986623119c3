//go:build linux

package util

import (
	"bufio"
	"io"
	"os"
	"strings"
	"syscall"
)

var linuxNetworkMagic = map[uint32]string{
	0x6969:     "nfs",
	0xff534d42: "cifs",
	0xfe534d42: "smb2",
	0x517b:     "smb",
	0x564c:     "ncp",
}

func detectPlatformMount(path string) (*MountInfo, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil, err
	}

	info := &MountInfo{}
	if proto, ok := linuxNetworkMagic[uint32(stat.Type)]; ok {
		info.IsNetwork = true
		info.Protocol = proto
	}

	f, err := os.Open("/proc/mounts")
	if err != nil {
		// magic number only
		return info, nil
	}
	defer f.Close()

	mounts, err := parseMountTable(f)
	if err != nil {
		return info, nil
	}

	mountPoint, fsType := longestMountPrefix(path, mounts)
	info.MountPath = mountPoint
	if isNetworkFSName(fsType) {
		info.IsNetwork = true
		info.Protocol = fsType
	}
	return info, nil
}

// parseMountTable reads /proc/mounts format: device mountpoint fstype options dump pass.
func parseMountTable(r io.Reader) (map[string]string, error) {
	mounts := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mounts[fields[1]] = fields[2]
	}
	return mounts, scanner.Err()
}
