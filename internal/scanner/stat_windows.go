//go:build windows

package scanner

import "os"

// sysInfo holds platform-specific file metadata.
type sysInfo struct {
	device uint64
	inode  uint64
	nlink  uint32
	blocks int64 // 512-byte units
	uid    uint32
	gid    uint32
	mode   uint32
	ok     bool // true if platform stat was available
}

// sysStat on Windows approximates block usage from the apparent size.
// Device, inode and hardlink detection are not supported.
func sysStat(info os.FileInfo) sysInfo {
	return sysInfo{nlink: 1, blocks: (info.Size() + 511) / 512}
}
