//go:build !windows

package scanner

import (
	"os"
	"syscall"
)

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

// sysStat extracts device, inode, link count and block usage from file
// info. st_blocks is already in 512-byte units.
func sysStat(info os.FileInfo) sysInfo {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return sysInfo{nlink: 1, blocks: (info.Size() + 511) / 512}
	}
	return sysInfo{
		device: uint64(stat.Dev),
		inode:  uint64(stat.Ino),
		nlink:  uint32(stat.Nlink),
		blocks: int64(stat.Blocks),
		uid:    stat.Uid,
		gid:    stat.Gid,
		mode:   uint32(stat.Mode),
		ok:     true,
	}
}
