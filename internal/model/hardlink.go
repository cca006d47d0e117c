package model

import "sync"

// HardlinkKey identifies an on-disk object. Both device and inode are
// needed: inode numbers repeat across filesystems.
type HardlinkKey struct {
	Device uint64
	Inode  uint64
}

// HardlinkInfo tracks one multiply-linked inode for the duration of a
// scan.
type HardlinkInfo struct {
	// TotalLinks is the link count reported by the filesystem.
	TotalLinks uint32
	// LinksInTree counts the links observed inside the scanned subtree.
	LinksInTree uint32
	Size        int64
	Blocks      int64
	// First is the entry that kept its natural classification.
	First *Entry
}

// HardlinkRegistry detects duplicate hard links across concurrent scan
// workers. Scan-scoped: built fresh per scan, discarded after.
type HardlinkRegistry struct {
	mu      sync.Mutex
	entries map[HardlinkKey]*HardlinkInfo
}

// NewHardlinkRegistry returns an empty registry.
func NewHardlinkRegistry() *HardlinkRegistry {
	return &HardlinkRegistry{entries: make(map[HardlinkKey]*HardlinkInfo)}
}

// Resolve records a sighting of key. The first sighting inserts tracking
// state and returns true: the entry keeps its natural classification.
// Every later sighting increments the in-tree link counter and returns
// false: the caller reclassifies the entry as TypeHardlink. The critical
// section is a single lookup-or-insert.
func (r *HardlinkRegistry) Resolve(key HardlinkKey, nlink uint32, size, blocks int64, entry *Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok := r.entries[key]; ok {
		info.LinksInTree++
		return false
	}
	r.entries[key] = &HardlinkInfo{
		TotalLinks:  nlink,
		LinksInTree: 1,
		Size:        size,
		Blocks:      blocks,
		First:       entry,
	}
	return true
}

// Lookup returns a copy of the tracking state for key.
func (r *HardlinkRegistry) Lookup(key HardlinkKey) (HardlinkInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.entries[key]
	if !ok {
		return HardlinkInfo{}, false
	}
	return *info, true
}

// Len returns the number of tracked inodes.
func (r *HardlinkRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
