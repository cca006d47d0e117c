package model

import (
	"path/filepath"
	"sync/atomic"
	"time"
)

const (
	maxInt64 = int64(^uint64(0) >> 1)
	minInt64 = -maxInt64 - 1
)

// EntryType classifies a scanned filesystem object.
type EntryType uint8

const (
	TypeDirectory EntryType = iota
	TypeFile
	TypeSymlink
	// TypeHardlink marks a file whose inode was already counted elsewhere
	// in the same tree.
	TypeHardlink
	TypeSpecial
	TypeError
	TypeExcluded
	TypeOtherFS
	TypeKernelFS
)

// IsDirectory reports whether entries of this type may own children.
// OtherFS and KernelFS are directory-shaped placeholders: they keep the
// tree navigable even though they are never recursed into.
func (t EntryType) IsDirectory() bool {
	return t == TypeDirectory || t == TypeOtherFS || t == TypeKernelFS
}

// IsCountable reports whether entries of this type contribute to scan
// statistics.
func (t EntryType) IsCountable() bool {
	return t != TypeError && t != TypeExcluded
}

func (t EntryType) String() string {
	switch t {
	case TypeDirectory:
		return "DIR"
	case TypeFile:
		return "FILE"
	case TypeSymlink:
		return "LINK"
	case TypeHardlink:
		return "HARD"
	case TypeSpecial:
		return "SPEC"
	case TypeError:
		return "ERR"
	case TypeExcluded:
		return "EXCL"
	case TypeOtherFS:
		return "OTFS"
	case TypeKernelFS:
		return "KERN"
	default:
		return "UNKNOWN"
	}
}

// ExtendedInfo holds metadata that is only collected in extended mode,
// since it costs an extra stat on some platforms.
type ExtendedInfo struct {
	Mtime time.Time
	UID   uint32
	GID   uint32
	Mode  uint32
}

// Entry is one node in the scanned tree.
//
// Children are owned exclusively by their parent; Parent is a non-owning
// back-reference used only for path reconstruction. A finished tree is
// never mutated, so concurrent readers need no synchronization.
type Entry struct {
	ID     uint64
	Type   EntryType
	Name   string // base name, not a full path
	Size   int64  // apparent size in bytes
	Blocks int64  // disk usage in 512-byte units
	Device uint64
	Inode  uint64
	Nlink  uint32

	Extended *ExtendedInfo // nil unless extended mode was enabled
	Error    string        // non-empty only when Type == TypeError

	Children []*Entry
	Parent   *Entry
}

// NewErrorEntry builds a zero-weight leaf recording a per-object scan
// failure.
func NewErrorEntry(id uint64, name, msg string) *Entry {
	return &Entry{ID: id, Type: TypeError, Name: name, Error: msg}
}

// AddChild attaches a finished child. Must only be called before the tree
// is published to readers.
func (e *Entry) AddChild(child *Entry) {
	child.Parent = e
	e.Children = append(e.Children, child)
}

// RemoveChild detaches the named child and returns whether one was
// found. Used after a successful filesystem deletion so the browsed
// tree tracks reality.
func (e *Entry) RemoveChild(name string) bool {
	for i, c := range e.Children {
		if c.Name == name {
			c.Parent = nil
			e.Children = append(e.Children[:i], e.Children[i+1:]...)
			return true
		}
	}
	return false
}

// IsDir reports whether this entry may own children.
func (e *Entry) IsDir() bool { return e.Type.IsDirectory() }

// HasError reports whether this entry itself failed to scan.
func (e *Entry) HasError() bool { return e.Type == TypeError }

// HasSubError reports whether any descendant failed to scan.
func (e *Entry) HasSubError() bool {
	for _, c := range e.Children {
		if c.HasError() || c.HasSubError() {
			return true
		}
	}
	return false
}

// Mtime returns the modification time and whether one was collected.
func (e *Entry) Mtime() (time.Time, bool) {
	if e.Extended == nil || e.Extended.Mtime.IsZero() {
		return time.Time{}, false
	}
	return e.Extended.Mtime, true
}

// Path reconstructs the full path by walking up the parent chain.
func (e *Entry) Path() string {
	if e.Parent == nil {
		return e.Name
	}
	depth := 0
	for p := e.Parent; p != nil; p = p.Parent {
		depth++
	}
	parts := make([]string, depth+1)
	parts[depth] = e.Name
	i := depth - 1
	for p := e.Parent; p != nil; p = p.Parent {
		parts[i] = p.Name
		i--
	}
	return filepath.Join(parts...)
}

// TotalSize returns the apparent size of this entry plus its whole
// subtree. Computed on demand, never cached on the node.
func (e *Entry) TotalSize() int64 {
	total := e.Size
	for _, c := range e.Children {
		total = saturatingAdd(total, c.TotalSize())
	}
	return total
}

// TotalBlocks returns the 512-byte block usage of this entry plus its
// whole subtree.
func (e *Entry) TotalBlocks() int64 {
	total := e.Blocks
	for _, c := range e.Children {
		total = saturatingAdd(total, c.TotalBlocks())
	}
	return total
}

// TotalItems returns the number of entries in this subtree, counting the
// entry itself. A leaf reports 1.
func (e *Entry) TotalItems() int64 {
	total := int64(1)
	for _, c := range e.Children {
		total = saturatingAdd(total, c.TotalItems())
	}
	return total
}

// SharedSize sums the apparent size of every entry in this subtree whose
// inode also has links outside the scanned tree. The whole size of such
// an entry counts as shared, not a per-link split; see SharedBlocks.
func (e *Entry) SharedSize(reg *HardlinkRegistry) int64 {
	var shared int64
	if e.Nlink > 1 {
		if info, ok := reg.Lookup(HardlinkKey{Device: e.Device, Inode: e.Inode}); ok {
			if info.TotalLinks > info.LinksInTree {
				shared = e.Size
			}
		}
	}
	for _, c := range e.Children {
		shared = saturatingAdd(shared, c.SharedSize(reg))
	}
	return shared
}

// SharedBlocks is SharedSize over disk blocks.
func (e *Entry) SharedBlocks(reg *HardlinkRegistry) int64 {
	var shared int64
	if e.Nlink > 1 {
		if info, ok := reg.Lookup(HardlinkKey{Device: e.Device, Inode: e.Inode}); ok {
			if info.TotalLinks > info.LinksInTree {
				shared = e.Blocks
			}
		}
	}
	for _, c := range e.Children {
		shared = saturatingAdd(shared, c.SharedBlocks(reg))
	}
	return shared
}

func saturatingAdd(a, b int64) int64 {
	if b > 0 && a > maxInt64-b {
		return maxInt64
	}
	if b < 0 && a < minInt64-b {
		return minInt64
	}
	return a + b
}

// IDGenerator hands out process-unique entry ids. Each scan owns its own
// generator so independent scans never share counter state.
type IDGenerator struct {
	next atomic.Uint64
}

// NewIDGenerator returns a generator whose first id is 1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the next id. Safe for concurrent use.
func (g *IDGenerator) Next() uint64 {
	return g.next.Add(1)
}
