package scanner

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/sadopc/dux/internal/model"
)

// Options configures a scan.
type Options struct {
	// SameFS restricts the scan to the filesystem of the root; entries on
	// other devices become zero-weight OtherFS placeholders.
	SameFS bool
	// FollowSymlinks resolves symlinks when reading metadata.
	FollowSymlinks bool
	// ShowHidden includes names starting with a dot.
	ShowHidden bool
	// ExcludePatterns holds glob patterns; matching entries become
	// zero-weight Excluded placeholders. Patterns are matched against
	// both the full path and the base name.
	ExcludePatterns []string
	// ExcludeCaches skips directories carrying a CACHEDIR.TAG file.
	ExcludeCaches bool
	// ExcludeKernFS skips well-known kernel pseudo-filesystem mounts.
	ExcludeKernFS bool
	// Extended collects mtime, owner, group and mode bits per entry.
	Extended bool
	// Workers bounds parallel directory fan-out. Values below 1 mean
	// sequential scanning.
	Workers int
	// Sort orders each directory's children before attachment.
	Sort model.SortConfig
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		ShowHidden: true,
		Workers:    runtime.GOMAXPROCS(0),
		Sort:       model.DefaultSort(),
	}
}

// Scanner walks a directory tree and builds the entry model.
type Scanner struct {
	opts Options
}

// New validates opts and returns a scanner. A malformed exclude pattern
// is a fatal configuration error: an invalid filter cannot be silently
// ignored without corrupting results.
func New(opts Options) (*Scanner, error) {
	for _, p := range opts.ExcludePatterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Scanner{opts: opts}, nil
}

// Result is the outcome of a completed scan.
type Result struct {
	Root *model.Entry
	// Stats is the final counter snapshot.
	Stats model.StatsSnapshot
	// Hardlinks is the registry built during the scan, needed for
	// shared-size accounting.
	Hardlinks *model.HardlinkRegistry
}
