package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sadopc/dux/internal/model"
)

// Pseudo-filesystem mount points excluded by ExcludeKernFS.
var kernelFSPrefixes = []string{
	"/proc",
	"/sys",
	"/dev",
	"/run",
	"/tmp",
	"/var/run",
	"/var/lock",
	"/var/tmp",
}

// Marker file whose presence declares a directory disposable cache
// content (https://bford.info/cachedir/).
const cacheDirTag = "CACHEDIR.TAG"

// Scan walks the tree under path and returns the finished root entry.
//
// Per-object failures are contained as Error leaves and never abort the
// scan; the returned error is non-nil only when the root itself cannot
// be classified or the context is canceled. If events is non-nil the
// engine publishes progress on it and a final CompleteEvent (or
// ErrorEvent) before returning; the channel is never closed by the
// engine.
func (s *Scanner) Scan(ctx context.Context, path string, events chan<- Event) (*Result, error) {
	pub := publisher{ch: events}

	absPath, err := filepath.Abs(path)
	if err != nil {
		pub.terminal(ctx, ErrorEvent{Message: err.Error()})
		return nil, err
	}

	info, err := statPath(absPath, s.opts.FollowSymlinks)
	if err != nil {
		err = fmt.Errorf("cannot read root %s: %w", absPath, err)
		pub.terminal(ctx, ErrorEvent{Message: err.Error()})
		return nil, err
	}

	sc := &scanState{
		opts:      s.opts,
		stats:     model.NewScanStats(),
		hardlinks: model.NewHardlinkRegistry(),
		ids:       model.NewIDGenerator(),
		events:    pub,
	}
	if s.opts.Workers > 1 {
		sc.sem = make(chan struct{}, s.opts.Workers)
	}
	if s.opts.SameFS {
		sc.rootDevice = sysStat(info).device
	}

	root := sc.scanEntry(ctx, absPath)
	if err := ctx.Err(); err != nil {
		return &Result{Root: root, Stats: sc.stats.Snapshot(), Hardlinks: sc.hardlinks}, err
	}
	// The root survived the up-front stat, so an Error classification here
	// means its listing failed, which is a contained failure like any
	// other directory's.
	res := &Result{
		Root:      root,
		Stats:     sc.stats.Snapshot(),
		Hardlinks: sc.hardlinks,
	}
	pub.terminal(ctx, CompleteEvent{Root: root})
	return res, nil
}

type scanState struct {
	opts       Options
	stats      *model.ScanStats
	hardlinks  *model.HardlinkRegistry
	ids        *model.IDGenerator
	rootDevice uint64
	sem        chan struct{} // nil when sequential
	events     publisher
}

// scanEntry classifies one filesystem object and, for directories,
// recurses into its contents. It returns nil only when ctx is canceled.
func (sc *scanState) scanEntry(ctx context.Context, path string) *model.Entry {
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	sc.events.progress(path, sc.stats.Snapshot())

	name := filepath.Base(path)

	info, err := statPath(path, sc.opts.FollowSymlinks)
	if err != nil {
		sc.stats.AddError()
		return model.NewErrorEntry(sc.ids.Next(), name, fmt.Sprintf("cannot read metadata: %v", err))
	}
	sys := sysStat(info)

	if sc.opts.SameFS && sc.rootDevice != 0 && sys.device != sc.rootDevice {
		return sc.placeholder(model.TypeOtherFS, name, sys)
	}
	if sc.opts.ExcludeKernFS && isKernelFSPath(path) {
		return sc.placeholder(model.TypeKernelFS, name, sys)
	}
	if sc.matchesExclude(path, name) {
		return sc.placeholder(model.TypeExcluded, name, sys)
	}

	typ := classify(info)

	if typ == model.TypeDirectory && sc.opts.ExcludeCaches && hasCacheDirTag(path) {
		return sc.placeholder(model.TypeExcluded, name, sys)
	}

	// Directories carry no apparent size of their own; totals aggregate
	// file content only. Their allocated blocks still count, matching du.
	size := info.Size()
	if typ == model.TypeDirectory {
		size = 0
	}

	entry := &model.Entry{
		ID:     sc.ids.Next(),
		Type:   typ,
		Name:   name,
		Size:   size,
		Blocks: sys.blocks,
		Device: sys.device,
		Inode:  sys.inode,
		Nlink:  sys.nlink,
	}

	// Duplicate links of one inode are zero-weight, so a multiply-linked
	// file contributes its bytes to totals exactly once.
	if typ == model.TypeFile && sys.nlink > 1 {
		key := model.HardlinkKey{Device: sys.device, Inode: sys.inode}
		if !sc.hardlinks.Resolve(key, sys.nlink, entry.Size, entry.Blocks, entry) {
			entry.Type = model.TypeHardlink
			entry.Size = 0
			entry.Blocks = 0
		}
	}

	if sc.opts.Extended {
		entry.Extended = &model.ExtendedInfo{
			Mtime: info.ModTime(),
			UID:   sys.uid,
			GID:   sys.gid,
			Mode:  sys.mode,
		}
	}

	if typ != model.TypeDirectory {
		sc.stats.AddEntry(entry.Size, entry.Blocks)
		sc.stats.AddFile()
		return entry
	}

	sc.stats.AddDirectory()

	dirents, err := os.ReadDir(path)
	if err != nil {
		// Contained: the node records the failure, gathered children (if
		// any) are dropped, siblings keep scanning. The node is zero-weight
		// so the counters never see its metrics.
		sc.stats.AddError()
		entry.Type = model.TypeError
		entry.Error = fmt.Sprintf("cannot read directory: %v", err)
		entry.Size = 0
		entry.Blocks = 0
		entry.Children = nil
		return entry
	}

	sc.stats.AddEntry(entry.Size, entry.Blocks)

	names := make([]string, 0, len(dirents))
	for _, d := range dirents {
		n := d.Name()
		if !sc.opts.ShowHidden && strings.HasPrefix(n, ".") {
			continue
		}
		names = append(names, n)
	}

	children := sc.scanChildren(ctx, path, names)
	model.SortEntries(children, sc.opts.Sort)
	for _, c := range children {
		entry.AddChild(c)
	}
	return entry
}

// scanChildren scans each name under dirPath, fanning out across the
// bounded worker pool when one is configured. If all workers are busy
// the child is scanned synchronously in the current goroutine instead
// of queueing, so progress is always guaranteed.
func (sc *scanState) scanChildren(ctx context.Context, dirPath string, names []string) []*model.Entry {
	results := make([]*model.Entry, len(names))

	if sc.sem == nil {
		for i, n := range names {
			results[i] = sc.scanEntry(ctx, filepath.Join(dirPath, n))
		}
	} else {
		var wg sync.WaitGroup
		for i, n := range names {
			childPath := filepath.Join(dirPath, n)
			select {
			case sc.sem <- struct{}{}:
				wg.Add(1)
				go func(i int, p string) {
					defer wg.Done()
					defer func() { <-sc.sem }()
					results[i] = sc.scanEntry(ctx, p)
				}(i, childPath)
			default:
				results[i] = sc.scanEntry(ctx, childPath)
			}
		}
		wg.Wait()
	}

	children := results[:0]
	for _, e := range results {
		if e != nil {
			children = append(children, e)
		}
	}
	return children
}

// placeholder builds a zero-weight node that preserves tree shape
// without contributing size.
func (sc *scanState) placeholder(typ model.EntryType, name string, sys sysInfo) *model.Entry {
	return &model.Entry{
		ID:     sc.ids.Next(),
		Type:   typ,
		Name:   name,
		Device: sys.device,
		Inode:  sys.inode,
		Nlink:  sys.nlink,
	}
}

func (sc *scanState) matchesExclude(path, name string) bool {
	for _, p := range sc.opts.ExcludePatterns {
		// Patterns were validated at construction; Match cannot fail here.
		if ok, _ := filepath.Match(p, path); ok {
			return true
		}
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

func statPath(path string, follow bool) (os.FileInfo, error) {
	if follow {
		return os.Stat(path)
	}
	return os.Lstat(path)
}

func classify(info os.FileInfo) model.EntryType {
	mode := info.Mode()
	switch {
	case mode.IsDir():
		return model.TypeDirectory
	case mode&os.ModeSymlink != 0:
		return model.TypeSymlink
	case mode&(os.ModeDevice|os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0:
		return model.TypeSpecial
	default:
		return model.TypeFile
	}
}

// isKernelFSPath matches path against the pseudo-filesystem mounts on a
// path boundary: /proc and /proc/cpuinfo match, /process does not.
func isKernelFSPath(path string) bool {
	for _, prefix := range kernelFSPrefixes {
		if path == prefix {
			return true
		}
		if strings.HasPrefix(path, prefix) && len(path) > len(prefix) && path[len(prefix)] == '/' {
			return true
		}
	}
	return false
}

func hasCacheDirTag(dirPath string) bool {
	_, err := os.Lstat(filepath.Join(dirPath, cacheDirTag))
	return err == nil
}
