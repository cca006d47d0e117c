package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sadopc/dux/internal/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mustScan(t *testing.T, opts Options, path string) *Result {
	t.Helper()
	s, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Scan(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func findChild(t *testing.T, parent *model.Entry, name string) *model.Entry {
	t.Helper()
	for _, c := range parent.Children {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("child %q not found under %q", name, parent.Name)
	return nil
}

func TestScan_BasicTree(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "file1.txt"), "12345")
	writeFile(t, filepath.Join(dir, "file2.txt"), "12345")
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	res := mustScan(t, DefaultOptions(), dir)
	root := res.Root

	if root.Type != model.TypeDirectory {
		t.Fatalf("root type = %v, want directory", root.Type)
	}
	if len(root.Children) != 3 {
		t.Fatalf("root has %d children, want 3", len(root.Children))
	}
	if got := root.TotalItems(); got != 4 {
		t.Errorf("TotalItems = %d, want 4", got)
	}
	if got := root.TotalSize(); got != 10 {
		t.Errorf("TotalSize = %d, want 10", got)
	}
	if res.Stats.Errors != 0 {
		t.Errorf("Errors = %d, want 0", res.Stats.Errors)
	}
	if res.Stats.TotalEntries != 4 {
		t.Errorf("stats TotalEntries = %d, want 4", res.Stats.TotalEntries)
	}
	if res.Stats.Directories != 2 {
		t.Errorf("stats Directories = %d, want 2", res.Stats.Directories)
	}
	if res.Stats.Files != 2 {
		t.Errorf("stats Files = %d, want 2", res.Stats.Files)
	}
	if res.Stats.TotalSize != 10 {
		t.Errorf("stats TotalSize = %d, want 10", res.Stats.TotalSize)
	}

	sub := findChild(t, root, "subdir")
	if sub.Type != model.TypeDirectory || len(sub.Children) != 0 {
		t.Errorf("subdir must be an empty directory, got %v with %d children",
			sub.Type, len(sub.Children))
	}
	f1 := findChild(t, root, "file1.txt")
	if f1.Size != 5 || f1.Type != model.TypeFile {
		t.Errorf("file1.txt = %v size %d, want file size 5", f1.Type, f1.Size)
	}
	if p := f1.Path(); p != filepath.Join(root.Name, "file1.txt") {
		t.Errorf("file1.txt path = %q", p)
	}
}

func TestScan_UniqueIDs(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a", "b", "c", "d"} {
		writeFile(t, filepath.Join(dir, n), "x")
	}

	res := mustScan(t, DefaultOptions(), dir)

	seen := map[uint64]bool{}
	var walk func(*model.Entry)
	walk = func(e *model.Entry) {
		if e.ID == 0 {
			t.Errorf("entry %q has zero ID", e.Name)
		}
		if seen[e.ID] {
			t.Errorf("duplicate ID %d on %q", e.ID, e.Name)
		}
		seen[e.ID] = true
		for _, c := range e.Children {
			walk(c)
		}
	}
	walk(res.Root)
}

func TestScan_HiddenFiltering(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "visible"), "x")
	writeFile(t, filepath.Join(dir, ".hidden"), "x")

	opts := DefaultOptions()
	opts.ShowHidden = false
	res := mustScan(t, opts, dir)
	if len(res.Root.Children) != 1 || res.Root.Children[0].Name != "visible" {
		t.Errorf("hidden entries must be skipped, got %d children", len(res.Root.Children))
	}

	opts.ShowHidden = true
	res = mustScan(t, opts, dir)
	if len(res.Root.Children) != 2 {
		t.Errorf("with ShowHidden both entries appear, got %d", len(res.Root.Children))
	}
}

func TestScan_ExcludePatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "keep.txt"), "hello")
	writeFile(t, filepath.Join(dir, "skip.log"), "0123456789")

	opts := DefaultOptions()
	opts.ExcludePatterns = []string{"*.log"}
	res := mustScan(t, opts, dir)

	skipped := findChild(t, res.Root, "skip.log")
	if skipped.Type != model.TypeExcluded {
		t.Errorf("skip.log type = %v, want excluded", skipped.Type)
	}
	if skipped.Size != 0 || skipped.Blocks != 0 {
		t.Errorf("excluded entry must be zero-weight, got size %d blocks %d",
			skipped.Size, skipped.Blocks)
	}
	if got := res.Root.TotalSize(); got != 5 {
		t.Errorf("TotalSize = %d, want 5 (excluded bytes must not count)", got)
	}
}

func TestScan_ExcludeMatchesFullPath(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "node_modules")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(target, "dep.js"), "content")

	opts := DefaultOptions()
	opts.ExcludePatterns = []string{target}
	res := mustScan(t, opts, dir)

	nm := findChild(t, res.Root, "node_modules")
	if nm.Type != model.TypeExcluded || len(nm.Children) != 0 {
		t.Errorf("full-path pattern must exclude the directory, got %v with %d children",
			nm.Type, len(nm.Children))
	}
}

func TestNew_InvalidPattern(t *testing.T) {
	opts := DefaultOptions()
	opts.ExcludePatterns = []string{"[unclosed"}
	if _, err := New(opts); err == nil {
		t.Fatal("malformed exclude pattern must fail construction")
	}
}

func TestScan_CacheDirTag(t *testing.T) {
	dir := t.TempDir()
	cache := filepath.Join(dir, "cache")
	if err := os.Mkdir(cache, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(cache, "CACHEDIR.TAG"), "Signature: 8a477f597d28d172789f06886806bc55")
	writeFile(t, filepath.Join(cache, "blob"), "cached bytes")
	writeFile(t, filepath.Join(dir, "real"), "abc")

	opts := DefaultOptions()
	opts.ExcludeCaches = true
	res := mustScan(t, opts, dir)

	c := findChild(t, res.Root, "cache")
	if c.Type != model.TypeExcluded || len(c.Children) != 0 {
		t.Errorf("tagged cache dir must become an excluded placeholder, got %v", c.Type)
	}
	if got := res.Root.TotalSize(); got != 3 {
		t.Errorf("TotalSize = %d, want 3", got)
	}

	opts.ExcludeCaches = false
	res = mustScan(t, opts, dir)
	if c := findChild(t, res.Root, "cache"); c.Type != model.TypeDirectory {
		t.Errorf("without ExcludeCaches the dir scans normally, got %v", c.Type)
	}
}

func TestScan_ErrorContainment(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	dir := t.TempDir()
	locked := filepath.Join(dir, "locked")
	if err := os.Mkdir(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o755) })
	writeFile(t, filepath.Join(dir, "readable"), "ok!")

	res := mustScan(t, DefaultOptions(), dir)

	errNode := findChild(t, res.Root, "locked")
	if errNode.Type != model.TypeError {
		t.Fatalf("unreadable dir type = %v, want error", errNode.Type)
	}
	if errNode.Error == "" {
		t.Error("error node must carry a message")
	}
	if errNode.Size != 0 || len(errNode.Children) != 0 {
		t.Error("error node must be a zero-weight leaf")
	}
	if !res.Root.HasSubError() {
		t.Error("root must report a descendant error")
	}
	if res.Stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", res.Stats.Errors)
	}
	// Siblings are unaffected.
	if f := findChild(t, res.Root, "readable"); f.Size != 3 {
		t.Errorf("sibling size = %d, want 3", f.Size)
	}
}

func TestScan_MissingRoot(t *testing.T) {
	s, err := New(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	events := make(chan Event, 4)
	res, err := s.Scan(context.Background(), filepath.Join(t.TempDir(), "nope"), events)
	if err == nil {
		t.Fatal("scan of a missing root must fail")
	}
	if res != nil {
		t.Error("failed scan must not return a result")
	}
	select {
	case ev := <-events:
		if _, ok := ev.(ErrorEvent); !ok {
			t.Errorf("expected ErrorEvent, got %T", ev)
		}
	default:
		t.Error("expected a terminal error event")
	}
}

func TestScan_HardlinkDedup(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "original")
	writeFile(t, orig, "0123456789")
	if err := os.Link(orig, filepath.Join(dir, "alias")); err != nil {
		t.Skipf("hardlinks unsupported here: %v", err)
	}

	res := mustScan(t, DefaultOptions(), dir)

	var file, hard *model.Entry
	for _, c := range res.Root.Children {
		switch c.Type {
		case model.TypeFile:
			file = c
		case model.TypeHardlink:
			hard = c
		}
	}
	if file == nil || hard == nil {
		t.Fatalf("want one file and one hardlink child, got %+v", res.Root.Children)
	}
	if file.Size != 10 {
		t.Errorf("first sighting size = %d, want 10", file.Size)
	}
	if hard.Size != 0 || hard.Blocks != 0 {
		t.Errorf("duplicate link must be zero-weight, got size %d blocks %d",
			hard.Size, hard.Blocks)
	}
	if got := res.Root.TotalSize(); got != 10 {
		t.Errorf("TotalSize = %d, want 10 (inode counted once)", got)
	}
	if res.Stats.TotalSize != 10 {
		t.Errorf("stats TotalSize = %d, want 10", res.Stats.TotalSize)
	}

	key := model.HardlinkKey{Device: file.Device, Inode: file.Inode}
	info, ok := res.Hardlinks.Lookup(key)
	if !ok {
		t.Fatal("registry must hold the linked inode")
	}
	if info.LinksInTree != 2 {
		t.Errorf("LinksInTree = %d, want 2", info.LinksInTree)
	}
}

func TestScan_ExtendedInfo(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "f"), "data")

	opts := DefaultOptions()
	opts.Extended = true
	res := mustScan(t, opts, dir)

	f := findChild(t, res.Root, "f")
	if f.Extended == nil {
		t.Fatal("extended info missing")
	}
	if mt, ok := f.Mtime(); !ok || mt.IsZero() {
		t.Error("extended entries must carry a modification time")
	}

	opts.Extended = false
	res = mustScan(t, opts, dir)
	if findChild(t, res.Root, "f").Extended != nil {
		t.Error("extended info must be absent when not requested")
	}
}

func TestScan_ChildrenSorted(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"file10", "file2", "file1"} {
		writeFile(t, filepath.Join(dir, n), "x")
	}

	opts := DefaultOptions()
	opts.Sort = model.SortConfig{Column: model.SortByName, Order: model.SortAsc, Natural: true}
	res := mustScan(t, opts, dir)

	want := []string{"file1", "file2", "file10"}
	for i, w := range want {
		if res.Root.Children[i].Name != w {
			t.Fatalf("child %d = %q, want %q", i, res.Root.Children[i].Name, w)
		}
	}
}

func TestScan_Events(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "f"), "x")

	s, err := New(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	events := make(chan Event, 64)
	if _, err := s.Scan(context.Background(), dir, events); err != nil {
		t.Fatal(err)
	}
	close(events)

	var sawProgress, sawComplete bool
	for ev := range events {
		switch e := ev.(type) {
		case ProgressEvent:
			sawProgress = true
			if e.Path == "" {
				t.Error("progress event without a path")
			}
		case CompleteEvent:
			sawComplete = true
			if e.Root == nil {
				t.Error("complete event without a root")
			}
		}
	}
	if !sawProgress {
		t.Error("expected at least one progress event")
	}
	if !sawComplete {
		t.Error("expected a terminal complete event")
	}
}

func TestScan_Cancellation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "f"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := New(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Scan(ctx, dir, nil)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res == nil {
		t.Fatal("canceled scan still returns the partial result")
	}
}

func TestScan_ParallelMatchesSequential(t *testing.T) {
	dir := t.TempDir()
	for _, sub := range []string{"a", "b", "c"} {
		p := filepath.Join(dir, sub)
		if err := os.MkdirAll(filepath.Join(p, "nested"), 0o755); err != nil {
			t.Fatal(err)
		}
		writeFile(t, filepath.Join(p, "f1"), "12345")
		writeFile(t, filepath.Join(p, "nested", "f2"), "1234567")
	}

	seq := DefaultOptions()
	seq.Workers = 1
	par := DefaultOptions()
	par.Workers = 8

	a := mustScan(t, seq, dir)
	b := mustScan(t, par, dir)

	if a.Root.TotalSize() != b.Root.TotalSize() {
		t.Errorf("TotalSize differs: %d vs %d", a.Root.TotalSize(), b.Root.TotalSize())
	}
	if a.Root.TotalItems() != b.Root.TotalItems() {
		t.Errorf("TotalItems differs: %d vs %d", a.Root.TotalItems(), b.Root.TotalItems())
	}
	if a.Stats.TotalEntries != b.Stats.TotalEntries {
		t.Errorf("entry counts differ: %d vs %d", a.Stats.TotalEntries, b.Stats.TotalEntries)
	}
}

func TestIsKernelFSPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/proc", true},
		{"/proc/cpuinfo", true},
		{"/sys/kernel", true},
		{"/process", false},
		{"/var/run", true},
		{"/var/runner", false},
		{"/home/user", false},
		{"/", false},
	}
	for _, tt := range tests {
		if got := isKernelFSPath(tt.path); got != tt.want {
			t.Errorf("isKernelFSPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestScan_SymlinkNotFollowed(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	writeFile(t, target, "1234567890")
	if err := os.Symlink(target, filepath.Join(dir, "link")); err != nil {
		t.Skipf("symlinks unsupported here: %v", err)
	}

	res := mustScan(t, DefaultOptions(), dir)
	link := findChild(t, res.Root, "link")
	if link.Type != model.TypeSymlink {
		t.Errorf("link type = %v, want symlink", link.Type)
	}
	// The link's own length counts, not the target's content.
	if res.Root.TotalSize() >= 20 {
		t.Errorf("target content counted twice: TotalSize = %d", res.Root.TotalSize())
	}
}
