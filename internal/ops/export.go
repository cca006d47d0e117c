package ops

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sadopc/dux/internal/model"
)

// Format selects the export encoding. The set is closed: there is no
// plugin dispatch.
type Format int

const (
	FormatJSON Format = iota
	FormatBinary
)

// ErrBinaryFormat is returned for the binary format, which has no
// defined wire format yet.
var ErrBinaryFormat = errors.New("binary export format is not implemented")

// fileHeader identifies an export file.
type fileHeader struct {
	Progname  string `json:"progname"`
	Progver   string `json:"progver"`
	Timestamp int64  `json:"timestamp"`
}

// wireEntry is the serializable projection of a tree node. Name is text:
// encoding is lossy only for names that are not valid UTF-8, which is an
// accepted limitation of the JSON format.
type wireEntry struct {
	ID       uint64        `json:"id"`
	Type     string        `json:"entry_type"`
	Name     string        `json:"name"`
	Size     int64         `json:"size"`
	Blocks   int64         `json:"blocks"`
	Device   uint64        `json:"device,omitempty"`
	Inode    uint64        `json:"inode,omitempty"`
	Nlink    uint32        `json:"nlink,omitempty"`
	Extended *wireExtended `json:"extended,omitempty"`
	Error    string        `json:"error,omitempty"`
	Children []wireEntry   `json:"children,omitempty"`
}

type wireExtended struct {
	Mtime int64  `json:"mtime,omitempty"` // unix seconds
	UID   uint32 `json:"uid"`
	GID   uint32 `json:"gid"`
	Mode  uint32 `json:"mode"`
}

type wireFile struct {
	Header fileHeader `json:"header"`
	Root   wireEntry  `json:"root"`
}

var wireTypeNames = map[model.EntryType]string{
	model.TypeDirectory: "directory",
	model.TypeFile:      "file",
	model.TypeSymlink:   "symlink",
	model.TypeHardlink:  "hardlink",
	model.TypeSpecial:   "special",
	model.TypeError:     "error",
	model.TypeExcluded:  "excluded",
	model.TypeOtherFS:   "otherfs",
	model.TypeKernelFS:  "kernfs",
}

var wireTypeValues = func() map[string]model.EntryType {
	m := make(map[string]model.EntryType, len(wireTypeNames))
	for t, n := range wireTypeNames {
		m[n] = t
	}
	return m
}()

// Export writes the tree to path in the given format. path "-" means
// stdout. For file targets the data is written to a temp file first and
// atomically renamed on success, so a partial file is never left behind.
func Export(root *model.Entry, format Format, path, version string) (retErr error) {
	if format == FormatBinary {
		return ErrBinaryFormat
	}

	if path == "-" {
		return exportTo(root, os.Stdout, version)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".dux-export-*.tmp")
	if err != nil {
		return fmt.Errorf("cannot create export file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := exportTo(root, tmp, version); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		// On Windows, Rename cannot replace an existing destination.
		if runtime.GOOS != "windows" {
			return err
		}
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return fmt.Errorf("cannot replace export file %s: %w", path, err)
		}
		return os.Rename(tmpPath, path)
	}
	return nil
}

func exportTo(root *model.Entry, out io.Writer, version string) error {
	if root == nil {
		return errors.New("nothing to export")
	}
	if version == "" {
		version = "dev"
	}

	bw := bufio.NewWriterSize(out, 64*1024)
	enc := json.NewEncoder(bw)
	if err := enc.Encode(wireFile{
		Header: fileHeader{Progname: "dux", Progver: version, Timestamp: time.Now().Unix()},
		Root:   toWire(root),
	}); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	return bw.Flush()
}

func toWire(e *model.Entry) wireEntry {
	w := wireEntry{
		ID:     e.ID,
		Type:   wireTypeNames[e.Type],
		Name:   e.Name,
		Size:   e.Size,
		Blocks: e.Blocks,
		Device: e.Device,
		Inode:  e.Inode,
		Nlink:  e.Nlink,
		Error:  e.Error,
	}
	if e.Extended != nil {
		w.Extended = &wireExtended{
			UID:  e.Extended.UID,
			GID:  e.Extended.GID,
			Mode: e.Extended.Mode,
		}
		if !e.Extended.Mtime.IsZero() {
			w.Extended.Mtime = e.Extended.Mtime.Unix()
		}
	}
	if len(e.Children) > 0 {
		w.Children = make([]wireEntry, len(e.Children))
		for i, c := range e.Children {
			w.Children[i] = toWire(c)
		}
	}
	return w
}
