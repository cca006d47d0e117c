package ops

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sadopc/dux/internal/model"
)

// Import reads a previously exported tree. Corrupt or partial data is an
// error, never a silently truncated tree.
func Import(path string) (*model.Entry, error) {
	if path == "-" {
		return importFrom(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open import file: %w", err)
	}
	defer f.Close()
	return importFrom(f)
}

func importFrom(r io.Reader) (*model.Entry, error) {
	var file wireFile
	dec := json.NewDecoder(r)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("invalid import data: %w", err)
	}
	root, err := fromWire(file.Root, nil)
	if err != nil {
		return nil, err
	}
	return root, nil
}

func fromWire(w wireEntry, parent *model.Entry) (*model.Entry, error) {
	typ, ok := wireTypeValues[w.Type]
	if !ok {
		return nil, fmt.Errorf("unknown entry type %q for %q", w.Type, w.Name)
	}
	if typ == model.TypeError && w.Error == "" {
		return nil, fmt.Errorf("error entry %q has no message", w.Name)
	}
	if w.Size < 0 || w.Blocks < 0 {
		return nil, fmt.Errorf("negative metrics on %q", w.Name)
	}

	e := &model.Entry{
		ID:     w.ID,
		Type:   typ,
		Name:   w.Name,
		Size:   w.Size,
		Blocks: w.Blocks,
		Device: w.Device,
		Inode:  w.Inode,
		Nlink:  w.Nlink,
		Error:  w.Error,
		Parent: parent,
	}
	if w.Extended != nil {
		e.Extended = &model.ExtendedInfo{
			UID:  w.Extended.UID,
			GID:  w.Extended.GID,
			Mode: w.Extended.Mode,
		}
		if w.Extended.Mtime != 0 {
			e.Extended.Mtime = time.Unix(w.Extended.Mtime, 0)
		}
	}
	if len(w.Children) > 0 {
		if !typ.IsDirectory() {
			return nil, fmt.Errorf("non-directory entry %q has children", w.Name)
		}
		e.Children = make([]*model.Entry, len(w.Children))
		for i, wc := range w.Children {
			c, err := fromWire(wc, e)
			if err != nil {
				return nil, err
			}
			e.Children[i] = c
		}
	}
	return e, nil
}
