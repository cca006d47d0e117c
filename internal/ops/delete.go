package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Delete removes a file or directory subtree. rootPath constrains
// deletion to strict descendants of the scan root, so a stale or
// corrupted tree can never aim at the root itself or outside it.
func Delete(path, rootPath string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return fmt.Errorf("cannot resolve root %s: %w", rootPath, err)
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("refusing to delete %s: outside scan root %s", absPath, absRoot)
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", absPath, err)
	}
	if info.IsDir() {
		return os.RemoveAll(absPath)
	}
	return os.Remove(absPath)
}
