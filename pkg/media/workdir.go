package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tgcord/internal/security"
	"tgcord/pkg/constants"
)

// WorkDir is the scratch directory downloads and encoder outputs live in
type WorkDir struct {
	dir string
}

func NewWorkDir(dir string) (*WorkDir, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "tgcord")
	}
	if err := os.MkdirAll(dir, constants.DefaultDirectoryPermissions); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	return &WorkDir{dir: dir}, nil
}

func (w *WorkDir) Dir() string {
	return w.dir
}

// TempPath reserves a unique empty file named after pattern and returns its path.
func (w *WorkDir) TempPath(pattern string) (string, error) {
	f, err := os.CreateTemp(w.dir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// Remove deletes a file inside the work directory and ignores missing files.
func (w *WorkDir) Remove(path string) {
	if path == "" {
		return
	}
	if err := security.ValidateFilePathWithBase(path, w.dir); err != nil {
		return
	}
	_ = os.Remove(path)
}

// CleanupOldFiles removes regular files older than maxAge and returns how
// many were deleted. Leftovers come from crashes mid-relay.
func (w *WorkDir) CleanupOldFiles(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read work directory: %w", err)
	}

	removed := 0
	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("failed to get file info: %w", err)
		}

		if now.Sub(info.ModTime()) > maxAge {
			if err := os.Remove(filepath.Join(w.dir, info.Name())); err != nil && !os.IsNotExist(err) {
				return removed, fmt.Errorf("failed to remove old file: %w", err)
			}
			removed++
		}
	}

	return removed, nil
}

// sibling returns a path next to path with suffix inserted before ext.
func sibling(path, suffix, ext string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(filepath.Dir(path), base+suffix+ext)
}

// HumanSize formats a byte count with a binary unit, e.g. "104.9MB".
func HumanSize(n int64) string {
	x := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if x < 1024 {
			return fmt.Sprintf("%.1f%s", x, unit)
		}
		x /= 1024
	}
	return fmt.Sprintf("%.1fTB", x)
}
