// Package media maintains the uploaded-files directory.
package media

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

type CleanResult struct {
	Files int `json:"files"`
	Dirs  int `json:"dirs"`
}

// Clean removes everything under root and keeps root itself. A missing root
// is not an error.
func Clean(root string) (CleanResult, error) {
	var res CleanResult
	if root == "" {
		return res, errors.New("media root is empty")
	}

	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("media directory does not exist, nothing to clean", "dir", root)
		return res, nil
	}
	if err != nil {
		return res, err
	}
	if !info.IsDir() {
		return res, fmt.Errorf("%s is not a directory", root)
	}

	var dirs []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, p)
			return nil
		}
		if err := os.Remove(p); err != nil {
			return err
		}
		res.Files++
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("failed to clean %s: %w", root, err)
	}

	// deepest first so parents are empty by the time they are removed
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, d := range dirs {
		if err := os.Remove(d); err != nil {
			return res, fmt.Errorf("failed to remove %s: %w", d, err)
		}
		res.Dirs++
	}

	slog.Info("media cleaned", "dir", root, "files", res.Files, "dirs", res.Dirs)
	return res, nil
}
