package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"emperror.dev/errors"

	"photosweep/imageprocessor"
	"photosweep/logging"
)

// ListImageFiles returns the regular files under root whose extension is in
// exts. Without recursive only the immediate children of root are listed.
// The result is sorted. An unreadable root is an error; unreadable
// subdirectories are skipped.
func ListImageFiles(root string, recursive bool, exts imageprocessor.ExtensionSet) ([]string, error) {
	if recursive {
		return walkImageFiles(root, exts)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read folder %s", root)
	}

	var paths []string
	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())
		if !isRegularFile(entry, path) || !exts.Matches(path) {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

func walkImageFiles(root string, exts imageprocessor.ExtensionSet) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return errors.Wrapf(err, "cannot read folder %s", root)
			}
			logging.LogWarning("skipping unreadable entry %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if isRegularFile(d, path) && exts.Matches(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// isRegularFile follows symlinks so linked images are scanned like any other file
func isRegularFile(d fs.DirEntry, path string) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
