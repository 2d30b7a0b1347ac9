// Package manifest produces the all_files.txt listing of a finished dump:
// every file under the output tree, relative paths, ordered by locale-aware
// string collation rather than raw byte order.
package manifest

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fwtools/fwdump/pkg/errors"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Filename is the manifest's name inside the output directory.
const Filename = "all_files.txt"

// List returns the relative paths of every regular file and symlink under
// root, sorted by collation order. Top-level entries named in exclude are
// skipped entirely, files and directories alike; staging directories must
// not leak into the listing when a debug run keeps them around.
func List(root string, exclude ...string) ([]string, error) {
	excluded := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		excluded[filepath.Join(root, name)] = struct{}{}
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if _, skip := excluded[path]; skip {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to walk output tree")
	}

	c := collate.New(language.Und)
	c.SortStrings(files)
	return files, nil
}

// Write lists everything under root and writes the manifest into the root
// itself. Call it only after all extraction is done; the manifest never
// lists itself, including a leftover copy from an earlier run of the same
// dump.
func Write(root string, exclude ...string) (string, error) {
	files, err := List(root, append(exclude, Filename)...)
	if err != nil {
		return "", err
	}

	path := filepath.Join(root, Filename)
	content := strings.Join(files, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", errors.Wrap(err, "failed to write manifest")
	}

	slog.Info("manifest_written", "path", path, "files", len(files))
	return path, nil
}
