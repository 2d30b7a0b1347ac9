package rawimage

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fwtools/fwdump/pkg/errors"
	"github.com/fwtools/fwdump/pkg/sparse"
)

// sourceExtensions lists, in preference order, the extensions a partition
// image may carry inside the unpacked archive.
var sourceExtensions = []string{".img", ".image", ".bin", ".mbn"}

// Materialize searches sourceDir recursively for a raw image matching token
// and writes it to destPath as a flat raw image: sparse sources are decoded,
// everything else is byte-copied. Returns false with no error when no
// source exists; an absent partition is not a failure.
func Materialize(token, sourceDir, destPath string) (bool, error) {
	src, err := findSource(token, sourceDir)
	if err != nil {
		return false, err
	}
	if src == "" {
		return false, nil
	}

	if sparse.IsSparse(src) {
		if err := sparse.DecodeFile(src, destPath); err != nil {
			return false, errors.Wrap(err, "failed to decode sparse image")
		}
		return true, nil
	}

	slog.Info("raw_image_copy", "token", token, "src", src)
	if err := copyFile(src, destPath); err != nil {
		return false, errors.Wrap(err, "failed to copy raw image")
	}
	return true, nil
}

// findSource returns the first file under dir named token plus a known
// extension. The walk is depth-first in lexical order, so the result is
// deterministic for a given tree.
func findSource(token, dir string) (string, error) {
	wanted := make(map[string]struct{}, len(sourceExtensions))
	for _, ext := range sourceExtensions {
		wanted[token+ext] = struct{}{}
	}

	var found string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if found != "" {
			return filepath.SkipAll
		}
		if d.Type().IsRegular() {
			if _, ok := wanted[d.Name()]; ok {
				found = path
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to scan unpacked archive")
	}
	return found, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
