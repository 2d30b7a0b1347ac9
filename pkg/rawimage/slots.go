// Package rawimage stages per-partition raw images: it materializes them out
// of the unpacked archive, collapses A/B slot copies, and folds alias names
// into canonical ones. After it runs, the staging directory holds at most one
// <canonical>.img per known partition.
package rawimage

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fwtools/fwdump/pkg/errors"
	"github.com/fwtools/fwdump/pkg/partition"
)

// splitToken splits a raw image filename into its base token and the
// extension chain. Everything after the first dot counts as extension, so
// "system_a.img" -> ("system_a", ".img") and partition tokens never
// contain dots.
func splitToken(filename string) (base, ext string) {
	if i := strings.IndexByte(filename, '.'); i >= 0 {
		return filename[:i], filename[i:]
	}
	return filename, ""
}

// ResolveSlots collapses A/B-slotted raw images in dir into one unslotted
// file per token. Policy, in fixed order: an existing unslotted file wins
// and the slotted duplicate is deleted; otherwise _a is promoted; otherwise
// _b. When both slots exist the _a copy wins and the _b file is left in
// place — its token still ends in _b, so no later stage recognizes it.
func ResolveSlots(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, "failed to read raw images dir")
	}

	// Tokens promoted during this pass. Their losing slot files are
	// stranded, not redundant: only a pre-existing unslotted file makes a
	// slotted duplicate deletable.
	promoted := make(map[string]struct{})

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		// Entries may have been renamed or deleted by an earlier iteration.
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		base, ext := splitToken(entry.Name())
		if !strings.HasSuffix(base, "_a") && !strings.HasSuffix(base, "_b") {
			continue
		}

		unslotted := base[:len(base)-2]
		if !partition.Known(unslotted) {
			slog.Info("slot_resolve_skip_unknown", "file", entry.Name(), "token", unslotted)
			continue
		}

		unslottedPath := filepath.Join(dir, unslotted+ext)
		aPath := filepath.Join(dir, unslotted+"_a"+ext)
		bPath := filepath.Join(dir, unslotted+"_b"+ext)

		if isRegular(unslottedPath) {
			if _, ok := promoted[unslotted+ext]; ok {
				slog.Info("slot_resolve_stranded", "file", entry.Name(), "kept", unslotted+ext)
				continue
			}
			slog.Info("slot_resolve_redundant", "file", entry.Name(), "kept", unslotted+ext)
			if err := os.Remove(path); err != nil {
				return errors.Wrap(err, "failed to remove redundant slot image")
			}
			continue
		}

		if isRegular(aPath) {
			slog.Info("slot_resolve_promote", "from", unslotted+"_a"+ext, "to", unslotted+ext)
			if err := os.Rename(aPath, unslottedPath); err != nil {
				return errors.Wrap(err, "failed to promote _a slot image")
			}
			promoted[unslotted+ext] = struct{}{}
		} else if isRegular(bPath) {
			slog.Info("slot_resolve_promote", "from", unslotted+"_b"+ext, "to", unslotted+ext)
			if err := os.Rename(bPath, unslottedPath); err != nil {
				return errors.Wrap(err, "failed to promote _b slot image")
			}
			promoted[unslotted+ext] = struct{}{}
		}
	}

	return nil
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
