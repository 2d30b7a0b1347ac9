package rawimage

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fwtools/fwdump/pkg/errors"
	"github.com/fwtools/fwdump/pkg/partition"
)

// ResolveAliases folds alias-named raw images into their canonical names.
// Runs after ResolveSlots, so slot suffixes are already gone. When both the
// alias and the canonical image exist, the canonical one wins and the alias
// copy is dropped.
func ResolveAliases(dir string) error {
	for _, a := range partition.Aliases() {
		altPath := filepath.Join(dir, a.Alternative+".img")
		canonicalPath := filepath.Join(dir, a.Canonical+".img")

		if !isRegular(altPath) {
			continue
		}

		if isRegular(canonicalPath) {
			slog.Info("alias_ignored", "alias", a.Alternative, "canonical", a.Canonical)
			if err := os.Remove(altPath); err != nil {
				return errors.Wrap(err, "failed to remove redundant alias image")
			}
			continue
		}

		slog.Info("alias_resolved", "alias", a.Alternative, "canonical", a.Canonical)
		if err := os.Rename(altPath, canonicalPath); err != nil {
			return errors.Wrap(err, "failed to rename alias image")
		}
	}

	return nil
}
