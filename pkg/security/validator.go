// Package security guards the native archive unpacker against hostile
// firmware containers: path traversal, symlink escapes, oversized members
// and decompression bombs.
package security

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
)

// Limits bounds a single archive extraction.
type Limits struct {
	MaxFileSize         int64
	MaxTotalSize        int64
	MaxCompressionRatio float64
}

// Validator applies Limits across the members of one archive. The total
// size counter accumulates between Reset calls.
type Validator struct {
	limits Limits

	mu    sync.Mutex
	total int64
}

// NewValidator creates a validator with the given limits.
func NewValidator(limits Limits) *Validator {
	return &Validator{limits: limits}
}

// CheckPath rejects absolute member paths and paths escaping the
// extraction root.
func (v *Validator) CheckPath(memberPath string) error {
	if filepath.IsAbs(memberPath) {
		slog.Error("archive_member_rejected", "path", memberPath, "reason", "absolute_path")
		return fmt.Errorf("absolute path not allowed: %s", memberPath)
	}
	if clean := filepath.Clean(memberPath); clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		slog.Error("archive_member_rejected", "path", memberPath, "reason", "path_traversal")
		return fmt.Errorf("path traversal detected: %s", memberPath)
	}
	return nil
}

// CheckSymlink validates a symlink target in the context of the symlink's
// own location. Absolute targets are allowed (inspection tools read them
// relative to the extraction root); relative targets must not resolve
// above the root.
func (v *Validator) CheckSymlink(linkPath, target string) error {
	if filepath.IsAbs(target) {
		return nil
	}

	resolved := filepath.Clean(filepath.Join(filepath.Dir(linkPath), target))

	depth := 0
	for _, part := range strings.Split(resolved, string(filepath.Separator)) {
		switch part {
		case "..":
			depth--
		case "", ".":
		default:
			depth++
		}
		if depth < 0 {
			slog.Error("archive_symlink_rejected", "link", linkPath, "target", target, "resolved", resolved)
			return fmt.Errorf("symlink %s -> %s escapes extraction root", linkPath, target)
		}
	}
	return nil
}

// CheckFileSize rejects a member larger than the per-file limit.
func (v *Validator) CheckFileSize(size int64) error {
	if size > v.limits.MaxFileSize {
		slog.Error("archive_member_rejected", "reason", "file_too_large", "size", size, "limit", v.limits.MaxFileSize)
		return fmt.Errorf("member size %d exceeds limit %d", size, v.limits.MaxFileSize)
	}
	return nil
}

// AddSize accumulates extracted bytes and rejects once the total limit is
// crossed.
func (v *Validator) AddSize(size int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.total += size
	if v.total > v.limits.MaxTotalSize {
		slog.Error("archive_rejected", "reason", "total_too_large", "total", v.total, "limit", v.limits.MaxTotalSize)
		return fmt.Errorf("total extracted size %d exceeds limit %d", v.total, v.limits.MaxTotalSize)
	}
	return nil
}

// CheckRatio rejects decompression bombs once the whole archive has been
// walked.
func (v *Validator) CheckRatio(compressed, uncompressed int64) error {
	if compressed == 0 {
		return fmt.Errorf("compressed size cannot be zero")
	}
	ratio := float64(uncompressed) / float64(compressed)
	if ratio > v.limits.MaxCompressionRatio {
		slog.Error("archive_rejected", "reason", "compression_bomb", "ratio", ratio, "limit", v.limits.MaxCompressionRatio)
		return fmt.Errorf("compression ratio %.2f exceeds limit %.2f", ratio, v.limits.MaxCompressionRatio)
	}
	return nil
}

// Reset clears the accumulated total before a new archive.
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.total = 0
}

// TotalSize returns the bytes accumulated so far.
func (v *Validator) TotalSize() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.total
}
