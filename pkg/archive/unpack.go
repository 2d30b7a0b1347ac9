// Package archive unpacks the outer firmware container. Tar (plain, gzip,
// xz) and zip containers are handled natively with per-member security
// validation; anything else is handed to the 7z fallback. A failure here is
// fatal to the whole run: with no unpacked archive there is nothing to dump.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fwtools/fwdump/pkg/errors"
	"github.com/fwtools/fwdump/pkg/security"
	"github.com/fwtools/fwdump/pkg/sevenzip"
	"github.com/xi2/xz"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	zipMagic  = []byte{'P', 'K', 0x03, 0x04}
	tarMagic  = []byte("ustar") // at offset 257
)

// Unpacker extracts firmware containers.
type Unpacker struct {
	validator *security.Validator
	fallback  *sevenzip.Runner
}

// NewUnpacker returns an Unpacker using validator for native extraction and
// fallback for containers it cannot parse itself.
func NewUnpacker(validator *security.Validator, fallback *sevenzip.Runner) *Unpacker {
	return &Unpacker{validator: validator, fallback: fallback}
}

// Unpack extracts archivePath into destDir.
func (u *Unpacker) Unpack(ctx context.Context, archivePath, destDir string) error {
	kind, err := sniff(archivePath)
	if err != nil {
		return errors.Wrap(err, "failed to probe archive")
	}

	slog.Info("archive_unpack", "archive", archivePath, "kind", kind)
	u.validator.Reset()

	switch kind {
	case "zip":
		return u.unpackZip(archivePath, destDir)
	case "tar", "tar.gz", "tar.xz":
		return u.unpackTar(archivePath, destDir, kind)
	default:
		if err := u.fallback.Extract(ctx, archivePath, destDir); err != nil {
			if exitErr, ok := err.(*sevenzip.ExitError); ok {
				slog.Error("archive_fallback_failed", "archive", archivePath, "exit_code", exitErr.ExitCode, "output", exitErr.Output)
			}
			return errors.Wrap(err, "fallback extraction failed")
		}
		return nil
	}
}

func sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 262)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", err
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, zipMagic):
		return "zip", nil
	case bytes.HasPrefix(head, gzipMagic):
		return "tar.gz", nil
	case bytes.HasPrefix(head, xzMagic):
		return "tar.xz", nil
	case len(head) >= 262 && bytes.Equal(head[257:262], tarMagic):
		return "tar", nil
	default:
		return "unknown", nil
	}
}

func (u *Unpacker) unpackTar(archivePath, destDir, kind string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return errors.Wrap(err, "failed to open archive")
	}
	defer f.Close()

	var reader io.Reader = f
	switch kind {
	case "tar.gz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			return errors.Wrap(err, "failed to open gzip stream")
		}
		defer gz.Close()
		reader = gz
	case "tar.xz":
		xzr, err := xz.NewReader(f, 0)
		if err != nil {
			return errors.Wrap(err, "failed to open xz stream")
		}
		reader = xzr
	}

	tr := tar.NewReader(reader)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "tar read error")
		}

		if err := u.validator.CheckPath(header.Name); err != nil {
			return errors.Wrap(err, "invalid member path")
		}
		target := filepath.Join(destDir, header.Name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return errors.Wrap(err, "failed to create directory")
			}

		case tar.TypeReg:
			if err := u.validator.CheckFileSize(header.Size); err != nil {
				return err
			}
			if err := u.validator.AddSize(header.Size); err != nil {
				return err
			}
			if err := writeMember(target, tr, os.FileMode(header.Mode)); err != nil {
				return err
			}

		case tar.TypeSymlink:
			if err := u.validator.CheckSymlink(header.Name, header.Linkname); err != nil {
				return errors.Wrap(err, "invalid symlink member")
			}
			if err := os.Symlink(header.Linkname, target); err != nil && !os.IsExist(err) {
				return errors.Wrap(err, "failed to create symlink")
			}
		}
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return errors.Wrap(err, "failed to stat archive")
	}
	return u.validator.CheckRatio(info.Size(), u.validator.TotalSize())
}

func (u *Unpacker) unpackZip(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return errors.Wrap(err, "failed to open zip archive")
	}
	defer zr.Close()

	for _, member := range zr.File {
		if err := u.validator.CheckPath(member.Name); err != nil {
			return errors.Wrap(err, "invalid member path")
		}
		target := filepath.Join(destDir, member.Name)

		if member.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return errors.Wrap(err, "failed to create directory")
			}
			continue
		}

		size := int64(member.UncompressedSize64)
		if err := u.validator.CheckFileSize(size); err != nil {
			return err
		}
		if err := u.validator.AddSize(size); err != nil {
			return err
		}

		rc, err := member.Open()
		if err != nil {
			return errors.Wrap(err, "failed to open zip member")
		}
		err = writeMember(target, rc, member.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return errors.Wrap(err, "failed to stat archive")
	}
	return u.validator.CheckRatio(info.Size(), u.validator.TotalSize())
}

func writeMember(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrap(err, "failed to create parent dir")
	}

	if mode.Perm() == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return errors.Wrap(err, "failed to write file")
	}
	return out.Close()
}
