// Package bootimg unpacks Android boot images (header versions 0 through 4)
// into their sections: kernel, ramdisk, second stage, recovery dtbo and dtb.
// Boot images are not regular filesystem images, so they bypass the generic
// filesystem extractor entirely.
package bootimg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fwtools/fwdump/pkg/errors"
)

// bootMagic opens every Android boot image. Some vendors prepend signing
// blobs, so the magic is searched for, not assumed at offset zero.
var bootMagic = []byte("ANDROID!")

// maxMagicScan bounds the prefix searched for the magic.
const maxMagicScan = 64 * 1024

// v3PageSize is the fixed page size of header v3/v4 images.
const v3PageSize = 4096

// legacy v0-v2 header, fields shared by all three versions.
type hdrV0 struct {
	KernelSize  uint32
	KernelAddr  uint32
	RamdiskSize uint32
	RamdiskAddr uint32
	SecondSize  uint32
	SecondAddr  uint32
	TagsAddr    uint32
	PageSize    uint32
	HeaderVer   uint32
	OSVersion   uint32
	Name        [16]byte
	Cmdline     [512]byte
	ID          [32]byte
	ExtraCmd    [1024]byte
}

type hdrV1Extra struct {
	RecoveryDtboSize   uint32
	RecoveryDtboOffset uint64
	HeaderSize         uint32
}

type hdrV2Extra struct {
	DtbSize uint32
	DtbAddr uint64
}

type hdrV3 struct {
	KernelSize  uint32
	RamdiskSize uint32
	OSVersion   uint32
	HeaderSize  uint32
	Reserved    [4]uint32
	HeaderVer   uint32
	Cmdline     [1536]byte
}

// Unpacker satisfies the extractor's boot-image collaborator interface.
type Unpacker struct{}

func (Unpacker) Unpack(imagePath, destDir string) error {
	return Unpack(imagePath, destDir)
}

// Unpack parses the boot image at imagePath and writes each present section
// into destDir. destDir is created if needed.
func Unpack(imagePath, destDir string) error {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return errors.Wrap(err, "failed to read boot image")
	}

	offset := findMagic(data)
	if offset < 0 {
		return fmt.Errorf("boot magic not found in %s", filepath.Base(imagePath))
	}
	data = data[offset:]

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create boot output dir")
	}

	// header_version sits at byte 40 in every header layout.
	if len(data) < 44 {
		return fmt.Errorf("boot image truncated at header")
	}
	version := binary.LittleEndian.Uint32(data[40:44])

	if version >= 3 {
		return unpackV3(data, destDir, version)
	}
	return unpackLegacy(data, destDir, version)
}

func unpackLegacy(data []byte, destDir string, version uint32) error {
	r := bytes.NewReader(data[len(bootMagic):])

	var hdr hdrV0
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return errors.Wrap(err, "failed to parse boot header")
	}
	if hdr.PageSize == 0 {
		return fmt.Errorf("boot header declares zero page size")
	}

	slog.Info("bootimg_header",
		"version", version,
		"page_size", hdr.PageSize,
		"kernel_size", hdr.KernelSize,
		"ramdisk_size", hdr.RamdiskSize,
	)

	var v1 hdrV1Extra
	var v2 hdrV2Extra
	if version >= 1 {
		if err := binary.Read(r, binary.LittleEndian, &v1); err != nil {
			return errors.Wrap(err, "failed to parse v1 header extension")
		}
	}
	if version >= 2 {
		if err := binary.Read(r, binary.LittleEndian, &v2); err != nil {
			return errors.Wrap(err, "failed to parse v2 header extension")
		}
	}

	page := int64(hdr.PageSize)
	pos := page // header occupies one page

	sections := []struct {
		name string
		size int64
	}{
		{"kernel", int64(hdr.KernelSize)},
		{"ramdisk", int64(hdr.RamdiskSize)},
		{"second", int64(hdr.SecondSize)},
		{"recovery_dtbo", int64(v1.RecoveryDtboSize)},
		{"dtb", int64(v2.DtbSize)},
	}

	for _, s := range sections {
		if s.size == 0 {
			continue
		}
		if err := writeSection(data, destDir, s.name, pos, s.size); err != nil {
			return err
		}
		pos += pageAlign(s.size, page)
	}

	return writeCmdline(destDir, hdr.Cmdline[:], hdr.ExtraCmd[:])
}

func unpackV3(data []byte, destDir string, version uint32) error {
	r := bytes.NewReader(data[len(bootMagic):])

	var hdr hdrV3
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return errors.Wrap(err, "failed to parse v3 boot header")
	}

	slog.Info("bootimg_header",
		"version", version,
		"kernel_size", hdr.KernelSize,
		"ramdisk_size", hdr.RamdiskSize,
	)

	pos := int64(v3PageSize)
	if hdr.KernelSize > 0 {
		if err := writeSection(data, destDir, "kernel", pos, int64(hdr.KernelSize)); err != nil {
			return err
		}
		pos += pageAlign(int64(hdr.KernelSize), v3PageSize)
	}
	if hdr.RamdiskSize > 0 {
		if err := writeSection(data, destDir, "ramdisk", pos, int64(hdr.RamdiskSize)); err != nil {
			return err
		}
	}

	return writeCmdline(destDir, hdr.Cmdline[:], nil)
}

func writeSection(data []byte, destDir, name string, offset, size int64) error {
	if offset+size > int64(len(data)) {
		return fmt.Errorf("%s section extends past end of image (%d+%d > %d)",
			name, offset, size, len(data))
	}
	path := filepath.Join(destDir, name)
	if err := os.WriteFile(path, data[offset:offset+size], 0644); err != nil {
		return errors.Wrap(err, "failed to write "+name)
	}
	slog.Info("bootimg_section", "name", name, "size", size)
	return nil
}

func writeCmdline(destDir string, cmdline, extra []byte) error {
	full := append(trimNul(cmdline), trimNul(extra)...)
	if len(full) == 0 {
		return nil
	}
	path := filepath.Join(destDir, "cmdline")
	if err := os.WriteFile(path, append(full, '\n'), 0644); err != nil {
		return errors.Wrap(err, "failed to write cmdline")
	}
	return nil
}

func trimNul(b []byte) []byte {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return b[:i]
	}
	return b
}

func pageAlign(n, page int64) int64 {
	return (n + page - 1) / page * page
}

func findMagic(data []byte) int {
	limit := len(data)
	if limit > maxMagicScan {
		limit = maxMagicScan
	}
	return bytes.Index(data[:limit], bootMagic)
}
