// Package sparse decodes Android sparse images into raw images. Vendor
// archives frequently ship filesystem partitions in this container, so raw
// image preparation has to flatten it before anything downstream can look
// at the filesystem inside.
package sparse

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fwtools/fwdump/pkg/errors"
)

// Magic is the little-endian magic number at offset 0 of a sparse image.
const Magic = 0xed26ff3a

// Chunk types from the sparse format.
const (
	chunkRaw      = 0xcac1
	chunkFill     = 0xcac2
	chunkDontCare = 0xcac3
	chunkCRC32    = 0xcac4
)

type fileHeader struct {
	Magic         uint32
	MajorVersion  uint16
	MinorVersion  uint16
	FileHdrSize   uint16
	ChunkHdrSize  uint16
	BlockSize     uint32
	TotalBlocks   uint32
	TotalChunks   uint32
	ImageChecksum uint32
}

type chunkHeader struct {
	ChunkType uint16
	Reserved  uint16
	ChunkSize uint32 // in blocks
	TotalSize uint32 // in bytes, header included
}

// IsSparse reports whether the file at path starts with the sparse magic.
// Short or unreadable files are simply not sparse.
func IsSparse(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	var magic uint32
	if err := binary.Read(f, binary.LittleEndian, &magic); err != nil {
		return false
	}
	return magic == Magic
}

// Decode reads a sparse image from r and writes the flattened raw image to w.
func Decode(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)

	var hdr fileHeader
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return errors.Wrap(err, "failed to read sparse header")
	}
	if hdr.Magic != Magic {
		return fmt.Errorf("not a sparse image: magic %#x", hdr.Magic)
	}
	if hdr.MajorVersion != 1 {
		return fmt.Errorf("unsupported sparse major version %d", hdr.MajorVersion)
	}
	if hdr.ChunkHdrSize < 12 || hdr.BlockSize == 0 || hdr.BlockSize%4 != 0 {
		return fmt.Errorf("malformed sparse header: chunk_hdr_sz=%d blk_sz=%d",
			hdr.ChunkHdrSize, hdr.BlockSize)
	}

	// Tolerate headers larger than the fields we know about.
	if extra := int64(hdr.FileHdrSize) - 28; extra > 0 {
		if _, err := io.CopyN(io.Discard, br, extra); err != nil {
			return errors.Wrap(err, "failed to skip extended file header")
		}
	}

	bw := bufio.NewWriter(w)
	zeros := make([]byte, hdr.BlockSize)

	for i := uint32(0); i < hdr.TotalChunks; i++ {
		var chunk chunkHeader
		if err := binary.Read(br, binary.LittleEndian, &chunk); err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to read chunk %d header", i))
		}
		if extra := int64(hdr.ChunkHdrSize) - 12; extra > 0 {
			if _, err := io.CopyN(io.Discard, br, extra); err != nil {
				return errors.Wrap(err, "failed to skip extended chunk header")
			}
		}

		outBytes := int64(chunk.ChunkSize) * int64(hdr.BlockSize)
		dataBytes := int64(chunk.TotalSize) - int64(hdr.ChunkHdrSize)

		switch chunk.ChunkType {
		case chunkRaw:
			if dataBytes != outBytes {
				return fmt.Errorf("raw chunk %d: %d data bytes for %d output bytes", i, dataBytes, outBytes)
			}
			if _, err := io.CopyN(bw, br, outBytes); err != nil {
				return errors.Wrap(err, fmt.Sprintf("failed to copy raw chunk %d", i))
			}

		case chunkFill:
			if dataBytes != 4 {
				return fmt.Errorf("fill chunk %d: %d data bytes, want 4", i, dataBytes)
			}
			var pattern [4]byte
			if _, err := io.ReadFull(br, pattern[:]); err != nil {
				return errors.Wrap(err, fmt.Sprintf("failed to read fill pattern of chunk %d", i))
			}
			block := make([]byte, hdr.BlockSize)
			for off := 0; off < len(block); off += 4 {
				copy(block[off:], pattern[:])
			}
			for b := uint32(0); b < chunk.ChunkSize; b++ {
				if _, err := bw.Write(block); err != nil {
					return errors.Wrap(err, "failed to write fill block")
				}
			}

		case chunkDontCare:
			for b := uint32(0); b < chunk.ChunkSize; b++ {
				if _, err := bw.Write(zeros); err != nil {
					return errors.Wrap(err, "failed to write skipped block")
				}
			}

		case chunkCRC32:
			if _, err := io.CopyN(io.Discard, br, dataBytes); err != nil {
				return errors.Wrap(err, "failed to skip crc chunk")
			}

		default:
			return fmt.Errorf("unknown chunk type %#x at chunk %d", chunk.ChunkType, i)
		}
	}

	return bw.Flush()
}

// DecodeFile flattens the sparse image at src into a raw image at dst.
func DecodeFile(src, dst string) error {
	slog.Info("sparse_decode", "src", src, "dst", dst)

	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "failed to open sparse image")
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "failed to create raw image")
	}

	if err := Decode(in, out); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
