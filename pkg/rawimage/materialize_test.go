package rawimage

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestMaterialize_CopiesPlainImage(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()

	nested := filepath.Join(srcDir, "images")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	writeFixture(t, nested, "boot.img", "boot-bytes")

	dest := filepath.Join(destDir, "boot.img")
	produced, err := Materialize("boot", srcDir, dest)
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if !produced {
		t.Fatal("expected boot image to be produced")
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("failed to read materialized image: %v", err)
	}
	if string(data) != "boot-bytes" {
		t.Errorf("materialized content = %q, want boot-bytes", data)
	}
}

func TestMaterialize_AbsentSourceIsNotAnError(t *testing.T) {
	srcDir := t.TempDir()
	dest := filepath.Join(t.TempDir(), "vendor.img")

	produced, err := Materialize("vendor", srcDir, dest)
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if produced {
		t.Error("nothing should be produced for an absent source")
	}
	if _, err := os.Stat(dest); err == nil {
		t.Error("no destination file should exist")
	}
}

func TestMaterialize_DecodesSparseSource(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()

	// Minimal sparse image: header + one raw chunk of one 8-byte block.
	var buf bytes.Buffer
	hdr := []interface{}{
		uint32(0xed26ff3a), // magic
		uint16(1), uint16(0),
		uint16(28), uint16(12),
		uint32(8), // block size
		uint32(1), // total blocks
		uint32(1), // total chunks
		uint32(0), // checksum
	}
	for _, v := range hdr {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	chunk := []interface{}{
		uint16(0xcac1), uint16(0),
		uint32(1),      // blocks
		uint32(12 + 8), // total size
	}
	for _, v := range chunk {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	raw := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	buf.Write(raw)

	if err := os.WriteFile(filepath.Join(srcDir, "system.img"), buf.Bytes(), 0644); err != nil {
		t.Fatalf("failed to write sparse fixture: %v", err)
	}

	dest := filepath.Join(destDir, "system.img")
	produced, err := Materialize("system", srcDir, dest)
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if !produced {
		t.Fatal("expected system image to be produced")
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("failed to read materialized image: %v", err)
	}
	if !bytes.Equal(data, raw) {
		t.Errorf("decoded content = %x, want %x", data, raw)
	}
}

func TestMaterialize_TokenMustMatchExactly(t *testing.T) {
	srcDir := t.TempDir()
	writeFixture(t, srcDir, "system_ext.img", "x")

	dest := filepath.Join(t.TempDir(), "system.img")
	produced, err := Materialize("system", srcDir, dest)
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if produced {
		t.Error("system_ext.img must not match token system")
	}
}
