package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fwtools/fwdump/pkg/sevenzip"
)

// fakeBoot records unpack calls and fails for configured partitions.
type fakeBoot struct {
	calls  []string
	failOn map[string]bool
}

func (f *fakeBoot) Unpack(imagePath, destDir string) error {
	name := filepath.Base(destDir)
	f.calls = append(f.calls, name)
	if f.failOn[name] {
		return fmt.Errorf("corrupt header in %s", name)
	}
	return os.MkdirAll(destDir, 0755)
}

// fakeFS mimics the 7z collaborator.
type fakeFS struct {
	calls  []string
	failOn map[string]bool
}

func (f *fakeFS) Extract(ctx context.Context, imagePath, destDir string) error {
	name := filepath.Base(destDir)
	f.calls = append(f.calls, name)
	if f.failOn[name] {
		return &sevenzip.ExitError{ExitCode: 2, Output: "Can not open the file as archive"}
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(destDir, "extracted"), []byte("x"), 0644)
}

func stageImage(t *testing.T, rawDir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(rawDir, name+".img"), []byte(name+"-bytes"), 0644); err != nil {
		t.Fatalf("failed to stage %s: %v", name, err)
	}
}

func TestRunDispatchesByFormat(t *testing.T) {
	rawDir := t.TempDir()
	outDir := t.TempDir()

	stageImage(t, rawDir, "boot")   // bootimage
	stageImage(t, rawDir, "system") // filesystem
	stageImage(t, rawDir, "dtbo")   // raw

	boot := &fakeBoot{}
	fs := &fakeFS{}
	outcomes := New(boot, fs).Run(context.Background(), rawDir, outDir)

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	for _, o := range outcomes {
		if !o.Attempted || !o.Succeeded {
			t.Errorf("outcome for %s: attempted=%v succeeded=%v", o.Partition, o.Attempted, o.Succeeded)
		}
	}

	// Boot images get both an unpack and a raw copy.
	if len(boot.calls) != 1 || boot.calls[0] != "boot" {
		t.Errorf("boot unpacker calls = %v", boot.calls)
	}
	if _, err := os.Stat(filepath.Join(outDir, "boot.img")); err != nil {
		t.Error("boot.img raw copy missing")
	}

	// Filesystem images get no raw copy.
	if len(fs.calls) != 1 || fs.calls[0] != "system" {
		t.Errorf("filesystem extractor calls = %v", fs.calls)
	}
	if _, err := os.Stat(filepath.Join(outDir, "system.img")); err == nil {
		t.Error("system.img should not be copied for filesystem partitions")
	}

	// Raw images only get the copy.
	if _, err := os.Stat(filepath.Join(outDir, "dtbo.img")); err != nil {
		t.Error("dtbo.img raw copy missing")
	}
	if _, err := os.Stat(filepath.Join(outDir, "dtbo")); err == nil {
		t.Error("raw partitions get no extraction directory")
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	rawDir := t.TempDir()
	outDir := t.TempDir()

	stageImage(t, rawDir, "product") // will fail
	stageImage(t, rawDir, "system")  // must still run

	fs := &fakeFS{failOn: map[string]bool{"product": true}}
	outcomes := New(&fakeBoot{}, fs).Run(context.Background(), rawDir, outDir)

	byName := map[string]Outcome{}
	for _, o := range outcomes {
		byName[o.Partition] = o
	}

	if byName["product"].Succeeded {
		t.Error("product extraction should have failed")
	}
	if byName["product"].Diagnostic == "" {
		t.Error("failed outcome must carry the tool output")
	}
	if !byName["system"].Succeeded {
		t.Error("system must succeed despite product failing")
	}
	if _, err := os.Stat(filepath.Join(outDir, "system", "extracted")); err != nil {
		t.Error("system output tree missing")
	}
}

func TestRunBootFailureStillCopiesRaw(t *testing.T) {
	rawDir := t.TempDir()
	outDir := t.TempDir()

	stageImage(t, rawDir, "recovery")

	boot := &fakeBoot{failOn: map[string]bool{"recovery": true}}
	outcomes := New(boot, &fakeFS{}).Run(context.Background(), rawDir, outDir)

	if len(outcomes) != 1 || outcomes[0].Succeeded {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}
	if _, err := os.Stat(filepath.Join(outDir, "recovery.img")); err != nil {
		t.Error("recovery.img must be copied even when unpacking fails")
	}
}

func TestRunSkipsMissingAndIterationOrder(t *testing.T) {
	rawDir := t.TempDir()
	outDir := t.TempDir()

	// Staged out of registry order on purpose.
	stageImage(t, rawDir, "vendor")
	stageImage(t, rawDir, "boot")
	stageImage(t, rawDir, "odm")

	outcomes := New(&fakeBoot{}, &fakeFS{}).Run(context.Background(), rawDir, outDir)

	var order []string
	for _, o := range outcomes {
		order = append(order, o.Partition)
	}

	// Registry declaration order: boot before odm before vendor.
	want := []string{"boot", "odm", "vendor"}
	if len(order) != len(want) {
		t.Fatalf("attempted %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("iteration order %v, want %v", order, want)
		}
	}
}
