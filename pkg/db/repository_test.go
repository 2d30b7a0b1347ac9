package db

import (
	"path/filepath"
	"testing"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "dumps.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)

	d := &Dump{
		Archive:    "firmware.zip",
		OutputPath: "/out/firmware",
		Status:     StatusRunning,
	}
	if err := repo.CreateDump(d); err != nil {
		t.Fatalf("failed to create dump: %v", err)
	}
	if d.ID == 0 {
		t.Fatal("CreateDump must set the row id")
	}

	got, err := repo.GetByArchive("firmware.zip")
	if err != nil {
		t.Fatalf("failed to get dump: %v", err)
	}
	if got == nil {
		t.Fatal("dump not found")
	}
	if got.Archive != d.Archive || got.OutputPath != d.OutputPath || got.Status != StatusRunning {
		t.Errorf("retrieved dump mismatch: %+v", got)
	}
}

func TestRepository_GetByArchiveMissing(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.GetByArchive("never-dumped.zip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing archive, got %+v", got)
	}
}

func TestRepository_UpdateStatus(t *testing.T) {
	repo := newTestRepo(t)

	d := &Dump{Archive: "fw.tar", OutputPath: "/out/fw", Status: StatusRunning}
	if err := repo.CreateDump(d); err != nil {
		t.Fatalf("failed to create dump: %v", err)
	}

	if err := repo.UpdateStatus(d.ID, StatusFailed, "archive unpack failed"); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}

	got, err := repo.GetByArchive("fw.tar")
	if err != nil {
		t.Fatalf("failed to get dump: %v", err)
	}
	if got.Status != StatusFailed || got.ErrorMessage != "archive unpack failed" {
		t.Errorf("status not updated: %+v", got)
	}
}

func TestRepository_PartitionOutcomes(t *testing.T) {
	repo := newTestRepo(t)

	d := &Dump{Archive: "fw.zip", OutputPath: "/out/fw", Status: StatusRunning}
	if err := repo.CreateDump(d); err != nil {
		t.Fatalf("failed to create dump: %v", err)
	}

	outcomes := []*PartitionResult{
		{DumpID: d.ID, Name: "boot", Format: "bootimage", Succeeded: true},
		{DumpID: d.ID, Name: "system", Format: "filesystem", Succeeded: false, Diagnostic: "7z exited with code 2"},
	}
	for _, p := range outcomes {
		if err := repo.RecordPartition(p); err != nil {
			t.Fatalf("failed to record partition: %v", err)
		}
	}

	got, err := repo.ListPartitions(d.ID)
	if err != nil {
		t.Fatalf("failed to list partitions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(got))
	}
	if got[0].Name != "boot" || !got[0].Succeeded {
		t.Errorf("first outcome mismatch: %+v", got[0])
	}
	if got[1].Name != "system" || got[1].Succeeded || got[1].Diagnostic == "" {
		t.Errorf("second outcome mismatch: %+v", got[1])
	}
}

func TestRepository_List(t *testing.T) {
	repo := newTestRepo(t)

	for _, name := range []string{"a.zip", "b.zip"} {
		d := &Dump{Archive: name, OutputPath: "/out/" + name, Status: StatusComplete}
		if err := repo.CreateDump(d); err != nil {
			t.Fatalf("failed to create dump: %v", err)
		}
	}

	dumps, err := repo.List()
	if err != nil {
		t.Fatalf("failed to list dumps: %v", err)
	}
	if len(dumps) != 2 {
		t.Errorf("got %d dumps, want 2", len(dumps))
	}
}
