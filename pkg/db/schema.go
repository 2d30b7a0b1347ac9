package db

// Schema defines the SQLite schema for the dump run database: one row per
// pipeline run plus a row per attempted partition extraction.
const Schema = `
CREATE TABLE IF NOT EXISTS dumps (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    archive TEXT NOT NULL,
    output_path TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('running', 'complete', 'failed', 'cleaned')),
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_dumps_archive ON dumps(archive);
CREATE INDEX IF NOT EXISTS idx_dumps_status ON dumps(status);
CREATE INDEX IF NOT EXISTS idx_dumps_created_at ON dumps(created_at);

CREATE TABLE IF NOT EXISTS partitions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    dump_id INTEGER NOT NULL REFERENCES dumps(id),
    name TEXT NOT NULL,
    format TEXT NOT NULL,
    succeeded INTEGER NOT NULL,
    diagnostic TEXT
);

CREATE INDEX IF NOT EXISTS idx_partitions_dump_id ON partitions(dump_id);
`

// Dump status values
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
	StatusCleaned  = "cleaned"
)

// Dump is one pipeline run.
type Dump struct {
	ID           int64
	Archive      string
	OutputPath   string
	Status       string
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}

// PartitionResult is the persisted outcome of one partition extraction.
type PartitionResult struct {
	ID         int64
	DumpID     int64
	Name       string
	Format     string
	Succeeded  bool
	Diagnostic string
}
