package db

import (
	"database/sql"
	"log/slog"

	"github.com/fwtools/fwdump/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for dump runs
type Repository struct {
	db *sql.DB
}

// NewRepository opens (and if needed creates) the run database
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// CreateDump inserts a new run record
func (r *Repository) CreateDump(d *Dump) error {
	slog.Info("database_create_dump", "archive", d.Archive, "status", d.Status)

	query := `
		INSERT INTO dumps (archive, output_path, status, error_message)
		VALUES (?, ?, ?, ?)
	`
	result, err := r.db.Exec(query, d.Archive, d.OutputPath, d.Status, d.ErrorMessage)
	if err != nil {
		slog.Error("database_insert_failed", "archive", d.Archive, "error", err)
		return errors.Wrap(err, "failed to insert dump")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to get last insert id")
	}
	d.ID = id

	return nil
}

// UpdateStatus updates a run's status and error message
func (r *Repository) UpdateStatus(id int64, status, errorMessage string) error {
	slog.Info("database_update_status", "dump_id", id, "status", status)

	query := `UPDATE dumps SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := r.db.Exec(query, status, errorMessage, id); err != nil {
		slog.Error("database_status_update_failed", "dump_id", id, "status", status, "error", err)
		return errors.Wrap(err, "failed to update status")
	}
	return nil
}

// GetByArchive retrieves the most recent run for an archive name.
// Returns (nil, nil) when no run exists.
func (r *Repository) GetByArchive(archive string) (*Dump, error) {
	query := `
		SELECT id, archive, output_path, status, error_message, created_at, updated_at
		FROM dumps WHERE archive = ? ORDER BY created_at DESC LIMIT 1
	`
	var d Dump
	var errorMessage sql.NullString

	err := r.db.QueryRow(query, archive).Scan(
		&d.ID, &d.Archive, &d.OutputPath, &d.Status,
		&errorMessage, &d.CreatedAt, &d.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("database_query_failed", "archive", archive, "error", err)
		return nil, errors.Wrap(err, "failed to query dump")
	}

	d.ErrorMessage = errorMessage.String
	return &d, nil
}

// List retrieves all runs, newest first
func (r *Repository) List() ([]*Dump, error) {
	query := `
		SELECT id, archive, output_path, status, error_message, created_at, updated_at
		FROM dumps ORDER BY created_at DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list dumps")
	}
	defer rows.Close()

	var dumps []*Dump
	for rows.Next() {
		var d Dump
		var errorMessage sql.NullString

		if err := rows.Scan(
			&d.ID, &d.Archive, &d.OutputPath, &d.Status,
			&errorMessage, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}

		d.ErrorMessage = errorMessage.String
		dumps = append(dumps, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}

	return dumps, nil
}

// RecordPartition persists one partition extraction outcome
func (r *Repository) RecordPartition(p *PartitionResult) error {
	query := `
		INSERT INTO partitions (dump_id, name, format, succeeded, diagnostic)
		VALUES (?, ?, ?, ?, ?)
	`
	succeeded := 0
	if p.Succeeded {
		succeeded = 1
	}
	result, err := r.db.Exec(query, p.DumpID, p.Name, p.Format, succeeded, p.Diagnostic)
	if err != nil {
		slog.Error("database_partition_insert_failed", "dump_id", p.DumpID, "partition", p.Name, "error", err)
		return errors.Wrap(err, "failed to record partition")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to get last insert id")
	}
	p.ID = id

	return nil
}

// ListPartitions retrieves the partition outcomes of a run, in insertion
// order (which is the registry's extraction order)
func (r *Repository) ListPartitions(dumpID int64) ([]*PartitionResult, error) {
	query := `
		SELECT id, dump_id, name, format, succeeded, diagnostic
		FROM partitions WHERE dump_id = ? ORDER BY id
	`
	rows, err := r.db.Query(query, dumpID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list partitions")
	}
	defer rows.Close()

	var results []*PartitionResult
	for rows.Next() {
		var p PartitionResult
		var succeeded int
		var diagnostic sql.NullString

		if err := rows.Scan(&p.ID, &p.DumpID, &p.Name, &p.Format, &succeeded, &diagnostic); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}

		p.Succeeded = succeeded != 0
		p.Diagnostic = diagnostic.String
		results = append(results, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}

	return results, nil
}

// Delete removes a run and its partition outcomes
func (r *Repository) Delete(id int64) error {
	slog.Info("database_delete_dump", "dump_id", id)

	if _, err := r.db.Exec(`DELETE FROM partitions WHERE dump_id = ?`, id); err != nil {
		return errors.Wrap(err, "failed to delete partition outcomes")
	}
	if _, err := r.db.Exec(`DELETE FROM dumps WHERE id = ?`, id); err != nil {
		return errors.Wrap(err, "failed to delete dump")
	}

	return nil
}
