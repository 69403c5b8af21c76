package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kilupskalvis/mdvc/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Backend using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens or creates a SQLite database and brings its schema up to date
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers so head checks and updates stay atomic
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.Initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Initialize creates the base database schema
func (s *SQLiteStore) Initialize() error {
	schema := `
	-- Version records (append-only)
	CREATE TABLE IF NOT EXISTS versions (
		document_id TEXT NOT NULL,
		label TEXT NOT NULL,
		seq INTEGER NOT NULL,
		lineage TEXT NOT NULL,
		record JSON NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (document_id, label),
		UNIQUE (document_id, seq)
	);

	-- Named branches
	CREATE TABLE IF NOT EXISTS branches (
		document_id TEXT NOT NULL,
		name TEXT NOT NULL,
		fork_point TEXT NOT NULL,
		head TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (document_id, name)
	);

	-- Main lineage heads
	CREATE TABLE IF NOT EXISTS refs (
		document_id TEXT NOT NULL,
		name TEXT NOT NULL,
		head TEXT NOT NULL,
		PRIMARY KEY (document_id, name)
	);

	CREATE TABLE IF NOT EXISTS mdvc_schema_version (
		version INTEGER PRIMARY KEY
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SaveVersion stores a record and advances its lineage head in one transaction
func (s *SQLiteStore) SaveVersion(ctx context.Context, rec *models.VersionRecord, expectedHead string) error {
	if rec.DocumentID == "" {
		return fmt.Errorf("document id is required")
	}
	lineage := rec.Lineage
	if lineage == "" {
		lineage = models.MainLineage
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM versions WHERE document_id = ? AND label = ?",
		rec.DocumentID, rec.Label).Scan(&exists); err != nil {
		return err
	}
	if exists > 0 {
		return fmt.Errorf("version %s: %w", rec.Label, ErrExists)
	}

	var top sql.NullString
	if err := tx.QueryRowContext(ctx,
		"SELECT max_label FROM document_meta WHERE document_id = ?",
		rec.DocumentID).Scan(&top); err != nil && err != sql.ErrNoRows {
		return err
	}
	if top.Valid && top.String != "" && models.CompareLabels(rec.Label, top.String) <= 0 {
		return fmt.Errorf("version %s is not above %s: %w", rec.Label, top.String, ErrConflict)
	}

	current, err := headTx(ctx, tx, rec.DocumentID, lineage)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("branch %s: %w", lineage, ErrNotFound)
		}
		return err
	}
	if current != expectedHead {
		return fmt.Errorf("%s head is %q, expected %q: %w", lineage, current, expectedHead, ErrConflict)
	}

	var seq uint64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM versions WHERE document_id = ?",
		rec.DocumentID).Scan(&seq); err != nil {
		return fmt.Errorf("allocate sequence: %w", err)
	}
	rec.Seq = seq
	rec.Lineage = lineage

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO versions (document_id, label, seq, lineage, record, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.DocumentID, rec.Label, seq, lineage, string(data), rec.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("store version: %w", err)
	}

	if lineage == models.MainLineage {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO refs (document_id, name, head) VALUES (?, ?, ?)
			ON CONFLICT(document_id, name) DO UPDATE SET head = excluded.head
		`, rec.DocumentID, models.MainLineage, rec.Label)
	} else {
		_, err = tx.ExecContext(ctx,
			"UPDATE branches SET head = ? WHERE document_id = ? AND name = ?",
			rec.Label, rec.DocumentID, lineage)
	}
	if err != nil {
		return fmt.Errorf("update head: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO document_meta (document_id, max_label) VALUES (?, ?)
		ON CONFLICT(document_id) DO UPDATE SET max_label = excluded.max_label
	`, rec.DocumentID, rec.Label); err != nil {
		return fmt.Errorf("update max label: %w", err)
	}

	return tx.Commit()
}

// headTx reads a lineage head inside a transaction
func headTx(ctx context.Context, tx *sql.Tx, docID, lineage string) (string, error) {
	var head string
	var err error
	if lineage == models.MainLineage {
		err = tx.QueryRowContext(ctx,
			"SELECT head FROM refs WHERE document_id = ? AND name = ?",
			docID, models.MainLineage).Scan(&head)
		if err == sql.ErrNoRows {
			return "", nil
		}
	} else {
		err = tx.QueryRowContext(ctx,
			"SELECT head FROM branches WHERE document_id = ? AND name = ?",
			docID, lineage).Scan(&head)
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
	}
	return head, err
}

// LoadVersion retrieves a version record by label
func (s *SQLiteStore) LoadVersion(ctx context.Context, docID, label string) (*models.VersionRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT record FROM versions WHERE document_id = ? AND label = ?",
		docID, label).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec models.VersionRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal version %s: %w", label, err)
	}
	return &rec, nil
}

// ListVersions returns all records of a document ordered by creation sequence
func (s *SQLiteStore) ListVersions(ctx context.Context, docID string) ([]*models.VersionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT label, record FROM versions WHERE document_id = ? ORDER BY seq",
		docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.VersionRecord
	for rows.Next() {
		var label, data string
		if err := rows.Scan(&label, &data); err != nil {
			return nil, err
		}
		var rec models.VersionRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal version %s: %w", label, err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// MaxLabel returns the greatest label stored for a document
func (s *SQLiteStore) MaxLabel(ctx context.Context, docID string) (string, error) {
	var top string
	err := s.db.QueryRowContext(ctx,
		"SELECT max_label FROM document_meta WHERE document_id = ?",
		docID).Scan(&top)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return top, err
}

// GetHead returns the head label of main or of a branch
func (s *SQLiteStore) GetHead(ctx context.Context, docID, lineage string) (string, error) {
	if lineage == "" {
		lineage = models.MainLineage
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	return headTx(ctx, tx, docID, lineage)
}

// CreateBranch stores a new branch
func (s *SQLiteStore) CreateBranch(ctx context.Context, branch *models.Branch) error {
	if branch.DocumentID == "" {
		return fmt.Errorf("document id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM branches WHERE document_id = ? AND name = ?",
		branch.DocumentID, branch.Name).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("branch '%s': %w", branch.Name, ErrExists)
	}
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM versions WHERE document_id = ? AND label = ?",
		branch.DocumentID, branch.ForkPoint).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("fork point %s: %w", branch.ForkPoint, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO branches (document_id, name, fork_point, head, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, branch.DocumentID, branch.Name, branch.ForkPoint, branch.Head,
		branch.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("store branch: %w", err)
	}
	return tx.Commit()
}

// GetBranch retrieves a branch by name
func (s *SQLiteStore) GetBranch(ctx context.Context, docID, name string) (*models.Branch, error) {
	var b models.Branch
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, name, fork_point, head, created_at
		FROM branches WHERE document_id = ? AND name = ?
	`, docID, name).Scan(&b.DocumentID, &b.Name, &b.ForkPoint, &b.Head, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.CreatedAt = parseTime(createdAt)
	return &b, nil
}

// ListBranches returns all branches of a document sorted by name
func (s *SQLiteStore) ListBranches(ctx context.Context, docID string) ([]*models.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, name, fork_point, head, created_at
		FROM branches WHERE document_id = ? ORDER BY name
	`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var branches []*models.Branch
	for rows.Next() {
		var b models.Branch
		var createdAt string
		if err := rows.Scan(&b.DocumentID, &b.Name, &b.ForkPoint, &b.Head, &createdAt); err != nil {
			return nil, err
		}
		b.CreatedAt = parseTime(createdAt)
		branches = append(branches, &b)
	}
	return branches, rows.Err()
}

// DeleteBranch removes a branch
func (s *SQLiteStore) DeleteBranch(ctx context.Context, docID, name string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM branches WHERE document_id = ? AND name = ?", docID, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// parseTime reads timestamps written either by us or by CURRENT_TIMESTAMP
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
