package store

import (
	"database/sql"
	"fmt"

	"github.com/kilupskalvis/mdvc/internal/models"
)

const currentSchemaVersion = 2

// RunMigrations applies any pending database migrations
func (s *SQLiteStore) RunMigrations() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}

	if version < 2 {
		if err := s.migrateToV2(); err != nil {
			return fmt.Errorf("migration to v2 failed: %w", err)
		}
	}

	return nil
}

// getSchemaVersion returns the current schema version, 1 if not set
func (s *SQLiteStore) getSchemaVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM mdvc_schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 1, nil
	}
	return int(version.Int64), nil
}

// migrateToV2 adds the per-document max label cache and backfills it.
// Labels are semantic versions, so the maximum is computed here rather than in SQL.
func (s *SQLiteStore) migrateToV2() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS document_meta (
			document_id TEXT PRIMARY KEY,
			max_label TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_versions_lineage ON versions(document_id, lineage)`,
	}
	for _, migration := range migrations {
		if _, err := tx.Exec(migration); err != nil {
			return err
		}
	}

	rows, err := tx.Query("SELECT document_id, label FROM versions")
	if err != nil {
		return err
	}
	labels := make(map[string][]string)
	for rows.Next() {
		var docID, label string
		if err := rows.Scan(&docID, &label); err != nil {
			rows.Close()
			return err
		}
		labels[docID] = append(labels[docID], label)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for docID, ls := range labels {
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO document_meta (document_id, max_label) VALUES (?, ?)
		`, docID, models.MaxLabel(ls)); err != nil {
			return err
		}
	}

	if _, err := tx.Exec("INSERT OR REPLACE INTO mdvc_schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
		return err
	}
	return tx.Commit()
}
