package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vac-tools/vacsync/pkg/models"
)

// DB is the local index: the persistent record of which charts exist on disk
// and at which version. The download coordinator is its only writer.
type DB struct {
	*sql.DB
}

// New opens (or creates) the index database at the given path.
func New(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create database dir: %v", models.ErrStorage, err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", models.ErrStorage, err)
	}

	db := &DB{sqlDB}
	if err := db.initialize(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// initialize creates the necessary tables if they don't exist
func (db *DB) initialize() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS charts (
			oaci TEXT PRIMARY KEY,
			city TEXT,
			local_version TEXT NOT NULL,
			file_path TEXT NOT NULL
		);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA temp_store=MEMORY;
	`)
	if err != nil {
		return fmt.Errorf("%w: initialize schema: %v", models.ErrStorage, err)
	}
	return nil
}

// ListEntries returns all local entries in insertion order.
func (db *DB) ListEntries() ([]models.LocalEntry, error) {
	rows, err := db.Query(`
		SELECT oaci, city, local_version, file_path
		FROM charts
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list entries: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	var entries []models.LocalEntry
	for rows.Next() {
		var e models.LocalEntry
		if err := rows.Scan(&e.OACI, &e.City, &e.LocalVersion, &e.FilePath); err != nil {
			return nil, fmt.Errorf("%w: scan entry: %v", models.ErrStorage, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list entries: %v", models.ErrStorage, err)
	}
	return entries, nil
}

// GetEntry retrieves a single entry by OACI code.
func (db *DB) GetEntry(oaci string) (*models.LocalEntry, error) {
	var e models.LocalEntry
	err := db.QueryRow(`
		SELECT oaci, city, local_version, file_path
		FROM charts WHERE oaci = ?
	`, oaci).Scan(&e.OACI, &e.City, &e.LocalVersion, &e.FilePath)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no local entry for %s", models.ErrNotFound, oaci)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get entry %s: %v", models.ErrStorage, oaci, err)
	}
	return &e, nil
}

// UpsertEntry inserts or replaces the entry for a chart. Idempotent: the row
// is written whole, so readers never observe a half-updated entry.
func (db *DB) UpsertEntry(entry models.LocalEntry) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO charts (oaci, city, local_version, file_path)
		VALUES (?, ?, ?, ?)
	`, entry.OACI, entry.City, entry.LocalVersion, entry.FilePath)
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", models.ErrStorage, entry.OACI, err)
	}
	return nil
}

// DeleteEntry removes the entry for a chart, failing when it is absent.
func (db *DB) DeleteEntry(oaci string) error {
	res, err := db.Exec(`DELETE FROM charts WHERE oaci = ?`, oaci)
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", models.ErrStorage, oaci, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", models.ErrStorage, oaci, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: no local entry for %s", models.ErrNotFound, oaci)
	}
	return nil
}
