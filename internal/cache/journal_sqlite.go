package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmgilman/go/assets/asset"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entries (
	digest TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	type TEXT NOT NULL,
	variant TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	stored_bytes INTEGER NOT NULL,
	encoding TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	last_accessed_at INTEGER NOT NULL,
	access_count INTEGER NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
)`

// SQLiteJournal persists the index in a SQLite database on the local disk.
type SQLiteJournal struct {
	db *sql.DB
}

// OpenSQLiteJournal opens or creates the database at p.
func OpenSQLiteJournal(p string) (*SQLiteJournal, error) {
	if strings.TrimSpace(p) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	dsn := filepath.Clean(p) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// Load reads every row.
func (j *SQLiteJournal) Load(ctx context.Context) ([]*IndexEntry, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT
	digest,
	path,
	type,
	variant,
	size_bytes,
	stored_bytes,
	encoding,
	created_at,
	last_accessed_at,
	access_count,
	metadata
FROM entries
ORDER BY digest
`)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	var entries []*IndexEntry
	for rows.Next() {
		var (
			entry            IndexEntry
			typ, variant     string
			encoding, meta   string
			created, touched int64
		)
		if err := rows.Scan(
			&entry.Digest,
			&entry.Key.Path,
			&typ,
			&variant,
			&entry.SizeBytes,
			&entry.StoredBytes,
			&encoding,
			&created,
			&touched,
			&entry.AccessCount,
			&meta,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entry.Key.Type = asset.Type(typ)
		if err := json.Unmarshal([]byte(variant), &entry.Key.Variant); err != nil {
			continue
		}
		if err := json.Unmarshal([]byte(meta), &entry.Metadata); err != nil {
			entry.Metadata = nil
		}
		entry.Encoding = Encoding(encoding)
		entry.CreatedAt = time.Unix(0, created).UTC()
		entry.LastAccessedAt = time.Unix(0, touched).UTC()
		if entry.Key.Validate() != nil {
			continue
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Save replaces all rows in one transaction.
func (j *SQLiteJournal) Save(ctx context.Context, entries []*IndexEntry) (err error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO entries (
	digest,
	path,
	type,
	variant,
	size_bytes,
	stored_bytes,
	encoding,
	created_at,
	last_accessed_at,
	access_count,
	metadata
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		variant, mErr := json.Marshal(entry.Key.Variant)
		if mErr != nil {
			return fmt.Errorf("marshal variant: %w", mErr)
		}
		meta := []byte("{}")
		if len(entry.Metadata) > 0 {
			if meta, err = json.Marshal(entry.Metadata); err != nil {
				return fmt.Errorf("marshal metadata: %w", err)
			}
		}
		if _, err = stmt.ExecContext(ctx,
			entry.Digest,
			entry.Key.Path,
			string(entry.Key.Type),
			string(variant),
			entry.SizeBytes,
			entry.StoredBytes,
			string(entry.Encoding),
			entry.CreatedAt.UnixNano(),
			entry.LastAccessedAt.UnixNano(),
			entry.AccessCount,
			string(meta),
		); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
