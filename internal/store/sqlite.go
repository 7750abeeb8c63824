// Package store keeps the local ingestion manifest: which chunk IDs were
// uploaded to the vector index and with what content.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS ingested_chunks (
        id TEXT PRIMARY KEY, -- vector ID
        content_hash TEXT NOT NULL,
        title TEXT NOT NULL DEFAULT '',
        category TEXT NOT NULL DEFAULT '',
        ingested_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS ingestion_runs (
        id TEXT PRIMARY KEY, -- UUID
        source TEXT NOT NULL,
        started_at DATETIME NOT NULL,
        finished_at DATETIME,
        upserted INTEGER NOT NULL DEFAULT 0,
        deleted INTEGER NOT NULL DEFAULT 0,
        unchanged INTEGER NOT NULL DEFAULT 0
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Chunk manifest methods

// GetIngestedChunks returns the manifest keyed by vector ID.
func (s *SQLiteStore) GetIngestedChunks() (map[string]IngestedChunk, error) {
	rows, err := s.db.Query("SELECT id, content_hash, title, category, ingested_at FROM ingested_chunks")
	if err != nil {
		return nil, fmt.Errorf("failed to query ingested_chunks: %w", err)
	}
	defer rows.Close()

	chunks := make(map[string]IngestedChunk)
	for rows.Next() {
		var c IngestedChunk
		if err := rows.Scan(&c.ID, &c.ContentHash, &c.Title, &c.Category, &c.IngestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ingested_chunk row: %w", err)
		}
		chunks[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ingested_chunks: %w", err)
	}
	return chunks, nil
}

// SaveIngestedChunks inserts or replaces manifest rows in one transaction.
func (s *SQLiteStore) SaveIngestedChunks(chunks []IngestedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
        INSERT INTO ingested_chunks (id, content_hash, title, category, ingested_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            content_hash = excluded.content_hash,
            title = excluded.title,
            category = excluded.category,
            ingested_at = excluded.ingested_at
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare ingested_chunk upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range chunks {
		if c.IngestedAt.IsZero() {
			c.IngestedAt = now
		}
		if _, err := stmt.Exec(c.ID, c.ContentHash, c.Title, c.Category, c.IngestedAt); err != nil {
			return fmt.Errorf("failed to execute ingested_chunk upsert for %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteIngestedChunks(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("DELETE FROM ingested_chunks WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare ingested_chunk delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			return fmt.Errorf("failed to delete ingested_chunk %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ClearIngestedChunks() error {
	if _, err := s.db.Exec("DELETE FROM ingested_chunks"); err != nil {
		return fmt.Errorf("failed to delete ingested_chunks: %w", err)
	}
	return nil
}

// Ingestion run methods

func (s *SQLiteStore) CreateIngestionRun(source string) (*IngestionRun, error) {
	run := &IngestionRun{
		ID:        uuid.NewString(),
		Source:    source,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec("INSERT INTO ingestion_runs (id, source, started_at) VALUES (?, ?, ?)",
		run.ID, run.Source, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ingestion_run: %w", err)
	}
	return run, nil
}

// FinishIngestionRun stamps the run as finished and stores its counters.
func (s *SQLiteStore) FinishIngestionRun(run *IngestionRun) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		"UPDATE ingestion_runs SET finished_at = ?, upserted = ?, deleted = ?, unchanged = ? WHERE id = ?",
		now, run.Upserted, run.Deleted, run.Unchanged, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update ingestion_run: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("ingestion run %s not found", run.ID)
	}
	run.FinishedAt = &now
	return nil
}

// GetLastIngestionRun returns the most recent run, or nil if there is none.
func (s *SQLiteStore) GetLastIngestionRun() (*IngestionRun, error) {
	var run IngestionRun
	var finished sql.NullTime
	err := s.db.QueryRow(`
        SELECT id, source, started_at, finished_at, upserted, deleted, unchanged
        FROM ingestion_runs
        ORDER BY started_at DESC
        LIMIT 1
    `).Scan(&run.ID, &run.Source, &run.StartedAt, &finished, &run.Upserted, &run.Deleted, &run.Unchanged)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No runs yet
		}
		return nil, fmt.Errorf("failed to query last ingestion_run: %w", err)
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}
