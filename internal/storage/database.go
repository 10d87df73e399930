// Package storage persists chunks for one indexed source in a single SQLite
// file, alongside an FTS5 full-text mirror that is kept synchronously
// consistent with the primary table by triggers. Vector search is a full scan
// over the stored embeddings; keyword search goes through FTS5 bm25.
//
// FTS5 requires building with `-tags fts5` (mattn/go-sqlite3 compiles the
// extension only under that tag).
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// StorePath is where one video's chunk database lives under the data
// directory.
func StorePath(dataDir, videoID string) string {
	return filepath.Join(dataDir, videoID, "chunks.db")
}

// Open opens (creating if needed) the chunk database for one source.
// The caller owns the returned handle; concurrent writers to the same file
// are not supported and must be serialized by the caller.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate creates the chunks table, its FTS5 mirror and the triggers that
// keep the two structurally consistent. Idempotent.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			video_id TEXT NOT NULL,
			video_url TEXT NOT NULL,
			chunk_id TEXT NOT NULL UNIQUE,
			tier TEXT NOT NULL,
			start REAL NOT NULL,
			end REAL NOT NULL,
			text TEXT NOT NULL,
			segment_ids TEXT NOT NULL,
			embedding TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_chunk_id ON chunks(chunk_id);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_video_url ON chunks(video_url);`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			chunk_id UNINDEXED,
			text,
			tier,
			content='chunks',
			content_rowid='id'
		);`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, chunk_id, text, tier)
			VALUES (new.id, new.chunk_id, new.text, new.tier);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, chunk_id, text, tier)
			VALUES ('delete', old.id, old.chunk_id, old.text, old.tier);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, chunk_id, text, tier)
			VALUES ('delete', old.id, old.chunk_id, old.text, old.tier);
			INSERT INTO chunks_fts(rowid, chunk_id, text, tier)
			VALUES (new.id, new.chunk_id, new.text, new.tier);
		END;`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
