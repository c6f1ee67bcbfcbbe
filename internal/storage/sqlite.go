package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/geoint/internal/models"
)

// SQLiteStorage implements ChunkStore using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS report_chunks (
		id TEXT PRIMARY KEY,
		report_id TEXT NOT NULL,
		content TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_report_id ON report_chunks(report_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_report_chunk ON report_chunks(report_id, chunk_index);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertChunks inserts or replaces chunks in a transaction.
func (s *SQLiteStorage) UpsertChunks(ctx context.Context, chunks []*models.ReportChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO report_chunks (id, report_id, content, chunk_index, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", chunk.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.ReportID, chunk.Content, chunk.ChunkIndex, string(metadataJSON), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetChunks returns the chunks with the given IDs.
func (s *SQLiteStorage) GetChunks(ctx context.Context, ids []string) (map[string]*models.ReportChunk, error) {
	out := make(map[string]*models.ReportChunk, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders, args := idArgs(ids)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, report_id, content, chunk_index, metadata
		 FROM report_chunks WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var chunk models.ReportChunk
		var metadataJSON sql.NullString
		if err := rows.Scan(&chunk.ID, &chunk.ReportID, &chunk.Content, &chunk.ChunkIndex, &metadataJSON); err != nil {
			return nil, err
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &chunk.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", chunk.ID, err)
			}
		}
		out[chunk.ID] = &chunk
	}
	return out, rows.Err()
}

// GetChunkIDsByReport returns the chunk IDs of a report ordered by chunk_index.
func (s *SQLiteStorage) GetChunkIDsByReport(ctx context.Context, reportID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM report_chunks WHERE report_id = ? ORDER BY chunk_index`,
		reportID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteReport removes all chunks of a report.
func (s *SQLiteStorage) DeleteReport(ctx context.Context, reportID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM report_chunks WHERE report_id = ?`, reportID)
	return err
}

// DeleteChunks removes chunks by ID. Unknown IDs are ignored.
func (s *SQLiteStorage) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := idArgs(ids)
	_, err := s.db.ExecContext(ctx, `DELETE FROM report_chunks WHERE id IN (`+placeholders+`)`, args...)
	return err
}

func idArgs(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

// CountReports returns the number of distinct reports.
func (s *SQLiteStorage) CountReports(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT report_id) FROM report_chunks`).Scan(&count)
	return count, err
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM report_chunks`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
