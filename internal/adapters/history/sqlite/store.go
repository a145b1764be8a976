// Package sqlite persists the export audit log in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS exports (
	id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	file_base_name TEXT NOT NULL,
	destination_id TEXT,
	destination_name TEXT,
	status TEXT NOT NULL,
	error TEXT,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exports_finished_at ON exports(finished_at);
`

// Store is an append-only export history.
type Store struct {
	db *sql.DB
}

var _ ports.ExportHistory = (*Store)(nil)

func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("open export history: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY between goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends record, assigning an id when it has none.
func (s *Store) Record(ctx context.Context, record domain.ExportRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exports (id, provider, file_base_name, destination_id, destination_name, status, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		string(record.Provider),
		record.FileBaseName,
		record.DestinationID,
		record.DestinationName,
		string(record.Status),
		record.Error,
		record.StartedAt.UnixMilli(),
		record.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert export record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.ExportRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider, file_base_name, destination_id, destination_name, status, error, started_at, finished_at
		FROM exports
		ORDER BY finished_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query export records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []domain.ExportRecord
	for rows.Next() {
		var (
			record                   domain.ExportRecord
			provider, status         string
			destID, destName, errMsg sql.NullString
			startedAt, finishedAt    int64
		)
		if err := rows.Scan(&record.ID, &provider, &record.FileBaseName, &destID, &destName, &status, &errMsg, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan export record: %w", err)
		}
		record.Provider = domain.Provider(provider)
		record.Status = domain.ExportStatus(status)
		record.DestinationID = destID.String
		record.DestinationName = destName.String
		record.Error = errMsg.String
		record.StartedAt = time.UnixMilli(startedAt).UTC()
		record.FinishedAt = time.UnixMilli(finishedAt).UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate export records: %w", err)
	}
	return records, nil
}
