package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLite keeps the document tree in a single table keyed by full path.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

func Open(ctx context.Context, path string) (*SQLite, error) {
	trimmed := strings.TrimSpace(path)
	inMemory := false
	if trimmed == "" {
		trimmed = ":memory:"
		inMemory = true
	}
	if strings.Contains(trimmed, "mode=memory") || trimmed == ":memory:" || trimmed == "file::memory:" {
		inMemory = true
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if !inMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
            path TEXT PRIMARY KEY,
            value TEXT NOT NULL,
            updated_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at);`,
	}
	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var value string
	row := s.db.QueryRowContext(ctx, `SELECT value FROM documents WHERE path = ?;`, path)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return json.RawMessage(value), nil
}

func (s *SQLite) Set(ctx context.Context, path string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO documents (path, value, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT(path) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`,
		path, string(encoded), s.now().Unix())
	if err != nil {
		return fmt.Errorf("set document: %w", err)
	}
	return nil
}

func (s *SQLite) Update(ctx context.Context, path string, partial map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	merged := map[string]any{}
	var existing string
	row := tx.QueryRowContext(ctx, `SELECT value FROM documents WHERE path = ?;`, path)
	switch err := row.Scan(&existing); {
	case err == nil:
		if err := json.Unmarshal([]byte(existing), &merged); err != nil {
			return fmt.Errorf("decode document: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return fmt.Errorf("update document: %w", err)
	}
	for key, value := range partial {
		merged[key] = value
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO documents (path, value, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT(path) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`,
		path, string(encoded), s.now().Unix())
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ? OR path LIKE ?;`,
		path, path+"/%")
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *SQLite) Push(ctx context.Context, path string, value any) (string, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.Set(ctx, path+"/"+id, value); err != nil {
		return "", fmt.Errorf("push document: %w", err)
	}
	return id, nil
}

func (s *SQLite) Children(ctx context.Context, path string) (map[string]json.RawMessage, error) {
	prefix := path + "/"
	rows, err := s.db.QueryContext(ctx, `SELECT path, value FROM documents
        WHERE path LIKE ? AND path NOT LIKE ?;`,
		prefix+"%", prefix+"%/%")
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	children := make(map[string]json.RawMessage)
	for rows.Next() {
		var childPath, value string
		if err := rows.Scan(&childPath, &value); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		children[strings.TrimPrefix(childPath, prefix)] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return children, nil
}
