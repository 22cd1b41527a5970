package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eventdesk/booking-bot/internal/models"
)

// SQLiteStore keeps each request as a JSON document in a SQLite table
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLite opens (and migrates) the SQLite database at dbPath
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps the counter increment and request writes serialized.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS requests (
		id INTEGER PRIMARY KEY,
		data TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO counters (name, value) VALUES ('requests', 0);

	CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
	`

	_, err := s.conn.Exec(schema)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (*models.Request, bool, error) {
	var data string
	err := s.conn.QueryRowContext(ctx, `SELECT data FROM requests WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load request %d: %w", id, err)
	}

	var req models.Request
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		return nil, false, fmt.Errorf("failed to decode request %d: %w", id, err)
	}
	return &req, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, id int64, req *models.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request %d: %w", id, err)
	}

	now := time.Now()
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO requests (id, data, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, status = excluded.status, updated_at = excluded.updated_at`,
		id, string(data), string(req.Status), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save request %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) NextID(ctx context.Context) (int64, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE counters SET value = value + 1 WHERE name = 'requests'`); err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT value FROM counters WHERE name = 'requests'`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}

	return id, tx.Commit()
}

// CountByStatus returns the number of stored requests per status label
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT status, COUNT(*) FROM requests GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.Status(status)] = n
	}
	return counts, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
