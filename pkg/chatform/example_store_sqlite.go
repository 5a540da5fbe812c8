package chatform

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// ExampleStore caches precomputed example responses in sqlite so repeated
// construction does not re-invoke the response function.
type ExampleStore struct {
	db *sql.DB
}

func NewExampleStore(dsn string) (*ExampleStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("example store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &ExampleStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *ExampleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *ExampleStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("example store: db is nil")
	}
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS example_cache (
		input TEXT NOT NULL PRIMARY KEY,
		response TEXT,
		created_at_ms INTEGER NOT NULL
	);`)
	if err != nil {
		return errors.Wrap(err, "example store: migrate")
	}
	return nil
}

// Put stores or replaces the cached response for an input. A nil response
// records "no response produced".
func (s *ExampleStore) Put(ctx context.Context, input string, response *string) error {
	if s == nil || s.db == nil {
		return errors.New("example store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO example_cache(input, response, created_at_ms)
		VALUES(?, ?, ?)
		ON CONFLICT(input) DO UPDATE SET response = excluded.response, created_at_ms = excluded.created_at_ms
	`, input, response, time.Now().UnixMilli())
	if err != nil {
		return errors.Wrap(err, "example store: upsert")
	}
	return nil
}

// Get returns the cached response for an input. The bool reports a cache
// hit; a hit with a nil response is a recorded empty stream.
func (s *ExampleStore) Get(ctx context.Context, input string) (*string, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, errors.New("example store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var response sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT response FROM example_cache WHERE input = ?`, input).Scan(&response)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "example store: query")
	}
	if !response.Valid {
		return nil, true, nil
	}
	v := response.String
	return &v, true, nil
}

// SQLiteDSNForFile returns a WAL-enabled DSN for a sqlite file path.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("empty sqlite path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}
