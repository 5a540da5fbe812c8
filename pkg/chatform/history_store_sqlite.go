package chatform

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// HistoryStore persists committed turns per session. It is written after
// each completed chain run and read for session hydration; absent store
// means in-memory only.
type HistoryStore struct {
	db *sql.DB
}

func NewHistoryStore(dsn string) (*HistoryStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("history store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &HistoryStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *HistoryStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *HistoryStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("history store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS history_turns (
			session_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			user TEXT NOT NULL,
			bot TEXT,
			created_at_ms INTEGER NOT NULL,
			PRIMARY KEY (session_id, idx)
		);`,
		`CREATE INDEX IF NOT EXISTS history_turns_by_session ON history_turns(session_id, idx);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "history store: migrate")
		}
	}
	return nil
}

// ReplaceHistory overwrites the stored turns for a session with the given
// snapshot, atomically.
func (s *HistoryStore) ReplaceHistory(ctx context.Context, sessionID string, history []Turn) error {
	if s == nil || s.db == nil {
		return errors.New("history store: db is nil")
	}
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("history store: sessionID is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "history store: begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_turns WHERE session_id = ?`, sessionID); err != nil {
		return errors.Wrap(err, "history store: delete")
	}
	now := time.Now().UnixMilli()
	for i, turn := range history {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO history_turns(session_id, idx, user, bot, created_at_ms)
			VALUES(?, ?, ?, ?, ?)
		`, sessionID, i, turn.User, turn.Bot, now); err != nil {
			return errors.Wrap(err, "history store: insert")
		}
	}
	return errors.Wrap(tx.Commit(), "history store: commit")
}

// List returns the stored turns for a session in insertion order, capped at
// limit when limit is positive.
func (s *HistoryStore) List(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history store: db is nil")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("history store: sessionID is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	query := `SELECT user, bot FROM history_turns WHERE session_id = ? ORDER BY idx`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "history store: query")
	}
	defer func() { _ = rows.Close() }()

	turns := []Turn{}
	for rows.Next() {
		var (
			user string
			bot  sql.NullString
		)
		if err := rows.Scan(&user, &bot); err != nil {
			return nil, err
		}
		turn := Turn{User: user}
		if bot.Valid {
			v := bot.String
			turn.Bot = &v
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return turns, nil
}
