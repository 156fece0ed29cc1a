// Package transcript persists chat sessions and their committed messages in
// SQLite.
package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/samcharles93/parley/internal/chat"
)

// ErrNotFound is returned for an unknown session id.
var ErrNotFound = errors.New("session not found")

type Session struct {
	ID        string
	Family    string
	RepoID    string
	CreatedAt time.Time
}

// Summary is a Session with its message count, for listings.
type Summary struct {
	Session
	Messages  int
	UpdatedAt time.Time
}

// Store is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open creates the database file and schema when missing.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("empty transcript path")
	}
	if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create transcript dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path))
	if err != nil {
		return nil, fmt.Errorf("open transcript store: %w", err)
	}
	// One writer keeps seq assignment race-free.
	db.SetMaxOpenConns(1)
	if err := bootstrap(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func bootstrap(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			family TEXT NOT NULL,
			repo_id TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (session_id, seq)
		);
	`)
	if err != nil {
		return fmt.Errorf("create transcript schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, family, repo_id, created_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Family, sess.RepoID, sess.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return nil
}

// AppendMessages stores msgs after the session's last message, all or
// nothing.
func (s *Store) AppendMessages(ctx context.Context, sessionID string, msgs ...chat.Message) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	var exists int
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, sessionID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%s: %w", sessionID, ErrNotFound)
	}

	var next int
	if err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq) + 1, 0) FROM messages WHERE session_id = ?`, sessionID).Scan(&next); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	for i, m := range msgs {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			sessionID, next+i, string(m.Role), m.Content, now); err != nil {
			return fmt.Errorf("append message: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) Session(ctx context.Context, id string) (Session, error) {
	var (
		sess    Session
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, family, repo_id, created_at FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.Family, &sess.RepoID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, err
	}
	sess.CreatedAt = time.UnixMilli(created)
	return sess, nil
}

// Messages returns the session's messages in commit order.
func (s *Store) Messages(ctx context.Context, id string) ([]chat.Message, error) {
	if _, err := s.Session(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}
		r, err := chat.ParseRole(role)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, chat.Message{Role: r, Content: content})
	}
	return msgs, rows.Err()
}

// Sessions lists the most recently updated sessions first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.family, s.repo_id, s.created_at,
			COUNT(m.seq), COALESCE(MAX(m.created_at), s.created_at) AS updated
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY updated DESC, s.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum              Summary
			created, updated int64
		)
		if err := rows.Scan(&sum.ID, &sum.Family, &sum.RepoID, &created, &sum.Messages, &updated); err != nil {
			return nil, err
		}
		sum.CreatedAt = time.UnixMilli(created)
		sum.UpdatedAt = time.UnixMilli(updated)
		out = append(out, sum)
	}
	return out, rows.Err()
}
