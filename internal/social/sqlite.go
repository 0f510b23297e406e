package social

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(connectionString string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create social tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS social_counters (
			submission_id TEXT PRIMARY KEY,
			likes  INTEGER NOT NULL DEFAULT 0,
			cheers INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS social_comments (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			submission_id TEXT NOT NULL,
			id            TEXT NOT NULL,
			author        TEXT NOT NULL,
			text          TEXT NOT NULL,
			time          INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_social_comments_submission ON social_comments(submission_id, seq)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*SocialState, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	state := emptyState()
	err := s.db.QueryRowContext(ctx,
		"SELECT likes, cheers FROM social_counters WHERE submission_id = ?", id).
		Scan(&state.Likes, &state.Cheers)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read counters for %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, author, text, time FROM social_comments WHERE submission_id = ? ORDER BY seq DESC", id)
	if err != nil {
		return nil, fmt.Errorf("failed to read comments for %s: %w", id, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.User, &c.Text, &c.Time); err != nil {
			return nil, err
		}
		state.Comments = append(state.Comments, c)
	}
	return state, rows.Err()
}

func (s *SQLiteStore) incr(ctx context.Context, id, column string) (*SocialState, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	// column is one of two constants, never user input
	query := fmt.Sprintf(`INSERT INTO social_counters (submission_id, %[1]s) VALUES (?, 1)
		ON CONFLICT(submission_id) DO UPDATE SET %[1]s = %[1]s + 1`, column)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return nil, fmt.Errorf("failed to increment %s for %s: %w", column, id, err)
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) Like(ctx context.Context, id string) (*SocialState, error) {
	return s.incr(ctx, id, "likes")
}

func (s *SQLiteStore) Cheer(ctx context.Context, id string) (*SocialState, error) {
	return s.incr(ctx, id, "cheers")
}

func (s *SQLiteStore) AddComment(ctx context.Context, id, user, text string) (*SocialState, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	c, err := newComment(user, text, s.now())
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO social_comments (submission_id, id, author, text, time) VALUES (?, ?, ?, ?, ?)",
		id, c.ID, c.User, c.Text, c.Time); err != nil {
		return nil, fmt.Errorf("failed to add comment for %s: %w", id, err)
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
