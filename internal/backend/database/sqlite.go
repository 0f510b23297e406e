package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
}

func NewSQLiteDatabase(connectionString string) (DatabaseService, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
	}, nil
}

func (s *SQLiteDatabase) CreateDatabase() (*sql.DB, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS submissions (
			request_id     TEXT PRIMARY KEY,
			submitter      TEXT NOT NULL,
			image_url      TEXT NOT NULL,
			ipfs_hash      TEXT NOT NULL DEFAULT '',
			ai_score       INTEGER NOT NULL DEFAULT 0,
			approved       INTEGER NOT NULL DEFAULT 0,
			total_votes    INTEGER NOT NULL DEFAULT 0,
			block_time     INTEGER NOT NULL DEFAULT 0,
			status         TEXT NOT NULL DEFAULT 'created',
			failure_reason TEXT NOT NULL DEFAULT '',
			rewarded       INTEGER NOT NULL DEFAULT 0,
			reward_wei     TEXT NOT NULL DEFAULT '',
			submit_tx      TEXT NOT NULL DEFAULT '',
			score_tx       TEXT NOT NULL DEFAULT '',
			reward_tx      TEXT NOT NULL DEFAULT '',
			created_at     INTEGER NOT NULL,
			updated_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_image_url ON submissions(image_url)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_submitter ON submissions(submitter)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_gallery ON submissions(approved, ai_score, block_time)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return nil, err
		}
	}

	return s.db, nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) DoesDatabaseExist() bool {
	// SQLite creates the file on connect, so a successful ping is enough.
	err := s.db.Ping()
	return err == nil
}

func (s *SQLiteDatabase) UpsertSubmission(sub *Submission) error {
	if sub == nil || sub.RequestID == "" {
		return errors.New("submission request id is required")
	}
	status := sub.Status
	if status == "" {
		status = StatusCreated
	}
	now := time.Now().UnixMilli()

	_, err := s.db.Exec(`INSERT INTO submissions (
			request_id, submitter, image_url, ipfs_hash, ai_score, approved, total_votes,
			block_time, status, rewarded, reward_wei, submit_tx, score_tx, reward_tx,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			submitter   = excluded.submitter,
			image_url   = excluded.image_url,
			ipfs_hash   = CASE WHEN excluded.ipfs_hash != '' THEN excluded.ipfs_hash ELSE submissions.ipfs_hash END,
			ai_score    = MAX(submissions.ai_score, excluded.ai_score),
			approved    = MAX(submissions.approved, excluded.approved),
			total_votes = MAX(submissions.total_votes, excluded.total_votes),
			block_time  = CASE WHEN excluded.block_time > 0 THEN excluded.block_time ELSE submissions.block_time END,
			status      = CASE WHEN submissions.status = 'created' THEN excluded.status ELSE submissions.status END,
			submit_tx   = CASE WHEN excluded.submit_tx != '' THEN excluded.submit_tx ELSE submissions.submit_tx END,
			score_tx    = CASE WHEN excluded.score_tx != '' THEN excluded.score_tx ELSE submissions.score_tx END,
			updated_at  = excluded.updated_at`,
		strings.ToLower(sub.RequestID), strings.ToLower(sub.Submitter), sub.ImageURL, sub.IPFSHash,
		sub.AIScore, sub.Approved, sub.TotalVotes, sub.Timestamp, string(status),
		sub.Rewarded, sub.RewardWei, sub.SubmitTxHash, sub.ScoreTxHash, sub.RewardTxHash,
		now, now)
	return err
}

func (s *SQLiteDatabase) SetScore(requestID string, score int, approved bool, txHash string) error {
	res, err := s.db.Exec(`UPDATE submissions
		SET ai_score = ?, approved = ?, score_tx = ?, status = ?, failure_reason = '', updated_at = ?
		WHERE request_id = ? AND status IN ('created', 'failed') AND score_tx = ''`,
		score, approved, txHash, string(StatusScored), time.Now().UnixMilli(), strings.ToLower(requestID))
	if err != nil {
		return err
	}
	return s.checkTransition(res, requestID, ErrAlreadyScored)
}

func (s *SQLiteDatabase) SetReward(requestID string, amountWei string, txHash string) error {
	res, err := s.db.Exec(`UPDATE submissions
		SET rewarded = 1, reward_wei = ?, reward_tx = ?, status = ?, updated_at = ?
		WHERE request_id = ?`,
		amountWei, txHash, string(StatusRewarded), time.Now().UnixMilli(), strings.ToLower(requestID))
	if err != nil {
		return err
	}
	return s.checkTransition(res, requestID, nil)
}

func (s *SQLiteDatabase) SetUnrewarded(requestID string) error {
	res, err := s.db.Exec(`UPDATE submissions SET status = ?, updated_at = ?
		WHERE request_id = ? AND rewarded = 0`,
		string(StatusUnrewarded), time.Now().UnixMilli(), strings.ToLower(requestID))
	if err != nil {
		return err
	}
	return s.checkTransition(res, requestID, nil)
}

func (s *SQLiteDatabase) SetTotalVotes(imageURL string, votes int) error {
	_, err := s.db.Exec(`UPDATE submissions SET total_votes = MAX(total_votes, ?), updated_at = ?
		WHERE image_url = ?`,
		votes, time.Now().UnixMilli(), imageURL)
	return err
}

func (s *SQLiteDatabase) SetFailed(requestID string, reason string) error {
	res, err := s.db.Exec(`UPDATE submissions SET status = ?, failure_reason = ?, updated_at = ?
		WHERE request_id = ? AND status IN ('created', 'scored', 'failed')`,
		string(StatusFailed), reason, time.Now().UnixMilli(), strings.ToLower(requestID))
	if err != nil {
		return err
	}
	return s.checkTransition(res, requestID, nil)
}

// checkTransition turns a zero-row update into ErrSubmissionNotFound, or into
// conflict when the row exists but was in the wrong state.
func (s *SQLiteDatabase) checkTransition(res sql.Result, requestID string, conflict error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	existing, err := s.GetSubmission(requestID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %s", ErrSubmissionNotFound, requestID)
	}
	return conflict
}

const submissionColumns = `request_id, submitter, image_url, ipfs_hash, ai_score, approved, total_votes,
	block_time, status, failure_reason, rewarded, reward_wei, submit_tx, score_tx, reward_tx,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*Submission, error) {
	var sub Submission
	var status string
	var createdAt, updatedAt int64
	if err := row.Scan(&sub.RequestID, &sub.Submitter, &sub.ImageURL, &sub.IPFSHash, &sub.AIScore,
		&sub.Approved, &sub.TotalVotes, &sub.Timestamp, &status, &sub.FailureReason, &sub.Rewarded,
		&sub.RewardWei, &sub.SubmitTxHash, &sub.ScoreTxHash, &sub.RewardTxHash,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sub.Status = SubmissionStatus(status)
	sub.CreatedAt = time.UnixMilli(createdAt)
	sub.UpdatedAt = time.UnixMilli(updatedAt)
	return &sub, nil
}

func (s *SQLiteDatabase) getOne(query string, args ...any) (*Submission, error) {
	sub, err := scanSubmission(s.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SQLiteDatabase) list(query string, args ...any) ([]*Submission, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as we're already returning an error from the function
	}()

	submissions := []*Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, sub)
	}
	return submissions, rows.Err()
}

func (s *SQLiteDatabase) GetSubmission(requestID string) (*Submission, error) {
	return s.getOne("SELECT "+submissionColumns+" FROM submissions WHERE request_id = ?", strings.ToLower(requestID))
}

// GetSubmissionByImageURL returns the newest submission for the URL.
func (s *SQLiteDatabase) GetSubmissionByImageURL(imageURL string) (*Submission, error) {
	return s.getOne("SELECT "+submissionColumns+" FROM submissions WHERE image_url = ? ORDER BY block_time DESC LIMIT 1", imageURL)
}

const galleryWhere = `WHERE approved = 1 AND status IN ('scored', 'rewarded', 'unrewarded') AND ai_score >= ?`

func (s *SQLiteDatabase) ListGallery(minScore, limit, offset int) ([]*Submission, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	return s.list("SELECT "+submissionColumns+" FROM submissions "+galleryWhere+
		" ORDER BY block_time DESC, request_id ASC LIMIT ? OFFSET ?", minScore, limit, offset)
}

func (s *SQLiteDatabase) CountGallery(minScore int) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM submissions "+galleryWhere, minScore).Scan(&n)
	return n, err
}

func (s *SQLiteDatabase) ListByStatus(status SubmissionStatus, limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.list("SELECT "+submissionColumns+" FROM submissions WHERE status = ? ORDER BY created_at ASC LIMIT ?",
		string(status), limit)
}

func (s *SQLiteDatabase) ListAwaitingReward(limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.list("SELECT "+submissionColumns+" FROM submissions"+
		" WHERE status = 'scored' AND approved = 1 AND rewarded = 0 AND reward_tx = ''"+
		" ORDER BY created_at ASC LIMIT ?", limit)
}

func (s *SQLiteDatabase) ListBySubmitter(address string) ([]*Submission, error) {
	return s.list("SELECT "+submissionColumns+" FROM submissions WHERE submitter = ? ORDER BY block_time DESC",
		strings.ToLower(address))
}
