package database

import "database/sql"

type DatabaseService interface {
	CreateDatabase() (*sql.DB, error)
	DoesDatabaseExist() bool
	Close() error

	// UpsertSubmission inserts the record or refreshes the descriptive columns
	// of an existing row. Score, reward and status columns of an existing row
	// are only raised, never reset.
	UpsertSubmission(sub *Submission) error
	SetScore(requestID string, score int, approved bool, txHash string) error
	SetReward(requestID string, amountWei string, txHash string) error
	SetUnrewarded(requestID string) error
	SetFailed(requestID string, reason string) error
	// SetTotalVotes raises the vote count of every record for imageURL.
	SetTotalVotes(imageURL string, votes int) error

	GetSubmission(requestID string) (*Submission, error)
	GetSubmissionByImageURL(imageURL string) (*Submission, error)
	ListGallery(minScore, limit, offset int) ([]*Submission, error)
	CountGallery(minScore int) (int, error)
	ListByStatus(status SubmissionStatus, limit int) ([]*Submission, error)
	// ListAwaitingReward returns approved, scored records with no reward yet.
	ListAwaitingReward(limit int) ([]*Submission, error)
	ListBySubmitter(address string) ([]*Submission, error)
}
