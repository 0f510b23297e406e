package database

import (
	"errors"
	"time"
)

type SubmissionStatus string

const (
	StatusCreated    SubmissionStatus = "created"
	StatusScored     SubmissionStatus = "scored"
	StatusRewarded   SubmissionStatus = "rewarded"
	StatusUnrewarded SubmissionStatus = "unrewarded"
	StatusFailed     SubmissionStatus = "failed"
)

var (
	ErrAlreadyScored      = errors.New("submission already scored")
	ErrSubmissionNotFound = errors.New("submission not found")
)

// Submission is the indexed view of a contest entry. RequestID is the
// bytes32 id assigned by the contract, hex encoded.
type Submission struct {
	RequestID     string           `json:"requestId"`
	Submitter     string           `json:"submitter"`
	ImageURL      string           `json:"imageUrl"`
	IPFSHash      string           `json:"ipfsHash"`
	AIScore       int              `json:"aiScore"`
	Approved      bool             `json:"approved"`
	TotalVotes    int              `json:"totalVotes"`
	Timestamp     int64            `json:"timestamp"`
	Status        SubmissionStatus `json:"status"`
	FailureReason string           `json:"failureReason,omitempty"`
	Rewarded      bool             `json:"rewarded"`
	RewardWei     string           `json:"rewardWei,omitempty"`
	SubmitTxHash  string           `json:"submitTxHash,omitempty"`
	ScoreTxHash   string           `json:"scoreTxHash,omitempty"`
	RewardTxHash  string           `json:"rewardTxHash,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// IsScored reports whether the oracle already produced a score.
func (s *Submission) IsScored() bool {
	switch s.Status {
	case StatusScored, StatusRewarded, StatusUnrewarded:
		return true
	}
	return s.ScoreTxHash != ""
}

// IsFinished reports whether the reward step has run.
func (s *Submission) IsFinished() bool {
	return s.Status == StatusRewarded || s.Status == StatusUnrewarded
}
