package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type SubmissionCreated struct {
	RequestID common.Hash
	Submitter common.Address
	ImageURL  string
	IPFSHash  string
	Raw       types.Log
}

type SubmissionScored struct {
	RequestID common.Hash
	Submitter common.Address
	ImageURL  string
	Score     uint8
	Raw       types.Log
}

type VoteCast struct {
	Voter    common.Address
	ImageURL string
	Score    uint8
	Raw      types.Log
}

type RewardDistributed struct {
	Recipient common.Address
	Amount    *big.Int
	ImageURL  string
	Raw       types.Log
}

// Field names below follow the ABI argument names in camel case, which is
// what abi.ParseTopics and UnpackIntoInterface match on.
type submissionCreatedLog struct {
	RequestId [32]byte
	Submitter common.Address
	ImageUrl  string
	IpfsHash  string
}

type submissionScoredLog struct {
	RequestId [32]byte
	Submitter common.Address
	ImageUrl  string
	AiScore   uint8
}

type voteCastLog struct {
	Voter    common.Address
	ImageUrl string
	Score    uint8
}

type rewardDistributedLog struct {
	Recipient common.Address
	Amount    *big.Int
	ImageUrl  string
}

// unpackLog decodes the data and indexed topics of log into out.
func unpackLog(c *abi.ABI, out interface{}, event string, log types.Log) error {
	ev, ok := c.Events[event]
	if !ok {
		return fmt.Errorf("unknown event %s", event)
	}
	if len(log.Topics) == 0 || log.Topics[0] != ev.ID {
		return fmt.Errorf("event signature mismatch: not a %s log", event)
	}
	if len(log.Data) > 0 {
		if err := c.UnpackIntoInterface(out, event, log.Data); err != nil {
			return fmt.Errorf("failed to unpack %s data: %w", event, err)
		}
	}
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return fmt.Errorf("%s log has %d topics, want %d", event, len(log.Topics)-1, len(indexed))
	}
	return abi.ParseTopics(out, indexed, log.Topics[1:])
}

func DecodeSubmissionCreated(log types.Log) (*SubmissionCreated, error) {
	var raw submissionCreatedLog
	if err := unpackLog(&ContestABI, &raw, EventSubmissionCreated, log); err != nil {
		return nil, err
	}
	return &SubmissionCreated{
		RequestID: common.Hash(raw.RequestId),
		Submitter: raw.Submitter,
		ImageURL:  raw.ImageUrl,
		IPFSHash:  raw.IpfsHash,
		Raw:       log,
	}, nil
}

func DecodeSubmissionScored(log types.Log) (*SubmissionScored, error) {
	var raw submissionScoredLog
	if err := unpackLog(&ContestABI, &raw, EventSubmissionScored, log); err != nil {
		return nil, err
	}
	return &SubmissionScored{
		RequestID: common.Hash(raw.RequestId),
		Submitter: raw.Submitter,
		ImageURL:  raw.ImageUrl,
		Score:     raw.AiScore,
		Raw:       log,
	}, nil
}

func DecodeVoteCast(log types.Log) (*VoteCast, error) {
	var raw voteCastLog
	if err := unpackLog(&ContestABI, &raw, EventVoteCast, log); err != nil {
		return nil, err
	}
	return &VoteCast{Voter: raw.Voter, ImageURL: raw.ImageUrl, Score: raw.Score, Raw: log}, nil
}

func DecodeRewardDistributed(log types.Log) (*RewardDistributed, error) {
	var raw rewardDistributedLog
	if err := unpackLog(&ContestABI, &raw, EventRewardDistributed, log); err != nil {
		return nil, err
	}
	return &RewardDistributed{Recipient: raw.Recipient, Amount: raw.Amount, ImageURL: raw.ImageUrl, Raw: log}, nil
}

// logsWithTopic keeps the logs emitted by addr whose first topic is topic.
func logsWithTopic(logs []*types.Log, addr common.Address, topic common.Hash) []types.Log {
	var out []types.Log
	for _, l := range logs {
		if l == nil || l.Address != addr || len(l.Topics) == 0 || l.Topics[0] != topic {
			continue
		}
		out = append(out, *l)
	}
	return out
}
