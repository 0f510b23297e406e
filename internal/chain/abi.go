package chain

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

//go:embed abi/DiwaliLights.json
var contestABIJSON []byte

//go:embed abi/DiwaliToken.json
var tokenABIJSON []byte

var (
	ContestABI = mustParseABI("DiwaliLights", contestABIJSON)
	TokenABI   = mustParseABI("DiwaliToken", tokenABIJSON)
)

const (
	EventSubmissionCreated = "SubmissionCreated"
	EventSubmissionScored  = "SubmissionScored"
	EventVoteCast          = "VoteCast"
	EventRewardDistributed = "RewardDistributed"
)

func mustParseABI(name string, data []byte) abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		panic(fmt.Sprintf("invalid %s ABI: %v", name, err))
	}
	return parsed
}

// EventTopic returns topic[0] of a contest event.
func EventTopic(event string) common.Hash {
	return ContestABI.Events[event].ID
}
