package core

import (
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/backend/database"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/chain"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type Upload struct {
	ContentType string
	Data        []byte
}

type UploadResult struct {
	IPFSHash string `json:"ipfsHash"`
	ImageURL string `json:"imageUrl"`
	Size     int    `json:"size"`
}

type ScorePreview struct {
	Success   bool   `json:"success"`
	Score     int    `json:"score"`
	Feedback  string `json:"feedback"`
	Approved  bool   `json:"approved"`
	IPFSHash  string `json:"ipfsHash"`
	ImageURL  string `json:"imageUrl"`
	Timestamp int64  `json:"timestamp"`
}

// TxRequest is an unsigned transaction for the user's wallet.
type TxRequest struct {
	To    string         `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value *hexutil.Big   `json:"value"`
	Gas   hexutil.Uint64 `json:"gas,omitempty"`
}

type GalleryItem struct {
	*database.Submission
	DisplayURL     string `json:"displayUrl"`
	SubmitterShort string `json:"submitterShort"`
	Date           string `json:"date"`
}

type GalleryPage struct {
	Items      []GalleryItem `json:"items"`
	Page       int           `json:"page"`
	PerPage    int           `json:"perPage"`
	Total      int           `json:"total"`
	TotalPages int           `json:"totalPages"`
}

type ChainSubmissionView struct {
	Submitter      string `json:"submitter"`
	SubmitterShort string `json:"submitterShort"`
	ImageURL       string `json:"imageUrl"`
	DisplayURL     string `json:"displayUrl"`
	IPFSHash       string `json:"ipfsHash"`
	AIScore        int    `json:"aiScore"`
	TotalVotes     uint64 `json:"totalVotes"`
	Timestamp      uint64 `json:"timestamp"`
	Date           string `json:"date"`
	Status         int    `json:"status"`
	Rewarded       bool   `json:"rewarded"`
	RewardAmount   string `json:"rewardAmount"`
}

type VoteView struct {
	Voter     string `json:"voter"`
	Score     int    `json:"score"`
	Timestamp uint64 `json:"timestamp"`
}

type UserStatsView struct {
	Address          string `json:"address"`
	SubmissionsCount uint64 `json:"submissionsCount"`
	TotalRewards     string `json:"totalRewards"`
	AverageScore     uint64 `json:"averageScore"`
	TokenBalance     string `json:"tokenBalance,omitempty"`
}

type TokenView struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"totalSupply"`
	MaxSupply   string `json:"maxSupply"`
}

type StatsView struct {
	TotalSubmissions        uint64     `json:"totalSubmissions"`
	TotalRewardsDistributed string     `json:"totalRewardsDistributed"`
	TotalVotesCast          uint64     `json:"totalVotesCast"`
	BaseRewardAmount        string     `json:"baseRewardAmount"`
	BonusMultiplier         uint64     `json:"bonusMultiplier"`
	ContractBalance         string     `json:"contractBalance"`
	OracleFee               string     `json:"oracleFee"`
	ActiveSubmissions       int        `json:"activeSubmissions"`
	Token                   *TokenView `json:"token,omitempty"`
}

type RewardView struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	AmountWei string `json:"amountWei"`
	ImageURL  string `json:"imageUrl"`
}

type RewardsResult struct {
	TxHash      string       `json:"txHash"`
	ExplorerURL string       `json:"explorerUrl,omitempty"`
	Rewards     []RewardView `json:"rewards"`
}

func (service *CoreService) galleryItem(sub *database.Submission) GalleryItem {
	return GalleryItem{
		Submission:     sub,
		DisplayURL:     service.ipfs.ToHTTP(sub.ImageURL),
		SubmitterShort: common.ShortAddress(sub.Submitter),
		Date:           common.FormatDateTime(sub.Timestamp),
	}
}

func (service *CoreService) chainSubmissionView(sub *chain.Submission) *ChainSubmissionView {
	return &ChainSubmissionView{
		Submitter:      sub.Submitter.Hex(),
		SubmitterShort: chain.ShortAddress(sub.Submitter),
		ImageURL:       sub.ImageURL,
		DisplayURL:     service.ipfs.ToHTTP(sub.ImageURL),
		IPFSHash:       sub.IPFSHash,
		AIScore:        int(sub.AIScore),
		TotalVotes:     sub.TotalVotes,
		Timestamp:      sub.Timestamp,
		Date:           common.FormatDateTime(int64(sub.Timestamp)),
		Status:         int(sub.Status),
		Rewarded:       sub.Rewarded,
		RewardAmount:   chain.FormatEther(sub.RewardAmount),
	}
}
