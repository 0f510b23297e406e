package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// Submission mirrors the contract's getSubmission view.
type Submission struct {
	Submitter    common.Address
	ImageURL     string
	IPFSHash     string
	AIScore      uint8
	TotalVotes   uint64
	Timestamp    uint64
	Status       uint8
	Rewarded     bool
	RewardAmount *big.Int
}

type Vote struct {
	Voter     common.Address
	Score     uint8
	Timestamp uint64
}

type UserStats struct {
	SubmissionsCount uint64
	TotalRewards     *big.Int
	AverageScore     uint64
}

type ContractStats struct {
	TotalSubmissions        uint64
	TotalRewardsDistributed *big.Int
	TotalVotesCast          uint64
	BaseRewardAmount        *big.Int
	BonusMultiplier         uint64
}

type TokenInfo struct {
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int
	MaxSupply   *big.Int
}

// Field names match the tuple components so abi.ConvertType can copy them.
type rawSubmission struct {
	Submitter    common.Address
	ImageUrl     string
	IpfsHash     string
	AiScore      uint8
	TotalVotes   *big.Int
	Timestamp    *big.Int
	Status       uint8
	Rewarded     bool
	RewardAmount *big.Int
}

type rawVote struct {
	Voter     common.Address
	Score     uint8
	Timestamp *big.Int
}

func (c *Client) call(ctx context.Context, bound *bind.BoundContract, method string, params ...interface{}) ([]interface{}, error) {
	if bound == nil {
		return nil, ErrNotConfigured
	}
	var out []interface{}
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, ClassifyError(fmt.Errorf("%s: %w", method, err))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return out, nil
}

func (c *Client) callBig(ctx context.Context, bound *bind.BoundContract, method string, params ...interface{}) (*big.Int, error) {
	out, err := c.call(ctx, bound, method, params...)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *Client) GetSubmission(ctx context.Context, imageURL string) (*Submission, error) {
	out, err := c.call(ctx, c.contestBound, "getSubmission", imageURL)
	if err != nil {
		return nil, err
	}
	raw := abi.ConvertType(out[0], new(rawSubmission)).(*rawSubmission)
	return &Submission{
		Submitter:    raw.Submitter,
		ImageURL:     raw.ImageUrl,
		IPFSHash:     raw.IpfsHash,
		AIScore:      raw.AiScore,
		TotalVotes:   uint64OrZero(raw.TotalVotes),
		Timestamp:    uint64OrZero(raw.Timestamp),
		Status:       raw.Status,
		Rewarded:     raw.Rewarded,
		RewardAmount: bigOrZero(raw.RewardAmount),
	}, nil
}

// GetActiveSubmissions returns the image URLs of submissions still open for voting.
func (c *Client) GetActiveSubmissions(ctx context.Context) ([]string, error) {
	out, err := c.call(ctx, c.contestBound, "getActiveSubmissions")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]string)).(*[]string), nil
}

func (c *Client) GetUserStats(ctx context.Context, user common.Address) (*UserStats, error) {
	out, err := c.call(ctx, c.contestBound, "getUserStats", user)
	if err != nil {
		return nil, err
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("getUserStats: expected 3 values, got %d", len(out))
	}
	return &UserStats{
		SubmissionsCount: uint64OrZero(*abi.ConvertType(out[0], new(*big.Int)).(**big.Int)),
		TotalRewards:     bigOrZero(*abi.ConvertType(out[1], new(*big.Int)).(**big.Int)),
		AverageScore:     uint64OrZero(*abi.ConvertType(out[2], new(*big.Int)).(**big.Int)),
	}, nil
}

func (c *Client) GetUserSubmissions(ctx context.Context, user common.Address) ([]string, error) {
	out, err := c.call(ctx, c.contestBound, "getUserSubmissions", user)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]string)).(*[]string), nil
}

func (c *Client) GetSubmissionVotes(ctx context.Context, imageURL string) ([]Vote, error) {
	out, err := c.call(ctx, c.contestBound, "getSubmissionVotes", imageURL)
	if err != nil {
		return nil, err
	}
	raw := *abi.ConvertType(out[0], new([]rawVote)).(*[]rawVote)
	votes := make([]Vote, 0, len(raw))
	for _, v := range raw {
		votes = append(votes, Vote{Voter: v.Voter, Score: v.Score, Timestamp: uint64OrZero(v.Timestamp)})
	}
	return votes, nil
}

// ContractStats reads the five contest counters concurrently.
func (c *Client) ContractStats(ctx context.Context) (*ContractStats, error) {
	if err := c.requireContest(); err != nil {
		return nil, err
	}
	var totalSubs, totalRewards, totalVotes, baseReward, bonus *big.Int
	g, gctx := errgroup.WithContext(ctx)
	fetch := func(method string, dst **big.Int) {
		g.Go(func() error {
			v, err := c.callBig(gctx, c.contestBound, method)
			if err != nil {
				return err
			}
			*dst = v
			return nil
		})
	}
	fetch("totalSubmissions", &totalSubs)
	fetch("totalRewardsDistributed", &totalRewards)
	fetch("totalVotesCast", &totalVotes)
	fetch("baseRewardAmount", &baseReward)
	fetch("bonusMultiplier", &bonus)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ContractStats{
		TotalSubmissions:        uint64OrZero(totalSubs),
		TotalRewardsDistributed: bigOrZero(totalRewards),
		TotalVotesCast:          uint64OrZero(totalVotes),
		BaseRewardAmount:        bigOrZero(baseReward),
		BonusMultiplier:         uint64OrZero(bonus),
	}, nil
}

func (c *Client) TokenInfo(ctx context.Context) (*TokenInfo, error) {
	if c.tokenBound == nil {
		return nil, fmt.Errorf("token: %w", ErrNotConfigured)
	}
	info := &TokenInfo{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := c.call(gctx, c.tokenBound, "name")
		if err != nil {
			return err
		}
		info.Name = *abi.ConvertType(out[0], new(string)).(*string)
		return nil
	})
	g.Go(func() error {
		out, err := c.call(gctx, c.tokenBound, "symbol")
		if err != nil {
			return err
		}
		info.Symbol = *abi.ConvertType(out[0], new(string)).(*string)
		return nil
	})
	g.Go(func() error {
		out, err := c.call(gctx, c.tokenBound, "decimals")
		if err != nil {
			return err
		}
		info.Decimals = *abi.ConvertType(out[0], new(uint8)).(*uint8)
		return nil
	})
	g.Go(func() error {
		v, err := c.callBig(gctx, c.tokenBound, "totalSupply")
		info.TotalSupply = bigOrZero(v)
		return err
	})
	g.Go(func() error {
		v, err := c.callBig(gctx, c.tokenBound, "maxSupply")
		info.MaxSupply = bigOrZero(v)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return info, nil
}

func (c *Client) TokenBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	if c.tokenBound == nil {
		return nil, fmt.Errorf("token: %w", ErrNotConfigured)
	}
	return c.callBig(ctx, c.tokenBound, "balanceOf", account)
}

// ContractBalance is the native balance held by the contest contract.
func (c *Client) ContractBalance(ctx context.Context) (*big.Int, error) {
	if err := c.requireContest(); err != nil {
		return nil, err
	}
	return c.backend.BalanceAt(ctx, c.contest, nil)
}

// BlockTime returns the unix timestamp of block number.
func (c *Client) BlockTime(ctx context.Context, number uint64) (uint64, error) {
	header, err := c.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, fmt.Errorf("failed to read block %d: %w", number, err)
	}
	return header.Time, nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func uint64OrZero(v *big.Int) uint64 {
	if v == nil || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}
