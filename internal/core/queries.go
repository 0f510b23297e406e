package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/backend/database"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/chain"
	"golang.org/x/sync/errgroup"
)

// Gallery returns one page (1-based) of approved, scored submissions, newest first.
func (service *CoreService) Gallery(page int) (*GalleryPage, error) {
	if page < 1 {
		page = 1
	}
	perPage := service.config.Gallery.ItemsPerPage
	minScore := service.config.Scoring.MinScoreThreshold

	total, err := service.databaseService.CountGallery(minScore)
	if err != nil {
		return nil, fmt.Errorf("failed to count gallery: %w", err)
	}
	subs, err := service.databaseService.ListGallery(minScore, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("failed to list gallery: %w", err)
	}
	items := make([]GalleryItem, 0, len(subs))
	for _, sub := range subs {
		items = append(items, service.galleryItem(sub))
	}
	return &GalleryPage{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
	}, nil
}

// IndexedSubmission looks a submission up in the local index.
func (service *CoreService) IndexedSubmission(requestID string) (*GalleryItem, error) {
	if _, err := chain.ParseRequestID(requestID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	sub, err := service.databaseService.GetSubmission(requestID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("%w: submission %s", ErrNotFound, requestID)
	}
	item := service.galleryItem(sub)
	return &item, nil
}

// SubmitterHistory lists indexed submissions of one address.
func (service *CoreService) SubmitterHistory(address string) ([]*database.Submission, error) {
	if _, err := chain.ParseAddress(address); err != nil {
		return nil, err
	}
	return service.databaseService.ListBySubmitter(address)
}

// ChainSubmission reads a submission straight from the contract.
func (service *CoreService) ChainSubmission(ctx context.Context, imageURL string) (*ChainSubmissionView, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, fmt.Errorf("%w: imageUrl is required", ErrInvalidInput)
	}
	sub, err := service.chain.GetSubmission(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	if sub.Timestamp == 0 && sub.ImageURL == "" {
		return nil, fmt.Errorf("%w: submission %s", ErrNotFound, imageURL)
	}
	return service.chainSubmissionView(sub), nil
}

func (service *CoreService) SubmissionVotes(ctx context.Context, imageURL string) ([]VoteView, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, fmt.Errorf("%w: imageUrl is required", ErrInvalidInput)
	}
	votes, err := service.chain.GetSubmissionVotes(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	out := make([]VoteView, 0, len(votes))
	for _, v := range votes {
		out = append(out, VoteView{Voter: v.Voter.Hex(), Score: int(v.Score), Timestamp: v.Timestamp})
	}
	return out, nil
}

func (service *CoreService) UserStats(ctx context.Context, address string) (*UserStatsView, error) {
	user, err := chain.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	stats, err := service.chain.GetUserStats(ctx, user)
	if err != nil {
		return nil, err
	}
	view := &UserStatsView{
		Address:          user.Hex(),
		SubmissionsCount: stats.SubmissionsCount,
		TotalRewards:     chain.FormatEther(stats.TotalRewards),
		AverageScore:     stats.AverageScore,
	}
	// the token is optional; a missing balance does not fail the stats
	if balance, err := service.chain.TokenBalance(ctx, user); err == nil {
		view.TokenBalance = chain.FormatEther(balance)
	}
	return view, nil
}

func (service *CoreService) UserSubmissions(ctx context.Context, address string) ([]string, error) {
	user, err := chain.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	return service.chain.GetUserSubmissions(ctx, user)
}

// Stats gathers the contest counters, the token info and the contract
// balance concurrently. Token info is omitted when no token is configured.
func (service *CoreService) Stats(ctx context.Context) (*StatsView, error) {
	var (
		stats   *chain.ContractStats
		token   *chain.TokenInfo
		balance string
		active  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = service.chain.ContractStats(gctx)
		return err
	})
	g.Go(func() error {
		b, err := service.chain.ContractBalance(gctx)
		if err != nil {
			return err
		}
		balance = chain.FormatEther(b)
		return nil
	})
	g.Go(func() error {
		urls, err := service.chain.GetActiveSubmissions(gctx)
		if err != nil {
			return err
		}
		active = len(urls)
		return nil
	})
	g.Go(func() error {
		info, err := service.chain.TokenInfo(gctx)
		if err == nil {
			token = info
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view := &StatsView{
		TotalSubmissions:        stats.TotalSubmissions,
		TotalRewardsDistributed: chain.FormatEther(stats.TotalRewardsDistributed),
		TotalVotesCast:          stats.TotalVotesCast,
		BaseRewardAmount:        chain.FormatEther(stats.BaseRewardAmount),
		BonusMultiplier:         stats.BonusMultiplier,
		ContractBalance:         balance,
		OracleFee:               chain.FormatEther(service.oracleFee),
		ActiveSubmissions:       active,
	}
	if token != nil {
		view.Token = tokenView(token)
	}
	return view, nil
}

// Token reads the reward token metadata and supply.
func (service *CoreService) Token(ctx context.Context) (*TokenView, error) {
	info, err := service.chain.TokenInfo(ctx)
	if err != nil {
		return nil, err
	}
	return tokenView(info), nil
}

func tokenView(token *chain.TokenInfo) *TokenView {
	return &TokenView{
		Name:        token.Name,
		Symbol:      token.Symbol,
		Decimals:    token.Decimals,
		TotalSupply: chain.FormatEther(token.TotalSupply),
		MaxSupply:   chain.FormatEther(token.MaxSupply),
	}
}
