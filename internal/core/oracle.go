package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/backend/database"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/chain"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/common"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/notify"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/scoring"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const recoverBatch = 100

// HandleSubmissionCreated is the oracle: it records a new submission, scores
// the pinned image, writes the score on chain and triggers the reward for
// approved entries.
func (service *CoreService) HandleSubmissionCreated(ctx context.Context, l types.Log) error {
	ev, err := chain.DecodeSubmissionCreated(l)
	if err != nil {
		return err
	}
	requestID := ev.RequestID.Hex()

	existing, err := service.databaseService.GetSubmission(requestID)
	if err != nil {
		return fmt.Errorf("failed to load submission %s: %w", requestID, err)
	}
	if existing != nil && existing.IsFinished() {
		slog.Debug("submission already finished, skipping", "request_id", requestID)
		return nil
	}

	record := &database.Submission{
		RequestID:    requestID,
		Submitter:    ev.Submitter.Hex(),
		ImageURL:     ev.ImageURL,
		IPFSHash:     ev.IPFSHash,
		Timestamp:    service.logTime(ctx, l),
		Status:       database.StatusCreated,
		SubmitTxHash: l.TxHash.Hex(),
	}
	if err := service.databaseService.UpsertSubmission(record); err != nil {
		return fmt.Errorf("failed to record submission %s: %w", requestID, err)
	}
	slog.Info("submission created", "request_id", requestID, "submitter", common.ShortAddress(record.Submitter), "image_url", record.ImageURL)

	return service.process(ctx, requestID)
}

// process drives one record through score and reward. The record is read
// under the oracle lock; a scored record resumes at the reward step.
func (service *CoreService) process(ctx context.Context, id string) error {
	service.oracleMu.Lock()
	defer service.oracleMu.Unlock()

	record, err := service.databaseService.GetSubmission(id)
	if err != nil {
		return fmt.Errorf("failed to load submission %s: %w", id, err)
	}
	if record == nil {
		return fmt.Errorf("%w: submission %s", ErrNotFound, id)
	}
	if record.IsFinished() {
		return nil
	}
	requestID, err := chain.ParseRequestID(record.RequestID)
	if err != nil {
		return err
	}

	_, approved := record.AIScore, record.Approved
	if !record.IsScored() {
		onChain, err := service.chain.GetSubmission(ctx, record.ImageURL)
		if err == nil && onChain.AIScore > 0 {
			_, approved, err = service.adoptScore(record, int(onChain.AIScore))
			if err != nil {
				return err
			}
		} else {
			_, approved, err = service.score(ctx, record, requestID)
			if err != nil {
				return err
			}
		}
	}

	if !approved {
		return nil
	}
	return service.reward(ctx, record)
}

// adoptScore records a score some other oracle run already wrote on chain.
func (service *CoreService) adoptScore(record *database.Submission, score int) (int, bool, error) {
	approved := scoring.Approved(score, service.config.Scoring.MinScoreThreshold)
	err := service.databaseService.SetScore(record.RequestID, score, approved, "")
	if err != nil && !errors.Is(err, database.ErrAlreadyScored) {
		return 0, false, fmt.Errorf("failed to record score for %s: %w", record.RequestID, err)
	}
	slog.Info("submission already scored on chain", "request_id", record.RequestID, "score", score, "approved", approved)
	return score, approved, nil
}

func (service *CoreService) score(ctx context.Context, record *database.Submission, requestID gethcommon.Hash) (int, bool, error) {
	result, err := service.scoreImage(ctx, record)
	if err != nil {
		return 0, false, service.fail(ctx, record, "scoring failed", err)
	}
	score := result.Score
	approved := scoring.Approved(score, service.config.Scoring.MinScoreThreshold)

	tx, err := service.chain.ScoreSubmission(ctx, requestID, uint8(score), approved)
	if err != nil {
		return 0, false, service.fail(ctx, record, "score transaction failed", err)
	}
	txHash := tx.TxHash.Hex()
	// the gallery watcher may index our own SubmissionScored event first
	err = service.databaseService.SetScore(record.RequestID, score, approved, txHash)
	if err != nil && !errors.Is(err, database.ErrAlreadyScored) {
		return 0, false, fmt.Errorf("failed to record score for %s: %w", record.RequestID, err)
	}
	slog.Info("submission scored",
		"request_id", record.RequestID,
		"score", score,
		"approved", approved,
		"feedback", result.Feedback,
		"tx", txHash)
	service.notify(ctx, notify.Event{
		Kind:        notify.KindScored,
		RequestID:   record.RequestID,
		Submitter:   common.ShortAddress(record.Submitter),
		ImageURL:    service.ipfs.ToHTTP(record.ImageURL),
		Score:       score,
		Approved:    approved,
		TxHash:      txHash,
		ExplorerURL: service.chain.ExplorerTxURL(txHash),
	})
	return score, approved, nil
}

func (service *CoreService) scoreImage(ctx context.Context, record *database.Submission) (scoring.Result, error) {
	ref := record.IPFSHash
	if ref == "" {
		ref = record.ImageURL
	}
	data, err := service.ipfs.Fetch(ctx, ref)
	if err != nil {
		return scoring.Result{}, fmt.Errorf("failed to fetch image %s: %w", ref, err)
	}
	return service.scorer.Score(ctx, data)
}

func (service *CoreService) reward(ctx context.Context, record *database.Submission) error {
	if onChain, err := service.chain.GetSubmission(ctx, record.ImageURL); err == nil && onChain.Rewarded {
		amount := "0"
		if onChain.RewardAmount != nil {
			amount = onChain.RewardAmount.String()
		}
		slog.Info("submission already rewarded on chain", "request_id", record.RequestID, "amount_wei", amount)
		return service.databaseService.SetReward(record.RequestID, amount, "")
	}

	res, err := service.chain.DistributeReward(ctx, record.ImageURL)
	if err != nil {
		return service.fail(ctx, record, "reward transaction failed", err)
	}
	txHash := res.TxHash.Hex()
	if !res.Rewarded {
		slog.Info("submission not rewarded", "request_id", record.RequestID, "tx", txHash)
		return service.databaseService.SetUnrewarded(record.RequestID)
	}
	if err := service.databaseService.SetReward(record.RequestID, res.Amount.String(), txHash); err != nil {
		return fmt.Errorf("failed to record reward for %s: %w", record.RequestID, err)
	}
	amount := chain.FormatEther(res.Amount) + " DWL"
	slog.Info("reward distributed", "request_id", record.RequestID, "recipient", res.Recipient.Hex(), "amount", amount, "tx", txHash)
	service.notify(ctx, notify.Event{
		Kind:        notify.KindRewarded,
		RequestID:   record.RequestID,
		Submitter:   common.ShortAddress(res.Recipient.Hex()),
		ImageURL:    service.ipfs.ToHTTP(record.ImageURL),
		Amount:      amount,
		TxHash:      txHash,
		ExplorerURL: service.chain.ExplorerTxURL(txHash),
	})
	return nil
}

func (service *CoreService) fail(ctx context.Context, record *database.Submission, step string, cause error) error {
	reason := fmt.Sprintf("%s: %v", step, cause)
	if err := service.databaseService.SetFailed(record.RequestID, reason); err != nil {
		slog.Error("failed to mark submission failed", "request_id", record.RequestID, "error", err)
	}
	service.notify(ctx, notify.Event{
		Kind:      notify.KindFailed,
		RequestID: record.RequestID,
		Submitter: common.ShortAddress(record.Submitter),
		Reason:    reason,
	})
	return fmt.Errorf("submission %s: %s: %w", record.RequestID, step, cause)
}

// HandleSubmissionScored indexes a scored submission for the gallery.
func (service *CoreService) HandleSubmissionScored(ctx context.Context, l types.Log) error {
	ev, err := chain.DecodeSubmissionScored(l)
	if err != nil {
		return err
	}
	return service.indexScore(ctx, ev)
}

func (service *CoreService) indexScore(ctx context.Context, ev *chain.SubmissionScored) error {
	requestID := ev.RequestID.Hex()
	score := int(ev.Score)
	approved := scoring.Approved(score, service.config.Scoring.MinScoreThreshold)

	record := &database.Submission{
		RequestID: requestID,
		Submitter: ev.Submitter.Hex(),
		ImageURL:  ev.ImageURL,
		Timestamp: service.logTime(ctx, ev.Raw),
		Status:    database.StatusCreated,
	}
	if err := service.databaseService.UpsertSubmission(record); err != nil {
		return fmt.Errorf("failed to index submission %s: %w", requestID, err)
	}
	err := service.databaseService.SetScore(requestID, score, approved, ev.Raw.TxHash.Hex())
	if err != nil && !errors.Is(err, database.ErrAlreadyScored) {
		return fmt.Errorf("failed to index score for %s: %w", requestID, err)
	}
	slog.Debug("indexed scored submission", "request_id", requestID, "score", score, "approved", approved)
	return nil
}

// HandleVoteCast refreshes the indexed vote count of the voted submission
// from the contract, so replayed logs never double count.
func (service *CoreService) HandleVoteCast(ctx context.Context, l types.Log) error {
	ev, err := chain.DecodeVoteCast(l)
	if err != nil {
		return err
	}
	sub, err := service.chain.GetSubmission(ctx, ev.ImageURL)
	if err != nil {
		return fmt.Errorf("failed to read votes of %s: %w", ev.ImageURL, err)
	}
	if err := service.databaseService.SetTotalVotes(ev.ImageURL, int(sub.TotalVotes)); err != nil {
		return fmt.Errorf("failed to index votes of %s: %w", ev.ImageURL, err)
	}
	slog.Debug("indexed vote", "image_url", ev.ImageURL, "voter", common.ShortAddress(ev.Voter.Hex()), "score", ev.Score, "total_votes", sub.TotalVotes)
	return nil
}

// ProcessScore has the contract finalize the AI score of requestID and
// indexes the resulting SubmissionScored event.
func (service *CoreService) ProcessScore(ctx context.Context, requestID string) (*database.Submission, error) {
	if !service.chain.CanTransact() {
		return nil, chain.ErrReadOnly
	}
	id, err := chain.ParseRequestID(requestID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	ev, err := service.chain.ProcessAIScore(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := service.indexScore(ctx, ev); err != nil {
		return nil, err
	}
	slog.Info("score processed", "request_id", ev.RequestID.Hex(), "score", ev.Score, "tx", ev.Raw.TxHash.Hex())
	return service.databaseService.GetSubmission(ev.RequestID.Hex())
}

// RecoverPending re-drives submissions left behind by a restart: created
// records still waiting for a score and approved records still waiting for
// their reward.
func (service *CoreService) RecoverPending(ctx context.Context) error {
	if !service.chain.CanTransact() {
		return nil
	}
	pending, err := service.databaseService.ListByStatus(database.StatusCreated, recoverBatch)
	if err != nil {
		return fmt.Errorf("failed to list pending submissions: %w", err)
	}
	unrewarded, err := service.databaseService.ListAwaitingReward(recoverBatch)
	if err != nil {
		return fmt.Errorf("failed to list submissions awaiting reward: %w", err)
	}
	pending = append(pending, unrewarded...)
	if len(pending) > 0 {
		slog.Info("recovering pending submissions", "count", len(pending))
	}
	for _, record := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := service.process(ctx, record.RequestID); err != nil {
			slog.Error("failed to recover submission", "request_id", record.RequestID, "error", err)
		}
	}
	return nil
}

// Rescore re-runs the oracle for one indexed submission. Scored records
// only retry the reward step.
func (service *CoreService) Rescore(ctx context.Context, requestID string) (*database.Submission, error) {
	if !service.chain.CanTransact() {
		return nil, chain.ErrReadOnly
	}
	if _, err := chain.ParseRequestID(requestID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	record, err := service.databaseService.GetSubmission(requestID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: submission %s", ErrNotFound, requestID)
	}
	if record.IsFinished() {
		return record, nil
	}
	if err := service.process(ctx, record.RequestID); err != nil {
		return nil, err
	}
	return service.databaseService.GetSubmission(requestID)
}

// DistributeRewards triggers batch reward distribution for imageURLs.
func (service *CoreService) DistributeRewards(ctx context.Context, imageURLs []string) (*RewardsResult, error) {
	urls := make([]string, 0, len(imageURLs))
	for _, u := range imageURLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: at least one image url is required", ErrInvalidInput)
	}
	res, err := service.chain.BatchDistributeRewards(ctx, urls)
	if err != nil {
		return nil, err
	}
	out := &RewardsResult{
		TxHash:      res.TxHash.Hex(),
		ExplorerURL: service.chain.ExplorerTxURL(res.TxHash.Hex()),
		Rewards:     make([]RewardView, 0, len(res.Rewards)),
	}
	for _, r := range res.Rewards {
		out.Rewards = append(out.Rewards, RewardView{
			Recipient: r.Recipient.Hex(),
			Amount:    chain.FormatEther(r.Amount),
			AmountWei: r.Amount.String(),
			ImageURL:  r.ImageURL,
		})
		if indexed, err := service.databaseService.GetSubmissionByImageURL(r.ImageURL); err == nil && indexed != nil {
			if err := service.databaseService.SetReward(indexed.RequestID, r.Amount.String(), out.TxHash); err != nil {
				slog.Warn("failed to record batch reward", "request_id", indexed.RequestID, "error", err)
			}
		}
	}
	slog.Info("batch rewards distributed", "requested", len(urls), "rewarded", len(out.Rewards), "tx", out.TxHash)
	return out, nil
}

// WaitForScore polls the contract until imageURL carries a non-zero AI score.
func (service *CoreService) WaitForScore(ctx context.Context, imageURL string) (*ChainSubmissionView, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, fmt.Errorf("%w: image url is required", ErrInvalidInput)
	}
	attempts := service.config.Scoring.PollAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		sub, err := service.chain.GetSubmission(ctx, imageURL)
		if err != nil {
			slog.Debug("score poll failed", "attempt", attempt, "error", err)
		} else if sub.AIScore > 0 {
			return service.chainSubmissionView(sub), nil
		}
		if attempt == attempts {
			break
		}
		if err := service.sleep(ctx, service.config.Scoring.PollInterval); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrScoreTimeout, attempts)
}
