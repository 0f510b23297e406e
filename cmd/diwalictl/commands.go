package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/backend"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/core"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/scoring"

	"github.com/spf13/cobra"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withService runs fn against a fully wired core service.
func (s *settings) withService(cmd *cobra.Command, fn func(ctx context.Context, service *core.CoreService) (any, error)) error {
	config, err := s.serviceConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	service, err := core.Build(ctx, config)
	if err != nil {
		return err
	}
	defer service.Close()

	out, err := fn(ctx, service)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func statsCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show contest counters, balances and token info",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withService(cmd, func(ctx context.Context, service *core.CoreService) (any, error) {
				return service.Stats(ctx)
			})
		},
	}
}

func tokenCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Show the DWL token metadata and supply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withService(cmd, func(ctx context.Context, service *core.CoreService) (any, error) {
				return service.Token(ctx)
			})
		},
	}
}

func submissionCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "submission <imageUrl>",
		Short: "Show the on-chain record of a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withService(cmd, func(ctx context.Context, service *core.CoreService) (any, error) {
				return service.ChainSubmission(ctx, args[0])
			})
		},
	}
}

func votesCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "votes <imageUrl>",
		Short: "List the community votes of a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withService(cmd, func(ctx context.Context, service *core.CoreService) (any, error) {
				return service.SubmissionVotes(ctx, args[0])
			})
		},
	}
}

type userOutput struct {
	Stats       *core.UserStatsView `json:"stats"`
	Submissions []string            `json:"submissions"`
}

func userCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "user <address>",
		Short: "Show the stats and submissions of a participant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withService(cmd, func(ctx context.Context, service *core.CoreService) (any, error) {
				stats, err := service.UserStats(ctx, args[0])
				if err != nil {
					return nil, err
				}
				urls, err := service.UserSubmissions(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return &userOutput{Stats: stats, Submissions: urls}, nil
			})
		},
	}
}

func txCmd(s *settings) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "tx <hash>",
		Short: "Show the status of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withService(cmd, func(ctx context.Context, service *core.CoreService) (any, error) {
				if wait {
					return service.WaitForTransaction(ctx, args[0])
				}
				return service.TransactionStatus(ctx, args[0])
			})
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the transaction is confirmed or reverted")
	return cmd
}

func waitScoreCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "wait-score <imageUrl>",
		Short: "Poll until the oracle has scored a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withService(cmd, func(ctx context.Context, service *core.CoreService) (any, error) {
				return service.WaitForScore(ctx, args[0])
			})
		},
	}
}

func distributeCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "distribute <imageUrl>...",
		Short: "Distribute rewards for approved submissions in one transaction",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withService(cmd, func(ctx context.Context, service *core.CoreService) (any, error) {
				return service.DistributeRewards(ctx, args)
			})
		},
	}
}

func rescoreCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "rescore <requestId>",
		Short: "Retry the oracle steps for an indexed submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withService(cmd, func(ctx context.Context, service *core.CoreService) (any, error) {
				return service.Rescore(ctx, args[0])
			})
		},
	}
}

func processScoreCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "process-score <requestId>",
		Short: "Have the contract finalize the AI score of a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withService(cmd, func(ctx context.Context, service *core.CoreService) (any, error) {
				return service.ProcessScore(ctx, args[0])
			})
		},
	}
}

type pinOutput struct {
	IPFSHash   string `json:"ipfsHash"`
	ImageURL   string `json:"imageUrl"`
	GatewayURL string `json:"gatewayUrl"`
}

func pinCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "pin <file>",
		Short: "Pin a file to IPFS without processing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := s.serviceConfig()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			pinner := core.NewPinner(config.IPFS)
			hash, err := pinner.Pin(cmd.Context(), data)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), &pinOutput{
				IPFSHash:   hash,
				ImageURL:   "ipfs://" + hash,
				GatewayURL: pinner.GatewayURL(hash),
			})
		},
	}
}

type scoreOutput struct {
	scoring.Result
	Scorer   string `json:"scorer"`
	Approved bool   `json:"approved"`
}

func scoreCmd(s *settings) *cobra.Command {
	var scorerType string
	cmd := &cobra.Command{
		Use:   "score <file>",
		Short: "Score an image locally with the configured scorer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := s.serviceConfig()
			if err != nil {
				return err
			}
			if scorerType != "" {
				config.Scoring.Type = scorerType
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if ct := http.DetectContentType(data); ct != "image/png" && ct != "image/jpeg" {
				return fmt.Errorf("unsupported image type: %s", ct)
			}
			scorer, err := core.NewScorer(config.Scoring)
			if err != nil {
				return err
			}
			result, err := scorer.Score(cmd.Context(), data)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), &scoreOutput{
				Result:   result,
				Scorer:   scorer.Name(),
				Approved: scoring.Approved(result.Score, config.Scoring.MinScoreThreshold),
			})
		},
	}
	cmd.Flags().StringVar(&scorerType, "scorer", "", "override scoring.type (brightness, genai)")
	return cmd
}

func hashAdminTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-admin-token <token>",
		Short: "Print the bcrypt hash to store in admin.tokenHash",
		Args:  cobra.ExactArgs(1),
		// no configuration needed
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := backend.HashAdminToken(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}
