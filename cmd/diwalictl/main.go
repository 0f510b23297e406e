package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/core"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// settings holds the flags shared by every command. Each can also be set
// through a DIWALI_ prefixed environment variable or a diwalictl.yaml profile.
type settings struct {
	v *viper.Viper
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	s := &settings{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "diwalictl",
		Short: "diwalictl - operator tool for the Diwali photo contest",
		Long: `diwalictl talks to the contest contract and the IPFS pinning service
using the same configuration as the server.

Read-only commands need an RPC URL and the contract address. distribute and
rescore and process-score additionally need the operator key.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.init(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", defaultConfigPath(), "server configuration file")
	flags.String("rpc-url", "", "override chain.rpcUrl")
	flags.String("contract", "", "override chain.contractAddress")
	flags.String("operator-key", "", "override chain.operatorKey")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		statsCmd(s),
		tokenCmd(s),
		submissionCmd(s),
		votesCmd(s),
		userCmd(s),
		txCmd(s),
		waitScoreCmd(s),
		distributeCmd(s),
		rescoreCmd(s),
		processScoreCmd(s),
		pinCmd(s),
		scoreCmd(s),
		hashAdminTokenCmd(),
	)
	return rootCmd
}

func defaultConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "config.yaml"
}

func (s *settings) init(cmd *cobra.Command) error {
	if err := s.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	s.v.SetEnvPrefix("DIWALI")
	s.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	s.v.AutomaticEnv()

	s.v.SetConfigName("diwalictl")
	s.v.SetConfigType("yaml")
	s.v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		s.v.AddConfigPath(home + "/.config/diwali")
	}
	if err := s.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read diwalictl profile: %w", err)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(s.v.GetString("log-level"))); err != nil {
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	return nil
}

// serviceConfig loads the server configuration, or the defaults when the
// file does not exist, and applies the command line overrides.
func (s *settings) serviceConfig() (*core.ServiceConfig, error) {
	path := s.v.GetString("config")
	config := core.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		loaded, err := core.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	} else {
		slog.Debug("config file not found, using defaults", "path", path)
	}

	if v := s.v.GetString("rpc-url"); v != "" {
		config.Chain.RPCURL = v
	}
	if v := s.v.GetString("contract"); v != "" {
		config.Chain.ContractAddress = v
	}
	if v := s.v.GetString("operator-key"); v != "" {
		config.Chain.OperatorKey = v
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
