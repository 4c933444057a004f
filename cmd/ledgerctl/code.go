package main

import (
	"context"
	"fmt"
	"time"

	"bizledger/internal/config"
	"bizledger/internal/middleware"
	"bizledger/internal/model"

	"github.com/spf13/cobra"
)

var codeCmd = &cobra.Command{
	Use:   "code",
	Short: "Allocate codes from the ledger sequences",
}

var codeNextCmd = &cobra.Command{
	Use:   "next channel type",
	Short: "Consume and print the next document code for this year",
	Example: `  ledgerctl code next sales DV
  ledgerctl code next purchase FA`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		channel, docType := model.Channel(args[0]), model.DocType(args[1])
		if !channel.Valid() {
			return fmt.Errorf("unknown channel %q", args[0])
		}
		if !docType.Valid() {
			return fmt.Errorf("unknown document type %q", args[1])
		}

		return withLedger(func(ctx context.Context, l *ledger) error {
			code, err := l.services.Sequence.NextForNow(ctx, channel, docType)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return l.push(ctx)
		})(cmd, args)
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token subject role",
	Short: "Sign an API token with the configured JWT secret",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")
		token, err := middleware.NewAuthenticator(cfg.Secret()).IssueToken(args[0], args[1], ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")

	codeCmd.AddCommand(codeNextCmd)
	rootCmd.AddCommand(codeCmd, tokenCmd)
}
