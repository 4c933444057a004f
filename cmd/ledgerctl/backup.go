package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage named snapshots on the remote authority",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create name",
	Short: "Store the current snapshot under name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(ctx context.Context, l *ledger) error {
			if err := l.replicator.Backup(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup %q stored\n", args[0])
			return nil
		})(cmd, args)
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore name",
	Short: "Replace the ledger state with the named backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(ctx context.Context, l *ledger) error {
			if err := l.replicator.Restore(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup %q restored\n", args[0])
			return l.push(ctx)
		})(cmd, args)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronise with the remote authority",
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Replace the ledger state with the remote snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(ctx context.Context, l *ledger) error {
			if !l.replicator.Enabled() {
				return fmt.Errorf("replication is not configured (set REDIS_ADDR)")
			}
			pulled, err := l.replicator.Pull(ctx)
			if err != nil {
				return err
			}
			if !pulled {
				fmt.Fprintln(cmd.OutOrStdout(), "remote holds no snapshot")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "pulled remote snapshot")
			return nil
		})(cmd, args)
	},
}

func init() {
	backupCmd.AddCommand(backupCreateCmd, backupRestoreCmd)
	syncCmd.AddCommand(syncPullCmd)
	rootCmd.AddCommand(backupCmd, syncCmd)
}
