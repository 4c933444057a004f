package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"bizledger/internal/model"

	"github.com/spf13/cobra"
)

const cliActor = "ledgerctl"

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export or import the full ledger state as JSON",
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the current snapshot to file, or stdout when omitted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(ctx context.Context, l *ledger) error {
			snap, err := l.services.Snapshots.Export(ctx)
			if err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if len(args) == 1 {
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		})(cmd, args)
	},
}

var snapshotImportCmd = &cobra.Command{
	Use:   "import file",
	Short: "Replace the ledger state with a snapshot file",
	Example: `  ledgerctl snapshot export backup.json
  ledgerctl snapshot import backup.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var snap model.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return fmt.Errorf("invalid snapshot file: %w", err)
		}

		return withLedger(func(ctx context.Context, l *ledger) error {
			state, err := l.services.Snapshots.State(ctx)
			if err != nil {
				return err
			}
			revision, err := l.services.Snapshots.Import(ctx, cliActor, &snap, state.Revision)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d documents, revision %d\n", len(snap.Documents), revision)
			return l.push(ctx)
		})(cmd, args)
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotExportCmd, snapshotImportCmd)
	rootCmd.AddCommand(snapshotCmd)
}
