package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bizledger/internal/app"
	"bizledger/internal/config"
	"bizledger/internal/database"
	"bizledger/internal/logger"
	"bizledger/internal/model"
	"bizledger/internal/replication"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Maintenance commands for the business ledger",
	Long: `ledgerctl operates directly on the ledger database configured by the
same environment as the API server (configs/.env, DB_*, REDIS_*).

Mutating commands push the resulting snapshot to the remote authority
when replication is configured.`,
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "configs/.env", "Path to the .env file")
}

// ledger is an opened database with its services and replicator.
type ledger struct {
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	services   *app.Services
	replicator *replication.Replicator
	remote     replication.Remote
}

func openLedger() (*ledger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	db, err := database.NewConnection(cfg.DBDriver, cfg.DSN(), log)
	if err != nil {
		return nil, err
	}

	services := app.NewServices(db, app.Deps{
		Log:          log,
		Company:      model.Company{Name: cfg.CompanyName, Currency: cfg.CompanyCurrency},
		EnforceStock: cfg.EnforceStockOnDelivery,
	})
	remote := replication.NewRemote(cfg.Replication)
	replicator := replication.NewReplicator(remote, services.Snapshots, replication.OptionsFromConfig(cfg.Replication), nil, log)

	return &ledger{cfg: cfg, db: db, log: log, services: services, replicator: replicator, remote: remote}, nil
}

// push replicates after a local mutation; no-op when local-only.
func (l *ledger) push(ctx context.Context) error {
	if !l.replicator.Enabled() {
		return nil
	}
	return l.replicator.Push(ctx)
}

func (l *ledger) close() {
	if closer, ok := l.remote.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if sqlDB, err := l.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = l.log.Sync()
}

// withLedger opens the ledger for the duration of fn.
func withLedger(fn func(ctx context.Context, l *ledger) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		l, err := openLedger()
		if err != nil {
			return err
		}
		defer l.close()
		return fn(cmd.Context(), l)
	}
}
