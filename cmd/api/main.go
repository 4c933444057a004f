package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "bizledger/api/swagger" // swagger docs
	"bizledger/internal/app"
	"bizledger/internal/config"
	"bizledger/internal/database"
	"bizledger/internal/handler"
	"bizledger/internal/logger"
	"bizledger/internal/metrics"
	"bizledger/internal/middleware"
	"bizledger/internal/model"
	"bizledger/internal/replication"
	"bizledger/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// @title           Business Ledger API
// @version         1.0
// @description     Commercial documents, stock and payments for a small business ledger.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load("configs/.env")
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg.DBDriver, cfg.DSN(), log)
	if err != nil {
		return err
	}
	log.Info("connected to database", zap.String("driver", cfg.DBDriver))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	services := app.NewServices(db, app.Deps{
		Events:       hub,
		Metrics:      m,
		Log:          log,
		Company:      model.Company{Name: cfg.CompanyName, Currency: cfg.CompanyCurrency},
		EnforceStock: cfg.EnforceStockOnDelivery,
	})

	remote := replication.NewRemote(cfg.Replication)
	replicator := replication.NewReplicator(remote, services.Snapshots, replication.OptionsFromConfig(cfg.Replication), m, log)
	services.TxManager.OnCommit(replicator.Hook())

	if err := replicator.PullIfUnseeded(ctx); err != nil {
		log.Warn("initial pull from remote failed, starting from local state", zap.Error(err))
	}
	if err := services.Snapshots.Seed(ctx); err != nil {
		return err
	}
	if replicator.Enabled() {
		go replicator.Run(ctx)
	} else {
		log.Info("replication disabled, running local-only")
	}

	auth := middleware.NewAuthenticator(cfg.Secret())
	authz, err := middleware.NewAuthorizer()
	if err != nil {
		return err
	}

	gin.SetMode(cfg.GinMode)
	router := handler.NewRouter(handler.RouterConfig{
		DB:          db,
		Services:    services,
		Replication: replicator,
		Hub:         hub,
		Auth:        auth,
		Authz:       authz,
		Gatherer:    registry,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Flush the latest state before exiting.
	if replicator.Enabled() {
		if err := replicator.Push(shutdownCtx); err != nil {
			log.Warn("final push failed", zap.Error(err))
		}
	}
	if closer, ok := remote.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	return nil
}
