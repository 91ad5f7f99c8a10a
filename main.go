package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dungnh3/most-explorer/config"
	"github.com/dungnh3/most-explorer/controller"
	"github.com/dungnh3/most-explorer/dashboard"
	"github.com/dungnh3/most-explorer/ledger"
	"github.com/dungnh3/most-explorer/parser"
	"github.com/dungnh3/most-explorer/rest"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger, _ := zap.NewProduction()
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	logger := newLogger(cfg.LogLevel)
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("dashboard stopped", zap.Error(err))
	}
	logger.Info("dashboard stopped")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cli := rest.NewOtel(nil, rest.WithLogger(logger), rest.WithResponseDecoder(rest.CBORDecoder{}))
	if _, err := cli.RegisterCounter(reg); err != nil {
		return err
	}

	ch, err := ledger.Connect(cfg, ledger.MinterInterface,
		ledger.WithRest(cli),
		ledger.WithLogger(logger),
		ledger.WithPollDelay(cfg.PollDelay),
		ledger.WithQueryVerification(cfg.VerifyQueries),
	)
	if err != nil {
		return err
	}
	fetchRootKey := cfg.IsLocal || !ch.HasTrustRoot()
	if fetchRootKey && !cfg.IsLocal {
		logger.Warn("ROOT_KEY differs from the mainnet key, fetching it from the replica")
	}
	minter := ledger.NewMinter(ch)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	norm := parser.New(loc)
	metrics, err := controller.NewMetrics(reg)
	if err != nil {
		return err
	}
	newController := func() *controller.Controller {
		return controller.New(minter, norm,
			controller.WithLogger(logger),
			controller.WithMetrics(metrics),
			controller.WithParallel(cfg.ParallelFetch),
			controller.WithTrustRootFetch(fetchRootKey),
		)
	}

	srv, err := dashboard.New(newController, minter,
		dashboard.WithLogger(logger),
		dashboard.WithRegistry(reg),
		dashboard.WithStatusSource(minter),
		dashboard.WithPageSize(cfg.PageSize),
		dashboard.WithViewTTL(cfg.ViewTTL),
	)
	if err != nil {
		return err
	}
	logger.Info("starting dashboard",
		zap.String("host", cfg.Host),
		zap.String("canister", cfg.CanisterID),
		zap.Bool("local", cfg.IsLocal),
		zap.Bool("parallel_fetch", cfg.ParallelFetch))
	return srv.Run(ctx, cfg.ListenAddr)
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
