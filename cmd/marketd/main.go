package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"MindPress-Market/internal/api"
	"MindPress-Market/internal/app"
	"MindPress-Market/internal/auth"
	"MindPress-Market/internal/config"
	"MindPress-Market/internal/job"
	"MindPress-Market/internal/market"
	"MindPress-Market/internal/observability/metrics"
	"MindPress-Market/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// main 是 MindPress 市场编排守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("marketd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("MARKET_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "market.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if len(cfg.Server.APITokens) == 0 && !cfg.Server.AllowAnonymous {
		return errors.New("server.api_tokens 为空：请设置 MARKET_API_TOKEN，或显式开启 server.allow_anonymous")
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
			Compress:   cfg.Logging.Audit.Compress,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()
	lg := logger.Named("marketd")

	chain, err := app.ConnectChain(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer chain.Close()

	orchestrator := app.NewOrchestrator(cfg, chain.EVM)
	groupIDs, err := app.GroupIDResolver(cfg.Orchestrator.GroupIDSource, chain.EVM)
	if err != nil {
		return err
	}
	planner, err := app.NewPlanner(cfg, groupIDs)
	if err != nil {
		return err
	}
	executor := market.NewExecutor(planner, orchestrator, market.StaticContext(chain.Context))

	store, err := app.OpenJobStore(ctx, cfg.JobStore)
	if err != nil {
		return err
	}
	queue, err := app.OpenJobQueue(ctx, cfg.JobQueue)
	if err != nil {
		store.Close()
		return err
	}

	service := job.NewService(store, queue, cfg.JobStore.MaxRetries, job.WithValidator(market.Validate))
	defer func() {
		if err := service.Close(); err != nil {
			lg.Warn("关闭任务服务失败", slog.Any("error", err))
		}
	}()

	processor := job.NewProcessor(executor, store, queue, queue,
		job.WithWorkerCount(cfg.JobQueue.Workers),
		job.WithProcessorLogger(logger.Named("processor")),
		job.WithAlertDispatcher(app.NewAlertDispatcher(cfg.Alerting)),
	)

	server := api.NewServer(cfg.Server.Address, service,
		api.WithFeeQuoter(orchestrator),
		api.WithChainReporter(chain.Registry),
		api.WithAuthenticator(auth.NewTokenAuthenticator(cfg.Server.APITokens)),
		api.WithAnonymousAccess(cfg.Server.AllowAnonymous),
		api.WithCallbackGasLimit(cfg.Orchestrator.CallbackGasLimit),
		api.WithLogger(logger.Named("api")),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return processor.Start(groupCtx)
	})
	group.Go(func() error {
		return server.Start(groupCtx)
	})
	if cfg.Metrics.Address != "" {
		group.Go(func() error {
			lg.Info("指标服务启动", slog.String("addr", cfg.Metrics.Address))
			return metrics.StartServer(groupCtx, cfg.Metrics.Address)
		})
	}

	lg.Info("marketd 已启动",
		slog.String("config", configPath),
		slog.String("signer", chain.Context.Signer.Hex()),
		slog.String("job_store", cfg.JobStore.Driver),
		slog.String("job_queue", cfg.JobQueue.Driver),
		slog.String("group_id_source", cfg.Orchestrator.GroupIDSource),
		slog.Int("workers", cfg.JobQueue.Workers),
	)
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
