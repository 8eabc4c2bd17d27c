package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/procurement-portal/cmd/portal/cli"
	"github.com/odyssey-erp/procurement-portal/internal/app"
	"github.com/odyssey-erp/procurement-portal/internal/audit"
	"github.com/odyssey-erp/procurement-portal/internal/budget"
	"github.com/odyssey-erp/procurement-portal/internal/catalog"
	"github.com/odyssey-erp/procurement-portal/internal/observability"
	"github.com/odyssey-erp/procurement-portal/internal/orders"
	"github.com/odyssey-erp/procurement-portal/internal/periods"
	"github.com/odyssey-erp/procurement-portal/internal/platform/cache"
	"github.com/odyssey-erp/procurement-portal/internal/platform/db"
	"github.com/odyssey-erp/procurement-portal/internal/shared"
	"github.com/odyssey-erp/procurement-portal/jobs"
	"github.com/odyssey-erp/procurement-portal/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := run(ctx, cfg, logger, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("portal", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	if len(args) == 0 || args[0] == "serve" {
		return serve(ctx, cfg, logger)
	}
	switch args[0] {
	case "migrate":
		return cli.Migrate(ctx, cfg.PGDSN, migrations.FS, logger)
	case "jobs":
		if len(args) < 2 {
			return fmt.Errorf("usage: portal jobs <%s>", strings.Join(cli.JobNames(), "|"))
		}
		jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
		defer func() {
			if err := jobsCLI.Close(); err != nil {
				logger.Warn("jobs cli close", slog.Any("error", err))
			}
		}()
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		logger.Info("job enqueued", slog.String("type", info.Type), slog.String("id", info.ID))
		return nil
	default:
		return fmt.Errorf("unknown command %q (serve, migrate, jobs)", args[0])
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer cache.Close(redisClient, logger)

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)

	queueOpts := cache.QueueOpts(cfg.RedisAddr)
	jobClient := jobs.NewClient(queueOpts, logger)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(queueOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	ledger := budget.NewLedger(metrics)
	catalogCache := catalog.NewCache(redisClient, cfg.CatalogCacheTTL)
	if err := catalogCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("catalog cache invalidation listener disabled", slog.Any("error", err))
	}
	catalogService := catalog.NewService(catalog.NewRepository(pool), catalogCache, ledger, budget.NewRepository(pool))

	periodService := periods.NewService(periods.NewRepository(pool), catalogService, auditLogger, logger)
	periodService.SetNotifier(jobClient)
	periodService.SetObserver(metrics)

	orderService := orders.NewService(orders.NewRepository(pool), ledger, catalogService, approvalRecorder, logger)
	orderService.SetNotifier(jobClient)
	orderService.SetObserver(metrics)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		CatalogHandler: catalog.NewHandler(logger, catalogService),
		PeriodsHandler: periods.NewHandler(logger, periodService),
		OrdersHandler:  orders.NewHandler(logger, orderService),
		AuditHandler:   audit.NewHandler(logger, audit.NewService(audit.NewRepository(pool), approvalRecorder)),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
