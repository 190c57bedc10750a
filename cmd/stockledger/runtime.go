package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/stockledger/internal/alerts"
	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/notify"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/platform/cache"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/jobs"
)

// runtime holds the dependencies shared by the serve, worker and maintenance commands.
type runtime struct {
	cfg    *app.Config
	logger *slog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client

	metrics    *observability.Metrics
	jobMetrics *jobmetrics.Metrics
	jobsClient *jobs.Client
	dispatcher *notify.Dispatcher

	inventory *inventory.Service
	alerts    *alerts.Service
}

func loadConfig() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, app.NewLogger(cfg), nil
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger}

	rt.pool, err = db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		return nil, err
	}
	rt.redis, err = cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.jobsClient, err = jobs.NewClient(rt.redisOpts())
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.metrics = observability.NewMetrics()
	rt.jobMetrics = jobmetrics.NewMetrics(rt.metrics.Registerer())
	rt.dispatcher = notify.NewDispatcher(notify.NewQueueSink(rt.jobsClient), cfg.NotifyTimeout, logger, rt.jobMetrics)

	auditLogger := shared.NewAuditLogger(rt.pool)
	rt.alerts = alerts.NewService(alerts.NewRepository(rt.pool), auditLogger, logger)
	rt.inventory = inventory.NewService(
		inventory.NewRepository(rt.pool, inventory.RepositoryConfig{LockTimeout: cfg.LedgerLockTimeout}),
		alerts.NewGenerator(cfg.AlertLocation()),
		inventory.ServiceConfig{HealDrift: cfg.LedgerHealDrift, HistoryPageSize: cfg.HistoryPageSize},
		inventory.WithAudit(auditLogger),
		inventory.WithIdempotency(shared.NewIdempotencyStore(rt.pool)),
		inventory.WithNotifier(rt.dispatcher),
		inventory.WithRecorder(rt.metrics.Ledger()),
		inventory.WithLogger(logger),
	)
	return rt, nil
}

func (rt *runtime) redisOpts() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: rt.cfg.RedisAddr}
}

// Close waits for in-flight notifications and releases connections.
func (rt *runtime) Close() {
	if rt.dispatcher != nil {
		rt.dispatcher.Wait()
	}
	if rt.jobsClient != nil {
		if err := rt.jobsClient.Close(); err != nil {
			rt.logger.Warn("jobs client close", slog.Any("error", err))
		}
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
}
