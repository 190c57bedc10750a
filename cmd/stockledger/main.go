package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	opscli "github.com/odyssey-erp/stockledger/cmd/stockledger/cli"
	"github.com/odyssey-erp/stockledger/internal/alerts"
	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/platform/migrate"
	"github.com/odyssey-erp/stockledger/jobs"
	"github.com/odyssey-erp/stockledger/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		slog.Default().Error("stockledger", slog.Any("error", err))
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "stockledger",
		Usage: "batch-tracked stock ledger",
		Commands: []*cli.Command{
			{Name: "serve", Usage: "run the ops HTTP server", Action: serveAction},
			{Name: "worker", Usage: "run the background worker and scheduler", Action: workerAction},
			migrateCommand(),
			jobsCommand(),
			ledgerCommand(),
			alertsCommand(),
		},
	}
}

func serveAction(c *cli.Context) error {
	ctx := c.Context
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger

	inspector := asynq.NewInspector(rt.redisOpts())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           rt.cfg,
		Metrics:          rt.metrics,
		JobHandler:       jobs.NewHandler(inspector, logger),
		InventoryHandler: inventory.NewHandler(logger, rt.inventory),
		AlertsHandler:    alerts.NewHandler(logger, rt.alerts),
		Checks: map[string]app.ReadinessCheck{
			"postgres": rt.pool.Ping,
			"redis":    func(ctx context.Context) error { return rt.redis.Ping(ctx).Err() },
		},
	})
	server := &http.Server{
		Addr:         rt.cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  rt.cfg.AppReadTimeout,
		WriteTimeout: rt.cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", rt.cfg.AppAddr))
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

func workerAction(c *cli.Context) error {
	ctx := c.Context
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger

	notifyJob, err := jobs.NewLowStockNotifyJob(jobs.LowStockNotifyConfig{
		Redis:     rt.redis,
		Deliverer: jobs.LogDeliverer{Logger: logger},
		Alerts:    rt.alerts,
		Logger:    logger,
		Metrics:   rt.jobMetrics,
		Language:  language.English,
	})
	if err != nil {
		return fmt.Errorf("init low stock notify job: %w", err)
	}
	expiryJob := jobs.NewBatchExpiryJob(rt.inventory, logger, rt.jobMetrics)
	auditJob := jobs.NewLedgerAuditJob(rt.inventory, logger, rt.jobMetrics)

	expiryTask, err := jobs.NewBatchExpiryTask(time.Time{})
	if err != nil {
		return fmt.Errorf("build expiry task: %w", err)
	}
	auditTask, err := jobs.NewLedgerAuditTask(0)
	if err != nil {
		return fmt.Errorf("build audit task: %w", err)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   rt.redisOpts(),
		Logger:      logger,
		Concurrency: rt.cfg.WorkerConcurrency,
		Location:    rt.cfg.AlertLocation(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLowStockNotify, Handler: notifyJob.Handle},
			{Type: jobs.TaskBatchExpirySweep, Handler: expiryJob.Handle},
			{Type: jobs.TaskLedgerAudit, Handler: auditJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: rt.cfg.BatchExpiryCron, Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: rt.cfg.LedgerAuditCron, Task: auditTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		return fmt.Errorf("init worker: %w", err)
	}
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker run: %w", err)
	}
	return nil
}

func migrateCommand() *cli.Command {
	run := func(step func(*migrate.Runner) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			runner, err := migrate.New(migrations.FS, cfg.PGDSN, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := runner.Close(); err != nil {
					logger.Warn("migrate close", slog.Any("error", err))
				}
			}()
			return step(runner)
		}
	}
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply or roll back schema migrations",
		Subcommands: []*cli.Command{
			{Name: "up", Usage: "apply pending migrations", Action: run((*migrate.Runner).Up)},
			{Name: "down", Usage: "roll back one migration", Action: run((*migrate.Runner).Down)},
		},
	}
}

func jobsCommand() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "manage background jobs",
		Subcommands: []*cli.Command{
			{
				Name:      "trigger",
				Usage:     "enqueue a maintenance job now",
				ArgsUsage: "<expiry|audit>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "as-of", Usage: "sweep date (YYYY-MM-DD or RFC3339)"},
					&cli.Int64Flag{Name: "product", Usage: "audit a single product"},
				},
				Action: func(c *cli.Context) error {
					asOf, err := parseAsOf(c.String("as-of"))
					if err != nil {
						return err
					}
					cfg, _, err := loadConfig()
					if err != nil {
						return err
					}
					client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
					if err != nil {
						return err
					}
					defer client.Close()
					info, err := opscli.NewJobsCLI(client, nil, nil).Trigger(c.Context, c.Args().First(), opscli.TriggerOptions{
						AsOf:      asOf,
						ProductID: c.Int64("product"),
					})
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(c.App.Writer, "enqueued %s on %s as %s\n", info.Type, info.Queue, info.ID)
					return err
				},
			},
			{
				Name:  "stats",
				Usage: "print queue health",
				Action: func(c *cli.Context) error {
					cfg, _, err := loadConfig()
					if err != nil {
						return err
					}
					inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
					defer inspector.Close()
					jobsCLI := opscli.NewJobsCLI(nil, jobs.NewHandler(inspector, nil), inspector)
					stats, err := jobsCLI.InspectQueues(c.Context)
					if err != nil {
						return err
					}
					for _, q := range stats {
						_, _ = fmt.Fprintf(c.App.Writer, "%-14s pending=%d active=%d scheduled=%d retry=%d archived=%d paused=%t\n",
							q.Queue, q.Pending, q.Active, q.Scheduled, q.Retry, q.Archived, q.Paused)
					}
					scheduled, err := jobsCLI.ListScheduled(c.Context, 10)
					if err != nil {
						return err
					}
					for _, t := range scheduled {
						_, _ = fmt.Fprintf(c.App.Writer, "scheduled %s at %s\n", t.Type, t.NextProcessAt.Format(time.RFC3339))
					}
					return nil
				},
			},
		},
	}
}

func ledgerCommand() *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "verify and maintain the stock ledger",
		Subcommands: []*cli.Command{
			{
				Name:  "verify",
				Usage: "replay movements and compare with stored quantities",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "product", Usage: "verify a single product"},
					&cli.BoolFlag{Name: "json", Usage: "emit a JSON summary"},
				},
				Action: withRuntime(func(c *cli.Context, rt *runtime) int {
					return opscli.NewLedgerCLI(rt.inventory, rt.inventory).VerifyCommand(c.Context, opscli.VerifyOptions{
						ProductID:  c.Int64("product"),
						JSONOutput: c.Bool("json"),
						Stdout:     c.App.Writer,
						Stderr:     c.App.ErrWriter,
					})
				}),
			},
			{
				Name:  "expire",
				Usage: "deactivate expired batches and write off their stock",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "as-of", Usage: "sweep date (YYYY-MM-DD or RFC3339)"},
				},
				Action: withRuntime(func(c *cli.Context, rt *runtime) int {
					asOf, err := parseAsOf(c.String("as-of"))
					if err != nil {
						_, _ = fmt.Fprintf(c.App.ErrWriter, "ledger expire: %v\n", err)
						return 1
					}
					return opscli.NewLedgerCLI(rt.inventory, rt.inventory).ExpireCommand(c.Context, opscli.ExpireOptions{
						AsOf:   asOf,
						Stdout: c.App.Writer,
						Stderr: c.App.ErrWriter,
					})
				}),
			},
		},
	}
}

func alertsCommand() *cli.Command {
	return &cli.Command{
		Name:  "alerts",
		Usage: "inspect and acknowledge low-stock alerts",
		Subcommands: []*cli.Command{
			{
				Name:  "ack",
				Usage: "acknowledge an alert",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "id", Required: true},
					&cli.Int64Flag{Name: "actor", Required: true},
				},
				Action: withRuntime(func(c *cli.Context, rt *runtime) int {
					return opscli.NewAlertsCLI(rt.alerts).AckCommand(c.Context, opscli.AckOptions{
						AlertID: c.Int64("id"),
						ActorID: c.Int64("actor"),
						Stdout:  c.App.Writer,
						Stderr:  c.App.ErrWriter,
					})
				}),
			},
			{
				Name:  "list",
				Usage: "list unacknowledged alerts",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "product"},
					&cli.IntFlag{Name: "limit", Value: 50},
					&cli.BoolFlag{Name: "json"},
				},
				Action: withRuntime(func(c *cli.Context, rt *runtime) int {
					return opscli.NewAlertsCLI(rt.alerts).ListCommand(c.Context, opscli.ListOptions{
						ProductID:  c.Int64("product"),
						Limit:      c.Int("limit"),
						JSONOutput: c.Bool("json"),
						Stdout:     c.App.Writer,
						Stderr:     c.App.ErrWriter,
					})
				}),
			},
		},
	}
}

// withRuntime opens the runtime for an exit-code command and maps a non-zero code to
// a cli exit error.
func withRuntime(fn func(*cli.Context, *runtime) int) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, err := openRuntime(c.Context)
		if err != nil {
			return err
		}
		code := fn(c, rt)
		rt.Close()
		if code != 0 {
			return cli.Exit("", code)
		}
		return nil
	}
}

func parseAsOf(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q: want YYYY-MM-DD or RFC3339", raw)
	}
	return t, nil
}
