package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/talentflowlabs/talentflow-core/internal/adapter/repository/postgres"
	"github.com/talentflowlabs/talentflow-core/internal/api"
	"github.com/talentflowlabs/talentflow-core/internal/config"
	"github.com/talentflowlabs/talentflow-core/internal/domain/booking"
	"github.com/talentflowlabs/talentflow-core/internal/jobrun"
	"github.com/talentflowlabs/talentflow-core/internal/lock"
	"github.com/talentflowlabs/talentflow-core/internal/notification"
	"github.com/talentflowlabs/talentflow-core/internal/reconcile"
	"github.com/talentflowlabs/talentflow-core/internal/webhook"
	"github.com/talentflowlabs/talentflow-core/pkg/atsclient"
	"github.com/talentflowlabs/talentflow-core/pkg/calendarclient"
	"github.com/talentflowlabs/talentflow-core/pkg/db"
	zaplog "github.com/talentflowlabs/talentflow-core/pkg/log"
	"github.com/talentflowlabs/talentflow-core/pkg/mailclient"
	"github.com/talentflowlabs/talentflow-core/pkg/snowflake"
	"github.com/talentflowlabs/talentflow-core/sql/migrations"
)

// RunServer starts the HTTP server and background workers.
func RunServer() {
	app := fx.New(
		baseOptions(),
		fx.Invoke(registerHooks),
	)
	app.Run()
}

// RunWorker executes a single pass of the named worker and exits, without
// starting the HTTP server. The lock manager keeps this safe to invoke
// while the service is live: a concurrent run simply records a locked run.
func RunWorker(name string) error {
	var result *jobrun.Run

	app := fx.New(
		baseOptions(),
		fx.Invoke(fx.Annotate(
			func(runners []api.Runner, logger *zap.Logger, lc fx.Lifecycle, sd fx.Shutdowner) error {
				var runner api.Runner
				for _, r := range runners {
					if r.Name() == name {
						runner = r
					}
				}
				if runner == nil {
					return fmt.Errorf("unknown worker: %s", name)
				}

				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						run, err := runner.RunOnce(context.WithoutCancel(ctx), jobrun.TriggerCommandLine)
						if err != nil {
							return err
						}
						result = run
						logger.Info("worker_run_finished",
							zap.String("job_name", name),
							zap.String("status", string(run.Status)),
							zap.Int("processed", run.Processed),
							zap.Int("failed", run.Failed),
							zap.Int("skipped", run.Skipped),
						)
						return sd.Shutdown()
					},
				})
				return nil
			},
			fx.ParamTags(`group:"runners"`),
		)),
	)

	app.Run()
	if result != nil && result.Status == jobrun.StatusFailed {
		return fmt.Errorf("worker %s failed: %s", name, result.ErrorSummary)
	}
	return nil
}

func baseOptions() fx.Option {
	return fx.Options(
		fx.Provide(
			// Config
			config.Load,

			// Outbound clients
			mailclient.NewFromEnv,
			calendarclient.NewFromEnv,
			atsclient.NewFromEnv,

			// Identity
			jobrun.NewInstanceID,

			// Stores
			notification.NewQueue,
			webhook.NewEventStore,
			reconcile.NewJobStore,
			jobrun.NewRecorder,
			lock.NewManager,

			// Domain Adapters (Bind Interfaces)
			fx.Annotate(
				postgres.NewRepository,
				fx.As(new(booking.Repository)),
			),
			func(m *lock.Manager) lock.Locker { return m },
			func(r *jobrun.Recorder) jobrun.RunRecorder { return r },
			func() notification.Renderer { return notification.NewTextRenderer() },
			func(q *notification.Queue) notification.Store { return q },
			func(c *mailclient.Client) notification.Mailer { return c },
			func(s *webhook.EventStore) webhook.Inserter { return s },
			func(s *webhook.EventStore) webhook.EventSource { return s },
			func(q *notification.Queue) webhook.Notifications { return q },
			func(c *calendarclient.Client) reconcile.CalendarAPI { return c },
			func(c *atsclient.Client) reconcile.ATSAPI { return c },
			func(s *reconcile.JobStore) reconcile.Ledger { return s },

			// Workers
			notification.NewWorker,
			webhook.NewReceiver,
			webhook.NewProcessor,
			reconcile.NewEngine,
			fx.Annotate(
				func(w *notification.Worker) api.Runner { return w },
				fx.ResultTags(`group:"runners"`),
			),
			fx.Annotate(
				func(p *webhook.Processor) api.Runner { return p },
				fx.ResultTags(`group:"runners"`),
			),
			fx.Annotate(
				func(e *reconcile.Engine) api.Runner { return e },
				fx.ResultTags(`group:"runners"`),
			),

			// API
			fx.Annotate(
				api.NewRouter,
				fx.ParamTags("", "", `group:"runners"`),
			),
		),
		db.Module,        // Database Module
		snowflake.Module, // Snowflake ID Module
		zaplog.Module,    // Logger Module
	)
}

// RunMigrations executes database migrations (up or down).
func RunMigrations(command string) error {
	if command == "" {
		command = "up"
	}

	cfg := config.Load()
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting database migration...", zap.String("command", command))

	dbURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBSSLMode,
	)

	d, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load migration files: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, dbURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	switch command {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration up failed: %w", err)
		}
		logger.Info("Migration up applied")
	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Info("Migration down applied")
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}

	return nil
}

func registerHooks(
	lc fx.Lifecycle,
	router *api.Router,
	worker *notification.Worker,
	processor *webhook.Processor,
	engine *reconcile.Engine,
	cfg *config.Config,
	logger *zap.Logger,
) {
	var workerCancel context.CancelFunc
	var processorCancel context.CancelFunc
	var engineCancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting HTTP server", zap.String("port", cfg.Port))

			workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			workerCancel = cancel
			go worker.Run(workerCtx)

			processorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			processorCancel = cancel
			go processor.Run(processorCtx)

			engineCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			engineCancel = cancel
			go engine.Run(engineCtx)

			// Start server in goroutine
			go func() {
				if err := router.Run(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("Server failed to start", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server gracefully...")

			if workerCancel != nil {
				workerCancel()
			}
			if processorCancel != nil {
				processorCancel()
			}
			if engineCancel != nil {
				engineCancel()
			}

			shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			if err := router.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server forced to shutdown", zap.Error(err))
				return err
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		},
	})
}
