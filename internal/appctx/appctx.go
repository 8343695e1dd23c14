// Package appctx is the composition root named by SPEC_FULL.md §2: it
// wires the database pool, cache facade, event bus, job queue, hook
// registry, plugin manager, session manager, JWT manager, shutdown
// coordinator, collaboration manager, and runner service from a single
// loaded Config, following the functional-options wiring style of
// internal/plugin/hostapi_prod.go's ProdHostAPI.
package appctx

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rustpress/rustpress-core/internal/auth"
	"github.com/rustpress/rustpress-core/internal/cache"
	"github.com/rustpress/rustpress-core/internal/collab"
	"github.com/rustpress/rustpress-core/internal/config"
	"github.com/rustpress/rustpress-core/internal/database"
	"github.com/rustpress/rustpress-core/internal/events"
	"github.com/rustpress/rustpress-core/internal/hooks"
	"github.com/rustpress/rustpress-core/internal/lifecycle"
	"github.com/rustpress/rustpress-core/internal/notifications"
	"github.com/rustpress/rustpress-core/internal/plugin"
	"github.com/rustpress/rustpress-core/internal/plugin/core"
	"github.com/rustpress/rustpress-core/internal/queue"
	"github.com/rustpress/rustpress-core/internal/runner"
	"github.com/rustpress/rustpress-core/internal/runner/tasks"
	"github.com/rustpress/rustpress-core/internal/session"
)

// Context bundles every subsystem handle the HTTP/plugin/worker layers
// need. Built once at startup by New and passed down by reference; nothing
// here is itself a singleton package-level variable, so tests can build as
// many independent Contexts as they like.
type Context struct {
	Config *config.Config
	Logger *slog.Logger

	DB     *sqlx.DB
	DBPool *database.ConnectionPool
	Cache  *cache.Facade

	Events      *events.Bus
	Queue       *queue.Queue
	JobHandlers *queue.HandlerRegistry
	Workers     []*queue.Worker
	workersWG   sync.WaitGroup

	Hooks   *hooks.Registry
	Plugins *plugin.Manager

	Sessions *session.Manager
	JWT      *auth.JWTManager

	Collab         *collab.Manager
	Lifecycle      *lifecycle.Coordinator
	Runner         *runner.Service
	ShutdownHandle *lifecycle.ShutdownHandle
}

// New builds a Context from cfg. It opens the database connection and
// dials the configured cache backend; callers are responsible for
// eventually closing DB (via Lifecycle's PhaseCloseDatabase handler, see
// RegisterShutdownHandlers).
func New(cfg *config.Config, logger *slog.Logger) (*Context, error) {
	if cfg == nil {
		return nil, fmt.Errorf("appctx: nil config")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("appctx: open database: %w", err)
	}
	driverName := driverFor(cfg.Database.URL)
	database.SetDriver(driverName)
	sqlxDB := sqlx.NewDb(db, driverName)
	sqlxDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	dbPool := database.NewConnectionPool(db, database.PoolConfig{
		HealthCheckInterval: cfg.Database.HealthCheckInterval,
		SlowQueryThreshold:  cfg.Database.SlowQueryThreshold,
		MaxRetries:          cfg.Database.MaxRetries,
		RetryBackoff:        cfg.Database.RetryBackoff,
	})

	cacheFacade, err := buildCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("appctx: build cache: %w", err)
	}

	eventBus := events.New(events.WithLogger(logger))
	hookRegistry := hooks.New(logger)

	sessionStore := session.NewStore(sqlxDB)
	sessionPolicy := session.Policy{
		Lifetime:           cfg.Auth.Session.Lifetime,
		MaxSessionsPerUser: cfg.Auth.Session.MaxSessionsPerUser,
		ExtensionThreshold: cfg.Auth.Session.ExtensionThreshold,
		ExtendOnActivity:   cfg.Auth.Session.ExtendOnActivity,
	}
	sessionMgr := session.NewManager(sessionStore, sessionPolicy, nil)

	jwtMgr := auth.NewJWTManager([]byte(cfg.Auth.JWT.Secret), cfg.Auth.JWT.Issuer,
		cfg.Auth.JWT.AccessTokenTTL, cfg.Auth.JWT.RefreshTokenTTL)

	queueStore := queue.NewStore(sqlxDB)
	jobQueue := queue.New(queueStore)

	mailer := notifications.NewSMTPProvider(emailConfigToSMTPConfig(cfg.Email))

	jobHandlers := queue.NewHandlerRegistry()
	jobHandlers.Register("send_email", sendEmailHandler(mailer))
	workers := buildWorkers(queueStore, jobHandlers, cfg.Queue, logger)

	host := plugin.NewProdHostAPI(
		plugin.WithDB("default", db),
		plugin.WithCache(cacheFacade),
		plugin.WithLogger(logger),
		plugin.WithMailer(mailer),
		plugin.WithJobQueue(jobQueue),
	)
	pluginMgr := plugin.NewManager(host)
	host.PluginManager = pluginMgr
	if err := pluginMgr.Register(context.Background(), core.NewDashboardPlugin()); err != nil {
		return nil, fmt.Errorf("appctx: register core dashboard plugin: %w", err)
	}

	collabMgr := collab.NewManager(logger)
	coordinator := lifecycle.New(logger)
	shutdownHandle := lifecycle.NewShutdownHandle()

	runnerSvc := runner.New(buildRunnerTasks(cfg.Runner, sessionMgr, queueStore, cacheFacade, pluginMgr, logger),
		runner.WithLogger(logger))

	return &Context{
		Config:         cfg,
		Logger:         logger,
		DB:             sqlxDB,
		DBPool:         dbPool,
		Cache:          cacheFacade,
		Events:         eventBus,
		Queue:          jobQueue,
		JobHandlers:    jobHandlers,
		Workers:        workers,
		Hooks:          hookRegistry,
		Plugins:        pluginMgr,
		Sessions:       sessionMgr,
		JWT:            jwtMgr,
		Collab:         collabMgr,
		Lifecycle:      coordinator,
		Runner:         runnerSvc,
		ShutdownHandle: shutdownHandle,
	}, nil
}

func buildRunnerTasks(cfg config.RunnerConfig, sessionMgr *session.Manager, queueStore *queue.Store, cacheFacade *cache.Facade, pluginMgr *plugin.Manager, logger *slog.Logger) []runner.Task {
	t := []runner.Task{
		tasks.NewSessionCleanupTask(sessionMgr, cfg.SessionCleanupSchedule, logger),
		tasks.NewReleaseStaleTask(queueStore, cfg.ReleaseStaleSchedule, cfg.ReleaseStaleOlderThan, logger),
		tasks.NewCacheReconcileTask(cacheFacade, cfg.CacheReconcileSchedule, logger),
	}
	for _, pt := range plugin.PluginJobTasks(pluginMgr, logger) {
		t = append(t, pt)
	}
	return t
}

// StartWorkers launches one goroutine per configured job-queue worker
// (spec §4.4's worker loop). Workers stop cooperatively the moment
// c.Lifecycle's shutdown signal fires; RegisterShutdownHandlers'
// PhaseStopWorkers handler waits for them to drain.
func (c *Context) StartWorkers(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	go func() {
		<-c.Lifecycle.ShutdownCh()
		cancel()
	}()

	for _, w := range c.Workers {
		w := w
		c.workersWG.Add(1)
		go func() {
			defer c.workersWG.Done()
			if err := w.Run(workerCtx); err != nil {
				c.Logger.Error("queue worker exited with error", "error", err)
			}
		}()
	}
}

func buildWorkers(store *queue.Store, handlers *queue.HandlerRegistry, cfg config.QueueConfig, logger *slog.Logger) []*queue.Worker {
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = []string{"default"}
	}

	opts := []queue.WorkerOption{queue.WithLogger(logger)}
	if cfg.PollInterval > 0 {
		opts = append(opts, queue.WithPollInterval(cfg.PollInterval))
	}
	if cfg.StaleSweepInterval > 0 && cfg.StaleOlderThan > 0 {
		opts = append(opts, queue.WithStaleSweep(cfg.StaleSweepInterval, cfg.StaleOlderThan))
	}
	if cfg.RetryBaseDelay > 0 && cfg.RetryCeiling > 0 {
		opts = append(opts, queue.WithRetryBackoff(cfg.RetryBaseDelay, cfg.RetryCeiling))
	}

	workers := make([]*queue.Worker, 0, len(queues))
	for _, q := range queues {
		workers = append(workers, queue.NewWorker(store, q, handlers, opts...))
	}
	return workers
}

func sendEmailHandler(mailer notifications.EmailProvider) queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		var payload queue.SendEmailJob
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("send_email: decode payload: %w", err)
		}
		return mailer.Send(ctx, notifications.EmailMessage{
			To:      payload.To,
			Subject: payload.Subject,
			Body:    payload.Body,
			HTML:    payload.HTML,
		})
	}
}

func emailConfigToSMTPConfig(cfg config.EmailConfig) *notifications.SMTPConfig {
	smtpCfg := &notifications.SMTPConfig{
		Enabled: cfg.Enabled,
		From:    cfg.From,
	}
	smtpCfg.SMTP.Host = cfg.SMTP.Host
	smtpCfg.SMTP.Port = cfg.SMTP.Port
	smtpCfg.SMTP.User = cfg.SMTP.User
	smtpCfg.SMTP.Password = cfg.SMTP.Password
	smtpCfg.SMTP.AuthType = cfg.SMTP.AuthType
	smtpCfg.SMTP.TLS = cfg.SMTP.TLS
	smtpCfg.SMTP.SkipVerify = cfg.SMTP.SkipVerify
	return smtpCfg
}

// RegisterShutdownHandlers wires the graceful shutdown phase sequence
// (spec §4.12) to this Context's subsystems: stop accepting new runner
// work, let in-flight tasks drain, stop the cron runner, flush caches, and
// finally close the database.
func (c *Context) RegisterShutdownHandlers() {
	c.Lifecycle.On(lifecycle.PhaseStopAccepting, func(ctx context.Context) error {
		return nil // the HTTP server's own listener close happens at the transport layer
	})
	c.Lifecycle.On(lifecycle.PhaseDrainConnections, func(ctx context.Context) error {
		if c.ShutdownHandle.WaitForTasks(5 * time.Second) {
			return nil
		}
		return fmt.Errorf("timed out draining in-flight tasks")
	})
	c.Lifecycle.On(lifecycle.PhaseStopWorkers, func(ctx context.Context) error {
		c.Runner.Stop()

		done := make(chan struct{})
		go func() {
			c.workersWG.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for queue workers to stop")
		}
	})
	c.Lifecycle.On(lifecycle.PhaseFlushCaches, func(ctx context.Context) error {
		_, err := c.Cache.ReconcileTagIndex(ctx)
		return err
	})
	c.Lifecycle.On(lifecycle.PhaseCloseDatabase, func(ctx context.Context) error {
		c.DBPool.Close()
		return c.DB.Close()
	})
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	return database.Open(driverFor(cfg.URL), cfg.URL)
}

// driverFor maps a DSN's URL scheme to the database/sql driver name
// registered by internal/database/connection.go's blank imports.
func driverFor(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "mysql"
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return "postgres"
	case "sqlite", "sqlite3", "file":
		return "sqlite3"
	default:
		return "mysql"
	}
}

func buildCache(cfg config.CacheConfig) (*cache.Facade, error) {
	switch cfg.Backend {
	case "redis":
		u, err := url.Parse(cfg.ConnectionString)
		if err != nil {
			return nil, fmt.Errorf("parse cache.connection_string: %w", err)
		}
		password, _ := u.User.Password()
		backend, err := cache.NewRedisBackend(cache.RedisConfig{
			Addr:     u.Host,
			Password: password,
		})
		if err != nil {
			return nil, err
		}
		return cache.NewFacade(backend, cfg.Prefix), nil
	default:
		backend := cache.NewMemoryBackend(cfg.MaxItems, cfg.CleanupInterval)
		return cache.NewFacade(backend, cfg.Prefix), nil
	}
}
