// Command worker runs the dynamic background worker pool that drains
// the execution queue.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/opsforge/execcore/internal/config"
	"github.com/opsforge/execcore/pkg/catalog"
	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/execution"
	"github.com/opsforge/execcore/pkg/observability"
	"github.com/opsforge/execcore/pkg/queue"
	"github.com/opsforge/execcore/pkg/repository"
	"github.com/opsforge/execcore/pkg/repository/memstore"
	"github.com/opsforge/execcore/pkg/repository/postgres"
	"github.com/opsforge/execcore/pkg/safety"
	"github.com/opsforge/execcore/pkg/safety/mutex"
	"github.com/opsforge/execcore/pkg/secretsbroker"
	"github.com/opsforge/execcore/pkg/secretsbroker/handle"
	"github.com/opsforge/execcore/pkg/shared/logging"
	"github.com/opsforge/execcore/pkg/workerpool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	flag.Parse()
	if *configPath == "" {
		*configPath = "config.yaml"
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.NewLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	reg := prometheus.NewRegistry()
	_ = observability.NewMetrics(reg) // worker has no HTTP surface; scraped via cmd/engine or a sidecar in production

	repos, closeRepos, err := buildRepositories(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("build repositories: %w", err)
	}
	defer closeRepos() //nolint:errcheck

	catalogSvc, err := catalog.NewService(repos.Catalog, cfg.Catalog.CacheSize, time.Duration(cfg.Catalog.CacheTTLSeconds)*time.Second)
	if err != nil {
		return fmt.Errorf("build catalog service: %w", err)
	}
	toolLookup := catalog.NewToolLookup(catalogSvc, log)

	handles := handle.NewRegistry(90 * time.Second)
	broker := secretsbroker.NewBroker(repos.Credentials, repos.Audit, handles, cfg.Secrets.KMSKey, cfg.Secrets.InternalKey)
	secretResolver := secretsbroker.NewStepResolver(broker, cfg.Secrets.InternalKey, "worker")

	mutexManager, err := buildMutexManager(cfg, repos.Locks)
	if err != nil {
		return fmt.Errorf("build mutex manager: %w", err)
	}

	tokens := execution.NewTokenManager()
	policies := execution.NewTimeoutPolicyTable()
	eventFeed := observability.NewEventFeed(repos.Events)
	rbacSink := observability.NewRBACEventSink(eventFeed, log)
	rbacPolicy := safety.NewStaticPolicyProvider(nil, nil)

	chain := safety.NewChain(
		safety.NewIdempotencyGuard(repos.Executions),
		safety.NewApprovalGuard(repos.Approvals),
		safety.NewMutexGuard(mutexManager, 30*time.Second, 10*time.Second, log),
		safety.NewSecretsGuard(secretResolver),
		safety.NewRBACGuard(rbacPolicy, rbacSink, nil),
		safety.NewTimeoutGuard(policies, tokens, domain.SLAMedium, domain.ActionMutate),
		safety.NewCancellationGuard(tokens),
	)

	automationClient := execution.NewHTTPAutomationClient(cfg.Automation.BaseURL)
	handlers := execution.NewHandlerTable(execution.NewAutomationStepHandler(automationClient))

	engine := execution.NewEngine(execution.Deps{
		Executions:  repos.Executions,
		Steps:       repos.Steps,
		Approvals:   repos.Approvals,
		Events:      repos.Events,
		Queue:       repos.Queue,
		Tools:       toolLookup,
		Handlers:    handlers,
		Chain:       chain,
		Tokens:      tokens,
		Policies:    policies,
		DedupWindow: cfg.Idempotency.DedupWindow,
		Logger:      log,
	})

	queueMgr := queue.NewManager(repos.Queue, time.Duration(cfg.Queue.LeaseSeconds)*time.Second, exponentialBackoff)

	poolCfg := workerpool.DefaultConfig()
	poolCfg.WorkersMin = cfg.WorkerPool.WorkersMin
	poolCfg.WorkersMax = cfg.WorkerPool.WorkersMax
	poolCfg.PollInterval = time.Duration(cfg.Queue.HeartbeatIntervalSeconds) * time.Second
	poolCfg.ReaperInterval = time.Duration(cfg.Queue.ReaperIntervalSeconds) * time.Second

	pool := workerpool.NewPool(poolCfg, queueMgr, engine, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting worker pool", logging.NewFields().Component("cmd.worker").With("workers_min", poolCfg.WorkersMin).With("workers_max", poolCfg.WorkersMax).ZapFields()...)
	return pool.Start(ctx)
}

func buildMutexManager(cfg *config.Config, locks repository.LockRepository) (mutex.Manager, error) {
	if cfg.Redis.URL == "" {
		return mutex.NewPostgresManager(locks), nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return mutex.NewRedisManager(redis.NewClient(opts)), nil
}

// repositories bundles every repository.* interface the engine and worker
// binaries depend on, so buildRepositories can hand back either the
// memstore or the Postgres implementation behind one return type.
type repositories struct {
	Executions  repository.ExecutionRepository
	Steps       repository.StepRepository
	Approvals   repository.ApprovalRepository
	Events      repository.EventRepository
	Queue       repository.QueueRepository
	DLQ         repository.DLQRepository
	Locks       repository.LockRepository
	Catalog     repository.CatalogRepository
	Credentials repository.CredentialRepository
	Audit       repository.AuditRepository
}

// buildRepositories wires the Postgres-backed repositories when
// cfg.Database.URL is set, else the in-process memstore used by
// single-node deployments and local development. Both implement the same
// pkg/repository interfaces, so nothing above this line needs to know
// which backend is live.
func buildRepositories(ctx context.Context, cfg *config.Config) (*repositories, func() error, error) {
	if cfg.Database.URL == "" {
		queueStore := memstore.NewQueueStore()
		return &repositories{
			Executions:  memstore.NewExecutionStore(),
			Steps:       memstore.NewStepStore(),
			Approvals:   memstore.NewApprovalStore(),
			Events:      memstore.NewEventStore(),
			Queue:       queueStore,
			DLQ:         memstore.NewDLQStore(queueStore),
			Locks:       memstore.NewLockStore(),
			Catalog:     memstore.NewCatalogStore(),
			Credentials: memstore.NewCredentialStore(),
			Audit:       memstore.NewAuditStore(),
		}, func() error { return nil }, nil
	}

	db, err := postgres.Open(ctx, postgres.Config{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	return &repositories{
		Executions:  postgres.NewExecutionStore(db),
		Steps:       postgres.NewStepStore(db),
		Approvals:   postgres.NewApprovalStore(db),
		Events:      postgres.NewEventStore(db),
		Queue:       postgres.NewQueueStore(db),
		DLQ:         postgres.NewDLQStore(db),
		Locks:       postgres.NewLockStore(db),
		Catalog:     postgres.NewCatalogStore(db),
		Credentials: postgres.NewCredentialStore(db),
		Audit:       postgres.NewAuditStore(db),
	}, db.Close, nil
}

// exponentialBackoff doubles from 1s, capped at 5 minutes, per retry
// attempt before a queue item is either redelivered or moved to the DLQ.
func exponentialBackoff(attempt int) time.Duration {
	d := time.Second
	for i := 0; i < attempt && d < 5*time.Minute; i++ {
		d *= 2
	}
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return d
}
