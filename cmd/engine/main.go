// Command engine hosts the public Execution API, the Stage B selector
// explain endpoint, and the Asset-Context façade.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/opsforge/execcore/internal/config"
	"github.com/opsforge/execcore/pkg/api"
	"github.com/opsforge/execcore/pkg/assetcontext"
	"github.com/opsforge/execcore/pkg/catalog"
	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/execution"
	"github.com/opsforge/execcore/pkg/observability"
	"github.com/opsforge/execcore/pkg/repository"
	"github.com/opsforge/execcore/pkg/repository/memstore"
	"github.com/opsforge/execcore/pkg/repository/postgres"
	"github.com/opsforge/execcore/pkg/safety"
	"github.com/opsforge/execcore/pkg/safety/mutex"
	"github.com/opsforge/execcore/pkg/secretsbroker"
	"github.com/opsforge/execcore/pkg/secretsbroker/handle"
	"github.com/opsforge/execcore/pkg/selector/tiebreak"
	"github.com/opsforge/execcore/pkg/shared/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
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
	metrics := observability.NewMetrics(reg)
	metrics.SetBuildInfo("dev", "unknown")

	repos, closeRepos, err := buildRepositories(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("build repositories: %w", err)
	}
	defer closeRepos() //nolint:errcheck

	eventFeed := observability.NewEventFeed(repos.Events)

	catalogSvc, err := catalog.NewService(repos.Catalog, cfg.Catalog.CacheSize, time.Duration(cfg.Catalog.CacheTTLSeconds)*time.Second)
	if err != nil {
		return fmt.Errorf("build catalog service: %w", err)
	}
	toolLookup := catalog.NewToolLookup(catalogSvc, log)

	handles := handle.NewRegistry(90 * time.Second)
	broker := secretsbroker.NewBroker(repos.Credentials, repos.Audit, handles, cfg.Secrets.KMSKey, cfg.Secrets.InternalKey)
	secretResolver := secretsbroker.NewStepResolver(broker, cfg.Secrets.InternalKey, "execution-engine")

	mutexManager, err := buildMutexManager(cfg, repos.Locks)
	if err != nil {
		return fmt.Errorf("build mutex manager: %w", err)
	}

	tokens := execution.NewTokenManager()
	policies := execution.NewTimeoutPolicyTable()
	rbacSink := observability.NewRBACEventSink(eventFeed, log)
	rbacPolicy := safety.NewStaticPolicyProvider(nil, nil)

	// Guard order is a fixed invariant of the safety layer: idempotency,
	// approval, mutex, secrets, RBAC, timeout, cancellation. TimeoutGuard
	// is built for the SLA/action pair every execution is dispatched
	// under by default (SLA_MEDIUM/MUTATE); a per-step policy lookup
	// would need Chain itself to become SLA/action-aware.
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

	var tiebreaker tiebreak.Client
	if cfg.Selector.AnthropicAPIKey != "" {
		tiebreaker = tiebreak.NewAnthropicClient(cfg.Selector.AnthropicAPIKey, "")
	}
	llmTimeout := time.Duration(cfg.Selector.LLMTimeoutMS) * time.Millisecond
	tieBreakSink := observability.NewTieBreakEventSink(eventFeed, log)

	inventoryClient := assetcontext.NewHTTPInventoryClient(cfg.Asset.InventoryURL)
	assetResolver, err := assetcontext.NewResolver(
		inventoryClient,
		cfg.Asset.CacheSize,
		time.Duration(cfg.Asset.CacheTTLSeconds)*time.Second,
		assetcontext.DefaultBreakerConfig(),
	)
	if err != nil {
		return fmt.Errorf("build asset resolver: %w", err)
	}

	router := api.NewEngineRouter(
		log,
		metrics,
		api.NewExecutionHandler(engine, eventFeed),
		api.NewSelectorHandler(catalogSvc, tiebreaker, llmTimeout, tieBreakSink),
		api.NewAssetHandler(assetResolver),
	)

	server := &http.Server{
		Addr:              cfg.Server.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return serveWithGracefulShutdown(server, log, "engine")
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
		queue := memstore.NewQueueStore()
		return &repositories{
			Executions:  memstore.NewExecutionStore(),
			Steps:       memstore.NewStepStore(),
			Approvals:   memstore.NewApprovalStore(),
			Events:      memstore.NewEventStore(),
			Queue:       queue,
			DLQ:         memstore.NewDLQStore(queue),
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

// serveWithGracefulShutdown runs server until SIGINT/SIGTERM, then drains
// in-flight requests for up to 30s before returning.
func serveWithGracefulShutdown(server *http.Server, log *zap.Logger, service string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting http server", logging.NewFields().Component(service).With("addr", server.Addr).ZapFields()...)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", logging.NewFields().Component(service).ZapFields()...)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
