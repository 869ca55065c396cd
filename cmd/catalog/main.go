// Command catalog hosts the internal Tool Catalog HTTP surface.
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
	"go.uber.org/zap"

	"github.com/opsforge/execcore/internal/config"
	"github.com/opsforge/execcore/pkg/api"
	"github.com/opsforge/execcore/pkg/catalog"
	"github.com/opsforge/execcore/pkg/observability"
	"github.com/opsforge/execcore/pkg/repository"
	"github.com/opsforge/execcore/pkg/repository/memstore"
	"github.com/opsforge/execcore/pkg/repository/postgres"
	"github.com/opsforge/execcore/pkg/shared/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "catalog: %v\n", err)
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

	catalogStore, closeStore, err := buildCatalogRepository(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("build catalog repository: %w", err)
	}
	defer closeStore() //nolint:errcheck

	catalogSvc, err := catalog.NewService(catalogStore, cfg.Catalog.CacheSize, time.Duration(cfg.Catalog.CacheTTLSeconds)*time.Second)
	if err != nil {
		return fmt.Errorf("build catalog service: %w", err)
	}

	router := api.NewCatalogRouter(log, metrics, api.NewCatalogHandler(catalogSvc))

	server := &http.Server{
		Addr:              cfg.Server.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return serveWithGracefulShutdown(server, log, "catalog")
}

// buildCatalogRepository wires the Postgres-backed catalog store when
// cfg.Database.URL is set, else the in-process memstore used by
// single-node deployments and local development.
func buildCatalogRepository(ctx context.Context, cfg *config.Config) (repository.CatalogRepository, func() error, error) {
	if cfg.Database.URL == "" {
		return memstore.NewCatalogStore(), func() error { return nil }, nil
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
	return postgres.NewCatalogStore(db), db.Close, nil
}

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
