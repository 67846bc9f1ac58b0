package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sswguo/partyline/internal/logger"
	"github.com/sswguo/partyline/pkg/config"
	"github.com/sswguo/partyline/pkg/globallock"
	"github.com/sswguo/partyline/pkg/globallock/badgerstore"
	"github.com/sswguo/partyline/pkg/globallock/memstore"
	"github.com/sswguo/partyline/pkg/globallock/postgresstore"
	"github.com/sswguo/partyline/pkg/metrics"
	"github.com/sswguo/partyline/pkg/partyline"
)

var serveCmd = &cobra.Command{
	Use:   "serve-demo",
	Short: "Run the coordination manager until interrupted",
	Long: `serve-demo loads configuration, builds the configured storage and
global-lock backends, and blocks serving local coordination (and, if
enabled, a Prometheus metrics endpoint) until interrupted. It is a
reference host for Manager, not a network-facing protocol server.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if configPath == "" && !config.DefaultConfigExists() {
		fmt.Fprintf(os.Stderr, "No configuration file found at default location: %s\n\n", config.DefaultConfigPath())
		fmt.Fprintln(os.Stderr, "Initialize one first:")
		fmt.Fprintln(os.Stderr, "  partyline init")
		fmt.Fprintln(os.Stderr, "\nOr run with defaults (single-node, in-memory) by specifying --config explicitly.")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeID := cfg.NodeID
	if nodeID == "" {
		if host, err := os.Hostname(); err == nil {
			nodeID = host
		} else {
			nodeID = "local"
		}
	}

	var m *metrics.Metrics
	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		m = metrics.New(registry)
	}

	store, evictor, closeStore, err := buildGlobalLockStore(ctx, cfg.GlobalLock)
	if err != nil {
		return fmt.Errorf("build global lock store: %w", err)
	}
	if closeStore != nil {
		defer closeStore()
	}

	var global *globallock.Manager
	if store != nil {
		global = globallock.NewManager(globallock.Config{
			Store:         store,
			NodeID:        nodeID,
			TTL:           cfg.GlobalLock.TTL,
			RetryInterval: cfg.GlobalLock.RetryInterval,
			Metrics:       m,
		})
	}

	var reaper *globallock.Reaper
	if evictor != nil && cfg.GlobalLock.ReapInterval > 0 {
		reaper = globallock.NewReaper(evictor, globallock.ReaperConfig{
			Interval:  cfg.GlobalLock.ReapInterval,
			DeadNodes: func(context.Context) []string { return nil },
		})
		reaper.Start(ctx)
		defer reaper.Stop()
	}

	fileStore, err := buildFileStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("build file store: %w", err)
	}

	mgr := partyline.NewManager(partyline.Config{
		Store:          fileStore,
		Global:         global,
		NodeID:         nodeID,
		DefaultTimeout: cfg.Timeouts.Default,
		Metrics:        m,
	})
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownGrace)
		defer shutdownCancel()
		if err := mgr.Close(shutdownCtx); err != nil {
			logger.Error("manager shutdown error", "error", err)
		}
	}()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
		logger.Info("metrics server listening", "addr", cfg.Metrics.ListenAddr, "path", cfg.Metrics.Path)
	}

	var adminServer *http.Server
	if cfg.Admin.Enabled {
		adminServer = &http.Server{Addr: cfg.Admin.ListenAddr, Handler: newAdminHandler(mgr)}
		go func() {
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("admin server error", "error", err)
			}
		}()
		logger.Info("admin server listening", "addr", cfg.Admin.ListenAddr)
	}

	logger.Info("partyline coordination manager started",
		"node_id", nodeID,
		"global_lock_backend", cfg.GlobalLock.Backend,
		"storage_backend", cfg.Storage.Backend)
	fmt.Println("partyline is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	signal.Stop(sigCh)
	logger.Info("shutdown signal received, stopping")
	cancel()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}
	if adminServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin server shutdown error", "error", err)
		}
	}
	return nil
}

// buildGlobalLockStore constructs the configured globallock.Store and,
// where the backend supports forced reclaim, its Evictor. The memory
// backend has no Evictor: a dead node's records simply expire on TTL.
func buildGlobalLockStore(ctx context.Context, cfg config.GlobalLockConfig) (globallock.Store, globallock.Evictor, func(), error) {
	switch cfg.Backend {
	case config.BackendBadger:
		st, err := badgerstore.Open(cfg.BadgerDir)
		if err != nil {
			return nil, nil, nil, err
		}
		return st, st, func() { _ = st.Close() }, nil

	case config.BackendPostgres:
		st, err := postgresstore.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, nil, err
		}
		return st, st, func() { st.Close() }, nil

	case config.BackendMemory, "":
		return memstore.New(), nil, nil, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown global lock backend %q", cfg.Backend)
	}
}

func buildFileStore(cfg config.StorageConfig) (partyline.FileStore, error) {
	switch cfg.Backend {
	case config.StorageMem:
		return partyline.NewMemFileStore(), nil
	case config.StorageOS, "":
		if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
			return nil, fmt.Errorf("create storage root: %w", err)
		}
		return partyline.NewOSFileStore(cfg.Root), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
