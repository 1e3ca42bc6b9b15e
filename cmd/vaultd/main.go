// Vaultd is a multi-tenant file vault daemon with knowledge indexing.
//
// It provisions an isolated SQLite store and an on-disk vault folder per
// tenant, gates file access behind tenant-admin passwords with a
// process-wide master override, and derives chunked knowledge documents
// from every upload.
//
// Configuration is loaded from a YAML file plus VAULTD_* environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	vaultd
//
//	# Start with an explicit config file
//	vaultd --config /etc/vaultd/config.yaml
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vaultd/internal/config"
	"github.com/fyrsmithlabs/vaultd/internal/credentials"
	"github.com/fyrsmithlabs/vaultd/internal/knowledge"
	"github.com/fyrsmithlabs/vaultd/internal/logging"
	"github.com/fyrsmithlabs/vaultd/internal/registry"
	"github.com/fyrsmithlabs/vaultd/internal/services"
	"github.com/fyrsmithlabs/vaultd/internal/tenantstore"
	"github.com/fyrsmithlabs/vaultd/internal/vault"
	"github.com/fyrsmithlabs/vaultd/internal/watcher"
	"github.com/fyrsmithlabs/vaultd/pkg/server"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "vaultd",
	Short: "Multi-tenant file vault daemon with knowledge indexing",
	Long: `vaultd provisions an isolated store and vault folder per tenant,
gates file access behind tenant-admin passwords with a process-wide
master override, and indexes every upload into chunked knowledge
documents for retrieval.`,
	Version: fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildDate),
	RunE:    runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runServe starts the daemon and blocks until SIGINT/SIGTERM.
func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return run(ctx)
}

// run initializes all services and blocks until context cancellation.
//
//  1. Loads and validates configuration
//  2. Initializes the structured logger
//  3. Builds the store provisioner, credential vault, indexing pipeline,
//     drift watcher, file vault, and tenant registry
//  4. Establishes the master credential (printed exactly once on first run)
//  5. Starts the HTTP server and performs graceful shutdown
func run(ctx context.Context) error {
	cfg, err := config.LoadWithFile(configFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info(ctx, "starting vaultd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("data_dir", cfg.Storage.DataDir))

	reg, err := initServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		reg.Watcher().Stop()
		if err := reg.Tenants().Close(); err != nil {
			logger.Warn(ctx, "closing tenant registry", zap.Error(err))
		}
		if err := reg.Stores().Close(); err != nil {
			logger.Warn(ctx, "closing tenant stores", zap.Error(err))
		}
	}()

	// Establish the master credential. The plaintext is shown exactly
	// once, on the terminal rather than in logs.
	plaintext, created, err := reg.Credentials().EnsureMaster(ctx)
	if err != nil {
		return fmt.Errorf("establishing master credential: %w", err)
	}
	if created {
		fmt.Printf("Master credential created. Store it now; it cannot be retrieved again.\n")
		fmt.Printf("  %s\n", plaintext)
	}

	reg.Watcher().Start(ctx)
	go drainDrift(ctx, reg.Watcher(), logger)

	srv := server.NewServer(cfg, reg.Vault())

	logger.Info(ctx, "server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"))

	if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
		return err
	}

	logger.Info(ctx, "shutdown complete")
	return nil
}

// initServices wires every service into the registry.
func initServices(ctx context.Context, cfg *config.Config, logger *logging.Logger) (services.Registry, error) {
	prov, err := tenantstore.NewProvisioner(cfg.Storage.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing store provisioner: %w", err)
	}

	cred, err := credentials.NewService(&credentials.Config{
		BcryptCost:       cfg.Auth.BcryptCost,
		MasterBcryptCost: cfg.Auth.MasterBcryptCost,
	}, cfg.Storage.DataDir, prov, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing credential vault: %w", err)
	}

	know, err := knowledge.NewService(&knowledge.Config{
		WindowSize: cfg.Chunking.WindowSize,
		Overlap:    cfg.Chunking.Overlap,
	}, prov, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing knowledge pipeline: %w", err)
	}

	// The watcher checks manifests through the vault, and the vault
	// registers folders with the watcher. The indirection breaks the
	// construction-order cycle.
	checker := &manifestChecker{}
	w, err := watcher.New(checker, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing drift watcher: %w", err)
	}

	vaultSvc, err := vault.NewService(&vault.Config{
		DataDir:        cfg.Storage.DataDir,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	}, cred, know, w, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing file vault: %w", err)
	}
	checker.set(vaultSvc)

	tenants, err := registry.NewService(cfg.Storage.DataDir, prov, vaultSvc, cred, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing tenant registry: %w", err)
	}

	return services.NewRegistry(services.Options{
		Tenants:     tenants,
		Credentials: cred,
		Vault:       vaultSvc,
		Knowledge:   know,
		Stores:      prov,
		Watcher:     w,
	}), nil
}

// drainDrift consumes drift events so the watcher's buffer never fills.
// Reconciliation beyond logging is left to operators for now.
func drainDrift(ctx context.Context, w *watcher.Watcher, logger *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			logger.Info(ctx, "drift event observed",
				zap.Int64("tenant_id", ev.TenantID),
				zap.String("op", ev.Op.String()),
				zap.String("filename", ev.Filename))
		}
	}
}

// manifestChecker is a late-bound watcher.ManifestChecker backed by the
// file vault once it exists.
type manifestChecker struct {
	mu    sync.RWMutex
	vault vault.Service
}

func (c *manifestChecker) set(v vault.Service) {
	c.mu.Lock()
	c.vault = v
	c.mu.Unlock()
}

func (c *manifestChecker) Tracked(tenantID int64, storedFilename string) bool {
	c.mu.RLock()
	v := c.vault
	c.mu.RUnlock()
	if v == nil {
		return false
	}
	return v.Tracked(tenantID, storedFilename)
}
