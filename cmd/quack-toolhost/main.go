// Command quack-toolhost runs Component J standalone: a streamed
// request/response tool transport (spec §5.J) fronting the same mailbox
// state as quack-gateway, for agent runtimes that speak MCP-style
// tool-call protocols rather than plain HTTP.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/mailbox"
	"github.com/JPaulGrayson/QuackQuack/internal/registry"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/config"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
	"github.com/JPaulGrayson/QuackQuack/internal/toolhost"
)

func main() {
	logger := log.New(os.Stdout, "quack-toolhost ", log.Ldate|log.Ltime|log.Lmicroseconds|log.LUTC)

	cfg, err := config.FromYAMLAndEnv()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	// The tool host shares the gateway's mailbox snapshot file and
	// registry's auto-approval policy, but runs its own in-process
	// MemoryStore: mailbox has no cross-process durable backend (spec §5),
	// so the two processes converge only at the snapshot file on disk.
	registryStore, err := registry.NewGormStore(logger, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Fatalf("init registry store: %v", err)
	}
	defer func() {
		if err := registryStore.Close(); err != nil {
			logger.Printf("registry store close error: %v", err)
		}
	}()
	if err := registryStore.EnsureSeeded(context.Background()); err != nil {
		logger.Fatalf("seed default agents: %v", err)
	}

	snapshotPath := filepath.Join(cfg.DataDir, "mailbox.json")
	mailboxStore, err := mailbox.NewMemoryStore(logger, registryStore, noopArchive{}, snapshotPath)
	if err != nil {
		logger.Fatalf("init mailbox store: %v", err)
	}

	toolHostAddr := envOrDefault("QUACK_TOOLHOST_ADDR", ":8090")

	host := toolhost.New(logger, mailboxStore)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /toolhost/stream", host.SSEHandler("/toolhost/rpc"))
	mux.HandleFunc("POST /toolhost/rpc", host.MessagesHandler())

	server := &http.Server{
		Addr:              toolHostAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sweepInterval := cfg.SweepInterval
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := mailboxStore.Sweep(ctx); err != nil {
					logger.Printf("mailbox sweep error: %v", err)
				}
			}
		}
	}()

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Printf("tool host listening on %s", toolHostAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErrCh:
		logger.Printf("tool host server failed: %v", err)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("tool host shutdown error: %v", err)
	}
}

// noopArchive discards completed threads instead of archiving them: the
// tool host has no audit store of its own, and archiving is still performed
// once by quack-gateway's MemoryStore sweep against the same snapshot file.
type noopArchive struct{}

func (noopArchive) ArchiveThread(ctx context.Context, threadID string, messages []types.Message) error {
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
