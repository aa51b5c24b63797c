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

	"github.com/JPaulGrayson/QuackQuack/internal/apikeys"
	"github.com/JPaulGrayson/QuackQuack/internal/audit"
	"github.com/JPaulGrayson/QuackQuack/internal/blobstore"
	"github.com/JPaulGrayson/QuackQuack/internal/bridge"
	"github.com/JPaulGrayson/QuackQuack/internal/convo"
	"github.com/JPaulGrayson/QuackQuack/internal/dispatch"
	"github.com/JPaulGrayson/QuackQuack/internal/httpapi"
	"github.com/JPaulGrayson/QuackQuack/internal/llmproxy"
	"github.com/JPaulGrayson/QuackQuack/internal/mailbox"
	"github.com/JPaulGrayson/QuackQuack/internal/notifysound"
	"github.com/JPaulGrayson/QuackQuack/internal/recorder"
	"github.com/JPaulGrayson/QuackQuack/internal/registry"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/config"
	"github.com/JPaulGrayson/QuackQuack/internal/webhook"
)

func main() {
	logger := log.New(os.Stdout, "quack-gateway ", log.Ldate|log.Ltime|log.Lmicroseconds|log.LUTC)

	cfg, err := config.FromYAMLAndEnv()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	registryStore, err := newRegistryStore(logger, cfg)
	if err != nil {
		logger.Fatalf("init registry store: %v", err)
	}
	defer closeStore(logger, "registry", registryStore)
	if err := registryStore.EnsureSeeded(context.Background()); err != nil {
		logger.Fatalf("seed default agents: %v", err)
	}

	auditStore, err := newAuditStore(logger, cfg)
	if err != nil {
		logger.Fatalf("init audit store: %v", err)
	}
	defer closeStore(logger, "audit", auditStore)
	auditLogger := audit.NewLogger(logger, auditStore)

	convoStore, err := newConvoStore(logger, cfg)
	if err != nil {
		logger.Fatalf("init convo store: %v", err)
	}
	defer closeStore(logger, "convo", convoStore)
	convoRegistry := convo.New(convoStore)

	recorderStore, err := newRecorderStore(logger, cfg)
	if err != nil {
		logger.Fatalf("init recorder store: %v", err)
	}
	defer closeStore(logger, "recorder", recorderStore)
	recorderSvc := recorder.New(recorderStore)

	keyStore, err := newAPIKeyStore(logger, cfg)
	if err != nil {
		logger.Fatalf("init apikeys store: %v", err)
	}
	defer closeStore(logger, "apikeys", keyStore)

	mailboxSnapshotPath := filepath.Join(cfg.DataDir, "mailbox.json")
	mailboxStore, err := mailbox.NewMemoryStore(logger, registryStore, auditLogger, mailboxSnapshotPath)
	if err != nil {
		logger.Fatalf("init mailbox store: %v", err)
	}

	blobDir := filepath.Join(cfg.DataDir, "blobs")
	blobStore, err := blobstore.NewFileStore(logger, blobDir)
	if err != nil {
		logger.Fatalf("init blob store: %v", err)
	}

	webhookSnapshotPath := filepath.Join(cfg.DataDir, "webhooks.json")
	subs, err := webhook.NewSubscriptionStore(webhookSnapshotPath)
	if err != nil {
		logger.Fatalf("init webhook subscription store: %v", err)
	}
	fanout := webhook.New(logger, subs, registryStore)

	dispatcher := dispatch.New(logger, mailboxStore, registryStore, cfg.WebhookSecret, cfg.DispatchTick)

	var soundSynth notifysound.Synthesizer
	if cfg.TTSProviderURL != "" {
		soundSynth = notifysound.NewHTTPSynthesizer(cfg.TTSProviderURL, "")
	}

	bridgeHub := bridge.NewHub(logger, mailboxStore, registryStore, auditLogger, cfg.BridgeAuthToken, cfg.DevBypass)
	if soundSynth != nil {
		bridgeHub.WithSound(soundSynth)
	}
	if soundSynth != nil {
		dispatcher.WithSound(soundSynth)
	}

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	if cfg.LLMProxyAPIKey != "" {
		provider := llmproxy.NewAnthropicProvider(cfg.LLMProxyAPIKey, llmproxy.WithAnthropicEndpoint(cfg.LLMProxyURL))
		worker := llmproxy.NewWorker(logger, registryStore, mailboxStore, provider, "claude-3-5-sonnet-20241022")
		go worker.Run(bgCtx, cfg.DispatchTick)
	}

	srv := httpapi.NewServer(
		logger,
		cfg.HTTPAddr,
		mailboxStore,
		registryStore,
		blobStore,
		subs,
		fanout,
		auditLogger,
		convoRegistry,
		recorderSvc,
		keyStore,
		bridgeHub,
		cfg.WebhookSecret,
		cfg.DevBypass,
	)

	go dispatcher.Run(bgCtx)
	go bridgeHub.RunHeartbeatSweep(bgCtx)
	go convoRegistry.RunJanitor(bgCtx)
	go runSweepLoop(bgCtx, logger, cfg.SweepInterval, "blob", blobStore.Sweep)
	go runSweepLoop(bgCtx, logger, cfg.SweepInterval, "mailbox", func(ctx context.Context) (int, error) {
		return 0, mailboxStore.Sweep(ctx)
	})

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server crashed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	cancelBg()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http server shutdown error: %v", err)
	}
}

type closer interface {
	Close() error
}

func closeStore(logger *log.Logger, name string, c closer) {
	if err := c.Close(); err != nil {
		logger.Printf("%s store close error: %v", name, err)
	}
}

func runSweepLoop(ctx context.Context, logger *log.Logger, interval time.Duration, name string, sweep func(context.Context) (int, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweep(ctx)
			if err != nil {
				logger.Printf("%s sweep error: %v", name, err)
				continue
			}
			if n > 0 {
				logger.Printf("%s sweep removed %d entries", name, n)
			}
		}
	}
}

// cfg.Validate has already rejected anything but "sqlite"/"postgres" by the
// time these run, so registry/audit/convo/recorder/apikeys are always
// GORM-backed; only the mailbox store (spec §5) is memory-plus-snapshot.

func newRegistryStore(logger *log.Logger, cfg config.Config) (registry.Store, error) {
	return registry.NewGormStore(logger, cfg.DBDriver, cfg.DBDSN)
}

func newAuditStore(logger *log.Logger, cfg config.Config) (audit.Store, error) {
	return audit.NewGormStore(logger, cfg.DBDriver, cfg.DBDSN)
}

func newConvoStore(logger *log.Logger, cfg config.Config) (convo.Store, error) {
	return convo.NewGormStore(logger, cfg.DBDriver, cfg.DBDSN)
}

func newRecorderStore(logger *log.Logger, cfg config.Config) (recorder.Store, error) {
	return recorder.NewGormStore(logger, cfg.DBDriver, cfg.DBDSN)
}

func newAPIKeyStore(logger *log.Logger, cfg config.Config) (apikeys.Store, error) {
	return apikeys.NewGormStore(logger, cfg.DBDriver, cfg.DBDSN)
}
