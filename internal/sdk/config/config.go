package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	EnvHTTPAddr        = "QUACK_HTTP_ADDR"
	EnvDBDriver        = "QUACK_DB_DRIVER"
	EnvDBDSN           = "QUACK_DB_DSN"
	EnvDataDir         = "QUACK_DATA_DIR"
	EnvWebhookSecret   = "QUACK_WEBHOOK_SECRET"
	EnvBridgeAuthToken = "QUACK_BRIDGE_AUTH_TOKEN"
	EnvDevBypass       = "QUACK_DEV_BYPASS"

	EnvMessageTTL      = "QUACK_MESSAGE_TTL"
	EnvBlobTTL         = "QUACK_BLOB_TTL"
	EnvDispatchTick    = "QUACK_DISPATCH_TICK"
	EnvSweepInterval   = "QUACK_SWEEP_INTERVAL"
	EnvHeartbeatWindow = "QUACK_HEARTBEAT_WINDOW"

	EnvLLMProxyURL    = "QUACK_LLM_PROXY_URL"
	EnvLLMProxyAPIKey = "QUACK_LLM_PROXY_API_KEY"
	EnvTTSProviderURL = "QUACK_TTS_PROVIDER_URL"
)

const (
	DefaultHTTPAddr        = ":8080"
	DefaultDBDriver        = "sqlite"
	DefaultDBDSN           = "quack.db"
	DefaultDataDir         = ".quackstack/data"
	DefaultMessageTTL      = 48 * time.Hour
	DefaultBlobTTL         = 24 * time.Hour
	DefaultDispatchTick    = 2 * time.Second
	DefaultSweepInterval   = 1 * time.Minute
	DefaultHeartbeatWindow = 30 * time.Second
)

// Config is QuackQuack Core's process configuration, assembled from typed
// defaults, an optional YAML file, and environment overrides, in that order
// of increasing precedence.
type Config struct {
	HTTPAddr string
	DBDriver string
	DBDSN    string
	DataDir  string

	WebhookSecret   string
	BridgeAuthToken string
	DevBypass       bool

	MessageTTL      time.Duration
	BlobTTL         time.Duration
	DispatchTick    time.Duration
	SweepInterval   time.Duration
	HeartbeatWindow time.Duration

	LLMProxyURL    string
	LLMProxyAPIKey string
	TTSProviderURL string
}

// FromEnv builds a Config purely from environment variables and defaults,
// skipping any YAML file lookup.
func FromEnv() Config {
	cfg := defaultConfig()
	applyEnv(&cfg)
	return cfg
}

// FromYAMLAndEnv builds a Config by layering defaults, then an optional YAML
// file, then environment variables, mirroring the teacher's file-then-env
// precedence for the gateway process.
func FromYAMLAndEnv() (Config, error) {
	cfg := defaultConfig()

	fileCfg, err := loadFileConfig()
	if err != nil {
		return Config{}, err
	}
	if err := applyYAML(&cfg, fileCfg.Core); err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)

	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		HTTPAddr:        DefaultHTTPAddr,
		DBDriver:        DefaultDBDriver,
		DBDSN:           DefaultDBDSN,
		DataDir:         resolveQuackstackPath("", "data"),
		MessageTTL:      DefaultMessageTTL,
		BlobTTL:         DefaultBlobTTL,
		DispatchTick:    DefaultDispatchTick,
		SweepInterval:   DefaultSweepInterval,
		HeartbeatWindow: DefaultHeartbeatWindow,
	}
}

func applyYAML(cfg *Config, source fileCoreConfig) error {
	if value := strings.TrimSpace(source.HTTPAddr); value != "" {
		cfg.HTTPAddr = value
	}
	if value := strings.TrimSpace(source.DBDriver); value != "" {
		cfg.DBDriver = strings.ToLower(value)
	}
	if value := strings.TrimSpace(source.DBDSN); value != "" {
		cfg.DBDSN = value
	}
	if value := strings.TrimSpace(source.DataDir); value != "" {
		cfg.DataDir = resolveQuackstackPath(value)
	}
	if value := strings.TrimSpace(source.WebhookSecret); value != "" {
		cfg.WebhookSecret = value
	}
	if value := strings.TrimSpace(source.BridgeAuthToken); value != "" {
		cfg.BridgeAuthToken = value
	}
	if source.DevBypass {
		cfg.DevBypass = true
	}

	var err error
	if cfg.MessageTTL, err = parseOptionalDuration(source.MessageTTL, cfg.MessageTTL, "core.message_ttl"); err != nil {
		return err
	}
	if cfg.BlobTTL, err = parseOptionalDuration(source.BlobTTL, cfg.BlobTTL, "core.blob_ttl"); err != nil {
		return err
	}
	if cfg.DispatchTick, err = parseOptionalDuration(source.DispatchTick, cfg.DispatchTick, "core.dispatch_tick"); err != nil {
		return err
	}
	if cfg.SweepInterval, err = parseOptionalDuration(source.SweepInterval, cfg.SweepInterval, "core.sweep_interval"); err != nil {
		return err
	}
	if cfg.HeartbeatWindow, err = parseOptionalDuration(source.HeartbeatWindow, cfg.HeartbeatWindow, "core.heartbeat_window"); err != nil {
		return err
	}

	if value := strings.TrimSpace(source.LLMProxyURL); value != "" {
		cfg.LLMProxyURL = value
	}
	if value := strings.TrimSpace(source.LLMProxyAPIKey); value != "" {
		cfg.LLMProxyAPIKey = value
	}
	if value := strings.TrimSpace(source.TTSProviderURL); value != "" {
		cfg.TTSProviderURL = value
	}

	return nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = envOrDefault(EnvHTTPAddr, cfg.HTTPAddr)
	cfg.DBDriver = strings.ToLower(envOrDefault(EnvDBDriver, cfg.DBDriver))
	cfg.DBDSN = envOrDefault(EnvDBDSN, cfg.DBDSN)
	if dataDir := envString(EnvDataDir); dataDir != "" {
		cfg.DataDir = resolveQuackstackPath(dataDir)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = resolveQuackstackPath("", "data")
	}
	cfg.WebhookSecret = envOrDefault(EnvWebhookSecret, cfg.WebhookSecret)
	cfg.BridgeAuthToken = envOrDefault(EnvBridgeAuthToken, cfg.BridgeAuthToken)
	cfg.DevBypass = parseBoolEnv(EnvDevBypass, cfg.DevBypass)

	cfg.MessageTTL = parseOptionalDurationEnv(EnvMessageTTL, cfg.MessageTTL)
	cfg.BlobTTL = parseOptionalDurationEnv(EnvBlobTTL, cfg.BlobTTL)
	cfg.DispatchTick = parseOptionalDurationEnv(EnvDispatchTick, cfg.DispatchTick)
	cfg.SweepInterval = parseOptionalDurationEnv(EnvSweepInterval, cfg.SweepInterval)
	cfg.HeartbeatWindow = parseOptionalDurationEnv(EnvHeartbeatWindow, cfg.HeartbeatWindow)

	cfg.LLMProxyURL = envOrDefault(EnvLLMProxyURL, cfg.LLMProxyURL)
	cfg.LLMProxyAPIKey = envOrDefault(EnvLLMProxyAPIKey, cfg.LLMProxyAPIKey)
	cfg.TTSProviderURL = envOrDefault(EnvTTSProviderURL, cfg.TTSProviderURL)
}

// Validate returns a descriptive error for any field that would make the
// process unsafe or impossible to start.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("%s must not be empty", EnvHTTPAddr)
	}
	switch strings.ToLower(strings.TrimSpace(c.DBDriver)) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%s must be sqlite or postgres", EnvDBDriver)
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		return fmt.Errorf("%s must not be empty", EnvDBDSN)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("%s must not be empty", EnvDataDir)
	}
	if c.MessageTTL <= 0 {
		return fmt.Errorf("%s must be > 0", EnvMessageTTL)
	}
	if c.BlobTTL <= 0 {
		return fmt.Errorf("%s must be > 0", EnvBlobTTL)
	}
	if c.DispatchTick <= 0 {
		return fmt.Errorf("%s must be > 0", EnvDispatchTick)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%s must be > 0", EnvSweepInterval)
	}
	if c.HeartbeatWindow <= 0 {
		return fmt.Errorf("%s must be > 0", EnvHeartbeatWindow)
	}
	return nil
}
