package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the environment variable that, if set, points directly
// at the YAML config file, bypassing the local/home search.
const EnvConfigFile = "QUACK_CONFIG_FILE"

// fileConfig is the top-level shape of an optional ".quackstack/config.yaml".
type fileConfig struct {
	Core fileCoreConfig `yaml:"core"`
}

type fileCoreConfig struct {
	HTTPAddr        string `yaml:"http_addr"`
	DBDriver        string `yaml:"db_driver"`
	DBDSN           string `yaml:"db_dsn"`
	DataDir         string `yaml:"data_dir"`
	WebhookSecret   string `yaml:"webhook_secret"`
	BridgeAuthToken string `yaml:"bridge_auth_token"`
	DevBypass       bool   `yaml:"dev_bypass"`

	MessageTTL      string `yaml:"message_ttl"`
	BlobTTL         string `yaml:"blob_ttl"`
	DispatchTick    string `yaml:"dispatch_tick"`
	SweepInterval   string `yaml:"sweep_interval"`
	HeartbeatWindow string `yaml:"heartbeat_window"`

	LLMProxyURL    string `yaml:"llm_proxy_url"`
	LLMProxyAPIKey string `yaml:"llm_proxy_api_key"`
	TTSProviderURL string `yaml:"tts_provider_url"`
}

// resolveConfigFilePath decides which YAML file, if any, backs the config.
// It checks QUACK_CONFIG_FILE, then config.yaml or config.yml under a single
// root: "./.quackstack" if that directory exists, otherwise the home
// directory's ".quackstack".
func resolveConfigFilePath() string {
	if explicit := envString(EnvConfigFile); explicit != "" {
		return expandPath(explicit)
	}

	candidates := []string{
		defaultQuackstackPath("config.yaml"),
		defaultQuackstackPath("config.yml"),
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// loadFileConfig reads and parses the resolved YAML config file. A missing
// file is not an error: it simply yields a zero-value fileConfig so that
// environment variables alone remain a fully valid configuration source.
func loadFileConfig() (fileConfig, error) {
	path := resolveConfigFilePath()
	if path == "" {
		return fileConfig{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileConfig{}, nil
		}
		return fileConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var parsed fileConfig
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fileConfig{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return parsed, nil
}
