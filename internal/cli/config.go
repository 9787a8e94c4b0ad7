package cli

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultServerURL = "http://localhost:8430"

type CLIConfig struct {
	ServerURL string `yaml:"server_url"`
}

func loadCLIConfig() *CLIConfig {
	cfg := &CLIConfig{ServerURL: defaultServerURL}

	configPath := flagConfig
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg
		}
		configPath = filepath.Join(home, ".engram", "config.yaml")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, cfg)

	if cfg.ServerURL == "" {
		cfg.ServerURL = defaultServerURL
	}
	return cfg
}

func getServerURL() string {
	if flagServerURL != "" {
		return flagServerURL
	}
	if v := os.Getenv("ENGRAM_SERVER"); v != "" {
		return v
	}
	return loadCLIConfig().ServerURL
}
