package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/driftwatch/backend/internal/infrastructure/credentials"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath 默认配置文件路径 ~/.driftwatch/config.yaml
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".driftwatch", "config.yaml"), nil
}

// Load 加载配置
// 配置文件不存在时返回默认配置；存在但解析失败时返回错误
func Load() (*Config, error) {
	cfg := NewConfig()

	path := os.Getenv("DRIFTWATCH_CONFIG")
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			applyCredentials(cfg)
			return cfg, nil
		}
		path = defaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyCredentials(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyCredentials(cfg)
	return cfg, nil
}

// applyCredentials 用加密凭据库补齐 yaml 中留空的 API key
// 凭据库不可用时静默跳过，yaml 中的明文 key 始终优先
func applyCredentials(cfg *Config) {
	if cfg.Embedding.APIKey != "" && cfg.Judge.APIKey != "" {
		return
	}

	store, err := credentials.NewStore("")
	if err != nil {
		return
	}
	creds, err := store.Read()
	if err != nil {
		return
	}

	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = creds.EmbeddingAPIKey
	}
	if cfg.Judge.APIKey == "" {
		cfg.Judge.APIKey = creds.JudgeAPIKey
	}
}
