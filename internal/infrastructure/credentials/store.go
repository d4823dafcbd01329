package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Credentials API 凭据集合
// 落盘时 key 字段加密存储，读取时透明解密
type Credentials struct {
	EmbeddingAPIKey string `json:"embedding_api_key"`
	JudgeAPIKey     string `json:"judge_api_key"`
}

// Store 凭据存储
// API key 不进明文 yaml 配置，单独保存在加密的 credentials.json 中
type Store struct {
	filePath   string
	encryptKey *EncryptionKey
}

// NewStore 创建凭据存储
// dir 为空时使用 ~/.driftwatch
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".driftwatch")
	}

	encryptKey, err := NewEncryptionKey(filepath.Join(dir, ".credentials_key"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encryption key: %w", err)
	}

	return &Store{
		filePath:   filepath.Join(dir, "credentials.json"),
		encryptKey: encryptKey,
	}, nil
}

// Read 读取凭据，文件不存在时返回空凭据
func (s *Store) Read() (*Credentials, error) {
	if _, err := os.Stat(s.filePath); os.IsNotExist(err) {
		return &Credentials{}, nil
	}

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	if creds.EmbeddingAPIKey != "" {
		if decrypted, err := s.encryptKey.Decrypt(creds.EmbeddingAPIKey); err == nil {
			creds.EmbeddingAPIKey = decrypted
		}
	}
	if creds.JudgeAPIKey != "" {
		if decrypted, err := s.encryptKey.Decrypt(creds.JudgeAPIKey); err == nil {
			creds.JudgeAPIKey = decrypted
		}
	}

	return &creds, nil
}

// Write 写入凭据，key 字段加密后落盘
func (s *Store) Write(creds *Credentials) error {
	encrypted := *creds
	if encrypted.EmbeddingAPIKey != "" {
		if ciphertext, err := s.encryptKey.Encrypt(encrypted.EmbeddingAPIKey); err == nil {
			encrypted.EmbeddingAPIKey = ciphertext
		}
	}
	if encrypted.JudgeAPIKey != "" {
		if ciphertext, err := s.encryptKey.Encrypt(encrypted.JudgeAPIKey); err == nil {
			encrypted.JudgeAPIKey = ciphertext
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	data, err := json.MarshalIndent(&encrypted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}

	return nil
}
