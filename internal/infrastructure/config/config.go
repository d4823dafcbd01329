package config

import "time"

// Config 应用配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Source    SourceConfig    `yaml:"source"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Topics    TopicsConfig    `yaml:"topics"`
	Judge     JudgeConfig     `yaml:"judge"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Batch     BatchConfig     `yaml:"batch"`
	Vector    VectorConfig    `yaml:"vector"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// ServerConfig 服务器配置
// MCP 的 SSE 端点与 HTTP 服务共用同一端口
type ServerConfig struct {
	HTTPPort string `yaml:"http_port"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Path 数据库文件路径，留空使用 ~/.driftwatch/driftwatch.db
	Path string `yaml:"path"`
}

// SourceConfig 会话数据源配置
type SourceConfig struct {
	// ConversationDBPath 会话库 sqlite 文件路径
	ConversationDBPath string `yaml:"conversation_db_path"`

	// WatchEnabled 是否监听会话库文件变化并自动入队
	WatchEnabled bool `yaml:"watch_enabled"`
}

// EmbeddingConfig 向量服务配置
type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// Enabled 向量服务是否已配置
func (c *EmbeddingConfig) Enabled() bool {
	return c.BaseURL != ""
}

// TopicsConfig 主题模型服务配置
type TopicsConfig struct {
	BaseURL string `yaml:"base_url"`
}

// Enabled 主题模型服务是否已配置
func (c *TopicsConfig) Enabled() bool {
	return c.BaseURL != ""
}

// JudgeConfig LLM judge 配置
type JudgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`

	// ContextMessages judge 上下文携带的最近消息数
	ContextMessages int `yaml:"context_messages"`

	// PromptTokenBudget 单次请求的 prompt token 上限
	PromptTokenBudget int `yaml:"prompt_token_budget"`
}

// AnalysisConfig 分析参数配置
type AnalysisConfig struct {
	AnchorWindow      int     `yaml:"anchor_window"`
	RollingWindow     int     `yaml:"rolling_window"`
	DriftThreshold    float64 `yaml:"drift_threshold"`
	ReturnThreshold   float64 `yaml:"return_threshold"`
	MinSegmentLength  int     `yaml:"min_segment_length"`
	GenerateSummaries bool    `yaml:"generate_summaries"`
}

// BatchConfig 批处理配置
type BatchConfig struct {
	// PollInterval 后台 worker 轮询间隔
	PollInterval time.Duration `yaml:"poll_interval"`

	// BatchSize 每轮处理的队列条目上限
	BatchSize int `yaml:"batch_size"`
}

// VectorConfig 可选 Qdrant 向量索引配置
// 未启用时相似度查询走 sqlite 全量扫描
type VectorConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// WebSocketConfig WebSocket 配置
type WebSocketConfig struct {
	ReadBufferSize  int `yaml:"read_buffer_size"`
	WriteBufferSize int `yaml:"write_buffer_size"`
}

// NewConfig 创建配置（默认值）
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: ":19970",
		},
		Database: DatabaseConfig{
			Path: "",
		},
		Source: SourceConfig{
			ConversationDBPath: "",
			WatchEnabled:       true,
		},
		Embedding: EmbeddingConfig{
			Model: "text-embedding-3-small",
		},
		Judge: JudgeConfig{
			Enabled:           false,
			Model:             "gpt-4o-mini",
			ContextMessages:   6,
			PromptTokenBudget: 2000,
		},
		Analysis: AnalysisConfig{
			AnchorWindow:      3,
			RollingWindow:     3,
			DriftThreshold:    0.35,
			ReturnThreshold:   0.25,
			MinSegmentLength:  3,
			GenerateSummaries: false,
		},
		Batch: BatchConfig{
			PollInterval: 30 * time.Second,
			BatchSize:    5,
		},
		Vector: VectorConfig{
			Enabled:    false,
			Host:       "localhost",
			Port:       6334,
			Collection: "driftwatch_segments",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// NewDatabaseConfig 创建数据库配置
func NewDatabaseConfig(cfg *Config) *DatabaseConfig {
	return &cfg.Database
}

// NewServerConfig 创建服务器配置
func NewServerConfig(cfg *Config) *ServerConfig {
	return &cfg.Server
}

// NewSourceConfig 创建数据源配置
func NewSourceConfig(cfg *Config) *SourceConfig {
	return &cfg.Source
}

// NewEmbeddingConfig 创建向量服务配置
func NewEmbeddingConfig(cfg *Config) *EmbeddingConfig {
	return &cfg.Embedding
}

// NewTopicsConfig 创建主题模型服务配置
func NewTopicsConfig(cfg *Config) *TopicsConfig {
	return &cfg.Topics
}

// NewJudgeConfig 创建 judge 配置
func NewJudgeConfig(cfg *Config) *JudgeConfig {
	return &cfg.Judge
}

// NewAnalysisConfig 创建分析参数配置
func NewAnalysisConfig(cfg *Config) *AnalysisConfig {
	return &cfg.Analysis
}

// NewBatchConfig 创建批处理配置
func NewBatchConfig(cfg *Config) *BatchConfig {
	return &cfg.Batch
}

// NewVectorConfig 创建向量索引配置
func NewVectorConfig(cfg *Config) *VectorConfig {
	return &cfg.Vector
}
