package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/driftwatch/backend/internal/infrastructure/config"
)

// GetDBPath 获取 driftwatch 数据库路径
// Windows: %USERPROFILE%\.driftwatch\driftwatch.db
// macOS/Linux: ~/.driftwatch/driftwatch.db
func GetDBPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".driftwatch", "driftwatch.db"), nil
}

// OpenDB 打开数据库连接
// path 为空时使用默认路径
func OpenDB(path string) (*sql.DB, error) {
	if path == "" {
		defaultPath, err := GetDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get database path: %w", err)
		}
		path = defaultPath
	}

	// 确保目录存在
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// InitDatabase 初始化表结构
func InitDatabase(db *sql.DB) error {
	createSegmentsSQL := `
	CREATE TABLE IF NOT EXISTS segments (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		start_index INTEGER NOT NULL,
		end_index INTEGER NOT NULL,
		anchor_embedding TEXT,
		summary TEXT,
		topic_label TEXT,
		parent_segment_id TEXT,
		divergence_score REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);`

	if _, err := db.Exec(createSegmentsSQL); err != nil {
		return fmt.Errorf("failed to create segments table: %w", err)
	}

	createSegmentsIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_segments_conversation ON segments(conversation_id);`

	if _, err := db.Exec(createSegmentsIndexSQL); err != nil {
		return fmt.Errorf("failed to create segments index: %w", err)
	}

	createReportsSQL := `
	CREATE TABLE IF NOT EXISTS divergence_reports (
		conversation_id TEXT PRIMARY KEY,
		overall_score REAL NOT NULL,
		embedding_drift_score REAL NOT NULL,
		topic_entropy_score REAL NOT NULL,
		topic_transition_score REAL NOT NULL,
		llm_relevance_score REAL NOT NULL,
		metrics TEXT NOT NULL,
		num_segments INTEGER NOT NULL,
		should_split INTEGER NOT NULL,
		suggested_split_points TEXT NOT NULL,
		interpretation TEXT NOT NULL,
		computed_at INTEGER NOT NULL
	);`

	if _, err := db.Exec(createReportsSQL); err != nil {
		return fmt.Errorf("failed to create divergence_reports table: %w", err)
	}

	createLinksSQL := `
	CREATE TABLE IF NOT EXISTS segment_links (
		id TEXT PRIMARY KEY,
		source_segment_id TEXT NOT NULL,
		target_segment_id TEXT NOT NULL,
		link_type TEXT NOT NULL,
		similarity_score REAL NOT NULL,
		created_at INTEGER NOT NULL
	);`

	if _, err := db.Exec(createLinksSQL); err != nil {
		return fmt.Errorf("failed to create segment_links table: %w", err)
	}

	createLinksIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_segment_links_source ON segment_links(source_segment_id);`

	if _, err := db.Exec(createLinksIndexSQL); err != nil {
		return fmt.Errorf("failed to create segment_links index: %w", err)
	}

	createQueueSQL := `
	CREATE TABLE IF NOT EXISTS analysis_queue (
		conversation_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		queued_at INTEGER NOT NULL,
		started_at INTEGER NOT NULL DEFAULT 0,
		completed_at INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);`

	if _, err := db.Exec(createQueueSQL); err != nil {
		return fmt.Errorf("failed to create analysis_queue table: %w", err)
	}

	createQueueIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_analysis_queue_status ON analysis_queue(status);`

	if _, err := db.Exec(createQueueIndexSQL); err != nil {
		return fmt.Errorf("failed to create analysis_queue index: %w", err)
	}

	return nil
}

// ProvideDB 打开并初始化数据库（wire provider）
func ProvideDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := OpenDB(cfg.Path)
	if err != nil {
		return nil, err
	}

	if err := InitDatabase(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}
