//go:build integration
// +build integration

package framework

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// CreateSourceDB 创建带表结构的空会话源库
func CreateSourceDB(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer db.Close()

	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			updated_at INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS messages (
			conversation_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			timestamp INTEGER,
			PRIMARY KEY (conversation_id, idx)
		);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create source schema: %w", err)
	}
	return nil
}

// SeedConversation 向会话源库写入一个会话
// 消息按 user/assistant 交替生成，updated_at 取当前时间
func SeedConversation(path, conversationID string, texts []string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO conversations (id, updated_at) VALUES (?, ?)",
		conversationID, now,
	); err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}

	for i, text := range texts {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO messages (conversation_id, idx, role, text, timestamp) VALUES (?, ?, ?, ?, ?)",
			conversationID, i, role, text, now+int64(i),
		); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// ConversationTexts 生成指定数量的会话文本
// 每条文本都足够长，不会被主题分析按短文本过滤
func ConversationTexts(n int, topic string) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("%s discussion message number %d with enough detail to analyze", topic, i)
	}
	return texts
}
