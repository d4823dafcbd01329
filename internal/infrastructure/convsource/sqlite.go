package convsource

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/driftwatch/backend/internal/domain/conversation"
	"github.com/driftwatch/backend/internal/infrastructure/config"
	"github.com/driftwatch/backend/internal/infrastructure/log"
)

// 确保 SQLiteSource 实现了 conversation.Source 接口
var _ conversation.Source = (*SQLiteSource)(nil)

// SQLiteSource 基于 sqlite 的会话数据源
// 只读访问外部会话库：conversations(id, updated_at) 与
// messages(conversation_id, idx, role, text, timestamp)
type SQLiteSource struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteSource 打开会话库
func NewSQLiteSource(path string) (*SQLiteSource, error) {
	if path == "" {
		return nil, fmt.Errorf("conversation database path not configured")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping conversation database: %w", err)
	}

	return &SQLiteSource{
		db:     db,
		logger: log.NewModuleLogger("convsource", "sqlite"),
	}, nil
}

// ListConversationIDs 列出所有会话 ID
func (s *SQLiteSource) ListConversationIDs() ([]string, error) {
	rows, err := s.db.Query("SELECT id FROM conversations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetMessages 获取会话的全部消息（按消息索引升序）
// 未知会话 ID 返回空列表
func (s *SQLiteSource) GetMessages(conversationID string) ([]conversation.Message, error) {
	query := `
		SELECT role, text, timestamp
		FROM messages
		WHERE conversation_id = ?
		ORDER BY idx ASC`

	rows, err := s.db.Query(query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var messages []conversation.Message
	for rows.Next() {
		var msg conversation.Message
		var role string
		var timestamp sql.NullInt64

		if err := rows.Scan(&role, &msg.Text, &timestamp); err != nil {
			return nil, err
		}

		msg.Role = conversation.Role(role)
		if timestamp.Valid {
			msg.Timestamp = timestamp.Int64
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// UpdatedSince 返回指定时间之后有更新的会话 ID
func (s *SQLiteSource) UpdatedSince(unixTime int64) ([]string, error) {
	rows, err := s.db.Query("SELECT id FROM conversations WHERE updated_at > ?", unixTime)
	if err != nil {
		return nil, fmt.Errorf("failed to scan updated conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close 关闭会话库连接
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// ProvideSource 提供会话数据源（wire provider）
func ProvideSource(cfg *config.SourceConfig) (conversation.Source, error) {
	source, err := NewSQLiteSource(cfg.ConversationDBPath)
	if err != nil {
		return nil, err
	}
	return source, nil
}
