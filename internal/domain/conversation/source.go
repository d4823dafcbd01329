package conversation

// Source 会话数据源
// 外部协作方：返回按顺序排列的消息列表
// 未知会话 ID 返回空列表而不是错误（无消息是合法情况，调用方跳过即可）
type Source interface {
	// ListConversationIDs 列出所有会话 ID
	ListConversationIDs() ([]string, error)

	// GetMessages 获取会话的全部消息（按消息索引升序）
	GetMessages(conversationID string) ([]Message, error)

	// UpdatedSince 返回指定时间之后有更新的会话 ID
	UpdatedSince(unixTime int64) ([]string, error)
}
