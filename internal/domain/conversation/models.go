package conversation

// Role 消息角色
type Role string

// 角色常量
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 会话消息
// 外部只读输入，索引即消息在会话中的零基位置
type Message struct {
	Role      Role   // 消息角色
	Text      string // 消息文本内容
	Timestamp int64  // 消息时间戳（Unix 秒，可能为 0）
}

// IsUser 是否为用户消息
func (m *Message) IsUser() bool {
	return m.Role == RoleUser
}

// Texts 提取消息文本列表（保持顺序）
func Texts(messages []Message) []string {
	texts := make([]string, len(messages))
	for i, msg := range messages {
		texts[i] = msg.Text
	}
	return texts
}

// FirstUserText 返回第一条用户消息的文本，不存在时返回空字符串
func FirstUserText(messages []Message) string {
	for _, msg := range messages {
		if msg.IsUser() {
			return msg.Text
		}
	}
	return ""
}
