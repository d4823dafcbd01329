package divergence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/driftwatch/backend/internal/domain/conversation"
	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
	"github.com/driftwatch/backend/internal/infrastructure/log"
)

// judge 分析参数
const (
	// judgeBatchSize 单次 LLM 调用分类的消息数上限
	judgeBatchSize = 10

	// maxJudgeMessageRunes 进入 prompt 的单条消息截断长度
	maxJudgeMessageRunes = 1000

	// maxSummaryRunes 降级摘要的截断长度
	maxSummaryRunes = 200
)

// TokenCounter token 计数能力接口
type TokenCounter interface {
	CountTokens(text string) int
}

// JudgeAnalyzer LLM judge 分析器
// 让 LLM 逐消息判断与会话原始主题的关系；所有失败路径都退化为中性分类，
// 保证 judge 作为可选信号永不阻断分析
type JudgeAnalyzer struct {
	provider          JudgeProvider
	tokens            TokenCounter
	contextMessages   int
	promptTokenBudget int
	logger            *slog.Logger
}

// NewJudgeAnalyzer 创建 judge 分析器
// provider 为 nil 表示 judge 未启用，所有分类返回中性默认值
func NewJudgeAnalyzer(provider JudgeProvider, tokens TokenCounter, contextMessages, promptTokenBudget int) *JudgeAnalyzer {
	if contextMessages < 1 {
		contextMessages = 1
	}

	return &JudgeAnalyzer{
		provider:          provider,
		tokens:            tokens,
		contextMessages:   contextMessages,
		promptTokenBudget: promptTokenBudget,
		logger:            log.NewModuleLogger("divergence", "judge"),
	}
}

// Enabled judge 是否可用
func (a *JudgeAnalyzer) Enabled() bool {
	return a.provider != nil
}

// ClassifyConversation 对整个会话逐消息分类
// 按批次调用 LLM，批内失败时整批退化为中性分类；返回结果与消息一一对应
func (a *JudgeAnalyzer) ClassifyConversation(messages []conversation.Message) []domainDiv.Classification {
	classifications := make([]domainDiv.Classification, len(messages))
	for i := range classifications {
		classifications[i] = domainDiv.NeutralClassification()
	}

	if a.provider == nil || len(messages) == 0 {
		return classifications
	}

	originalTopic := truncateRunes(conversation.FirstUserText(messages), maxJudgeMessageRunes)

	for start := 0; start < len(messages); start += judgeBatchSize {
		end := start + judgeBatchSize
		if end > len(messages) {
			end = len(messages)
		}

		batch, err := a.classifyBatch(originalTopic, messages, start, end)
		if err != nil {
			a.logger.Warn("Judge batch failed, using neutral classifications",
				"start", start,
				"end", end,
				"error", err,
			)
			continue
		}

		copy(classifications[start:end], batch)
	}

	return classifications
}

// ClassifyMessage 对单条消息分类
// 任何失败都返回中性分类
func (a *JudgeAnalyzer) ClassifyMessage(messages []conversation.Message, index int) domainDiv.Classification {
	if a.provider == nil || index < 0 || index >= len(messages) {
		return domainDiv.NeutralClassification()
	}

	originalTopic := truncateRunes(conversation.FirstUserText(messages), maxJudgeMessageRunes)

	batch, err := a.classifyBatch(originalTopic, messages, index, index+1)
	if err != nil || len(batch) != 1 {
		a.logger.Warn("Judge single-message classification failed, using neutral",
			"index", index,
			"error", err,
		)
		return domainDiv.NeutralClassification()
	}

	return batch[0]
}

// Summarize 生成片段摘要
// LLM 不可用或调用失败时降级为首条用户消息的截断文本
func (a *JudgeAnalyzer) Summarize(messages []conversation.Message) string {
	fallback := truncateRunes(conversation.FirstUserText(messages), maxSummaryRunes)

	if a.provider == nil || len(messages) == 0 {
		return fallback
	}

	var sb strings.Builder
	sb.WriteString("Summarize the following conversation excerpt in one sentence (max 30 words). ")
	sb.WriteString("Respond with the sentence only, no preamble.\n\n")
	for _, msg := range messages {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", msg.Role, truncateRunes(msg.Text, maxJudgeMessageRunes)))
	}

	response, err := a.provider.Complete(sb.String())
	if err != nil {
		a.logger.Warn("Summary generation failed, falling back to first user message",
			"error", err,
		)
		return fallback
	}

	summary := strings.TrimSpace(response)
	if summary == "" {
		return fallback
	}
	return summary
}

// classifyBatch 分类 [start, end) 区间的消息
func (a *JudgeAnalyzer) classifyBatch(originalTopic string, messages []conversation.Message, start, end int) ([]domainDiv.Classification, error) {
	prompt := a.buildBatchPrompt(originalTopic, messages, start, end)

	response, err := a.provider.Complete(prompt)
	if err != nil {
		return nil, &domainDiv.ProviderCallError{Provider: "judge", Err: err}
	}

	return a.parseBatchResponse(response, end-start)
}

// buildBatchPrompt 构造批量分类 prompt
// 上下文窗口从批次起点向前取 contextMessages 条，超出 token 预算时丢弃最旧的
func (a *JudgeAnalyzer) buildBatchPrompt(originalTopic string, messages []conversation.Message, start, end int) string {
	var target strings.Builder
	for i := start; i < end; i++ {
		target.WriteString(fmt.Sprintf("%d. [%s] %s\n", i-start+1, messages[i].Role, truncateRunes(messages[i].Text, maxJudgeMessageRunes)))
	}

	// 前文上下文
	ctxStart := start - a.contextMessages
	if ctxStart < 0 {
		ctxStart = 0
	}
	contextLines := make([]string, 0, start-ctxStart)
	for i := ctxStart; i < start; i++ {
		contextLines = append(contextLines, fmt.Sprintf("[%s] %s", messages[i].Role, truncateRunes(messages[i].Text, maxJudgeMessageRunes)))
	}

	build := func(lines []string) string {
		var sb strings.Builder
		sb.WriteString("You are analyzing topic drift in a conversation.\n\n")
		sb.WriteString("Original topic (first user message):\n")
		sb.WriteString(originalTopic)
		sb.WriteString("\n\n")
		if len(lines) > 0 {
			sb.WriteString("Recent context:\n")
			for _, line := range lines {
				sb.WriteString(line)
				sb.WriteString("\n")
			}
			sb.WriteString("\n")
		}
		sb.WriteString("For each numbered message below, classify its relationship to the ORIGINAL topic.\n")
		sb.WriteString("Relations: continuing, clarifying, drilling, branching, tangent, concluding, returning.\n")
		sb.WriteString("Respond with a JSON array, one object per message, in order:\n")
		sb.WriteString(`[{"relation": "...", "relevance_score": 0-10, "suggested_break": true/false, "reasoning": "..."}]`)
		sb.WriteString("\n\nMessages:\n")
		sb.WriteString(target.String())
		return sb.String()
	}

	prompt := build(contextLines)

	// 超出预算时逐条丢弃最旧的上下文
	if a.tokens != nil && a.promptTokenBudget > 0 {
		for len(contextLines) > 0 && a.tokens.CountTokens(prompt) > a.promptTokenBudget {
			contextLines = contextLines[1:]
			prompt = build(contextLines)
		}
	}

	return prompt
}

// parseBatchResponse 解析 LLM 返回的 JSON 数组
func (a *JudgeAnalyzer) parseBatchResponse(response string, want int) ([]domainDiv.Classification, error) {
	cleaned := extractJSONArray(response)
	if cleaned == "" {
		return nil, &domainDiv.ValidationError{Provider: "judge", Detail: "no JSON array found in output"}
	}

	var raw []domainDiv.Classification
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, &domainDiv.ValidationError{Provider: "judge", Detail: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if len(raw) != want {
		return nil, &domainDiv.ValidationError{
			Provider: "judge",
			Detail:   fmt.Sprintf("expected %d classifications, got %d", want, len(raw)),
		}
	}

	for i := range raw {
		if !isKnownRelation(raw[i].Relation) {
			raw[i].Relation = domainDiv.RelationContinuing
		}
		if raw[i].RelevanceScore < 0 {
			raw[i].RelevanceScore = 0
		}
		if raw[i].RelevanceScore > 10 {
			raw[i].RelevanceScore = 10
		}
	}

	return raw, nil
}

// isKnownRelation 是否为已知的关系类型
func isKnownRelation(relation string) bool {
	switch relation {
	case domainDiv.RelationContinuing, domainDiv.RelationClarifying, domainDiv.RelationDrilling,
		domainDiv.RelationBranching, domainDiv.RelationTangent, domainDiv.RelationConcluding,
		domainDiv.RelationReturning:
		return true
	}
	return false
}

// extractJSONArray 从 LLM 输出中提取 JSON 数组文本
// 兼容 markdown 代码块包裹与前后缀废话
func extractJSONArray(response string) string {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return cleaned[start : end+1]
}

// truncateRunes 按 rune 截断文本
func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
