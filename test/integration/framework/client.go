//go:build integration
// +build integration

package framework

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client driftwatch-backend HTTP API 客户端
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient 创建 API 客户端
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// envelope 统一响应结构
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
	Data    json.RawMessage `json:"data"`
}

// APIError 非 2xx 响应
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%d message=%s detail=%s",
		e.StatusCode, e.Code, e.Message, e.Detail)
}

// IsNotFound 是否为 404 错误
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// do 执行请求并解包响应信封
func (c *Client) do(method, path string, body any, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       env.Code,
			Message:    env.Message,
			Detail:     env.Detail,
		}
	}

	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// Report 会话漂移报告
type Report struct {
	ConversationID       string
	OverallScore         float64
	EmbeddingDriftScore  float64
	TopicEntropyScore    float64
	TopicTransitionScore float64
	LLMRelevanceScore    float64
	NumSegments          int
	ShouldSplit          bool
	SuggestedSplitPoints []int
	Interpretation       string
}

// Segment 主题片段
type Segment struct {
	ID              string
	ConversationID  string
	StartIndex      int
	EndIndex        int
	Summary         string
	TopicLabel      string
	ParentSegmentID string
	DivergenceScore float64
}

// AnalyzeResult 分析响应
type AnalyzeResult struct {
	Report   *Report   `json:"report"`
	Segments []Segment `json:"segments"`
}

// BackfillResult 回填计数
type BackfillResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// QueueStats 队列统计
type QueueStats struct {
	PendingCount    int `json:"pending_count"`
	ProcessingCount int `json:"processing_count"`
	CompletedCount  int `json:"completed_count"`
	FailedCount     int `json:"failed_count"`
}

// QueueStatsResult 队列统计响应
type QueueStatsResult struct {
	Stats         QueueStats `json:"stats"`
	WorkerRunning bool       `json:"worker_running"`
}

// Health 健康检查
func (c *Client) Health() error {
	resp, err := c.http.Get(c.baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Analyze 分析单个会话
func (c *Client) Analyze(conversationID string) (*AnalyzeResult, error) {
	var result AnalyzeResult
	err := c.do(http.MethodPost, "/api/v1/divergence/analyze",
		map[string]string{"conversation_id": conversationID}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetReport 获取会话漂移报告，未分析的会话返回 nil
func (c *Client) GetReport(conversationID string) (*Report, error) {
	var report Report
	err := c.do(http.MethodGet, "/api/v1/divergence/reports/"+conversationID, nil, &report)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &report, nil
}

// GetSegments 获取会话片段列表
func (c *Client) GetSegments(conversationID string) ([]Segment, error) {
	var segments []Segment
	err := c.do(http.MethodGet, "/api/v1/divergence/segments/"+conversationID, nil, &segments)
	if err != nil {
		return nil, err
	}
	return segments, nil
}

// FindSimilar 检索相似片段
func (c *Client) FindSimilar(segmentID string) error {
	return c.do(http.MethodGet, "/api/v1/segments/"+segmentID+"/similar", nil, nil)
}

// Backfill 执行全量回填
func (c *Client) Backfill(maxConversations int, skipExisting bool) (*BackfillResult, error) {
	var result BackfillResult
	err := c.do(http.MethodPost, "/api/v1/batch/backfill", map[string]any{
		"max_conversations": maxConversations,
		"skip_existing":     skipExisting,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Enqueue 将会话加入分析队列
func (c *Client) Enqueue(conversationID string, priority int) error {
	return c.do(http.MethodPost, "/api/v1/batch/enqueue", map[string]any{
		"conversation_id": conversationID,
		"priority":        priority,
	}, nil)
}

// QueueStats 查询队列统计
func (c *Client) QueueStats() (*QueueStatsResult, error) {
	var result QueueStatsResult
	err := c.do(http.MethodGet, "/api/v1/batch/queue/stats", nil, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ResetFailed 重置失败的队列条目
func (c *Client) ResetFailed() (int, error) {
	var result struct {
		Reset int `json:"reset"`
	}
	err := c.do(http.MethodPost, "/api/v1/batch/queue/reset-failed", nil, &result)
	if err != nil {
		return 0, err
	}
	return result.Reset, nil
}
