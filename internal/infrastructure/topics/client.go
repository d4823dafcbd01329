package topics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/driftwatch/backend/internal/infrastructure/log"
)

// OutlierTopicID 离群消息的主题 ID
const OutlierTopicID = -1

// Client 主题模型服务客户端
// 对接一个 BERTopic 风格的 HTTP 服务：一次请求完成拟合与分配
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient 创建主题模型客户端
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			// 拟合开销大，超时放宽
			Timeout: 120 * time.Second,
		},
		logger: log.NewModuleLogger("topics", "client"),
	}
}

// Assignment 主题分配结果
type Assignment struct {
	// TopicIDs 每条文本的主题 ID，-1 表示离群
	TopicIDs []int `json:"topic_ids"`

	// Probabilities 每条文本归属主题的概率（可选，可能为空）
	Probabilities []float64 `json:"probabilities,omitempty"`

	// Labels 主题 ID 到 top-term 标签的映射
	Labels map[int]string `json:"labels"`
}

// fitAssignRequest 拟合请求
type fitAssignRequest struct {
	Documents []string `json:"documents"`
}

// fitAssignResponse 拟合响应
type fitAssignResponse struct {
	TopicIDs      []int             `json:"topic_ids"`
	Probabilities []float64         `json:"probabilities"`
	Labels        map[string]string `json:"labels"`
}

// FitAssign 对一批文本拟合主题模型并返回逐条分配
// 返回的 TopicIDs 与输入一一对应
func (c *Client) FitAssign(texts []string) (*Assignment, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}

	jsonData, err := json.Marshal(fitAssignRequest{Documents: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/fit_assign", c.baseURL)

	c.logger.Debug("Sending topic fit request",
		"url", url,
		"documents", len(texts),
	)

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("topic service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("topic service returned status %d: %s", resp.StatusCode, string(body))
	}

	var fitResp fitAssignResponse
	if err := json.NewDecoder(resp.Body).Decode(&fitResp); err != nil {
		return nil, fmt.Errorf("failed to decode topic response: %w", err)
	}

	if len(fitResp.TopicIDs) != len(texts) {
		return nil, fmt.Errorf("topic response size mismatch: got %d, want %d",
			len(fitResp.TopicIDs), len(texts))
	}

	// JSON 对象键是字符串，转回整数主题 ID
	labels := make(map[int]string, len(fitResp.Labels))
	for key, label := range fitResp.Labels {
		var id int
		if _, err := fmt.Sscanf(key, "%d", &id); err == nil {
			labels[id] = label
		}
	}

	return &Assignment{
		TopicIDs:      fitResp.TopicIDs,
		Probabilities: fitResp.Probabilities,
		Labels:        labels,
	}, nil
}

// TestConnection 测试连接
func (c *Client) TestConnection() error {
	url := fmt.Sprintf("%s/health", c.baseURL)

	resp, err := c.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("topic service connection test failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("topic service health check returned status %d", resp.StatusCode)
	}

	c.logger.Info("Topic service connection test successful")
	return nil
}
