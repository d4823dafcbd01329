package divergence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/driftwatch/backend/internal/domain/conversation"
	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
	"github.com/driftwatch/backend/internal/infrastructure/log"
)

// stopCheckInterval 后台循环检查停止信号的步长
const stopCheckInterval = time.Second

// BatchProcessor 批处理器
// 负责全量回填与后台轮询两种工作模式，队列条目经由
// pending → processing → completed|failed 状态机流转
type BatchProcessor struct {
	source   conversation.Source
	service  *AnalysisService
	queue    domainDiv.QueueRepository
	reports  domainDiv.ReportRepository
	notifier ProgressNotifier // 可选
	logger   *slog.Logger

	pollInterval time.Duration
	batchSize    int

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	wakeCh   chan struct{}
	lastScan int64
}

// NewBatchProcessor 创建批处理器
func NewBatchProcessor(
	source conversation.Source,
	service *AnalysisService,
	queue domainDiv.QueueRepository,
	reports domainDiv.ReportRepository,
	notifier ProgressNotifier,
	pollInterval time.Duration,
	batchSize int,
) *BatchProcessor {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	if batchSize < 1 {
		batchSize = 5
	}

	return &BatchProcessor{
		source:       source,
		service:      service,
		queue:        queue,
		reports:      reports,
		notifier:     notifier,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		wakeCh:       make(chan struct{}, 1),
		logger:       log.NewModuleLogger("divergence", "batch"),
	}
}

// BackfillOptions 回填参数
type BackfillOptions struct {
	MaxConversations int  // 0 表示不限制
	SkipExisting     bool // 跳过已有报告的会话
}

// BackfillResult 回填结果计数
type BackfillResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Backfill 对候选会话逐个执行分析
// 单个会话的失败只计数并记日志，绝不中断整个批次
func (p *BatchProcessor) Backfill(ctx context.Context, opts BackfillOptions) (*BackfillResult, error) {
	ids, err := p.source.ListConversationIDs()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	var existing map[string]bool
	if opts.SkipExisting {
		existing, err = p.reports.ConversationIDsWithReport()
		if err != nil {
			return nil, fmt.Errorf("failed to load existing reports: %w", err)
		}
	}

	result := &BackfillResult{}
	total := len(ids)
	if opts.MaxConversations > 0 && total > opts.MaxConversations {
		total = opts.MaxConversations
	}

	p.logger.Info("Backfill started",
		"candidates", len(ids),
		"limit", total,
		"skip_existing", opts.SkipExisting,
	)

	for i, id := range ids {
		if opts.MaxConversations > 0 && i >= opts.MaxConversations {
			break
		}
		if ctx.Err() != nil {
			break
		}

		if opts.SkipExisting && existing[id] {
			result.Skipped++
			continue
		}

		analysis, err := p.service.AnalyzeConversation(ctx, id)
		switch {
		case err != nil:
			result.Errors++
			p.logger.Error("Backfill analysis failed",
				"conversation_id", id,
				"error", err,
			)
		case analysis == nil:
			result.Skipped++
		default:
			result.Processed++
		}

		if (i+1)%p.batchSize == 0 {
			p.broadcast("backfill_progress", map[string]any{
				"done":      i + 1,
				"total":     total,
				"processed": result.Processed,
				"skipped":   result.Skipped,
				"errors":    result.Errors,
			})
		}
	}

	p.broadcast("backfill_completed", result)

	p.logger.Info("Backfill completed",
		"processed", result.Processed,
		"skipped", result.Skipped,
		"errors", result.Errors,
	)

	return result, nil
}

// Enqueue 将会话加入分析队列
func (p *BatchProcessor) Enqueue(conversationID string, priority int) error {
	return p.queue.Enqueue(domainDiv.NewQueueEntry(conversationID, priority))
}

// TriggerScan 唤醒后台循环立即开始下一轮扫描
// 由会话库文件变更监听器调用；循环未启动时为空操作
func (p *BatchProcessor) TriggerScan() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

// StartBackground 启动后台轮询循环
// 每轮：入队自上轮以来有更新的会话，然后经认领协议消化至多 batchSize 条队列条目
func (p *BatchProcessor) StartBackground(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("background worker already running")
	}

	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.lastScan = time.Now().Unix()

	go p.runLoop(ctx)

	p.logger.Info("Background worker started",
		"poll_interval", p.pollInterval,
		"batch_size", p.batchSize,
	)

	return nil
}

// StopBackground 停止后台循环并等待其退出
// 等待有界：超时后放弃 join，循环会在当前会话分析结束后自行退出
func (p *BatchProcessor) StopBackground(timeout time.Duration) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		p.logger.Warn("Background worker did not stop within timeout",
			"timeout", timeout,
		)
		return fmt.Errorf("background worker stop timed out after %s", timeout)
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("Background worker stopped")
	return nil
}

// IsRunning 后台循环是否在运行
func (p *BatchProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// runLoop 后台主循环
func (p *BatchProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	for {
		p.enqueueUpdated()
		p.drainQueue(ctx)

		// 以 1 秒步长休眠，保证停止信号与文件变更唤醒都能及时生效
		if !p.sleepInterruptible() {
			return
		}
	}
}

// enqueueUpdated 入队自上轮扫描以来有更新的会话
func (p *BatchProcessor) enqueueUpdated() {
	since := p.lastScan
	p.lastScan = time.Now().Unix()

	ids, err := p.source.UpdatedSince(since)
	if err != nil {
		p.logger.Error("Failed to scan for updated conversations",
			"error", err,
		)
		return
	}

	for _, id := range ids {
		if err := p.Enqueue(id, domainDiv.DefaultQueuePriority); err != nil {
			p.logger.Error("Failed to enqueue conversation",
				"conversation_id", id,
				"error", err,
			)
		}
	}

	if len(ids) > 0 {
		p.logger.Debug("Enqueued updated conversations",
			"count", len(ids),
		)
	}
}

// drainQueue 经认领协议消化至多 batchSize 条队列条目
func (p *BatchProcessor) drainQueue(ctx context.Context) {
	for i := 0; i < p.batchSize; i++ {
		select {
		case <-p.stopCh:
			return
		default:
		}

		entry, err := p.queue.NextPending()
		if err != nil {
			p.logger.Error("Failed to claim next queue entry",
				"error", err,
			)
			return
		}
		if entry == nil {
			return
		}

		_, err = p.service.AnalyzeConversation(ctx, entry.ConversationID)
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
			p.logger.Error("Queued analysis failed",
				"conversation_id", entry.ConversationID,
				"error", err,
			)
		}

		if markErr := p.queue.MarkComplete(entry.ConversationID, errMsg); markErr != nil {
			p.logger.Error("Failed to mark queue entry complete",
				"conversation_id", entry.ConversationID,
				"error", markErr,
			)
		}

		p.broadcast("conversation_analyzed", map[string]any{
			"conversation_id": entry.ConversationID,
			"success":         err == nil,
		})
	}
}

// sleepInterruptible 分步休眠 pollInterval
// 返回 false 表示收到停止信号
func (p *BatchProcessor) sleepInterruptible() bool {
	deadline := time.Now().Add(p.pollInterval)
	for time.Now().Before(deadline) {
		select {
		case <-p.stopCh:
			return false
		case <-p.wakeCh:
			return true
		case <-time.After(stopCheckInterval):
		}
	}
	return true
}

// broadcast 推送进度事件，通知器未配置时为空操作
func (p *BatchProcessor) broadcast(eventType string, payload any) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Broadcast(eventType, payload); err != nil {
		p.logger.Debug("Progress broadcast failed",
			"event", eventType,
			"error", err,
		)
	}
}
