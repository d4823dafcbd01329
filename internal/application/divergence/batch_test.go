package divergence

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/driftwatch/backend/internal/domain/conversation"
	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memQueueRepo 内存分析队列
type memQueueRepo struct {
	mu      sync.Mutex
	entries map[string]*domainDiv.QueueEntry
}

func newMemQueueRepo() *memQueueRepo {
	return &memQueueRepo{entries: make(map[string]*domainDiv.QueueEntry)}
}

func (r *memQueueRepo) Enqueue(entry *domainDiv.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ConversationID] = entry
	return nil
}

func (r *memQueueRepo) NextPending() (*domainDiv.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []*domainDiv.QueueEntry
	for _, e := range r.entries {
		if e.Status == domainDiv.QueueStatusPending {
			pending = append(pending, e)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].QueuedAt < pending[j].QueuedAt
	})

	claimed := pending[0]
	claimed.MarkProcessing()
	return claimed, nil
}

func (r *memQueueRepo) MarkComplete(conversationID string, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[conversationID]
	if !ok {
		return nil
	}
	if errMsg != "" {
		entry.MarkFailed(errMsg)
	} else {
		entry.MarkCompleted()
	}
	return nil
}

func (r *memQueueRepo) GetEntry(conversationID string) (*domainDiv.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[conversationID], nil
}

func (r *memQueueRepo) Stats() (*domainDiv.QueueStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &domainDiv.QueueStats{}
	for _, e := range r.entries {
		switch e.Status {
		case domainDiv.QueueStatusPending:
			stats.PendingCount++
		case domainDiv.QueueStatusProcessing:
			stats.ProcessingCount++
		case domainDiv.QueueStatusCompleted:
			stats.CompletedCount++
		case domainDiv.QueueStatusFailed:
			stats.FailedCount++
		}
	}
	return stats, nil
}

func (r *memQueueRepo) ResetFailed() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.entries {
		if e.Status == domainDiv.QueueStatusFailed {
			e.Reset()
			count++
		}
	}
	return count, nil
}

func (r *memQueueRepo) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*domainDiv.QueueEntry)
	return nil
}

// newTestService 构造仅依赖主题信号的分析服务
func newTestService(source *fakeSource, segments *memSegmentRepo, reports *memReportRepo) *AnalysisService {
	segmenter := newTestSegmenter(nil, splitTopicProvider(20, 10), nil, testSegmenterConfig())
	return NewAnalysisService(source, segmenter, segments, reports, nil)
}

func TestAnalyzeConversation_PersistsResults(t *testing.T) {
	segments := newMemSegmentRepo()
	reports := newMemReportRepo()
	source := &fakeSource{
		order: []string{"conv-1"},
		messages: map[string][]conversation.Message{
			"conv-1": makeMessages(repeatTexts(8, "grpc")...),
		},
	}

	service := newTestService(source, segments, reports)

	result, err := service.AnalyzeConversation(context.Background(), "conv-1")
	require.NoError(t, err)
	require.NotNil(t, result)

	stored, err := service.GetSegments("conv-1")
	require.NoError(t, err)
	assert.Len(t, stored, len(result.Segments))

	report, err := service.GetReport("conv-1")
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "conv-1", report.ConversationID)
}

func TestAnalyzeConversation_EmptyConversationSkipped(t *testing.T) {
	source := &fakeSource{
		order:    []string{"conv-empty"},
		messages: map[string][]conversation.Message{},
	}
	service := newTestService(source, newMemSegmentRepo(), newMemReportRepo())

	result, err := service.AnalyzeConversation(context.Background(), "conv-empty")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestBackfill_CountsAndSkips(t *testing.T) {
	segments := newMemSegmentRepo()
	reports := newMemReportRepo()
	source := &fakeSource{
		order: []string{"conv-1", "conv-2", "conv-empty"},
		messages: map[string][]conversation.Message{
			"conv-1": makeMessages(repeatTexts(8, "grpc")...),
			"conv-2": makeMessages(repeatTexts(8, "storage")...),
		},
	}

	service := newTestService(source, segments, reports)
	notifier := &recordingNotifier{}
	processor := NewBatchProcessor(source, service, newMemQueueRepo(), reports, notifier, time.Minute, 2)

	result, err := processor.Backfill(context.Background(), BackfillOptions{SkipExisting: true})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Skipped) // 空会话
	assert.Zero(t, result.Errors)
	assert.Equal(t, 1, notifier.eventCount("backfill_completed"))

	// 再跑一遍：已有报告的会话全部跳过
	result, err = processor.Backfill(context.Background(), BackfillOptions{SkipExisting: true})
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Equal(t, 3, result.Skipped)
}

func TestBackfill_MaxConversationsLimit(t *testing.T) {
	segments := newMemSegmentRepo()
	reports := newMemReportRepo()
	source := &fakeSource{
		order: []string{"conv-1", "conv-2", "conv-3"},
		messages: map[string][]conversation.Message{
			"conv-1": makeMessages(repeatTexts(6, "one")...),
			"conv-2": makeMessages(repeatTexts(6, "two")...),
			"conv-3": makeMessages(repeatTexts(6, "three")...),
		},
	}

	service := newTestService(source, segments, reports)
	processor := NewBatchProcessor(source, service, newMemQueueRepo(), reports, nil, time.Minute, 5)

	result, err := processor.Backfill(context.Background(), BackfillOptions{MaxConversations: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)

	// 第三个会话未被触碰
	report, err := reports.GetReport("conv-3")
	require.NoError(t, err)
	assert.Nil(t, report)
}

func TestBackground_DrainsQueue(t *testing.T) {
	segments := newMemSegmentRepo()
	reports := newMemReportRepo()
	source := &fakeSource{
		order: []string{"conv-1"},
		messages: map[string][]conversation.Message{
			"conv-1": makeMessages(repeatTexts(8, "queued")...),
		},
	}

	service := newTestService(source, segments, reports)
	queue := newMemQueueRepo()
	notifier := &recordingNotifier{}
	processor := NewBatchProcessor(source, service, queue, reports, notifier, time.Minute, 5)

	require.NoError(t, processor.Enqueue("conv-1", domainDiv.DefaultQueuePriority))
	require.NoError(t, processor.StartBackground(context.Background()))
	defer processor.StopBackground(5 * time.Second)

	assert.True(t, processor.IsRunning())

	// 首轮立即消化队列
	assert.Eventually(t, func() bool {
		entry, err := queue.GetEntry("conv-1")
		return err == nil && entry != nil && entry.Status == domainDiv.QueueStatusCompleted
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, 1, notifier.eventCount("conversation_analyzed"))

	report, err := reports.GetReport("conv-1")
	require.NoError(t, err)
	assert.NotNil(t, report)

	require.NoError(t, processor.StopBackground(5*time.Second))
	assert.False(t, processor.IsRunning())
}

func TestStartBackground_AlreadyRunning(t *testing.T) {
	source := &fakeSource{order: nil, messages: map[string][]conversation.Message{}}
	service := newTestService(source, newMemSegmentRepo(), newMemReportRepo())
	processor := NewBatchProcessor(source, service, newMemQueueRepo(), newMemReportRepo(), nil, time.Minute, 5)

	require.NoError(t, processor.StartBackground(context.Background()))
	defer processor.StopBackground(5 * time.Second)

	assert.Error(t, processor.StartBackground(context.Background()))
}
