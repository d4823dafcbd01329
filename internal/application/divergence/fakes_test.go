package divergence

import (
	"fmt"
	"sync"

	"github.com/driftwatch/backend/internal/domain/conversation"
	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
	"github.com/driftwatch/backend/internal/infrastructure/topics"
)

// fakeEmbedder 确定性向量提供方
// 按 vectorFor 函数为每条文本生成向量；err 非空时模拟调用失败
type fakeEmbedder struct {
	vectorFor func(index int, text string) []float32
	err       error
}

func (f *fakeEmbedder) EmbedTexts(texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.vectorFor(i, text)
	}
	return out, nil
}

// axisEmbedder 返回三维轴向量：idx < switchAt 时为 X 轴，否则为 Y 轴
func axisEmbedder(switchAt int) *fakeEmbedder {
	return &fakeEmbedder{
		vectorFor: func(index int, _ string) []float32 {
			if index < switchAt {
				return []float32{1, 0, 0}
			}
			return []float32{0, 1, 0}
		},
	}
}

// fakeTopicProvider 固定返回预设的主题分配
type fakeTopicProvider struct {
	assignment *topics.Assignment
	err        error
}

func (f *fakeTopicProvider) FitAssign(texts []string) (*topics.Assignment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.assignment, nil
}

// fakeJudgeProvider 按 respond 函数生成 LLM 输出
type fakeJudgeProvider struct {
	respond func(prompt string) (string, error)
	calls   int
}

func (f *fakeJudgeProvider) Complete(prompt string) (string, error) {
	f.calls++
	return f.respond(prompt)
}

// fakeTokenCounter 以 rune 数近似 token 数
type fakeTokenCounter struct{}

func (fakeTokenCounter) CountTokens(text string) int {
	return len([]rune(text))
}

// fakeSource 内存会话源
type fakeSource struct {
	order    []string
	messages map[string][]conversation.Message
	updated  []string
}

func (f *fakeSource) ListConversationIDs() ([]string, error) {
	return f.order, nil
}

func (f *fakeSource) GetMessages(conversationID string) ([]conversation.Message, error) {
	return f.messages[conversationID], nil
}

func (f *fakeSource) UpdatedSince(unixTime int64) ([]string, error) {
	return f.updated, nil
}

// memSegmentRepo 内存片段仓储
type memSegmentRepo struct {
	mu       sync.Mutex
	segments map[string][]*domainDiv.Segment // conversationID -> segments
}

func newMemSegmentRepo() *memSegmentRepo {
	return &memSegmentRepo{segments: make(map[string][]*domainDiv.Segment)}
}

func (r *memSegmentRepo) ReplaceSegments(conversationID string, segments []*domainDiv.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segments[conversationID] = segments
	return nil
}

func (r *memSegmentRepo) GetSegments(conversationID string) ([]*domainDiv.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.segments[conversationID], nil
}

func (r *memSegmentRepo) GetSegment(segmentID string) (*domainDiv.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, segs := range r.segments {
		for _, seg := range segs {
			if seg.ID == segmentID {
				return seg, nil
			}
		}
	}
	return nil, domainDiv.ErrSegmentNotFound
}

func (r *memSegmentRepo) AllSegmentsWithEmbedding() ([]*domainDiv.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domainDiv.Segment
	for _, segs := range r.segments {
		for _, seg := range segs {
			if len(seg.AnchorEmbedding) > 0 {
				out = append(out, seg)
			}
		}
	}
	return out, nil
}

// memReportRepo 内存报告仓储
type memReportRepo struct {
	mu      sync.Mutex
	reports map[string]*domainDiv.DivergenceReport
}

func newMemReportRepo() *memReportRepo {
	return &memReportRepo{reports: make(map[string]*domainDiv.DivergenceReport)}
}

func (r *memReportRepo) SaveReport(report *domainDiv.DivergenceReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[report.ConversationID] = report
	return nil
}

func (r *memReportRepo) GetReport(conversationID string) (*domainDiv.DivergenceReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reports[conversationID], nil
}

func (r *memReportRepo) ConversationIDsWithReport() (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool, len(r.reports))
	for id := range r.reports {
		out[id] = true
	}
	return out, nil
}

// memLinkRepo 内存链接仓储
type memLinkRepo struct {
	mu    sync.Mutex
	links []*domainDiv.SegmentLink
}

func (r *memLinkRepo) SaveLink(link *domainDiv.SegmentLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links = append(r.links, link)
	return nil
}

func (r *memLinkRepo) GetLinksFrom(segmentID string) ([]*domainDiv.SegmentLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domainDiv.SegmentLink
	for _, link := range r.links {
		if link.SourceSegmentID == segmentID {
			out = append(out, link)
		}
	}
	return out, nil
}

// recordingNotifier 记录广播事件的通知器
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Broadcast(eventType string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
	return nil
}

func (n *recordingNotifier) eventCount(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, e := range n.events {
		if e == eventType {
			count++
		}
	}
	return count
}

// makeMessages 生成交替角色的测试消息
func makeMessages(texts ...string) []conversation.Message {
	messages := make([]conversation.Message, len(texts))
	for i, text := range texts {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		messages[i] = conversation.Message{
			Role:      role,
			Text:      text,
			Timestamp: int64(1700000000 + i),
		}
	}
	return messages
}

// repeatTexts 生成 n 条带序号的长文本
func repeatTexts(n int, topic string) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("%s discussion message number %d with enough length", topic, i)
	}
	return texts
}
