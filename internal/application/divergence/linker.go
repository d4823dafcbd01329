package divergence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
	"github.com/driftwatch/backend/internal/infrastructure/log"
)

// 链接推断阈值
const (
	// minLinkSimilarity 低于该相似度不建立任何链接
	minLinkSimilarity = 0.3

	// continuesSimilarity 高于该相似度判定为 continues
	continuesSimilarity = 0.8

	// branchDivergenceScore 源片段漂移高于该值时判定为 branches_from
	branchDivergenceScore = 0.5
)

// Linker 跨会话片段关联器
// 基于片段锚点向量做相似度检索并推断链接类型。
// 配置了向量索引时走索引，否则对 sqlite 中的全部锚点做全量扫描
type Linker struct {
	segments domainDiv.SegmentRepository
	links    domainDiv.LinkRepository
	vector   domainDiv.VectorIndex // 可选
	logger   *slog.Logger
}

// NewLinker 创建片段关联器
func NewLinker(segments domainDiv.SegmentRepository, links domainDiv.LinkRepository, vector domainDiv.VectorIndex) *Linker {
	return &Linker{
		segments: segments,
		links:    links,
		vector:   vector,
		logger:   log.NewModuleLogger("divergence", "linker"),
	}
}

// FindSimilar 检索与指定片段最相似的其他片段
// 结果按相似度降序，已过滤低于 minSimilarity 的候选
func (l *Linker) FindSimilar(ctx context.Context, segmentID string, minSimilarity float64, limit int, excludeSameConversation bool) ([]*domainDiv.SimilarSegment, error) {
	source, err := l.segments.GetSegment(segmentID)
	if err != nil {
		return nil, err
	}
	if len(source.AnchorEmbedding) == 0 {
		return nil, fmt.Errorf("segment %s has no anchor embedding", segmentID)
	}
	if limit <= 0 {
		limit = 10
	}

	if l.vector != nil {
		results, err := l.findSimilarIndexed(ctx, source, minSimilarity, limit, excludeSameConversation)
		if err == nil {
			return results, nil
		}
		l.logger.Warn("Vector index query failed, falling back to full scan",
			"segment_id", segmentID,
			"error", err,
		)
	}

	return l.findSimilarScan(source, minSimilarity, limit, excludeSameConversation)
}

// findSimilarIndexed 通过向量索引检索
func (l *Linker) findSimilarIndexed(ctx context.Context, source *domainDiv.Segment, minSimilarity float64, limit int, excludeSameConversation bool) ([]*domainDiv.SimilarSegment, error) {
	// 多取一些再过滤，留出排除同会话与自身的余量
	scored, err := l.vector.SearchSimilar(ctx, source.AnchorEmbedding, limit*3)
	if err != nil {
		return nil, err
	}

	var results []*domainDiv.SimilarSegment
	for _, hit := range scored {
		if hit.SegmentID == source.ID || hit.Score < minSimilarity {
			continue
		}

		candidate, err := l.segments.GetSegment(hit.SegmentID)
		if err != nil {
			continue
		}
		if excludeSameConversation && candidate.ConversationID == source.ConversationID {
			continue
		}

		results = append(results, &domainDiv.SimilarSegment{
			Segment:    candidate,
			Similarity: hit.Score,
		})
		if len(results) >= limit {
			break
		}
	}

	return results, nil
}

// findSimilarScan 全量扫描所有带锚点向量的片段
func (l *Linker) findSimilarScan(source *domainDiv.Segment, minSimilarity float64, limit int, excludeSameConversation bool) ([]*domainDiv.SimilarSegment, error) {
	candidates, err := l.segments.AllSegmentsWithEmbedding()
	if err != nil {
		return nil, err
	}

	var results []*domainDiv.SimilarSegment
	for _, candidate := range candidates {
		if candidate.ID == source.ID {
			continue
		}
		if excludeSameConversation && candidate.ConversationID == source.ConversationID {
			continue
		}

		similarity := CosineSimilarity(source.AnchorEmbedding, candidate.AnchorEmbedding)
		if similarity < minSimilarity {
			continue
		}

		results = append(results, &domainDiv.SimilarSegment{
			Segment:    candidate,
			Similarity: similarity,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// BestLinkTarget 从候选集中推断最佳链接目标
// 最高相似度低于 0.3 时返回 nil（不建链）
func (l *Linker) BestLinkTarget(source *domainDiv.Segment, candidates []*domainDiv.SimilarSegment) *domainDiv.SegmentLink {
	if source == nil || len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Similarity > best.Similarity {
			best = c
		}
	}

	if best.Similarity < minLinkSimilarity {
		return nil
	}

	linkType := domainDiv.LinkTypeReferences
	switch {
	case best.Similarity > continuesSimilarity:
		linkType = domainDiv.LinkTypeContinues
	case source.DivergenceScore > branchDivergenceScore:
		linkType = domainDiv.LinkTypeBranchesFrom
	}

	return domainDiv.NewSegmentLink(source.ID, best.Segment.ID, linkType, best.Similarity)
}

// LinkSegment 为片段推断并保存跨会话链接
// 没有满足阈值的候选时不保存任何内容，返回 nil
func (l *Linker) LinkSegment(ctx context.Context, segmentID string) (*domainDiv.SegmentLink, error) {
	source, err := l.segments.GetSegment(segmentID)
	if err != nil {
		return nil, err
	}

	candidates, err := l.FindSimilar(ctx, segmentID, minLinkSimilarity, 10, true)
	if err != nil {
		return nil, err
	}

	link := l.BestLinkTarget(source, candidates)
	if link == nil {
		return nil, nil
	}

	if err := l.links.SaveLink(link); err != nil {
		return nil, err
	}

	l.logger.Debug("Segment link created",
		"source", link.SourceSegmentID,
		"target", link.TargetSegmentID,
		"type", link.LinkType,
		"similarity", link.SimilarityScore,
	)

	return link, nil
}

// GetLinks 获取从指定片段出发的链接
func (l *Linker) GetLinks(segmentID string) ([]*domainDiv.SegmentLink, error) {
	return l.links.GetLinksFrom(segmentID)
}
