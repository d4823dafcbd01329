package vector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"

	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
	"github.com/driftwatch/backend/internal/infrastructure/config"
	"github.com/driftwatch/backend/internal/infrastructure/log"
)

// 确保 QdrantIndex 实现了 domainDiv.VectorIndex 接口
var _ domainDiv.VectorIndex = (*QdrantIndex)(nil)

// QdrantIndex 基于 Qdrant 的片段锚点向量索引
// 可选组件：未启用时相似度查询走 sqlite 全量扫描
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// NewQdrantIndex 连接 Qdrant 并确保集合存在
func NewQdrantIndex(host string, port int, collection string, vectorSize uint64) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	index := &QdrantIndex{
		client:     client,
		collection: collection,
		logger:     log.NewModuleLogger("vector", "qdrant"),
	}

	if err := index.ensureCollection(context.Background(), vectorSize); err != nil {
		client.Close()
		return nil, err
	}

	return index, nil
}

// ensureCollection 确保集合存在，不存在时按余弦距离创建
func (q *QdrantIndex) ensureCollection(ctx context.Context, vectorSize uint64) error {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, name := range collections {
		if name == q.collection {
			return nil
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", q.collection, err)
	}

	q.logger.Info("Qdrant collection created",
		"collection", q.collection,
		"vector_size", vectorSize,
	)
	return nil
}

// UpsertSegments 写入/更新片段锚点向量
// 没有锚点向量的片段直接跳过
func (q *QdrantIndex) UpsertSegments(ctx context.Context, segments []*domainDiv.Segment) error {
	var points []*qdrant.PointStruct
	for _, seg := range segments {
		if len(seg.AnchorEmbedding) == 0 {
			continue
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(seg.ID),
			Vectors: qdrant.NewVectors(seg.AnchorEmbedding...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				"conversation_id": seg.ConversationID,
				"start_index":     int64(seg.StartIndex),
				"end_index":       int64(seg.EndIndex),
				"topic_label":     seg.TopicLabel,
			}),
		})
	}

	if len(points) == 0 {
		return nil
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert segment vectors: %w", err)
	}

	q.logger.Debug("Segment vectors upserted",
		"count", len(points),
	)
	return nil
}

// SearchSimilar 按余弦相似度检索最相近的片段 ID
func (q *QdrantIndex) SearchSimilar(ctx context.Context, vector []float32, limit int) ([]domainDiv.ScoredSegmentID, error) {
	if limit <= 0 {
		limit = 10
	}

	qlimit := uint64(limit)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &qlimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query qdrant: %w", err)
	}

	results := make([]domainDiv.ScoredSegmentID, 0, len(hits))
	for _, hit := range hits {
		results = append(results, domainDiv.ScoredSegmentID{
			SegmentID: hit.GetId().GetUuid(),
			Score:     float64(hit.GetScore()),
		})
	}
	return results, nil
}

// Close 关闭 Qdrant 连接
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// ProvideVectorIndex 提供向量索引（wire provider）
// 未启用时返回 nil，连接失败时降级为 nil 并记日志
func ProvideVectorIndex(cfg *config.VectorConfig, embCfg *config.EmbeddingConfig) domainDiv.VectorIndex {
	if !cfg.Enabled {
		return nil
	}

	index, err := NewQdrantIndex(cfg.Host, cfg.Port, cfg.Collection, defaultVectorSize(embCfg))
	if err != nil {
		log.NewModuleLogger("vector", "provider").Warn(
			"Qdrant unavailable, similarity search falls back to full scan",
			"error", err,
		)
		return nil
	}
	return index
}

// defaultVectorSize 按向量模型推断维度
func defaultVectorSize(cfg *config.EmbeddingConfig) uint64 {
	switch cfg.Model {
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}
