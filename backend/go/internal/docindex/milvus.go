package docindex

import (
	"context"
	"encoding/json"
	"fmt"

	"foodietrack/backend/go/internal/database/milvus"
	"foodietrack/backend/go/internal/embedding"
	"foodietrack/backend/go/internal/metrics"
	"foodietrack/backend/go/internal/models"

	"github.com/google/uuid"
)

// VectorStore 是 Milvus 索引依赖的向量库操作，由 milvus.MilvusClient 实现。
type VectorStore interface {
	Insert(ctx context.Context, r milvus.Record) error
	Search(ctx context.Context, userID string, vector []float32, topK int) ([]milvus.Hit, error)
}

// Milvus 把转写文本向量化后写入 Milvus。
type Milvus struct {
	store    VectorStore
	embedder embedding.Embedding
	metrics  *metrics.Metrics
}

// NewMilvus 创建基于 Milvus 的索引。
func NewMilvus(store VectorStore, embedder embedding.Embedding, m *metrics.Metrics) *Milvus {
	return &Milvus{store: store, embedder: embedder, metrics: m}
}

// Store 实现 Index。
func (m *Milvus) Store(ctx context.Context, userID, text string, metadata map[string]any) (string, error) {
	vec, err := m.embedder.Embed(ctx, text)
	m.metrics.UpstreamCall("embedding", err)
	if err != nil {
		return "", fmt.Errorf("embed document: %w", err)
	}
	md, err := json.Marshal(documentMetadata(userID, metadata))
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	id := uuid.NewString()
	err = m.store.Insert(ctx, milvus.Record{ID: id, UserID: userID, Text: text, Metadata: string(md), Embedding: vec})
	m.metrics.UpstreamCall("milvus", err)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Search 实现 Index。
func (m *Milvus) Search(ctx context.Context, userID, query string, topK int) ([]models.SearchResult, error) {
	vec, err := m.embedder.Embed(ctx, query)
	m.metrics.UpstreamCall("embedding", err)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := m.store.Search(ctx, userID, vec, topK)
	m.metrics.UpstreamCall("milvus", err)
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(hits))
	for _, h := range hits {
		r := models.SearchResult{ID: h.ID, Text: h.Text, Score: float64(h.Score)}
		if h.Metadata != "" {
			_ = json.Unmarshal([]byte(h.Metadata), &r.Metadata)
		}
		results = append(results, r)
	}
	return results, nil
}
