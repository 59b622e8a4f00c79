package milvus

import (
	"context"
	"fmt"
	"strings"

	"foodietrack/backend/go/internal/config"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// 转写文本集合的字段名。
const (
	FieldID        = "id"
	FieldUserID    = "user_id"
	FieldText      = "text"
	FieldMetadata  = "metadata"
	FieldEmbedding = "embedding"
)

// Record 是写入集合的一行。
type Record struct {
	ID        string
	UserID    string
	Text      string
	Metadata  string // JSON
	Embedding []float32
}

// Hit 是一次检索命中。
type Hit struct {
	ID       string
	Text     string
	Metadata string
	Score    float32
}

// MilvusClient 包含了 Milvus 客户端实例和相关配置。
type MilvusClient struct {
	Client client.Client
	Config *config.MilvusConfig
}

// NewClient 连接 Milvus。
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*MilvusClient, error) {
	c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("无法连接到 Milvus: %w", err)
	}
	return &MilvusClient{Client: c, Config: cfg}, nil
}

// Close 安全地关闭与 Milvus 的连接。
func (c *MilvusClient) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

// HealthCheck 检查 Milvus 连接的健康状况。
func (c *MilvusClient) HealthCheck(ctx context.Context) error {
	if c == nil || c.Client == nil {
		return fmt.Errorf("Milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("Milvus health check failed: %w", err)
	}
	return nil
}

// EnsureCollection 确保转写集合存在、已建索引并已加载。
func (c *MilvusClient) EnsureCollection(ctx context.Context) error {
	collName := c.Config.CollectionName
	exists, err := c.Client.HasCollection(ctx, collName)
	if err != nil {
		return fmt.Errorf("检查集合是否存在时出错: %w", err)
	}
	if !exists {
		schema := entity.NewSchema().
			WithName(collName).
			WithDescription("voice transcripts").
			WithField(entity.NewField().WithName(FieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(FieldUserID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(128)).
			WithField(entity.NewField().WithName(FieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
			WithField(entity.NewField().WithName(FieldMetadata).WithDataType(entity.FieldTypeVarChar).WithMaxLength(8192)).
			WithField(entity.NewField().WithName(FieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(c.Config.Dim)))

		if err := c.Client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("创建集合失败: %w", err)
		}
		idx, err := entity.NewIndexHNSW(entity.COSINE, 16, 200)
		if err != nil {
			return fmt.Errorf("构建索引参数失败: %w", err)
		}
		if err := c.Client.CreateIndex(ctx, collName, FieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("为字段 '%s' 创建索引失败: %w", FieldEmbedding, err)
		}
	}
	if err := c.Client.LoadCollection(ctx, collName, false); err != nil {
		return fmt.Errorf("加载 Milvus 集合 '%s' 失败: %w", collName, err)
	}
	return nil
}

// Insert 写入一条记录。
func (c *MilvusClient) Insert(ctx context.Context, r Record) error {
	if len(r.Embedding) != c.Config.Dim {
		return fmt.Errorf("向量维度不匹配: 期望 %d, 实际 %d", c.Config.Dim, len(r.Embedding))
	}
	_, err := c.Client.Insert(ctx, c.Config.CollectionName, "",
		entity.NewColumnVarChar(FieldID, []string{r.ID}),
		entity.NewColumnVarChar(FieldUserID, []string{r.UserID}),
		entity.NewColumnVarChar(FieldText, []string{r.Text}),
		entity.NewColumnVarChar(FieldMetadata, []string{r.Metadata}),
		entity.NewColumnFloatVector(FieldEmbedding, c.Config.Dim, [][]float32{r.Embedding}),
	)
	if err != nil {
		return fmt.Errorf("failed to insert data into Milvus: %w", err)
	}
	return nil
}

// Search 在指定用户的记录中执行向量相似度搜索。
func (c *MilvusClient) Search(ctx context.Context, userID string, vector []float32, topK int) ([]Hit, error) {
	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, err
	}
	results, err := c.Client.Search(
		ctx,
		c.Config.CollectionName,
		nil,
		UserFilter(userID),
		[]string{FieldID, FieldText, FieldMetadata},
		[]entity.Vector{entity.FloatVector(vector)},
		FieldEmbedding,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("Milvus 搜索失败: %w", err)
	}

	var hits []Hit
	for _, res := range results {
		findColumn := func(name string) []string {
			for _, field := range res.Fields {
				if field.Name() == name {
					if col, ok := field.(*entity.ColumnVarChar); ok {
						return col.Data()
					}
				}
			}
			return nil
		}
		ids, texts, metas := findColumn(FieldID), findColumn(FieldText), findColumn(FieldMetadata)
		for i := 0; i < res.ResultCount; i++ {
			h := Hit{Score: res.Scores[i]}
			if i < len(ids) {
				h.ID = ids[i]
			}
			if i < len(texts) {
				h.Text = texts[i]
			}
			if i < len(metas) {
				h.Metadata = metas[i]
			}
			hits = append(hits, h)
		}
	}
	return hits, nil
}

// UserFilter 构造按用户过滤的布尔表达式。
func UserFilter(userID string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(userID)
	return fmt.Sprintf(`%s == "%s"`, FieldUserID, escaped)
}
