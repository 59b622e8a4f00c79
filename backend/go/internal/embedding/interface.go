package embedding

import (
	"context"
	"fmt"

	"foodietrack/backend/go/internal/config"
)

// Embedding 定义了所有 embedding 模型需要实现的接口。
type Embedding interface {
	// Embed 为单个文本生成嵌入向量。
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch 为一批文本生成嵌入向量，结果与输入一一对应。
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// NewModel 根据配置创建 Embedding 模型实例。
func NewModel(ctx context.Context, cfg config.EmbeddingConfig) (*GoogleModel, error) {
	switch cfg.Provider {
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("embedding api key is not configured")
		}
		return NewGoogleModel(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
