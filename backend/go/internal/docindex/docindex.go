// Package docindex 保存语音转写文本，并按用户做相似度检索。
package docindex

import (
	"context"
	"errors"

	"foodietrack/backend/go/internal/models"
)

// ErrDisabled 表示没有配置文档索引后端。
var ErrDisabled = errors.New("document index is not configured")

// Index 是文档索引的统一接口。所有检索都限定在 userID 的文档之内。
type Index interface {
	Store(ctx context.Context, userID, text string, metadata map[string]any) (string, error)
	Search(ctx context.Context, userID, query string, topK int) ([]models.SearchResult, error)
}

// Nop 是未配置后端时使用的索引。
type Nop struct{}

func (Nop) Store(context.Context, string, string, map[string]any) (string, error) {
	return "", ErrDisabled
}

func (Nop) Search(context.Context, string, string, int) ([]models.SearchResult, error) {
	return nil, ErrDisabled
}

// documentMetadata 返回写入索引的元数据，user_id 总是以调用方为准。
func documentMetadata(userID string, metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out["user_id"] = userID
	return out
}
