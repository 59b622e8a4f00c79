package docindex

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"foodietrack/backend/go/internal/config"
	"foodietrack/backend/go/internal/models"
	httpclient "foodietrack/backend/go/pkg/http"
)

// Backboard 是基于 Backboard 文档 API 的索引。
type Backboard struct {
	baseURL string
	header  http.Header
	client  *httpclient.Client
}

// NewBackboard 创建 Backboard 客户端。
func NewBackboard(cfg config.BackboardConfig, client *httpclient.Client) *Backboard {
	if client == nil {
		client = httpclient.NewClient("backboard", config.CircuitBreakerConfig{})
	}
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+cfg.APIKey)
	return &Backboard{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		header:  h,
		client:  client,
	}
}

type backboardDocument struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

type backboardStored struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
}

type backboardQuery struct {
	Query  string            `json:"query"`
	Filter map[string]string `json:"filter"`
	TopK   int               `json:"top_k"`
}

type backboardResults struct {
	Results []models.SearchResult `json:"results"`
}

// Store 写入一篇文档并返回其 ID。
func (b *Backboard) Store(ctx context.Context, userID, text string, metadata map[string]any) (string, error) {
	var out backboardStored
	err := b.client.DoJSON(ctx, http.MethodPost, b.baseURL+"/documents", b.header,
		backboardDocument{Text: text, Metadata: documentMetadata(userID, metadata)}, &out)
	if err != nil {
		return "", fmt.Errorf("backboard store document: %w", err)
	}
	if out.ID == "" {
		out.ID = out.DocumentID
	}
	return out.ID, nil
}

// Search 在 userID 的文档中检索。
func (b *Backboard) Search(ctx context.Context, userID, query string, topK int) ([]models.SearchResult, error) {
	var out backboardResults
	err := b.client.DoJSON(ctx, http.MethodPost, b.baseURL+"/search", b.header,
		backboardQuery{Query: query, Filter: map[string]string{"user_id": userID}, TopK: topK}, &out)
	if err != nil {
		return nil, fmt.Errorf("backboard search: %w", err)
	}
	if out.Results == nil {
		out.Results = []models.SearchResult{}
	}
	return out.Results, nil
}
