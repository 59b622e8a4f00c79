package models

// RecommendationItem 是一个候选项的打分结果。
type RecommendationItem struct {
	Item   string  `json:"item"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
}

// SearchResult 是文档索引的一条相似度检索结果。
type SearchResult struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
