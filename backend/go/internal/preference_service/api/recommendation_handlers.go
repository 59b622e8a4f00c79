package api

import (
	"net/http"

	"foodietrack/backend/go/internal/apperr"
	"foodietrack/backend/go/pkg/httpmiddleware"

	"github.com/gin-gonic/gin"
)

// --- Recommendation and Transcript Handlers ---

// RecommendationRequest 定义了推荐请求的 JSON 结构。
type RecommendationRequest struct {
	Candidates []string `json:"candidates" binding:"required"`
	TopK       int      `json:"top_k"`
}

// Recommend 根据用户偏好为候选项打分，返回前 top_k 个。
func (h *Handler) Recommend(c *gin.Context) {
	if h.recs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "recommendations are not configured"})
		return
	}
	var req RecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.recs.Recommend(c.Request.Context(), currentUser(c), httpmiddleware.TraceID(c), req.Candidates, req.TopK)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": out})
}

// StoreTranscriptRequest 定义了保存转写文本请求的 JSON 结构。
type StoreTranscriptRequest struct {
	Text     string         `json:"text" binding:"required"`
	Metadata map[string]any `json:"metadata"`
}

// StoreTranscript 把一段文本写入当前用户的文档索引。
func (h *Handler) StoreTranscript(c *gin.Context) {
	var req StoreTranscriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.docs.Store(c.Request.Context(), currentUser(c), req.Text, req.Metadata)
	if err != nil {
		abortWithError(c, wrapUpstream("api.StoreTranscript", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": "stored"})
}

// SearchTranscriptsRequest 定义了转写文本检索请求的 JSON 结构。
type SearchTranscriptsRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k"`
}

// SearchTranscripts 在当前用户的文档中做相似度检索。
func (h *Handler) SearchTranscripts(c *gin.Context) {
	var req SearchTranscriptsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TopK <= 0 {
		req.TopK = h.searchTopK
	}
	results, err := h.docs.Search(c.Request.Context(), currentUser(c), req.Query, req.TopK)
	if err != nil {
		abortWithError(c, wrapUpstream("api.SearchTranscripts", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// wrapUpstream 把索引后端的错误归为上游错误；未配置后端的错误保持原样。
func wrapUpstream(op string, err error) error {
	if apperr.KindOf(err) != "" {
		return err
	}
	if isDisabled(err) {
		return err
	}
	return apperr.Upstream(op, err)
}
