package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"foodietrack/backend/go/internal/apperr"
	"foodietrack/backend/go/internal/docindex"
	"foodietrack/backend/go/internal/models"
	prefservice "foodietrack/backend/go/internal/preference_service/service"
	recservice "foodietrack/backend/go/internal/recommendation_service/service"
	voiceservice "foodietrack/backend/go/internal/voice_service/service"

	"github.com/gin-gonic/gin"
)

const serviceName = "foodietrack-api"

// HealthCheck 检查一个依赖是否可用。
type HealthCheck func(ctx context.Context) error

// Handler 封装了所有 API endpoint 的处理函数。
type Handler struct {
	prefs        *prefservice.Service
	voice        *voiceservice.Service
	recs         *recservice.Service
	docs         docindex.Index
	health       map[string]HealthCheck
	maxUpload    int64
	searchTopK   int
	healthBudget time.Duration
}

// HandlerOption 配置 Handler 的可选依赖。
type HandlerOption func(*Handler)

// WithVoice 启用 /voice 路由。
func WithVoice(v *voiceservice.Service) HandlerOption { return func(h *Handler) { h.voice = v } }

// WithRecommendations 启用 /recommendations 路由。
func WithRecommendations(r *recservice.Service) HandlerOption { return func(h *Handler) { h.recs = r } }

// WithDocIndex 设置转写文本的文档索引。
func WithDocIndex(idx docindex.Index, topK int) HandlerOption {
	return func(h *Handler) { h.docs, h.searchTopK = idx, topK }
}

// WithHealthCheck 注册一个由 /healthz 检查的依赖。
func WithHealthCheck(name string, check HealthCheck) HandlerOption {
	return func(h *Handler) { h.health[name] = check }
}

// WithMaxUpload 设置语音上传的大小上限（字节）。
func WithMaxUpload(n int64) HandlerOption { return func(h *Handler) { h.maxUpload = n } }

// NewHandler 创建一个新的 Handler 实例。
func NewHandler(prefs *prefservice.Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		prefs:        prefs,
		docs:         docindex.Nop{},
		health:       make(map[string]HealthCheck),
		maxUpload:    25 << 20,
		searchTopK:   10,
		healthBudget: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// --- General Handlers ---

// Root 返回当前用户的问候语。
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Hello, user " + currentUser(c) + "!"})
}

// Healthz 逐一检查已注册的依赖。
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.healthBudget)
	defer cancel()

	status := http.StatusOK
	checks := make(gin.H, len(h.health))
	for name, check := range h.health {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}

// --- Preference Handlers ---

// CreatePreference 记录单条偏好；同一自然键重复提交时合并元数据并返回已有记录。
func (h *Handler) CreatePreference(c *gin.Context) {
	var req models.PreferenceStatement
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.prefs.CreatePreference(c.Request.Context(), currentUser(c), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// RecordPreferencesRequest 定义了批量记录请求的 JSON 结构。
type RecordPreferencesRequest struct {
	Preferences []models.PreferenceStatement `json:"preferences" binding:"required"`
}

// RecordPreferences 批量记录偏好，结果与输入顺序一致。
func (h *Handler) RecordPreferences(c *gin.Context) {
	var req RecordPreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.prefs.RecordPreferences(c.Request.Context(), currentUser(c), req.Preferences)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": out})
}

// ListPreferences 返回当前用户的偏好，可以用 ?category= 过滤。
func (h *Handler) ListPreferences(c *gin.Context) {
	var category *string
	if v, ok := c.GetQuery("category"); ok && strings.TrimSpace(v) != "" {
		v = strings.TrimSpace(v)
		category = &v
	}
	out, err := h.prefs.GetPreferences(c.Request.Context(), currentUser(c), category)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ExportPreferences 以适合 LLM 使用的格式导出偏好。
func (h *Handler) ExportPreferences(c *gin.Context) {
	out, err := h.prefs.ExportPreferences(c.Request.Context(), currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// UpdatePreference 处理 PUT /preferences/:id。自然键不可修改，只合并元数据。
func (h *Handler) UpdatePreference(c *gin.Context) {
	id, ok := preferenceID(c)
	if !ok {
		return
	}
	var req models.PreferenceStatement
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.prefs.ReplacePreference(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DeletePreference 删除当前用户的一条偏好。
func (h *Handler) DeletePreference(c *gin.Context) {
	id, ok := preferenceID(c)
	if !ok {
		return
	}
	if err := h.prefs.DeletePreference(c.Request.Context(), currentUser(c), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func preferenceID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		abortWithError(c, apperr.Validation("api.preferenceID", "无效的偏好 ID 格式"))
		return 0, false
	}
	return uint(id), true
}
