package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"foodietrack/backend/go/internal/apperr"
	voiceservice "foodietrack/backend/go/internal/voice_service/service"
	"foodietrack/backend/go/pkg/httpmiddleware"

	"github.com/gin-gonic/gin"
)

// --- Voice Handlers ---

// AnalyzeVoice 处理 multipart 上传的语音：字段 audio 为音频文件，use_gemini 决定是否调用 LLM（默认 true）。
func (h *Handler) AnalyzeVoice(c *gin.Context) {
	const op = "api.AnalyzeVoice"
	if h.voice == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "voice analysis is not configured"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	fh, err := c.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "audio file is too large"})
			return
		}
		abortWithError(c, apperr.Validation(op, "missing audio file"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		abortWithError(c, apperr.Validation(op, "unreadable audio file"))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		abortWithError(c, apperr.Validation(op, "unreadable audio file"))
		return
	}

	useLLM := true
	if v := c.PostForm("use_gemini"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			useLLM = b
		}
	}

	resp, err := h.voice.Analyze(c.Request.Context(), voiceservice.Request{
		UserID:   currentUser(c),
		TraceID:  httpmiddleware.TraceID(c),
		Filename: fh.Filename,
		Audio:    data,
		UseLLM:   useLLM,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// VoiceHistory 返回当前用户最近的语音分析记录，?limit= 控制条数。
func (h *Handler) VoiceHistory(c *gin.Context) {
	if h.voice == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "voice analysis is not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit > 100 {
		limit = 100
	}
	out, err := h.voice.History(c.Request.Context(), currentUser(c), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": out})
}
