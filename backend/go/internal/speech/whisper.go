package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"foodietrack/backend/go/internal/config"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// Whisper 通过兼容 OpenAI 的接口调用 Whisper 模型。
type Whisper struct {
	client *openai.Client
	model  string
}

// NewWhisper 创建 Whisper 转写客户端。
func NewWhisper(cfg config.WhisperConfig) *Whisper {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &Whisper{client: openai.NewClientWithConfig(oc), model: cfg.Model}
}

// Transcribe 实现 Transcriber。
func (w *Whisper) Transcribe(ctx context.Context, audio Audio) (string, error) {
	filename := audio.Filename
	if filename == "" {
		filename = "audio.webm"
	}
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: filename,
		Reader:   audio.Data,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errors.New("whisper returned an empty transcript")
	}
	return text, nil
}
