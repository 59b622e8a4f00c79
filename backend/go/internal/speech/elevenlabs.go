package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"foodietrack/backend/go/internal/config"
	httpclient "foodietrack/backend/go/pkg/http"
)

// ElevenLabs 调用 ElevenLabs 的 speech-to-text 接口。
type ElevenLabs struct {
	cfg    config.ElevenLabsConfig
	client *httpclient.Client
}

// NewElevenLabs 创建 ElevenLabs 转写客户端。
func NewElevenLabs(cfg config.ElevenLabsConfig, client *httpclient.Client) *ElevenLabs {
	if client == nil {
		client = httpclient.NewClient("elevenlabs", config.CircuitBreakerConfig{})
	}
	return &ElevenLabs{cfg: cfg, client: client}
}

type elevenLabsResponse struct {
	Text string `json:"text"`
}

// Transcribe 以 multipart 表单上传音频并返回识别出的文本。
func (e *ElevenLabs) Transcribe(ctx context.Context, audio Audio) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("model_id", e.cfg.ModelID); err != nil {
		return "", err
	}

	filename := audio.Filename
	if filename == "" {
		filename = "audio.webm"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, strings.ReplaceAll(filename, `"`, "")))
	if audio.MIMEType != "" {
		h.Set("Content-Type", audio.MIMEType)
	} else {
		h.Set("Content-Type", "application/octet-stream")
	}
	part, err := w.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, audio.Data); err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	url := strings.TrimRight(e.cfg.BaseURL, "/") + "/v1/speech-to-text"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("xi-api-key", e.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	var resp elevenLabsResponse
	if err := e.client.DoRequest(req, &resp); err != nil {
		return "", fmt.Errorf("elevenlabs transcription: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errors.New("elevenlabs returned an empty transcript")
	}
	return text, nil
}
