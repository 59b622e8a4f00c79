// Package speech 把上传的音频转写为文本。
package speech

import (
	"context"
	"fmt"
	"io"

	"foodietrack/backend/go/internal/config"
	httpclient "foodietrack/backend/go/pkg/http"
)

// Audio 是一段待转写的音频。
type Audio struct {
	Filename string
	MIMEType string
	Data     io.Reader
}

// Transcriber 是语音转写服务的统一接口。
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// NewTranscriber 根据配置创建转写客户端。
func NewTranscriber(cfg config.SpeechConfig, client *httpclient.Client) (Transcriber, error) {
	switch cfg.Provider {
	case "elevenlabs":
		if cfg.ElevenLabs.APIKey == "" {
			return nil, fmt.Errorf("elevenlabs api key is not configured")
		}
		return NewElevenLabs(cfg.ElevenLabs, client), nil
	case "whisper":
		if cfg.Whisper.APIKey == "" {
			return nil, fmt.Errorf("whisper api key is not configured")
		}
		return NewWhisper(cfg.Whisper), nil
	default:
		return nil, fmt.Errorf("unsupported speech provider: %s", cfg.Provider)
	}
}
