package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"foodietrack/backend/go/internal/config"
	httpclient "foodietrack/backend/go/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElevenLabs_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/speech-to-text", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "scribe_v1", r.FormValue("model_id"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "audio.webm", hdr.Filename)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "fake-audio", string(data))

		_ = json.NewEncoder(w).Encode(map[string]string{"text": "  I hate cilantro  "})
	}))
	defer srv.Close()

	e := NewElevenLabs(config.ElevenLabsConfig{BaseURL: srv.URL + "/", APIKey: "secret", ModelID: "scribe_v1"}, nil)
	text, err := e.Transcribe(context.Background(), Audio{Data: strings.NewReader("fake-audio"), MIMEType: "audio/webm"})
	require.NoError(t, err)
	assert.Equal(t, "I hate cilantro", text)
}

func TestElevenLabs_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	e := NewElevenLabs(config.ElevenLabsConfig{BaseURL: srv.URL, APIKey: "bad", ModelID: "scribe_v1"},
		httpclient.NewClient("elevenlabs", config.CircuitBreakerConfig{}))
	_, err := e.Transcribe(context.Background(), Audio{Filename: "a.webm", Data: strings.NewReader("x")})
	require.Error(t, err)

	var se *httpclient.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
}

func TestElevenLabs_EmptyTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":""}`))
	}))
	defer srv.Close()

	e := NewElevenLabs(config.ElevenLabsConfig{BaseURL: srv.URL, APIKey: "k"}, nil)
	_, err := e.Transcribe(context.Background(), Audio{Data: strings.NewReader("x")})
	assert.Error(t, err)
}

func TestWhisper_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/audio/transcriptions"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"no peanuts please"}`))
	}))
	defer srv.Close()

	wh := NewWhisper(config.WhisperConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "whisper-1"})
	text, err := wh.Transcribe(context.Background(), Audio{Filename: "clip.webm", Data: strings.NewReader("x")})
	require.NoError(t, err)
	assert.Equal(t, "no peanuts please", text)
}

func TestNewTranscriber(t *testing.T) {
	_, err := NewTranscriber(config.SpeechConfig{Provider: "elevenlabs"}, nil)
	assert.Error(t, err)

	tr, err := NewTranscriber(config.SpeechConfig{Provider: "whisper", Whisper: config.WhisperConfig{APIKey: "k", Model: "whisper-1"}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Whisper{}, tr)

	_, err = NewTranscriber(config.SpeechConfig{Provider: "deepgram"}, nil)
	assert.Error(t, err)
}
