package embedding

import (
	"context"
	"testing"

	"foodietrack/backend/go/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestNewModel_RejectsMissingKey(t *testing.T) {
	_, err := NewModel(context.Background(), config.EmbeddingConfig{Provider: "gemini"})
	assert.Error(t, err)
}

func TestNewModel_RejectsUnknownProvider(t *testing.T) {
	_, err := NewModel(context.Background(), config.EmbeddingConfig{Provider: "ollama"})
	assert.Error(t, err)
}
