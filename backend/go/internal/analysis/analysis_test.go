package analysis

import (
	"context"
	"errors"
	"testing"

	"foodietrack/backend/go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	out    string
	err    error
	prompt string
}

func (f *fakeLLM) GenerateJSON(_ context.Context, _, prompt string) (string, error) {
	f.prompt = prompt
	return f.out, f.err
}

func (f *fakeLLM) Close() error { return nil }

func TestAnalyze_ExtractsPreferences(t *testing.T) {
	model := &fakeLLM{out: `{
		"sentiment": "Negative",
		"intent": "share dislikes",
		"keywords": ["Cilantro", "peanuts", "cilantro", ""],
		"preferences": [
			{"category": "Ingredient", "preference_type": "DISLIKE", "value": " Cilantro ", "confidence": 0.9},
			{"category": "ingredient", "preference_type": "dislike", "value": "cilantro", "confidence": 0.8},
			{"category": "", "preference_type": "allergy", "value": "peanuts"},
			{"category": "food", "preference_type": "like", "value": "soup", "confidence": 0.2},
			{"category": "food", "preference_type": "like", "value": "  ", "confidence": 0.9}
		]
	}`}
	a := NewAnalyzer(model, 0)

	res, err := a.Analyze(context.Background(), "  I hate cilantro and I'm allergic to peanuts ")
	require.NoError(t, err)
	assert.Contains(t, model.prompt, "I hate cilantro")

	assert.Equal(t, "I hate cilantro and I'm allergic to peanuts", res.Insights.Transcript)
	assert.Equal(t, "negative", res.Insights.Sentiment)
	assert.Equal(t, "share dislikes", res.Insights.Intent)
	assert.Equal(t, []string{"cilantro", "peanuts"}, res.Insights.Keywords)

	require.Len(t, res.Preferences, 2)
	assert.Equal(t, models.ExtractedPreference{
		Category: "ingredient", PreferenceType: "dislike", Value: "Cilantro", Confidence: 0.9,
	}, res.Preferences[0])
	assert.Equal(t, "food", res.Preferences[1].Category)
	assert.Equal(t, "allergy", res.Preferences[1].PreferenceType)
	assert.Equal(t, 1.0, res.Preferences[1].Confidence)
}

func TestAnalyze_EmptyTranscriptSkipsModel(t *testing.T) {
	model := &fakeLLM{err: errors.New("should not be called")}
	res, err := NewAnalyzer(model, 0).Analyze(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, res.Preferences)
	assert.Empty(t, model.prompt)
}

func TestAnalyze_ModelErrors(t *testing.T) {
	_, err := NewAnalyzer(&fakeLLM{err: errors.New("boom")}, 0).Analyze(context.Background(), "pizza")
	assert.Error(t, err)

	_, err = NewAnalyzer(&fakeLLM{out: "not json"}, 0).Analyze(context.Background(), "pizza")
	assert.Error(t, err)
}

func TestTopKeywords(t *testing.T) {
	got := TopKeywords("Pizza, pizza and more PIZZA! I like sushi and ramen, sushi too.", 3)
	assert.Equal(t, []string{"pizza", "sushi", "more"}, got)

	assert.Equal(t, []string{}, TopKeywords("I do it", 5))
}

func TestBasic(t *testing.T) {
	res := Basic(" spicy ramen ")
	assert.Equal(t, "spicy ramen", res.Insights.Transcript)
	assert.Equal(t, []string{"spicy", "ramen"}, res.Insights.Keywords)
	assert.Empty(t, res.Preferences)
}
