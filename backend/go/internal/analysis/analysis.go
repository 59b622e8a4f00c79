// Package analysis 从语音转写文本中提取情感、意图、关键词和饮食偏好。
package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"foodietrack/backend/go/internal/llm"
	"foodietrack/backend/go/internal/models"
)

// DefaultMinConfidence 以下的抽取结果会被丢弃。
const DefaultMinConfidence = 0.5

const systemPrompt = `You analyse short voice notes in which a user talks about food.
Respond with a single JSON object of the form:
{
  "sentiment": "positive" | "negative" | "neutral" | "mixed",
  "intent": short phrase describing what the user wants,
  "keywords": [up to 8 lowercase keywords],
  "preferences": [
    {"category": "food" | "cuisine" | "diet" | "ingredient",
     "preference_type": "like" | "dislike" | "allergy" | "restriction",
     "value": the food, ingredient, cuisine or diet, as the user said it,
     "confidence": number between 0 and 1}
  ]
}
Only include preferences the user actually expressed. Use an empty list when there are none.`

// Result 是一次分析的输出。
type Result struct {
	Insights    models.VoiceInsights
	Preferences []models.ExtractedPreference
}

// Analyzer 用 LLM 分析转写文本。
type Analyzer struct {
	llm           llm.LLM
	minConfidence float64
}

// NewAnalyzer 创建分析器。minConfidence <= 0 时使用 DefaultMinConfidence。
func NewAnalyzer(model llm.LLM, minConfidence float64) *Analyzer {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Analyzer{llm: model, minConfidence: minConfidence}
}

type llmAnalysis struct {
	Sentiment   string   `json:"sentiment"`
	Intent      string   `json:"intent"`
	Keywords    []string `json:"keywords"`
	Preferences []struct {
		Category       string          `json:"category"`
		PreferenceType string          `json:"preference_type"`
		Value          string          `json:"value"`
		Confidence     *float64        `json:"confidence"`
		Metadata       models.Metadata `json:"metadata"`
	} `json:"preferences"`
}

// Analyze 调用 LLM 分析 transcript。
func (a *Analyzer) Analyze(ctx context.Context, transcript string) (*Result, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return &Result{Insights: models.VoiceInsights{Keywords: []string{}}}, nil
	}

	raw, err := a.llm.GenerateJSON(ctx, systemPrompt, "Transcript:\n"+transcript)
	if err != nil {
		return nil, fmt.Errorf("analyze transcript: %w", err)
	}
	var out llmAnalysis
	if err := llm.DecodeJSON(raw, &out); err != nil {
		return nil, fmt.Errorf("analyze transcript: %w", err)
	}

	res := &Result{
		Insights: models.VoiceInsights{
			Transcript: transcript,
			Sentiment:  strings.ToLower(strings.TrimSpace(out.Sentiment)),
			Intent:     strings.TrimSpace(out.Intent),
			Keywords:   cleanKeywords(out.Keywords),
		},
	}
	seen := make(map[models.NaturalKey]bool)
	for _, p := range out.Preferences {
		value := strings.TrimSpace(p.Value)
		if value == "" {
			continue
		}
		// 模型没有给出置信度时按 1 处理。
		confidence := 1.0
		if p.Confidence != nil {
			confidence = *p.Confidence
		}
		if confidence < a.minConfidence {
			continue
		}
		ep := models.ExtractedPreference{
			Category:       models.NormalizeLabel(strings.ToLower(p.Category), models.DefaultCategory),
			PreferenceType: models.NormalizeLabel(strings.ToLower(p.PreferenceType), models.DefaultPreferenceType),
			Value:          value,
			Confidence:     confidence,
			Metadata:       p.Metadata,
		}
		key := models.NaturalKey{Category: ep.Category, PreferenceType: ep.PreferenceType, ValueKey: models.NormalizeValue(value)}
		if seen[key] {
			continue
		}
		seen[key] = true
		res.Preferences = append(res.Preferences, ep)
	}
	return res, nil
}

// Basic 在不调用 LLM 时给出只含关键词的分析结果。
func Basic(transcript string) *Result {
	transcript = strings.TrimSpace(transcript)
	return &Result{
		Insights: models.VoiceInsights{
			Transcript: transcript,
			Keywords:   TopKeywords(transcript, 8),
		},
	}
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "but": true, "can": true, "do": true,
	"don't": true, "dont": true, "for": true, "i": true, "i'm": true, "im": true, "in": true,
	"is": true, "it": true, "just": true, "like": true, "me": true, "my": true, "not": true,
	"of": true, "on": true, "or": true, "really": true, "so": true, "that": true, "the": true,
	"this": true, "to": true, "very": true, "was": true, "with": true, "would": true, "you": true,
}

// TopKeywords 按出现次数返回最多 n 个非停用词，次数相同时按首次出现的顺序。
func TopKeywords(text string, n int) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	counts := make(map[string]int)
	var order []string
	for _, w := range words {
		w = strings.Trim(w, "'")
		if len([]rune(w)) < 3 || stopwords[w] {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > n {
		order = order[:n]
	}
	if order == nil {
		order = []string{}
	}
	return order
}

func cleanKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool)
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
