package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"foodietrack/backend/go/internal/apperr"
	"foodietrack/backend/go/internal/llm"
	"foodietrack/backend/go/internal/metrics"
	"foodietrack/backend/go/internal/models"
	"foodietrack/backend/go/pkg/logger"
)

const (
	serviceName = "recommendation_service"

	DefaultTopK   = 3
	MaxCandidates = 50
	neutralScore  = 0.5
)

const systemPrompt = `You rank food options for a user based on their stored food preferences.
Score every candidate between 0 and 1, where 1 is a perfect match and 0 means the user should avoid it.
Candidates that contain something the user is allergic to or restricted from must score 0.
Respond with a single JSON object: {"scores":[{"item": candidate exactly as given, "score": number, "reason": one short sentence}]}`

// PreferenceSource 提供用户的偏好，由偏好服务的检索门面实现。
type PreferenceSource interface {
	GetPreferences(ctx context.Context, userID string, category *string) ([]*models.Preference, error)
}

// Service 根据用户的偏好为候选项打分并排序。
type Service struct {
	prefs   PreferenceSource
	llm     llm.LLM
	cache   Cache
	ttl     time.Duration
	metrics *metrics.Metrics
}

// Option 配置 Service 的可选依赖。
type Option func(*Service)

// WithLLM 设置用于打分的模型；未设置时使用基于关键词匹配的打分。
func WithLLM(m llm.LLM) Option { return func(s *Service) { s.llm = m } }

// WithCache 设置结果缓存及其有效期。
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) { s.cache, s.ttl = c, ttl }
}

// WithMetrics 设置指标收集器。
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// NewService 创建一个新的 Service 实例。
func NewService(prefs PreferenceSource, opts ...Option) *Service {
	s := &Service{prefs: prefs}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Recommend 返回得分最高的 topK 个候选项，按分数降序，同分时保持输入顺序。
func (s *Service) Recommend(ctx context.Context, userID, traceID string, candidates []string, topK int) ([]models.RecommendationItem, error) {
	const op = "recommendation.Recommend"
	log := logger.New(serviceName, traceID, userID)

	if userID == "" {
		return nil, apperr.Validation(op, "user_id is required")
	}
	candidates = cleanCandidates(candidates)
	if len(candidates) == 0 {
		return nil, apperr.Validation(op, "at least one candidate is required")
	}
	if len(candidates) > MaxCandidates {
		return nil, apperr.Validation(op, fmt.Sprintf("at most %d candidates are allowed", MaxCandidates))
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	prefs, err := s.prefs.GetPreferences(ctx, userID, nil)
	if err != nil {
		return nil, err
	}

	key := cacheKey(userID, candidates, prefs)
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			log.WithErr(err).Warn("读取推荐缓存失败")
		}
		var cached []models.RecommendationItem
		if ok && json.Unmarshal(raw, &cached) == nil {
			s.metrics.RecommendationCache(true)
			log.WithPayload(map[string]interface{}{"candidates": len(candidates), "top_k": topK}).Debug("命中推荐缓存")
			return top(cached, topK), nil
		}
		s.metrics.RecommendationCache(false)
	}

	scored, fromModel := s.score(ctx, log, candidates, prefs)
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	log.WithPayload(map[string]interface{}{
		"candidates":  len(candidates),
		"preferences": len(prefs),
		"from_model":  fromModel,
	}).Debug("推荐打分完成")

	// 规则打分只是降级结果，不写入缓存。
	if s.cache != nil && fromModel {
		if raw, err := json.Marshal(scored); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
				log.WithErr(err).Warn("写入推荐缓存失败")
			}
		}
	}
	return top(scored, topK), nil
}

func (s *Service) score(ctx context.Context, log *logger.Logger, candidates []string, prefs []*models.Preference) ([]models.RecommendationItem, bool) {
	rules := make([]models.RecommendationItem, len(candidates))
	for i, c := range candidates {
		rules[i] = ruleScore(c, prefs)
	}
	if s.llm == nil {
		return rules, false
	}

	modelScores, err := s.llmScores(ctx, candidates, prefs)
	if err != nil {
		log.WithErr(err).Warn("LLM 打分失败，使用规则打分")
		return rules, false
	}

	out := make([]models.RecommendationItem, len(candidates))
	for i, c := range candidates {
		item, ok := modelScores[models.NormalizeValue(c)]
		if !ok {
			out[i] = rules[i]
			continue
		}
		item.Item = c
		// 过敏和忌口的命中以规则为准。
		if rules[i].Score == 0 {
			item.Score, item.Reason = 0, rules[i].Reason
		}
		out[i] = item
	}
	return out, true
}

type llmScores struct {
	Scores []models.RecommendationItem `json:"scores"`
}

func (s *Service) llmScores(ctx context.Context, candidates []string, prefs []*models.Preference) (map[string]models.RecommendationItem, error) {
	var sb strings.Builder
	sb.WriteString("User preferences:\n")
	if len(prefs) == 0 {
		sb.WriteString("- none recorded\n")
	}
	for _, p := range prefs {
		fmt.Fprintf(&sb, "- %s (%s, %s)\n", p.Value, p.PreferenceType, p.Category)
	}
	sb.WriteString("\nCandidates:\n")
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- %s\n", c)
	}

	raw, err := s.llm.GenerateJSON(ctx, systemPrompt, sb.String())
	if err != nil {
		return nil, err
	}
	var out llmScores
	if err := llm.DecodeJSON(raw, &out); err != nil {
		return nil, err
	}
	byName := make(map[string]models.RecommendationItem, len(out.Scores))
	for _, it := range out.Scores {
		it.Score = clamp(it.Score)
		it.Reason = strings.TrimSpace(it.Reason)
		byName[models.NormalizeValue(it.Item)] = it
	}
	return byName, nil
}

// ruleScore 按词匹配偏好值与候选项后打分：偏好的词序列须整段出现在候选项的词序列中。
func ruleScore(candidate string, prefs []*models.Preference) models.RecommendationItem {
	name := words(candidate)
	item := models.RecommendationItem{Item: candidate, Score: neutralScore, Reason: "No matching preferences."}
	var liked, disliked []string
	for _, p := range prefs {
		if !containsWords(name, words(p.Value)) {
			continue
		}
		switch p.PreferenceType {
		case models.PreferenceAllergy, models.PreferenceRestriction:
			return models.RecommendationItem{Item: candidate, Score: 0, Reason: fmt.Sprintf("Contains %s (%s).", p.Value, p.PreferenceType)}
		case models.PreferenceLike:
			liked = append(liked, p.Value)
		case models.PreferenceDislike:
			disliked = append(disliked, p.Value)
		}
	}
	switch {
	case len(disliked) > 0:
		item.Score = clamp(0.2 - 0.05*float64(len(disliked)-1))
		item.Reason = "You dislike " + strings.Join(disliked, ", ") + "."
	case len(liked) > 0:
		item.Score = clamp(0.8 + 0.05*float64(len(liked)-1))
		item.Reason = "You like " + strings.Join(liked, ", ") + "."
	}
	return item
}

// words 把文本切成小写的词。汉字没有分隔符，每个字单独成词。
func words(s string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			out = append(out, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur = append(cur, r)
		default:
			flush()
		}
	}
	flush()
	return out
}

// containsWords 判断 needle 是否作为连续的词序列出现在 haystack 中，末词允许 s/es 复数。
func containsWords(haystack, needle []string) bool {
	if len(needle) == 0 {
		return false
	}
	last := len(needle) - 1
	for i := 0; i+len(needle) <= len(haystack); i++ {
		ok := true
		for j, w := range needle {
			h := haystack[i+j]
			if h == w || (j == last && (h == w+"s" || h == w+"es")) {
				continue
			}
			ok = false
			break
		}
		if ok {
			return true
		}
	}
	return false
}

// cacheKey 由用户、候选项和偏好状态共同决定，任何偏好变更都会使旧结果失效。
func cacheKey(userID string, candidates []string, prefs []*models.Preference) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00", userID)
	for _, c := range candidates {
		fmt.Fprintf(h, "c:%s\x00", c)
	}
	for _, p := range prefs {
		fmt.Fprintf(h, "p:%d:%d\x00", p.ID, p.UpdatedAt.UnixNano())
	}
	return userID + ":" + hex.EncodeToString(h.Sum(nil))
}

func cleanCandidates(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		k := models.NormalizeValue(c)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

func top(items []models.RecommendationItem, k int) []models.RecommendationItem {
	if len(items) > k {
		items = items[:k]
	}
	return items
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
