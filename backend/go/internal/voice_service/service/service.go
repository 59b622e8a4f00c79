package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"foodietrack/backend/go/internal/analysis"
	"foodietrack/backend/go/internal/apperr"
	"foodietrack/backend/go/internal/audioarchive"
	"foodietrack/backend/go/internal/docindex"
	"foodietrack/backend/go/internal/models"
	"foodietrack/backend/go/internal/speech"
	"foodietrack/backend/go/pkg/logger"

	"gorm.io/datatypes"
)

const serviceName = "voice_service"

// PreferenceRecorder 持久化抽取出的偏好，由偏好服务实现。
type PreferenceRecorder interface {
	RecordPreferences(ctx context.Context, userID string, statements []models.PreferenceStatement) ([]*models.Preference, error)
}

// Analyzer 分析转写文本。
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (*analysis.Result, error)
}

// Archiver 归档原始音频。
type Archiver interface {
	Put(ctx context.Context, userID string, data []byte) (string, error)
}

// HistoryStore 保存分析历史。
type HistoryStore interface {
	SaveAnalysis(ctx context.Context, a *models.VoiceAnalysis) error
	ListAnalyses(ctx context.Context, userID string, limit int) ([]*models.VoiceAnalysis, error)
}

// Request 是一次语音分析请求。
type Request struct {
	UserID   string
	TraceID  string
	Filename string
	Audio    []byte
	UseLLM   bool
}

// Response 与前端的 VoiceAnalysisResponse 对应。
type Response struct {
	Insights             models.VoiceInsights         `json:"insights"`
	ExtractedPreferences []models.ExtractedPreference `json:"extracted_preferences"`
	Message              string                       `json:"message"`
}

// Service 串联转写、分析、偏好写入、文档索引和音频归档。
type Service struct {
	transcriber speech.Transcriber
	analyzer    Analyzer
	prefs       PreferenceRecorder
	index       docindex.Index
	archive     Archiver
	history     HistoryStore
}

// Option 配置 Service 的可选依赖。
type Option func(*Service)

// WithAnalyzer 设置 LLM 分析器；未设置时只做关键词提取。
func WithAnalyzer(a Analyzer) Option { return func(s *Service) { s.analyzer = a } }

// WithIndex 设置文档索引。
func WithIndex(idx docindex.Index) Option { return func(s *Service) { s.index = idx } }

// WithArchive 设置音频归档。
func WithArchive(a Archiver) Option { return func(s *Service) { s.archive = a } }

// WithHistory 设置历史记录存储。
func WithHistory(h HistoryStore) Option { return func(s *Service) { s.history = h } }

// NewService 创建一个新的 Service 实例。
func NewService(transcriber speech.Transcriber, prefs PreferenceRecorder, opts ...Option) *Service {
	s := &Service{transcriber: transcriber, prefs: prefs, index: docindex.Nop{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze 处理一段上传的语音。
//
// 转写失败和偏好写入失败会返回错误；分析、索引、归档和历史记录失败只记录日志，
// 分析失败时退回到关键词提取。
func (s *Service) Analyze(ctx context.Context, req Request) (*Response, error) {
	const op = "voice.Analyze"
	log := logger.New(serviceName, req.TraceID, req.UserID)

	if req.UserID == "" {
		return nil, apperr.Validation(op, "user_id is required")
	}
	if len(req.Audio) == 0 {
		return nil, apperr.Validation(op, "audio file is empty")
	}
	mimeType, _ := audioarchive.Sniff(req.Audio)
	if !audioarchive.IsAudio(mimeType) {
		return nil, apperr.Validation(op, fmt.Sprintf("unsupported audio type %q", mimeType))
	}
	if s.transcriber == nil {
		return nil, apperr.Upstream(op, errors.New("speech-to-text is not configured"))
	}

	transcript, err := s.transcriber.Transcribe(ctx, speech.Audio{
		Filename: req.Filename,
		MIMEType: mimeType,
		Data:     bytes.NewReader(req.Audio),
	})
	if err != nil {
		return nil, apperr.Upstream(op, err)
	}

	result := analysis.Basic(transcript)
	if req.UseLLM && s.analyzer != nil {
		if r, err := s.analyzer.Analyze(ctx, transcript); err != nil {
			log.WithErr(err).Warn("LLM 分析失败，退回关键词提取")
		} else {
			result = r
		}
	}

	statements := make([]models.PreferenceStatement, 0, len(result.Preferences))
	for _, p := range result.Preferences {
		st := p.Statement("voice")
		st.Metadata["transcript"] = models.String(transcript)
		statements = append(statements, st)
	}
	if len(statements) > 0 {
		if _, err := s.prefs.RecordPreferences(ctx, req.UserID, statements); err != nil {
			return nil, err
		}
	}

	record := &models.VoiceAnalysis{
		UserID:     req.UserID,
		Transcript: result.Insights.Transcript,
		Sentiment:  result.Insights.Sentiment,
		Intent:     result.Insights.Intent,
		Keywords:   datatypes.JSONSlice[string](result.Insights.Keywords),
		MIMEType:   mimeType,
	}

	docMeta := map[string]any{"source": "voice"}
	if result.Insights.Sentiment != "" {
		docMeta["sentiment"] = result.Insights.Sentiment
	}
	if result.Insights.Intent != "" {
		docMeta["intent"] = result.Insights.Intent
	}
	if id, err := s.index.Store(ctx, req.UserID, transcript, docMeta); err == nil {
		record.DocumentID = id
	} else if !errors.Is(err, docindex.ErrDisabled) {
		log.WithErr(err).Warn("转写文本写入文档索引失败")
	}

	if s.archive != nil {
		if name, err := s.archive.Put(ctx, req.UserID, req.Audio); err != nil {
			log.WithErr(err).Warn("音频归档失败")
		} else {
			record.AudioObject = name
		}
	}

	extracted := result.Preferences
	if extracted == nil {
		extracted = []models.ExtractedPreference{}
	}
	if s.history != nil {
		raw, _ := json.Marshal(extracted)
		record.Extracted = datatypes.JSON(raw)
		if err := s.history.SaveAnalysis(ctx, record); err != nil {
			log.WithErr(err).Warn("保存语音分析历史失败")
		}
	}

	log.WithField("preferences", len(extracted)).Info("语音分析完成")
	return &Response{
		Insights:             result.Insights,
		ExtractedPreferences: extracted,
		Message:              message(len(extracted)),
	}, nil
}

// History 返回 userID 最近的分析记录。
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*models.VoiceAnalysis, error) {
	if s.history == nil {
		return []*models.VoiceAnalysis{}, nil
	}
	return s.history.ListAnalyses(ctx, userID, limit)
}

func message(n int) string {
	switch n {
	case 0:
		return "Voice note analyzed. No food preferences detected."
	case 1:
		return "Voice note analyzed. Saved 1 preference."
	default:
		return fmt.Sprintf("Voice note analyzed. Saved %d preferences.", n)
	}
}
