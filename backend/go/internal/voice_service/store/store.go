package store

import (
	"context"
	"time"

	"foodietrack/backend/go/internal/apperr"
	"foodietrack/backend/go/internal/models"

	"gorm.io/gorm"
)

// DefaultHistoryLimit 是历史记录查询的默认条数。
const DefaultHistoryLimit = 20

// Store 保存语音分析的历史记录。
type Store struct {
	DB  *gorm.DB
	now func() time.Time
}

// NewStore 创建一个新的 Store 实例。
func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureSchema 创建 voice_analyses 表（已存在时不做任何事）。
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.DB.WithContext(ctx).AutoMigrate(&models.VoiceAnalysis{}); err != nil {
		return apperr.Storage("voice.EnsureSchema", err)
	}
	return nil
}

// SaveAnalysis 写入一条分析记录。
func (s *Store) SaveAnalysis(ctx context.Context, a *models.VoiceAnalysis) error {
	a.ID = 0
	a.CreatedAt = s.now()
	if err := s.DB.WithContext(ctx).Create(a).Error; err != nil {
		return apperr.Storage("voice.SaveAnalysis", err)
	}
	return nil
}

// ListAnalyses 按时间倒序返回 userID 最近的分析记录。
func (s *Store) ListAnalyses(ctx context.Context, userID string, limit int) ([]*models.VoiceAnalysis, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	out := make([]*models.VoiceAnalysis, 0)
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, apperr.Storage("voice.ListAnalyses", err)
	}
	return out, nil
}
