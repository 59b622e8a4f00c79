package service

import (
	"context"
	"fmt"
	"strings"

	"foodietrack/backend/go/internal/apperr"
	"foodietrack/backend/go/internal/metrics"
	"foodietrack/backend/go/internal/models"
	"foodietrack/backend/go/pkg/logger"
)

// Store 是服务层依赖的持久化操作，由 store.Store 实现。
type Store interface {
	UpsertPreference(ctx context.Context, p *models.Preference) (*models.Preference, bool, error)
	GetPreference(ctx context.Context, id uint) (*models.Preference, error)
	UpdateMetadata(ctx context.Context, id uint, patch models.Metadata) (*models.Preference, error)
	ListPreferences(ctx context.Context, userID string, category *string) ([]*models.Preference, error)
	DeletePreference(ctx context.Context, userID string, id uint) error
}

// Publisher 接收偏好变更事件。发布失败只记录日志，不影响写入结果。
type Publisher interface {
	PreferenceRecorded(ctx context.Context, p *models.Preference, created bool) error
	PreferenceDeleted(ctx context.Context, userID string, id uint) error
}

// Service 封装了偏好的业务逻辑。
type Service struct {
	store     Store
	publisher Publisher
	metrics   *metrics.Metrics
}

// Option 配置 Service 的可选依赖。
type Option func(*Service)

// WithPublisher 设置事件发布器。
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics 设置指标收集器。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService 创建一个新的 Service 实例。
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordPreferences 持久化 userID 的一批偏好陈述，返回与输入顺序一致的结果记录。
//
// 整批先做校验，任何一条不合法都会在访问存储之前返回 ValidationError。
// 同一批中自然键相同的陈述会被合并（后出现的元数据优先），每个自然键只写一次，
// 对应位置返回同一条记录。重复提交同一批数据不会产生新行，只会推进 updated_at。
// 存储错误原样返回，不做重试；此前已写入的陈述保持已写入状态。
func (s *Service) RecordPreferences(ctx context.Context, userID string, statements []models.PreferenceStatement) ([]*models.Preference, error) {
	const op = "service.RecordPreferences"
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.Validation(op, "user_id is required")
	}
	for i, st := range statements {
		if strings.TrimSpace(st.Value) == "" {
			return nil, apperr.Validation(op, fmt.Sprintf("statement %d: value is required", i))
		}
		if msg := st.ToPreference(userID).LengthError(); msg != "" {
			return nil, apperr.Validation(op, fmt.Sprintf("statement %d: %s", i, msg))
		}
	}

	// 按自然键折叠同批次中的重复陈述。
	type slot struct {
		pref   *models.Preference
		result *models.Preference
	}
	slots := make(map[models.NaturalKey]*slot, len(statements))
	order := make([]models.NaturalKey, 0, len(statements))
	keys := make([]models.NaturalKey, len(statements))
	for i, st := range statements {
		p := st.ToPreference(userID)
		key := p.Key()
		keys[i] = key
		if existing, ok := slots[key]; ok {
			existing.pref.Metadata = existing.pref.Metadata.Merge(p.Metadata)
			continue
		}
		slots[key] = &slot{pref: p}
		order = append(order, key)
	}

	log := logger.New("preference_service", "", userID)
	for _, key := range order {
		sl := slots[key]
		saved, created, err := s.store.UpsertPreference(ctx, sl.pref)
		if err != nil {
			return nil, err
		}
		sl.result = saved
		s.metrics.PreferenceWritten(created)
		if s.publisher != nil {
			if err := s.publisher.PreferenceRecorded(ctx, saved, created); err != nil {
				log.WithErr(err).WithField("preference_id", saved.ID).Warn("发布偏好事件失败")
			}
		}
	}

	out := make([]*models.Preference, len(statements))
	for i, key := range keys {
		out[i] = slots[key].result
	}
	return out, nil
}

// CreatePreference 记录单条偏好，走与批量写入相同的 upsert 路径。
func (s *Service) CreatePreference(ctx context.Context, userID string, st models.PreferenceStatement) (*models.Preference, error) {
	out, err := s.RecordPreferences(ctx, userID, []models.PreferenceStatement{st})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// UpdatePreference 把 patch 合并进 userID 自己的一条偏好的元数据。
// 记录属于其他用户时与不存在一样返回 NotFoundError。
func (s *Service) UpdatePreference(ctx context.Context, userID string, id uint, patch models.Metadata) (*models.Preference, error) {
	const op = "service.UpdatePreference"
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation(op, "user_id is required")
	}
	if _, err := s.ownedPreference(ctx, op, userID, id); err != nil {
		return nil, err
	}
	return s.updateMetadata(ctx, userID, id, patch)
}

// ReplacePreference 处理整条陈述的更新。自然键不可修改：
// 陈述中的 value、category、preference_type 要么为空，要么与已存储的值相同，
// 否则返回 ValidationError；通过校验后只合并元数据。
func (s *Service) ReplacePreference(ctx context.Context, userID string, id uint, st models.PreferenceStatement) (*models.Preference, error) {
	const op = "service.ReplacePreference"
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation(op, "user_id is required")
	}
	p, err := s.ownedPreference(ctx, op, userID, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(st.Value) != "" && models.NormalizeValue(st.Value) != p.ValueKey {
		return nil, apperr.Validation(op, "value cannot be changed, create a new preference instead")
	}
	if c := strings.TrimSpace(st.Category); c != "" && c != p.Category {
		return nil, apperr.Validation(op, "category cannot be changed, create a new preference instead")
	}
	if t := strings.TrimSpace(st.PreferenceType); t != "" && t != p.PreferenceType {
		return nil, apperr.Validation(op, "preference_type cannot be changed, create a new preference instead")
	}
	return s.updateMetadata(ctx, userID, id, st.Metadata)
}

// ownedPreference 读取 id 对应的记录；属于其他用户时按不存在处理。
func (s *Service) ownedPreference(ctx context.Context, op, userID string, id uint) (*models.Preference, error) {
	p, err := s.store.GetPreference(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, apperr.NotFound(op, fmt.Sprintf("preference %d not found", id))
	}
	return p, nil
}

func (s *Service) updateMetadata(ctx context.Context, userID string, id uint, patch models.Metadata) (*models.Preference, error) {
	updated, err := s.store.UpdateMetadata(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.metrics.PreferenceWritten(false)
	if s.publisher != nil {
		if err := s.publisher.PreferenceRecorded(ctx, updated, false); err != nil {
			logger.New("preference_service", "", userID).WithErr(err).Warn("发布偏好事件失败")
		}
	}
	return updated, nil
}

// DeletePreference 删除 userID 自己的一条偏好。
func (s *Service) DeletePreference(ctx context.Context, userID string, id uint) error {
	const op = "service.DeletePreference"
	if strings.TrimSpace(userID) == "" {
		return apperr.Validation(op, "user_id is required")
	}
	if err := s.store.DeletePreference(ctx, userID, id); err != nil {
		return err
	}
	if s.publisher != nil {
		if err := s.publisher.PreferenceDeleted(ctx, userID, id); err != nil {
			logger.New("preference_service", "", userID).WithErr(err).Warn("发布删除事件失败")
		}
	}
	return nil
}

// ExportPreferences 以适合放进 LLM 提示词的格式导出用户的全部偏好。
func (s *Service) ExportPreferences(ctx context.Context, userID string) (*models.PreferencesExport, error) {
	prefs, err := s.GetPreferences(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	out := &models.PreferencesExport{
		UserID:      userID,
		Preferences: make([]models.ExportedPreference, 0, len(prefs)),
	}
	for _, p := range prefs {
		out.Preferences = append(out.Preferences, models.ExportedPreference{
			Type:     p.PreferenceType,
			Value:    p.Value,
			Category: p.Category,
			Metadata: p.Metadata.Interface(),
		})
	}
	return out, nil
}
