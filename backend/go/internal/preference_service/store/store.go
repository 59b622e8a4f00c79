package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"foodietrack/backend/go/internal/apperr"
	"foodietrack/backend/go/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// naturalKeyColumns 与 idx_preferences_natural_key 的列顺序一致。
var naturalKeyColumns = []clause.Column{
	{Name: "user_id"},
	{Name: "category"},
	{Name: "preference_type"},
	{Name: "value_key"},
}

// Store 封装了 preferences 表上的所有数据库操作。
// 每个方法都从连接池借用一个连接，并在返回前归还；不在进程内缓存任何记录。
type Store struct {
	DB  *gorm.DB
	now func() time.Time
}

// NewStore 创建一个新的 Store 实例。
func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureSchema 创建 preferences 表及其唯一索引（已存在时不做任何事）。
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.DB.WithContext(ctx).AutoMigrate(&models.Preference{}); err != nil {
		return apperr.Storage("store.EnsureSchema", err)
	}
	return nil
}

// CreatePreference 插入一条新偏好。自然键冲突时返回 ConflictError。
func (s *Store) CreatePreference(ctx context.Context, p *models.Preference) (*models.Preference, error) {
	const op = "store.CreatePreference"
	p.Normalize()
	now := s.now()
	p.ID = 0
	p.CreatedAt, p.UpdatedAt = now, now

	if err := s.DB.WithContext(ctx).Create(p).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, apperr.Conflict(op, err)
		}
		return nil, apperr.Storage(op, err)
	}
	return p, nil
}

// FindByNaturalKey 按自然键查找偏好，value 比较时忽略首尾空白和大小写。
// 不存在时返回 (nil, nil)。
func (s *Store) FindByNaturalKey(ctx context.Context, userID, value, category, preferenceType string) (*models.Preference, error) {
	key := models.NaturalKey{
		UserID:         strings.TrimSpace(userID),
		Category:       models.NormalizeLabel(category, models.DefaultCategory),
		PreferenceType: models.NormalizeLabel(preferenceType, models.DefaultPreferenceType),
		ValueKey:       models.NormalizeValue(value),
	}
	p, err := findByKey(s.DB.WithContext(ctx), key)
	if err != nil {
		return nil, apperr.Storage("store.FindByNaturalKey", err)
	}
	return p, nil
}

func findByKey(tx *gorm.DB, key models.NaturalKey) (*models.Preference, error) {
	var p models.Preference
	err := tx.Where("user_id = ? AND category = ? AND preference_type = ? AND value_key = ?",
		key.UserID, key.Category, key.PreferenceType, key.ValueKey).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPreference 按 ID 读取一条偏好。
func (s *Store) GetPreference(ctx context.Context, id uint) (*models.Preference, error) {
	var p models.Preference
	err := s.DB.WithContext(ctx).Take(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("store.GetPreference", fmt.Sprintf("preference %d not found", id))
	}
	if err != nil {
		return nil, apperr.Storage("store.GetPreference", err)
	}
	return &p, nil
}

// UpdateMetadata 把 patch 合并进已存储的元数据（同名键以 patch 为准），并推进 updated_at。
func (s *Store) UpdateMetadata(ctx context.Context, id uint, patch models.Metadata) (*models.Preference, error) {
	const op = "store.UpdateMetadata"
	var out *models.Preference
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Preference
		err := tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).Take(&p, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound(op, fmt.Sprintf("preference %d not found", id))
		}
		if err != nil {
			return err
		}
		if err := s.mergeMetadata(tx, &p, patch); err != nil {
			return err
		}
		out = &p
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) != "" {
			return nil, err
		}
		return nil, apperr.Storage(op, err)
	}
	return out, nil
}

func (s *Store) mergeMetadata(tx *gorm.DB, p *models.Preference, patch models.Metadata) error {
	merged := p.Metadata.Merge(patch)
	now := s.now()
	err := tx.Model(&models.Preference{}).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{"metadata": merged, "updated_at": now}).Error
	if err != nil {
		return err
	}
	p.Metadata = merged
	p.UpdatedAt = now
	return nil
}

// ListPreferences 返回某个用户的偏好，按 created_at 升序、再按 id 升序排列。
// category 为 nil 时返回全部分类。
func (s *Store) ListPreferences(ctx context.Context, userID string, category *string) ([]*models.Preference, error) {
	q := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	if category != nil {
		q = q.Where("category = ?", *category)
	}
	prefs := make([]*models.Preference, 0)
	if err := q.Order("created_at ASC").Order("id ASC").Find(&prefs).Error; err != nil {
		return nil, apperr.Storage("store.ListPreferences", err)
	}
	return prefs, nil
}

// UpsertPreference 在一个事务中插入或合并一条偏好。
// 自然键已存在时保留原记录（包括原始大小写的 value），合并元数据并推进 updated_at；created 为 false。
func (s *Store) UpsertPreference(ctx context.Context, p *models.Preference) (*models.Preference, bool, error) {
	const op = "store.UpsertPreference"
	p.Normalize()
	var (
		out     *models.Preference
		created bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		row := *p
		row.ID = 0
		row.CreatedAt, row.UpdatedAt = now, now

		res := tx.Clauses(clause.OnConflict{Columns: naturalKeyColumns, DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			out, created = &row, true
			return nil
		}

		existing, err := findByKey(tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}), p.Key())
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("natural key conflict reported but no row found for %+v", p.Key())
		}
		if err := s.mergeMetadata(tx, existing, p.Metadata); err != nil {
			return err
		}
		out = existing
		return nil
	})
	if err != nil {
		return nil, false, apperr.Storage(op, err)
	}
	return out, created, nil
}

// DeletePreference 删除属于 userID 的一条偏好；记录不存在或属于其他用户时返回 NotFoundError。
func (s *Store) DeletePreference(ctx context.Context, userID string, id uint) error {
	const op = "store.DeletePreference"
	res := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Preference{})
	if res.Error != nil {
		return apperr.Storage(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound(op, fmt.Sprintf("preference %d not found", id))
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}
