package service

import (
	"context"

	"foodietrack/backend/go/internal/models"
)

// GetPreferences 返回用户的偏好，按创建时间排序；category 为 nil 时不过滤分类。
// 供 HTTP 层和推荐服务读取偏好使用，直接委托给存储层。
func (s *Service) GetPreferences(ctx context.Context, userID string, category *string) ([]*models.Preference, error) {
	return s.store.ListPreferences(ctx, userID, category)
}
