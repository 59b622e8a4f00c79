package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// 偏好的默认分类与类型。两者都是自由文本，下面的常量只是常见取值。
const (
	DefaultCategory       = "food"
	DefaultPreferenceType = "dislike"

	PreferenceLike        = "like"
	PreferenceDislike     = "dislike"
	PreferenceRestriction = "restriction"
	PreferenceAllergy     = "allergy"
)

// 与 Preference 列宽一致的长度上限，按字符计。
const (
	MaxValueLength = 255
	MaxLabelLength = 64
)

// Preference 是用户表达的一条偏好，例如 "不喜欢香菜"。
// (UserID, Category, PreferenceType, ValueKey) 构成自然键，由唯一索引保证不重复。
type Preference struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         string    `gorm:"size:128;not null;uniqueIndex:idx_preferences_natural_key,priority:1" json:"user_id"`
	Category       string    `gorm:"size:64;not null;default:food;uniqueIndex:idx_preferences_natural_key,priority:2" json:"category"`
	PreferenceType string    `gorm:"size:64;not null;default:dislike;uniqueIndex:idx_preferences_natural_key,priority:3" json:"preference_type"`
	Value          string    `gorm:"type:text;not null" json:"value"`
	ValueKey       string    `gorm:"size:255;not null;uniqueIndex:idx_preferences_natural_key,priority:4" json:"-"` // 去空白并小写后的 Value，仅用于比较
	Metadata       Metadata  `json:"metadata"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Preference) TableName() string {
	return "preferences"
}

// PreferenceStatement 是一条待持久化的偏好陈述，通常来自分析服务的抽取结果。
type PreferenceStatement struct {
	Category       string   `json:"category"`
	PreferenceType string   `json:"preference_type"`
	Value          string   `json:"value"`
	Metadata       Metadata `json:"metadata,omitempty"`
}

// NaturalKey 标识一条偏好在现实世界中的含义，用于去重。
type NaturalKey struct {
	UserID         string
	Category       string
	PreferenceType string
	ValueKey       string
}

// NormalizeValue 返回用于比较的 value：去掉首尾空白并做大小写折叠。
func NormalizeValue(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// NormalizeLabel 规范化分类或类型，空值时返回默认值。
func NormalizeLabel(label, fallback string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return fallback
	}
	return label
}

// Normalize 填充默认值并计算 ValueKey。Value 保留原始大小写，只去掉首尾空白。
func (p *Preference) Normalize() {
	p.UserID = strings.TrimSpace(p.UserID)
	p.Category = NormalizeLabel(p.Category, DefaultCategory)
	p.PreferenceType = NormalizeLabel(p.PreferenceType, DefaultPreferenceType)
	p.Value = strings.TrimSpace(p.Value)
	p.ValueKey = NormalizeValue(p.Value)
	if p.Metadata == nil {
		p.Metadata = Metadata{}
	}
}

// LengthError 在任一字段超出列宽时返回描述，否则返回空串。需在 Normalize 之后调用。
func (p *Preference) LengthError() string {
	switch {
	case utf8.RuneCountInString(p.ValueKey) > MaxValueLength:
		return "value is too long"
	case utf8.RuneCountInString(p.Category) > MaxLabelLength:
		return "category is too long"
	case utf8.RuneCountInString(p.PreferenceType) > MaxLabelLength:
		return "preference_type is too long"
	}
	return ""
}

// Key 返回该记录的自然键。
func (p *Preference) Key() NaturalKey {
	return NaturalKey{
		UserID:         strings.TrimSpace(p.UserID),
		Category:       NormalizeLabel(p.Category, DefaultCategory),
		PreferenceType: NormalizeLabel(p.PreferenceType, DefaultPreferenceType),
		ValueKey:       NormalizeValue(p.Value),
	}
}

// ToPreference 把陈述转换为属于 userID 的记录（尚未持久化）。
func (s PreferenceStatement) ToPreference(userID string) *Preference {
	p := &Preference{
		UserID:         userID,
		Category:       s.Category,
		PreferenceType: s.PreferenceType,
		Value:          s.Value,
		Metadata:       s.Metadata,
	}
	p.Normalize()
	return p
}

// PreferencesExport 是提供给 LLM 的偏好导出格式。
type PreferencesExport struct {
	UserID      string               `json:"user_id"`
	Preferences []ExportedPreference `json:"preferences"`
}

// ExportedPreference 是导出格式中的单条偏好。
type ExportedPreference struct {
	Type     string         `json:"type"`
	Value    string         `json:"value"`
	Category string         `json:"category"`
	Metadata map[string]any `json:"metadata"`
}
