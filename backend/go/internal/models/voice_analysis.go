package models

import (
	"time"

	"gorm.io/datatypes"
)

// VoiceInsights 是一次语音分析的结果摘要。
type VoiceInsights struct {
	Transcript string   `json:"transcript"`
	Sentiment  string   `json:"sentiment,omitempty"`
	Intent     string   `json:"intent,omitempty"`
	Keywords   []string `json:"keywords"`
}

// ExtractedPreference 是分析服务从转写文本中抽取出的偏好。
type ExtractedPreference struct {
	Category       string   `json:"category"`
	PreferenceType string   `json:"preference_type"`
	Value          string   `json:"value"`
	Confidence     float64  `json:"confidence"`
	Metadata       Metadata `json:"metadata,omitempty"`
}

// Statement 把抽取结果转换为偏好陈述，置信度和来源写入元数据。
func (e ExtractedPreference) Statement(source string) PreferenceStatement {
	md := Metadata{}.Merge(e.Metadata)
	md["confidence"] = Number(e.Confidence)
	if source != "" {
		md["source"] = String(source)
	}
	return PreferenceStatement{
		Category:       e.Category,
		PreferenceType: e.PreferenceType,
		Value:          e.Value,
		Metadata:       md,
	}
}

// VoiceAnalysis 记录每一次语音分析，便于用户回看历史。
type VoiceAnalysis struct {
	ID          uint                        `gorm:"primaryKey" json:"id"`
	UserID      string                      `gorm:"size:128;not null;index" json:"user_id"`
	Transcript  string                      `gorm:"type:text" json:"transcript"`
	Sentiment   string                      `gorm:"size:64" json:"sentiment,omitempty"`
	Intent      string                      `gorm:"size:255" json:"intent,omitempty"`
	Keywords    datatypes.JSONSlice[string] `json:"keywords"`
	Extracted   datatypes.JSON              `json:"extracted_preferences"`
	MIMEType    string                      `gorm:"size:128" json:"mime_type,omitempty"`
	AudioObject string                      `gorm:"size:512" json:"audio_object,omitempty"` // 音频归档中的对象名
	DocumentID  string                      `gorm:"size:255" json:"document_id,omitempty"`  // 文档索引返回的 ID
	CreatedAt   time.Time                   `json:"created_at"`
}

func (VoiceAnalysis) TableName() string {
	return "voice_analyses"
}
