package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"foodietrack/backend/go/internal/models"

	"github.com/segmentio/kafka-go"
)

// 事件类型。
const (
	TypePreferenceRecorded = "preference.recorded"
	TypePreferenceDeleted  = "preference.deleted"
)

// PreferenceEvent 是发布到 Kafka 的偏好变更事件。
type PreferenceEvent struct {
	Type           string          `json:"type"`
	UserID         string          `json:"user_id"`
	PreferenceID   uint            `json:"preference_id"`
	Category       string          `json:"category,omitempty"`
	PreferenceType string          `json:"preference_type,omitempty"`
	Value          string          `json:"value,omitempty"`
	Metadata       models.Metadata `json:"metadata,omitempty"`
	Created        bool            `json:"created"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// MessageWriter 是 *kafka.Writer 的最小子集。
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 把偏好变更写入 Kafka，消息键为 user_id，保证同一用户的事件有序。
type KafkaPublisher struct {
	writer MessageWriter
	now    func() time.Time
}

// NewKafkaPublisher 创建一个新的 KafkaPublisher 实例。
func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, now: time.Now}
}

// PreferenceRecorded 发布一条偏好写入事件。
func (p *KafkaPublisher) PreferenceRecorded(ctx context.Context, pref *models.Preference, created bool) error {
	return p.publish(ctx, PreferenceEvent{
		Type:           TypePreferenceRecorded,
		UserID:         pref.UserID,
		PreferenceID:   pref.ID,
		Category:       pref.Category,
		PreferenceType: pref.PreferenceType,
		Value:          pref.Value,
		Metadata:       pref.Metadata,
		Created:        created,
	})
}

// PreferenceDeleted 发布一条偏好删除事件。
func (p *KafkaPublisher) PreferenceDeleted(ctx context.Context, userID string, id uint) error {
	return p.publish(ctx, PreferenceEvent{
		Type:         TypePreferenceDeleted,
		UserID:       userID,
		PreferenceID: id,
	})
}

func (p *KafkaPublisher) publish(ctx context.Context, ev PreferenceEvent) error {
	ev.OccurredAt = p.now().UTC()
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.UserID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

// Close 关闭底层的 writer 连接。
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop 丢弃所有事件，在未配置 Kafka 时使用。
type Nop struct{}

func (Nop) PreferenceRecorded(context.Context, *models.Preference, bool) error {
	return nil
}

func (Nop) PreferenceDeleted(context.Context, string, uint) error {
	return nil
}
