package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"foodietrack/backend/go/internal/config"

	"github.com/segmentio/kafka-go"
)

// NewWriter 确保事件主题存在，然后返回写入该主题的 Writer。
// 未配置 Brokers 时返回 (nil, nil)，表示不发布事件。
func NewWriter(ctx context.Context, cfg *config.KafkaConfig) (*kafka.Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("未配置 Kafka topic")
	}
	if err := EnsureTopic(ctx, cfg.Brokers[0], cfg.Topic); err != nil {
		return nil, err
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		BatchSize:              100,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
	}, nil
}

// EnsureTopic 在主题不存在时通过集群控制器创建它。
func EnsureTopic(ctx context.Context, broker, topic string) error {
	var d kafka.Dialer
	conn, err := d.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("kafka 初始化连接失败: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(topic)
	if err == nil && len(partitions) > 0 {
		return nil
	}
	if err != nil && !errors.Is(err, kafka.UnknownTopicOrPartition) {
		return fmt.Errorf("无法读取 Kafka 分区信息: %w", err)
	}

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("无法获取 Kafka 控制器: %w", err)
	}
	ctrlConn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("连接 Kafka 控制器失败: %w", err)
	}
	defer ctrlConn.Close()

	err = ctrlConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("自动创建 Kafka 主题失败: %w", err)
	}
	return nil
}
