// Package messaging 发布会话事件到 Kafka 作为旁路通知，结构沿用
// messagequeue/kafka.Producer 的 Writer 封装（spec §12 domain stack，可选）。
package messaging

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	obsconfig "github.com/wyfcoding/pkg/internal/obs/config"
)

// SessionEvent 是发往 Kafka 的会话生命周期/消息投递通知。
type SessionEvent struct {
	SenderCompID string    `json:"sender_comp_id"`
	TargetCompID string    `json:"target_comp_id"`
	Kind         string    `json:"kind"` // "phase_transition" | "message_delivered" | "session_ended"
	Detail       string    `json:"detail"`
	At           time.Time `json:"at"`
}

// Publisher 发布 SessionEvent 到配置的 Kafka topic。nil 值是合法的空操作
// 发布者,供 Kafka 未配置时使用，调用方无需区分两种情况。
type Publisher struct {
	writer *kafkago.Writer
}

// NewPublisher 依据 KafkaConfig 构造发布者。Brokers 为空时返回 nil，
// 调用方的 Publish 在 nil 接收者上安全地什么都不做。
func NewPublisher(cfg obsconfig.KafkaConfig) *Publisher {
	if len(cfg.Brokers) == 0 {
		return nil
	}

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafkago.RequireOne,
		Async:        cfg.Async,
	}
	return &Publisher{writer: w}
}

// Publish 序列化并发送一个会话事件。nil 接收者是空操作。
func (p *Publisher) Publish(ctx context.Context, evt SessionEvent) error {
	if p == nil {
		return nil
	}

	value, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(evt.SenderCompID),
		Value: value,
		Time:  evt.At,
	})
}

// Close closes the underlying writer. nil 接收者是空操作。
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
