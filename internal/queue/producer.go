package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer 把业务事件写入 Kafka 事件 topic（默认 storefront-events），
// 由 Relay 从 Redis Stream outbox 转发调用，下游是通知 Consumer。
type Producer struct {
	w *kafka.Writer
}

// NewProducer 创建写入事件 topic 的生产者。
// 消息 key 为用户 ID，Hash 分区让同一用户的 order.created 先于 order.status_changed 被消费；
// RequireAll 等待全部 ISR 确认后 Relay 才 ACK Stream，两者合起来保证事件不丢。
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *Producer) Close() error { return p.w.Close() }

// Publish 同步写入一条事件。headers 带上 event_id / event_type，消费端无需解码即可过滤。
func (p *Producer) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(ev.UserID), 10)),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.ID)},
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	})
}
