package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageReader 是 Consumer 用到的 kafka.Reader 子集。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 从 Kafka 读取事件交给 Handler。处理成功后才提交 offset；
// 处理失败原地退避重试，期间阻塞该分区，进程退出时未提交的消息会被重新投递。
type Consumer struct {
	r      messageReader
	h      Handler
	logger *zap.Logger

	retryBase time.Duration
	retryMax  time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, h Handler, logger *zap.Logger) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		h:         h,
		logger:    logger,
		retryBase: time.Second,
		retryMax:  time.Minute,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		if err := c.step(ctx); err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("consumer stopped", zap.Error(err))
			}
			return // ctx cancel / 连接断开等
		}
	}
}

// step 读取并处理一条消息。返回错误时该消息未提交。
func (c *Consumer) step(ctx context.Context) error {
	m, err := c.r.FetchMessage(ctx)
	if err != nil {
		return err
	}

	ev, err := decodeEvent(m.Value)
	if err != nil {
		// 脏消息提交后丢弃，重投也无法解析。
		c.logger.Warn("consumer drop malformed event", zap.Int64("offset", m.Offset), zap.Error(err))
		c.commit(ctx, m)
		return nil
	}
	if err := c.handle(ctx, ev); err != nil {
		return err
	}
	c.commit(ctx, m)
	return nil
}

// handle 失败时指数退避重试，直到成功或 ctx 结束。
func (c *Consumer) handle(ctx context.Context, ev Event) error {
	backoff := c.retryBase
	for attempt := 1; ; attempt++ {
		err := c.h.Handle(ctx, ev)
		if err == nil {
			return nil
		}
		c.logger.Error("consumer handle event",
			zap.String("event_id", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", backoff),
			zap.Error(err))

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("handle event %s: %w", ev.ID, ctx.Err())
		case <-t.C:
		}
		backoff = min(backoff*2, c.retryMax)
	}
}

// commit 失败只记日志：消息会被重投，发信侧按事件 ID 去重。
func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.r.CommitMessages(ctx, m); err != nil {
		c.logger.Warn("consumer commit", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

func decodeEvent(b []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}
