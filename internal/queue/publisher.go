package queue

import (
	"context"
	"encoding/json"

	rd "github.com/redis/go-redis/v9"
)

// Publisher 是业务侧发布事件的入口。
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Handler 消费事件，通知分发器实现它。
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

// StreamOutbox 把事件 XADD 到 Redis Stream，由 Relay 异步转发到 Kafka。
type StreamOutbox struct {
	rdb    *rd.Client
	stream string
	maxLen int64
}

func NewStreamOutbox(rdb *rd.Client, stream string) *StreamOutbox {
	return &StreamOutbox{rdb: rdb, stream: stream, maxLen: 100000}
}

func (o *StreamOutbox) Publish(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		MaxLen: o.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":      ev.ID,
			"type":    string(ev.Type),
			"payload": string(b),
		},
	}).Err()
}

// Inline 未配置 Redis/Kafka 时在请求内同步处理事件。
type Inline struct {
	h Handler
}

func NewInline(h Handler) *Inline { return &Inline{h: h} }

func (i *Inline) Publish(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	return i.h.Handle(ctx, ev)
}
