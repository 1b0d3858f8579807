package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Relay 将 Redis Stream 事件异步转发到 Kafka。
// 语义：发布 Kafka 成功后才 ACK Stream，失败则保留消息等待重试。
type Relay struct {
	rdb    *rd.Client
	out    Publisher
	logger *zap.Logger

	stream   string
	group    string
	consumer string
	// minIdle 之后其他消费者的 pending 可被接管。
	minIdle time.Duration
}

func NewRelay(rdb *rd.Client, out Publisher, stream, group, consumer string, logger *zap.Logger) *Relay {
	return &Relay{
		rdb:      rdb,
		out:      out,
		logger:   logger,
		stream:   stream,
		group:    group,
		consumer: consumer,
		minIdle:  time.Minute,
	}
}

func (r *Relay) Run(ctx context.Context) {
	if err := r.ensureGroup(ctx); err != nil {
		r.logger.Error("relay ensure group", zap.Error(err))
		return
	}
	r.logger.Info("event relay started", zap.String("stream", r.stream), zap.String("group", r.group))

	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.poll(ctx, 2*time.Second); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			r.logger.Warn("relay poll", zap.Error(err))
			time.Sleep(300 * time.Millisecond)
		}
	}
}

// poll 依次处理：本消费者的 pending、其他实例遗留超时的 pending、新消息。
// 返回成功转发的条数。
func (r *Relay) poll(ctx context.Context, block time.Duration) (int, error) {
	msgs, err := r.readGroup(ctx, "0", 0)
	if err != nil {
		return 0, fmt.Errorf("read pending: %w", err)
	}
	if len(msgs) == 0 {
		msgs, err = r.claimStale(ctx)
		if err != nil {
			return 0, fmt.Errorf("claim stale: %w", err)
		}
	}
	if len(msgs) == 0 {
		msgs, err = r.readGroup(ctx, ">", block)
		if err != nil {
			return 0, fmt.Errorf("read new: %w", err)
		}
	}

	done := 0
	for _, xm := range msgs {
		if err := r.processOne(ctx, xm); err != nil {
			// 发布失败不 ACK，消息会继续保留用于重试。
			return done, fmt.Errorf("process message id=%s: %w", xm.ID, err)
		}
		done++
	}
	return done, nil
}

func (r *Relay) ensureGroup(ctx context.Context) error {
	err := r.rdb.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (r *Relay) readGroup(ctx context.Context, streamID string, block time.Duration) ([]rd.XMessage, error) {
	args := &rd.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, streamID},
		Count:    16,
		Block:    block,
	}
	// Block=0 会发送 BLOCK 0（永久阻塞），读 pending 时改为负值不带 BLOCK。
	if block == 0 {
		args.Block = -1
	}
	streams, err := r.rdb.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]rd.XMessage, 0, 16)
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

// claimStale 接管宕机实例留下的消息，避免它们永远停在 pending 列表里。
func (r *Relay) claimStale(ctx context.Context) ([]rd.XMessage, error) {
	msgs, _, err := r.rdb.XAutoClaim(ctx, &rd.XAutoClaimArgs{
		Stream:   r.stream,
		Group:    r.group,
		Consumer: r.consumer,
		MinIdle:  r.minIdle,
		Start:    "0-0",
		Count:    16,
	}).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(msgs) > 0 {
		r.logger.Info("relay claimed stale events", zap.Int("count", len(msgs)))
	}
	return msgs, nil
}

func (r *Relay) processOne(ctx context.Context, xm rd.XMessage) error {
	ev, err := parseStreamEvent(xm.Values)
	if err != nil {
		// 脏消息直接 ACK 丢弃，避免阻塞队列。
		r.logger.Warn("relay drop malformed event", zap.String("stream_id", xm.ID), zap.Error(err))
		if ackErr := r.ackAndDelete(ctx, xm.ID); ackErr != nil {
			return fmt.Errorf("parse failed: %v, ack failed: %w", err, ackErr)
		}
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.out.Publish(pubCtx, ev); err != nil {
		return err
	}
	return r.ackAndDelete(ctx, xm.ID)
}

func (r *Relay) ackAndDelete(ctx context.Context, id string) error {
	pipe := r.rdb.TxPipeline()
	pipe.XAck(ctx, r.stream, r.group, id)
	pipe.XDel(ctx, r.stream, id)
	_, err := pipe.Exec(ctx)
	return err
}

func parseStreamEvent(values map[string]any) (Event, error) {
	id, err := getStreamString(values, "id")
	if err != nil {
		return Event{}, err
	}
	payload, err := getStreamString(values, "payload")
	if err != nil {
		return Event{}, err
	}
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("invalid payload: %w", err)
	}
	if ev.ID != id {
		return Event{}, fmt.Errorf("id mismatch %q != %q", ev.ID, id)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func getStreamString(values map[string]any, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
