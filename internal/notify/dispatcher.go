package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"storefront/internal/model"
	"storefront/internal/queue"
	rediskey "storefront/pkg/redis"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Deduper 防止重投的事件重复发信，nil 表示不去重。
type Deduper interface {
	Mark(ctx context.Context, key, token string) (bool, error)
	Release(ctx context.Context, key, token string) error
}

type Dispatcher struct {
	mailer  Mailer
	dedupe  Deduper
	shopURL string
	logger  *zap.Logger
}

func NewDispatcher(mailer Mailer, dedupe Deduper, shopURL string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{mailer: mailer, dedupe: dedupe, shopURL: shopURL, logger: logger}
}

// Handle 实现 queue.Handler。不需要发信的事件直接忽略。
func (d *Dispatcher) Handle(ctx context.Context, ev queue.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	msg, ok, err := d.render(ev)
	if err != nil || !ok {
		return err
	}
	if msg.To == "" {
		d.logger.Warn("event has no recipient", zap.String("event_id", ev.ID), zap.String("type", string(ev.Type)))
		return nil
	}

	key, token := rediskey.NotifiedKey(ev.ID), uuid.NewString()
	if d.dedupe != nil {
		first, err := d.dedupe.Mark(ctx, key, token)
		if err != nil {
			return err
		}
		if !first {
			d.logger.Info("notification already sent", zap.String("event_id", ev.ID))
			return nil
		}
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		if d.dedupe != nil {
			if relErr := d.dedupe.Release(ctx, key, token); relErr != nil {
				d.logger.Warn("release notify mark", zap.Error(relErr))
			}
		}
		return fmt.Errorf("send %s mail: %w", ev.Type, err)
	}
	d.logger.Info("notification sent", zap.String("event_id", ev.ID), zap.String("type", string(ev.Type)), zap.String("to", msg.To))
	return nil
}

func (d *Dispatcher) render(ev queue.Event) (Message, bool, error) {
	var (
		tpl     *template.Template
		subject string
	)
	switch ev.Type {
	case queue.EventUserRegistered:
		tpl, subject = welcomeTpl, "Welcome to our shop!"
	case queue.EventOrderCreated:
		tpl, subject = confirmationTpl, fmt.Sprintf("Order %s confirmed", ev.OrderNumber)
	case queue.EventOrderStatusChanged:
		if ev.Status != string(model.OrderShipped) {
			return Message{}, false, nil
		}
		tpl, subject = shippedTpl, fmt.Sprintf("Order %s has shipped", ev.OrderNumber)
	default:
		return Message{}, false, nil
	}

	var buf bytes.Buffer
	err := tpl.Execute(&buf, struct {
		queue.Event
		ShopURL string
	}{ev, d.shopURL})
	if err != nil {
		return Message{}, false, err
	}
	return Message{To: ev.Email, Subject: subject, HTML: buf.String()}, true, nil
}
