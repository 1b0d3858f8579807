package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"storefront/internal/model"
	"storefront/internal/queue"
	rediskey "storefront/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMailer struct {
	sent []Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func order(status model.OrderStatus) *model.Order {
	return &model.Order{
		ID:          1,
		OrderNumber: "CMD-1-xyz",
		UserID:      2,
		Items: []model.OrderItem{
			{ProductID: 5, Name: "Teapot", Price: decimal.RequireFromString("12.50"), Quantity: 2},
		},
		TotalAmount: decimal.RequireFromString("25"),
		Status:      status,
		User:        &model.Owner{ID: 2, Name: "Ann", Email: "ann@example.com"},
	}
}

func TestDispatcherTemplates(t *testing.T) {
	m := &fakeMailer{}
	d := NewDispatcher(m, nil, "http://shop.test", zap.NewNop())
	ctx := context.Background()

	require.NoError(t, d.Handle(ctx, queue.UserRegistered(&model.User{ID: 2, Name: "Ann", Email: "ann@example.com"})))
	require.NoError(t, d.Handle(ctx, queue.OrderCreated(order(model.OrderPending), nil)))
	require.NoError(t, d.Handle(ctx, queue.OrderStatusChanged(order(model.OrderShipped))))
	// 只有发货才通知
	require.NoError(t, d.Handle(ctx, queue.OrderStatusChanged(order(model.OrderDelivered))))
	require.NoError(t, d.Handle(ctx, queue.PaymentUpdated(order(model.OrderPending))))

	require.Len(t, m.sent, 3)
	assert.Equal(t, "ann@example.com", m.sent[0].To)
	assert.Contains(t, m.sent[0].HTML, "Welcome Ann!")
	assert.Contains(t, m.sent[0].HTML, "http://shop.test")

	assert.Equal(t, "Order CMD-1-xyz confirmed", m.sent[1].Subject)
	assert.Contains(t, m.sent[1].HTML, "Teapot x 2")
	assert.Contains(t, m.sent[1].HTML, "$25.00")

	assert.True(t, strings.HasSuffix(m.sent[2].Subject, "has shipped"))
}

func TestDispatcherRejectsInvalidEvent(t *testing.T) {
	d := NewDispatcher(&fakeMailer{}, nil, "", zap.NewNop())
	assert.Error(t, d.Handle(context.Background(), queue.Event{ID: "x"}))
}

func TestDispatcherDedupesRedelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	m := &fakeMailer{err: errors.New("smtp down")}
	d := NewDispatcher(m, rediskey.NewOnce(rdb, time.Hour), "", zap.NewNop())
	ctx := context.Background()
	ev := queue.OrderCreated(order(model.OrderPending), nil)

	// 发送失败会撤销标记，重投可以再试
	assert.Error(t, d.Handle(ctx, ev))
	assert.False(t, mr.Exists(rediskey.NotifiedKey(ev.ID)))

	m.err = nil
	require.NoError(t, d.Handle(ctx, ev))
	require.NoError(t, d.Handle(ctx, ev))
	assert.Len(t, m.sent, 1)
}

func TestBuildMIME(t *testing.T) {
	raw := string(buildMIME("shop@example.com", Message{To: "a@b.c", Subject: "Hi", HTML: "<p>x</p>"}, time.Unix(0, 0).UTC()))
	assert.Contains(t, raw, "From: shop@example.com\r\n")
	assert.Contains(t, raw, "Subject: Hi\r\n")
	assert.Contains(t, raw, "Content-Type: text/html; charset=UTF-8\r\n\r\n<p>x</p>")
}
