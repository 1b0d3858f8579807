package queue

import (
	"fmt"
	"time"

	"storefront/internal/model"

	"github.com/google/uuid"
)

type EventType string

const (
	EventOrderCreated       EventType = "order.created"
	EventOrderStatusChanged EventType = "order.status_changed"
	EventPaymentUpdated     EventType = "order.payment_updated"
	EventUserRegistered     EventType = "user.registered"
)

// Event 是业务事件，经 Redis Stream → Kafka 到达通知消费者。
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`

	UserID   uint   `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	Email    string `json:"email,omitempty"`

	OrderID       uint              `json:"order_id,omitempty"`
	OrderNumber   string            `json:"order_number,omitempty"`
	Status        string            `json:"status,omitempty"`
	PaymentStatus string            `json:"payment_status,omitempty"`
	TotalAmount   string            `json:"total_amount,omitempty"`
	Items         []model.OrderItem `json:"items,omitempty"`
}

func newEvent(t EventType) Event {
	return Event{ID: uuid.NewString(), Type: t, OccurredAt: time.Now().UTC()}
}

// UserRegistered 注册成功后发欢迎邮件。
func UserRegistered(u *model.User) Event {
	ev := newEvent(EventUserRegistered)
	ev.UserID, ev.UserName, ev.Email = u.ID, u.Name, u.Email
	return ev
}

func orderEvent(t EventType, o *model.Order, owner *model.User) Event {
	ev := newEvent(t)
	ev.UserID = o.UserID
	ev.OrderID = o.ID
	ev.OrderNumber = o.OrderNumber
	ev.Status = string(o.Status)
	ev.PaymentStatus = string(o.PaymentStatus)
	ev.TotalAmount = o.TotalAmount.StringFixed(2)
	switch {
	case owner != nil:
		ev.UserName, ev.Email = owner.Name, owner.Email
	case o.User != nil:
		ev.UserName, ev.Email = o.User.Name, o.User.Email
	}
	return ev
}

func OrderCreated(o *model.Order, owner *model.User) Event {
	ev := orderEvent(EventOrderCreated, o, owner)
	ev.Items = o.Items
	return ev
}

func OrderStatusChanged(o *model.Order) Event {
	return orderEvent(EventOrderStatusChanged, o, nil)
}

func PaymentUpdated(o *model.Order) Event {
	return orderEvent(EventPaymentUpdated, o, nil)
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.UserID == 0 {
		return fmt.Errorf("user_id is required")
	}
	switch e.Type {
	case EventUserRegistered:
		if e.Email == "" {
			return fmt.Errorf("email is required")
		}
	case EventOrderCreated, EventOrderStatusChanged, EventPaymentUpdated:
		if e.OrderID == 0 {
			return fmt.Errorf("order_id is required")
		}
		if e.OrderNumber == "" {
			return fmt.Errorf("order_number is required")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}
