package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "Pending"
	OrderShipped   OrderStatus = "Shipped"
	OrderDelivered OrderStatus = "Delivered"
	OrderCancelled OrderStatus = "Cancelled"
)

// 历史数据里的本地化状态值，解析时归一到英文。
var orderStatusAliases = map[string]OrderStatus{
	"pending":   OrderPending,
	"en cours":  OrderPending,
	"shipped":   OrderShipped,
	"expédiée":  OrderShipped,
	"delivered": OrderDelivered,
	"livrée":    OrderDelivered,
	"cancelled": OrderCancelled,
	"annulée":   OrderCancelled,
}

// ParseOrderStatus 识别规范值与本地化别名（大小写不敏感）。
func ParseOrderStatus(s string) (OrderStatus, bool) {
	st, ok := orderStatusAliases[strings.ToLower(strings.TrimSpace(s))]
	return st, ok
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
	PaymentFailed  PaymentStatus = "Failed"
)

var paymentStatusAliases = map[string]PaymentStatus{
	"pending":    PaymentPending,
	"en attente": PaymentPending,
	"paid":       PaymentPaid,
	"payé":       PaymentPaid,
	"failed":     PaymentFailed,
	"échoué":     PaymentFailed,
}

func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	st, ok := paymentStatusAliases[strings.ToLower(strings.TrimSpace(s))]
	return st, ok
}

// OrderItem 是下单时刻的商品快照，之后商品改价不影响订单。
type OrderItem struct {
	ProductID uint            `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"img,omitempty"`
}

// Subtotal = Price × Quantity
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ShippingAddress 自由结构，整体存为 JSON 列。
type ShippingAddress map[string]any

// Order 订单：Items / ShippingAddress 以 JSON 列保存。
type Order struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrderNumber     string          `gorm:"size:64;uniqueIndex;not null" json:"order_number"`
	UserID          uint            `gorm:"not null;index" json:"user_id"`
	Items           []OrderItem     `gorm:"serializer:json;type:text;not null" json:"items"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total_amount"`
	ShippingAddress ShippingAddress `gorm:"serializer:json;type:text;not null" json:"shipping_address"`
	PaymentMethod   string          `gorm:"size:64;not null" json:"payment_method"`
	PaymentRef      *string         `gorm:"size:128;index" json:"payment_ref,omitempty"`
	Status          OrderStatus     `gorm:"size:32;not null;index" json:"status"`
	PaymentStatus   PaymentStatus   `gorm:"size:32;not null" json:"payment_status"`

	User *Owner `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// 显式实现结构，确定表名
func (Order) TableName() string { return "orders" }
