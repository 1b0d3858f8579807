package model

import "time"

// WebhookOutcome 记录一次网关事件的处理结果，便于排查。
type WebhookOutcome string

const (
	WebhookApplied   WebhookOutcome = "applied"   // 已更新订单支付状态
	WebhookUnmatched WebhookOutcome = "unmatched" // 找不到对应订单
	WebhookIgnored   WebhookOutcome = "ignored"   // 不关心的事件类型
)

// WebhookEvent 以网关事件 ID 唯一，重复投递时直接确认、不再生效。
type WebhookEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	EventID  string         `gorm:"size:128;uniqueIndex;not null" json:"event_id"`
	Type     string         `gorm:"size:64;index;not null" json:"type"`
	IntentID string         `gorm:"size:128;index" json:"intent_id"`
	Outcome  WebhookOutcome `gorm:"size:32;not null" json:"outcome"`
	// PaymentStatus 是事件对应的支付结果，不关心的事件为空。
	// 订单晚于事件创建时据此补写支付状态。
	PaymentStatus PaymentStatus `gorm:"size:32" json:"payment_status,omitempty"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }
