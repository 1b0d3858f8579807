package payment

import "context"

// Intent 是网关侧支付意图的最小视图。
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// IntentRequest 金额以最小货币单位表示。
type IntentRequest struct {
	AmountMinor int64
	Currency    string
	Metadata    map[string]string
}

// Event 是验签后的网关事件。
type Event struct {
	ID       string
	Type     string
	IntentID string
}

const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

// Gateway 抽象支付网关，生产实现是 Stripe。
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	RetrieveIntent(ctx context.Context, id string) (Intent, error)
	// ParseEvent 校验签名并解析事件，签名错误返回 ErrSignatureInvalid。
	ParseEvent(payload []byte, signature string) (Event, error)
}
