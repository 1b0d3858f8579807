// Package payment 对接支付网关：创建/查询支付意图，并按 webhook 回写订单支付状态。
package payment

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount    = apperr.New(apperr.Validation, "invalid_amount", "invalid amount")
	ErrMissingID        = apperr.New(apperr.Validation, "missing_payment_id", "payment intent id is required")
	ErrSignatureInvalid = apperr.New(apperr.Validation, "signature_invalid", "webhook signature verification failed")
	ErrGateway          = apperr.New(apperr.Upstream, "gateway_error", "payment gateway error")
)

// OrderUpdater 由订单模块实现，按网关引用写入支付结果。
type OrderUpdater interface {
	ApplyPaymentResult(ctx context.Context, paymentRef string, status model.PaymentStatus) (*model.Order, bool, error)
}

type Options struct {
	Currency  string
	Reconcile bool
	Timeout   time.Duration
}

type Service struct {
	db      *gorm.DB
	gateway Gateway
	orders  OrderUpdater
	opts    Options
	logger  *zap.Logger
}

func NewService(db *gorm.DB, gateway Gateway, orders OrderUpdater, opts Options, logger *zap.Logger) *Service {
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Service{db: db, gateway: gateway, orders: orders, opts: opts, logger: logger}
}

// MinorUnits 按十进制计算 amount×100 并四舍五入（远离零）。
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// CreateIntent 为 owner 创建支付意图，currency 为空时用配置的默认币种。
func (s *Service) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, owner *model.User) (Intent, error) {
	if !amount.IsPositive() {
		return Intent{}, ErrInvalidAmount
	}
	minor := MinorUnits(amount)
	if minor <= 0 {
		return Intent{}, ErrInvalidAmount
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = s.opts.Currency
	}
	req := IntentRequest{AmountMinor: minor, Currency: currency, Metadata: map[string]string{}}
	if owner != nil {
		req.Metadata["userId"] = strconv.FormatUint(uint64(owner.ID), 10)
		req.Metadata["userEmail"] = owner.Email
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	intent, err := s.gateway.CreateIntent(ctx, req)
	if err != nil {
		s.logger.Error("create payment intent failed", zap.Int64("amount", minor), zap.Error(err))
		return Intent{}, asUpstream(err)
	}
	s.logger.Info("payment intent created",
		zap.String("intent_id", intent.ID),
		zap.Int64("amount", minor),
		zap.String("currency", currency))
	return intent, nil
}

// Retrieve 查询支付意图当前状态。
func (s *Service) Retrieve(ctx context.Context, intentID string) (Intent, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return Intent{}, ErrMissingID
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		s.logger.Error("retrieve payment intent failed", zap.String("intent_id", intentID), zap.Error(err))
		return Intent{}, asUpstream(err)
	}
	return intent, nil
}

// WebhookResult 描述一次 webhook 的处理结果。
type WebhookResult struct {
	EventID   string
	Type      string
	Outcome   model.WebhookOutcome
	Duplicate bool
	// Order 仅在支付状态发生变化时非空。
	Order *model.Order
}

// HandleWebhook 验签后处理事件。同一事件 ID 只生效一次，重复投递直接确认。
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	ev, err := s.gateway.ParseEvent(payload, signature)
	if err != nil {
		s.logger.Warn("webhook signature verification failed", zap.Error(err))
		if errors.Is(err, ErrSignatureInvalid) {
			return WebhookResult{}, err
		}
		return WebhookResult{}, apperr.Wrap(ErrSignatureInvalid, err)
	}
	res := WebhookResult{EventID: ev.ID, Type: ev.Type, Outcome: model.WebhookIgnored}

	var status model.PaymentStatus
	switch ev.Type {
	case EventIntentSucceeded:
		status = model.PaymentPaid
		s.logger.Info("payment succeeded", zap.String("intent_id", ev.IntentID))
	case EventIntentFailed:
		status = model.PaymentFailed
		s.logger.Warn("payment failed", zap.String("intent_id", ev.IntentID))
	default:
		s.logger.Info("unhandled webhook event", zap.String("type", ev.Type))
		return res, nil
	}
	if !s.opts.Reconcile {
		return res, nil
	}

	var seen int64
	if err := s.db.WithContext(ctx).Model(&model.WebhookEvent{}).Where("event_id = ?", ev.ID).Count(&seen).Error; err != nil {
		return WebhookResult{}, err
	}
	if seen > 0 {
		res.Duplicate = true
		s.logger.Info("duplicate webhook event", zap.String("event_id", ev.ID))
		return res, nil
	}

	order, changed, err := s.orders.ApplyPaymentResult(ctx, ev.IntentID, status)
	switch {
	case err == nil:
		res.Outcome = model.WebhookApplied
		if changed {
			res.Order = order
		}
	case apperr.KindOf(err) == apperr.NotFound:
		res.Outcome = model.WebhookUnmatched
		s.logger.Warn("no order for payment intent", zap.String("intent_id", ev.IntentID))
	default:
		return WebhookResult{}, err
	}

	rec := &model.WebhookEvent{EventID: ev.ID, Type: ev.Type, IntentID: ev.IntentID, Outcome: res.Outcome, PaymentStatus: status}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		// 并发重投时另一方已记录，状态写入本身幂等。
		if store.IsUniqueViolation(err) {
			res.Duplicate = true
			return res, nil
		}
		return WebhookResult{}, err
	}
	if res.Outcome == model.WebhookUnmatched {
		s.recheck(ctx, rec, &res)
	}
	return res, nil
}

// recheck 在记录写入后再找一次订单。订单若在首次查找之后、记录写入之前创建，
// 它在创建时看不到这条记录，只能由这里补上；更晚创建的订单由 order.Create 读取记录补写。
func (s *Service) recheck(ctx context.Context, rec *model.WebhookEvent, res *WebhookResult) {
	order, changed, err := s.orders.ApplyPaymentResult(ctx, rec.IntentID, rec.PaymentStatus)
	if err != nil {
		if apperr.KindOf(err) != apperr.NotFound {
			s.logger.Warn("recheck payment intent", zap.String("intent_id", rec.IntentID), zap.Error(err))
		}
		return
	}
	res.Outcome = model.WebhookApplied
	if changed {
		res.Order = order
	}
	if err := s.db.WithContext(ctx).Model(rec).Update("outcome", model.WebhookApplied).Error; err != nil {
		s.logger.Warn("update webhook outcome", zap.String("event_id", rec.EventID), zap.Error(err))
	}
}

func asUpstream(err error) error {
	var e *apperr.Error
	if errors.As(err, &e) {
		return err
	}
	return &apperr.Error{Kind: apperr.Upstream, Code: ErrGateway.Code, Message: err.Error(), Err: err}
}
