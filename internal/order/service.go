// Package order 管理订单生命周期：下单、查询、管理员改状态与删除，以及支付结果回写。
package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound      = apperr.New(apperr.NotFound, "order_not_found", "order not found")
	ErrForbidden     = apperr.New(apperr.Forbidden, "order_forbidden", "access denied")
	ErrInvalidStatus = apperr.New(apperr.Validation, "invalid_status", "invalid status")
)

const (
	DefaultPageSize  = 20
	DefaultRecent    = 10
	defaultPayMethod = "Card"
)

// CreateInput 是结账请求携带的下单数据，Items 即价格快照。
type CreateInput struct {
	Items           []model.OrderItem     `json:"items"`
	TotalAmount     decimal.Decimal       `json:"totalAmount"`
	ShippingAddress model.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                `json:"paymentMethod"`
	PaymentRef      *string               `json:"stripePaymentId"`
	PaymentStatus   string                `json:"paymentStatus"`
}

type Service struct {
	db          *gorm.DB
	logger      *zap.Logger
	maxPageSize int
	now         func() time.Time
}

// NewService maxPageSize 为 0 表示不限制。
func NewService(db *gorm.DB, logger *zap.Logger, maxPageSize int) *Service {
	return &Service{db: db, logger: logger, maxPageSize: maxPageSize, now: time.Now}
}

// Create 持久化一张订单。总价按调用方提交的快照保存，不对照实时商品价格重算。
func (s *Service) Create(ctx context.Context, userID uint, in CreateInput) (*model.Order, error) {
	if len(in.Items) == 0 {
		return nil, apperr.Invalid("order must contain at least one item")
	}
	for _, it := range in.Items {
		if it.Quantity < 1 {
			return nil, apperr.Invalid("item quantity must be >= 1")
		}
		if it.Price.IsNegative() {
			return nil, apperr.Invalid("item price must be >= 0")
		}
	}
	total := in.TotalAmount.Round(2)
	if total.IsNegative() {
		return nil, apperr.Invalid("total amount must be >= 0")
	}
	if len(in.ShippingAddress) == 0 {
		return nil, apperr.Invalid("shipping address is required")
	}

	// 未指定支付状态时沿用默认 Paid。
	payStatus := model.PaymentPaid
	if in.PaymentStatus != "" {
		ps, ok := model.ParsePaymentStatus(in.PaymentStatus)
		if !ok {
			return nil, apperr.Invalid("invalid payment status")
		}
		payStatus = ps
	}
	method := strings.TrimSpace(in.PaymentMethod)
	if method == "" {
		method = defaultPayMethod
	}
	var ref *string
	if in.PaymentRef != nil && strings.TrimSpace(*in.PaymentRef) != "" {
		r := strings.TrimSpace(*in.PaymentRef)
		ref = &r
	}

	o := &model.Order{
		OrderNumber:     NewOrderNumber(s.now()),
		UserID:          userID,
		Items:           in.Items,
		TotalAmount:     total,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   method,
		PaymentRef:      ref,
		Status:          model.OrderPending,
		PaymentStatus:   payStatus,
	}
	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return nil, err
	}
	if err := s.adoptPaymentResult(ctx, o); err != nil {
		// 订单已落库；支付状态可由管理员或后续事件修正。
		s.logger.Warn("adopt earlier payment result", zap.Uint("order_id", o.ID), zap.Error(err))
	}
	s.logger.Info("order created",
		zap.Uint("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.Uint("user_id", userID),
		zap.String("total", o.TotalAmount.StringFixed(2)))
	return o, nil
}

// adoptPaymentResult 处理网关事件先于订单到达的情况：
// 取该支付意图最新一条带结果的事件，写入刚创建的订单。
func (s *Service) adoptPaymentResult(ctx context.Context, o *model.Order) error {
	if o.PaymentRef == nil {
		return nil
	}
	var ev model.WebhookEvent
	err := s.db.WithContext(ctx).
		Where("intent_id = ? AND payment_status <> ''", *o.PaymentRef).
		Order("id DESC").
		Limit(1).
		Find(&ev).Error
	if err != nil || ev.ID == 0 || ev.PaymentStatus == o.PaymentStatus {
		return err
	}
	if err := s.db.WithContext(ctx).Model(o).Update("payment_status", ev.PaymentStatus).Error; err != nil {
		return err
	}
	o.PaymentStatus = ev.PaymentStatus
	s.logger.Info("order adopted earlier payment result",
		zap.String("payment_ref", *o.PaymentRef),
		zap.String("event_id", ev.EventID),
		zap.String("payment_status", string(ev.PaymentStatus)))
	return nil
}

func (s *Service) withOwner(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("User")
}

// ListForUser 按创建时间倒序。
func (s *Service) ListForUser(ctx context.Context, userID uint) ([]model.Order, error) {
	orders := []model.Order{}
	err := s.withOwner(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&orders).Error
	return orders, err
}

// ListByStatus 返回状态属于给定集合的订单；集合为空时取 Pending。
func (s *Service) ListByStatus(ctx context.Context, statuses []model.OrderStatus) ([]model.Order, error) {
	if len(statuses) == 0 {
		statuses = []model.OrderStatus{model.OrderPending}
	}
	orders := []model.Order{}
	err := s.withOwner(ctx).Where("status IN ?", statuses).Order("created_at DESC, id DESC").Find(&orders).Error
	return orders, err
}

// Get 只有下单人或管理员可见。
func (s *Service) Get(ctx context.Context, id uint, requester *model.User) (*model.Order, error) {
	var o model.Order
	if err := s.withOwner(ctx).First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if requester == nil || (o.UserID != requester.ID && !requester.IsAdmin()) {
		return nil, ErrForbidden
	}
	return &o, nil
}

// Page 是分页查询结果。
type Page struct {
	Orders      []model.Order
	Total       int64
	Pages       int64
	CurrentPage int
	Limit       int
}

// List 分页列出全部订单。page/limit 非正时取默认值，limit 受 maxPageSize 约束。
func (s *Service) List(ctx context.Context, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if s.maxPageSize > 0 && limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Order{}).Count(&total).Error; err != nil {
		return Page{}, err
	}
	orders := []model.Order{}
	err := s.withOwner(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&orders).Error
	if err != nil {
		return Page{}, err
	}
	return Page{
		Orders:      orders,
		Total:       total,
		Pages:       (total + int64(limit) - 1) / int64(limit),
		CurrentPage: page,
		Limit:       limit,
	}, nil
}

// Recent 最近的若干订单。
func (s *Service) Recent(ctx context.Context, limit int) ([]model.Order, error) {
	if limit < 1 {
		limit = DefaultRecent
	}
	if s.maxPageSize > 0 && limit > s.maxPageSize {
		limit = s.maxPageSize
	}
	orders := []model.Order{}
	err := s.withOwner(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&orders).Error
	return orders, err
}

// UpdateStatus 管理员直接覆盖状态，不校验迁移是否合法。
func (s *Service) UpdateStatus(ctx context.Context, id uint, status string) (*model.Order, error) {
	st, ok := model.ParseOrderStatus(status)
	if !ok {
		return nil, ErrInvalidStatus
	}
	var o model.Order
	if err := s.db.WithContext(ctx).First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	prev := o.Status
	if err := s.db.WithContext(ctx).Model(&o).Update("status", st).Error; err != nil {
		return nil, err
	}
	o.Status = st
	s.logger.Info("order status updated",
		zap.Uint("order_id", o.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(st)))
	return &o, nil
}

// Delete 硬删除，不可恢复。
func (s *Service) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.Order{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.logger.Info("order deleted", zap.Uint("order_id", id))
	return nil
}

// ApplyPaymentResult 按网关引用找到订单并写入支付状态。
// 返回 changed=false 表示状态本就一致。
func (s *Service) ApplyPaymentResult(ctx context.Context, paymentRef string, ps model.PaymentStatus) (*model.Order, bool, error) {
	if paymentRef == "" {
		return nil, false, ErrNotFound
	}
	var o model.Order
	if err := s.db.WithContext(ctx).Where("payment_ref = ?", paymentRef).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrNotFound
		}
		return nil, false, err
	}
	if o.PaymentStatus == ps {
		return &o, false, nil
	}
	if err := s.db.WithContext(ctx).Model(&o).Update("payment_status", ps).Error; err != nil {
		return nil, false, err
	}
	o.PaymentStatus = ps
	return &o, true, nil
}
