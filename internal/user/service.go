// Package user 是身份存储：注册登录、管理员对账号的角色/状态/删除操作。
package user

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/model"
	"storefront/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLen = 6

var (
	ErrUserNotFound    = apperr.New(apperr.NotFound, "user_not_found", "user not found")
	ErrEmailTaken      = apperr.New(apperr.Conflict, "email_taken", "email already in use")
	ErrInvalidCreds    = apperr.New(apperr.Auth, "invalid_credentials", "invalid email or password")
	ErrAccountDisabled = apperr.New(apperr.Auth, "account_disabled", "account is disabled")
	ErrInvalidRole     = apperr.New(apperr.Validation, "invalid_role", `invalid role, use "user" or "admin"`)
	ErrSelfRole        = apperr.New(apperr.Validation, "self_role", "you cannot change your own role")
	ErrSelfStatus      = apperr.New(apperr.Validation, "self_status", "you cannot change your own status")
	ErrSelfDelete      = apperr.New(apperr.Validation, "self_delete", "you cannot delete your own account")
)

// RatingRefresher 在级联删除评价后重算商品评分。
type RatingRefresher interface {
	RefreshRating(ctx context.Context, productID uint) error
}

type Service struct {
	db      *gorm.DB
	tokens  *auth.Issuer
	ratings RatingRefresher
	logger  *zap.Logger
}

func NewService(db *gorm.DB, tokens *auth.Issuer, ratings RatingRefresher, logger *zap.Logger) *Service {
	return &Service{db: db, tokens: tokens, ratings: ratings, logger: logger}
}

// Register 新建普通用户并签发令牌。邮箱唯一由数据库唯一索引兜底。
func (s *Service) Register(ctx context.Context, name, email, password string) (*model.User, string, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return nil, "", apperr.Invalid("name, email and password are required")
	}
	if len(password) < minPasswordLen {
		return nil, "", apperr.Invalid("password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}
	u := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if store.IsUniqueViolation(err) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", err
	}

	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user registered", zap.Uint("user_id", u.ID))
	return u, token, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	if email == "" || password == "" {
		return nil, "", apperr.Invalid("email and password are required")
	}
	var u model.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidCreds
		}
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCreds
	}
	if !u.IsActive {
		return nil, "", ErrAccountDisabled
	}
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, "", err
	}
	return &u, token, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Stats 是单个用户的消费与评价汇总。
type Stats struct {
	OrderCount  int64  `json:"orderCount"`
	ReviewCount int64  `json:"reviewCount"`
	TotalSpent  string `json:"totalSpent"`
}

// Detail 是管理员查看用户时的完整视图。
type Detail struct {
	*model.User
	Stats         Stats          `json:"stats"`
	RecentOrders  []model.Order  `json:"recentOrders"`
	RecentReviews []model.Review `json:"recentReviews"`
}

const recentLimit = 10

func (s *Service) Detail(ctx context.Context, id uint) (*Detail, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	d := &Detail{User: u}

	if err := db.Where("user_id = ?", id).Order("created_at DESC").Limit(recentLimit).Find(&d.RecentOrders).Error; err != nil {
		return nil, err
	}
	if err := db.Where("user_id = ?", id).Order("created_at DESC").Limit(recentLimit).Find(&d.RecentReviews).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Order{}).Where("user_id = ?", id).Count(&d.Stats.OrderCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Review{}).Where("user_id = ?", id).Count(&d.Stats.ReviewCount).Error; err != nil {
		return nil, err
	}

	var totals []decimal.Decimal
	if err := db.Model(&model.Order{}).Where("user_id = ?", id).Pluck("total_amount", &totals).Error; err != nil {
		return nil, err
	}
	spent := decimal.Zero
	for _, t := range totals {
		spent = spent.Add(t)
	}
	d.Stats.TotalSpent = spent.StringFixed(2)
	return d, nil
}

// UpdateRole 管理员修改他人角色，不能改自己。
func (s *Service) UpdateRole(ctx context.Context, actorID, targetID uint, role model.Role) (*model.User, error) {
	if !model.ValidRole(role) {
		return nil, ErrInvalidRole
	}
	u, err := s.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if u.ID == actorID {
		return nil, ErrSelfRole
	}
	if err := s.db.WithContext(ctx).Model(u).Update("role", role).Error; err != nil {
		return nil, err
	}
	u.Role = role
	return u, nil
}

// ToggleActive 翻转他人的启用状态。
func (s *Service) ToggleActive(ctx context.Context, actorID, targetID uint) (*model.User, error) {
	u, err := s.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if u.ID == actorID {
		return nil, ErrSelfStatus
	}
	next := !u.IsActive
	if err := s.db.WithContext(ctx).Model(u).Update("is_active", next).Error; err != nil {
		return nil, err
	}
	u.IsActive = next
	return u, nil
}

// DeleteResult 报告级联删除的数量。
type DeleteResult struct {
	OrdersDeleted  int64 `json:"ordersDeleted"`
	ReviewsDeleted int64 `json:"reviewsDeleted"`
}

// Delete 在一个事务里删除用户及其订单、评价，随后重算受影响商品的评分。
func (s *Service) Delete(ctx context.Context, actorID, targetID uint) (DeleteResult, error) {
	u, err := s.Get(ctx, targetID)
	if err != nil {
		return DeleteResult{}, err
	}
	if u.ID == actorID {
		return DeleteResult{}, ErrSelfDelete
	}

	var res DeleteResult
	var productIDs []uint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Review{}).Where("user_id = ?", u.ID).Distinct().Pluck("product_id", &productIDs).Error; err != nil {
			return err
		}
		r := tx.Where("user_id = ?", u.ID).Delete(&model.Order{})
		if r.Error != nil {
			return r.Error
		}
		res.OrdersDeleted = r.RowsAffected

		r = tx.Where("user_id = ?", u.ID).Delete(&model.Review{})
		if r.Error != nil {
			return r.Error
		}
		res.ReviewsDeleted = r.RowsAffected

		return tx.Delete(u).Error
	})
	if err != nil {
		return DeleteResult{}, err
	}

	for _, pid := range productIDs {
		if err := s.ratings.RefreshRating(ctx, pid); err != nil {
			// 评分滞后可接受，下一次评价变更会再重算。
			s.logger.Warn("refresh rating after user delete", zap.Uint("product_id", pid), zap.Error(err))
		}
	}
	s.logger.Info("user deleted",
		zap.Uint("user_id", u.ID),
		zap.Int64("orders", res.OrdersDeleted),
		zap.Int64("reviews", res.ReviewsDeleted))
	return res, nil
}
