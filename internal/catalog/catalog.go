// Package catalog 是商品存储：管理员建商品、公开查询，以及评价聚合回写评分。
package catalog

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrProductNotFound = apperr.New(apperr.NotFound, "product_not_found", "product not found")

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// NewProduct 是建商品的入参。
type NewProduct struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description" binding:"required"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category" binding:"required"`
	Stock       int             `json:"stock"`
	Image       string          `json:"img" binding:"required"`
	Badge       *string         `json:"badge"`
}

func (s *Service) Create(ctx context.Context, in NewProduct) (*model.Product, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperr.Invalid("name is required")
	}
	if in.Price.IsNegative() {
		return nil, apperr.Invalid("price must be >= 0")
	}
	if in.Stock < 0 {
		return nil, apperr.Invalid("stock must be >= 0")
	}
	p := &model.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price.Round(2),
		Category:    in.Category,
		Stock:       in.Stock,
		Image:       in.Image,
		Badge:       in.Badge,
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*model.Product, error) {
	var p model.Product
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Exists 供评价模块在写入前确认商品存在。
func (s *Service) Exists(ctx context.Context, id uint) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetRating 只改 rating 一列。
func (s *Service) SetRating(ctx context.Context, id uint, rating float64) error {
	return s.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", id).Update("rating", rating).Error
}

// StockAlerts 区分缺货与低库存两组。
type StockAlerts struct {
	OutOfStock  []model.Product `json:"outOfStock"`
	LowStock    []model.Product `json:"lowStock"`
	TotalAlerts int             `json:"totalAlerts"`
}

func (s *Service) StockAlerts(ctx context.Context) (StockAlerts, error) {
	var out StockAlerts
	db := s.db.WithContext(ctx)
	if err := db.Where("stock = ?", 0).Order("name ASC").Find(&out.OutOfStock).Error; err != nil {
		return StockAlerts{}, err
	}
	if err := db.Where("stock > ? AND stock < ?", 0, model.LowStockThreshold).Order("stock ASC").Find(&out.LowStock).Error; err != nil {
		return StockAlerts{}, err
	}
	out.TotalAlerts = len(out.OutOfStock) + len(out.LowStock)
	return out, nil
}
