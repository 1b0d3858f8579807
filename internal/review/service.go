// Package review 管理商品评价，并在每次写入后重算商品评分。
package review

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/catalog"
	"storefront/internal/model"
	"storefront/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = apperr.New(apperr.NotFound, "review_not_found", "review not found")
	ErrForbidden       = apperr.New(apperr.Forbidden, "review_forbidden", "not allowed to modify this review")
	ErrDuplicateReview = apperr.New(apperr.Conflict, "duplicate_review", "you have already reviewed this product")
	ErrInvalidRating   = apperr.New(apperr.Validation, "invalid_rating", "rating must be between 1 and 5")
)

type Service struct {
	db      *gorm.DB
	catalog *catalog.Service
	logger  *zap.Logger
}

func NewService(db *gorm.DB, catalog *catalog.Service, logger *zap.Logger) *Service {
	return &Service{db: db, catalog: catalog, logger: logger}
}

func validRating(r int) bool { return r >= model.MinRating && r <= model.MaxRating }

// Create 写入一条评价。先查一次做快速拒绝，并发下由唯一索引兜底。
func (s *Service) Create(ctx context.Context, productID uint, author *model.User, rating int, comment string) (*model.Review, error) {
	if !validRating(rating) {
		return nil, ErrInvalidRating
	}
	ok, err := s.catalog.Exists(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, catalog.ErrProductNotFound
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Review{}).
		Where("product_id = ? AND user_id = ?", productID, author.ID).
		Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrDuplicateReview
	}

	r := &model.Review{
		ProductID: productID,
		UserID:    author.ID,
		Rating:    rating,
		Comment:   strings.TrimSpace(comment),
		UserName:  author.Name,
		Approved:  true,
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		if store.IsUniqueViolation(err) {
			return nil, ErrDuplicateReview
		}
		return nil, err
	}
	if err := s.RefreshRating(ctx, productID); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) find(ctx context.Context, id uint) (*model.Review, error) {
	var r model.Review
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// Update 只有作者本人可以修改，管理员也不行。rating / comment 为 nil 表示不改。
func (s *Service) Update(ctx context.Context, id uint, requester *model.User, rating *int, comment *string) (*model.Review, error) {
	r, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if requester == nil || r.UserID != requester.ID {
		return nil, ErrForbidden
	}
	updates := map[string]any{}
	if rating != nil {
		if !validRating(*rating) {
			return nil, ErrInvalidRating
		}
		updates["rating"] = *rating
		r.Rating = *rating
	}
	if comment != nil {
		c := strings.TrimSpace(*comment)
		updates["comment"] = c
		r.Comment = c
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(r).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	if err := s.RefreshRating(ctx, r.ProductID); err != nil {
		return nil, err
	}
	return r, nil
}

// Delete 作者或管理员可删。
func (s *Service) Delete(ctx context.Context, id uint, requester *model.User) error {
	r, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if requester == nil || (r.UserID != requester.ID && !requester.IsAdmin()) {
		return ErrForbidden
	}
	if err := s.db.WithContext(ctx).Delete(r).Error; err != nil {
		return err
	}
	return s.RefreshRating(ctx, r.ProductID)
}

// ProductReviews 是商品详情页的评价汇总。
type ProductReviews struct {
	Reviews       []model.Review `json:"reviews"`
	AverageRating float64        `json:"averageRating"`
	TotalReviews  int            `json:"totalReviews"`
	Distribution  map[int]int    `json:"ratingDistribution"`
}

// ListForProduct 返回已通过的评价（新到旧）以及 1..5 分布和均分。
func (s *Service) ListForProduct(ctx context.Context, productID uint) (ProductReviews, error) {
	reviews := []model.Review{}
	err := s.db.WithContext(ctx).
		Where("product_id = ? AND approved = ?", productID, true).
		Order("created_at DESC, id DESC").
		Find(&reviews).Error
	if err != nil {
		return ProductReviews{}, err
	}
	dist := EmptyDistribution()
	ratings := make([]int, 0, len(reviews))
	for _, r := range reviews {
		dist[r.Rating]++
		ratings = append(ratings, r.Rating)
	}
	return ProductReviews{
		Reviews:       reviews,
		AverageRating: Mean(ratings),
		TotalReviews:  len(reviews),
		Distribution:  dist,
	}, nil
}

// ListMine 用户自己的评价，附带商品投影。
func (s *Service) ListMine(ctx context.Context, userID uint) ([]model.Review, error) {
	reviews := []model.Review{}
	err := s.db.WithContext(ctx).
		Preload("Product").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&reviews).Error
	return reviews, err
}

// RefreshRating 用已通过评价的均分覆盖商品评分，无评价时为 0。
func (s *Service) RefreshRating(ctx context.Context, productID uint) error {
	var ratings []int
	if err := s.db.WithContext(ctx).Model(&model.Review{}).
		Where("product_id = ? AND approved = ?", productID, true).
		Pluck("rating", &ratings).Error; err != nil {
		return err
	}
	avg := Mean(ratings)
	if err := s.catalog.SetRating(ctx, productID, avg); err != nil {
		return err
	}
	s.logger.Debug("product rating refreshed",
		zap.Uint("product_id", productID),
		zap.Int("reviews", len(ratings)),
		zap.Float64("rating", avg))
	return nil
}

// Mean 四舍五入（远离零）到一位小数。
func Mean(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := int64(0)
	for _, r := range ratings {
		sum += int64(r)
	}
	avg := decimal.NewFromInt(sum).DivRound(decimal.NewFromInt(int64(len(ratings))), 8).Round(1)
	return avg.InexactFloat64()
}

// EmptyDistribution 返回 1..5 全部置零的分布。
func EmptyDistribution() map[int]int {
	d := make(map[int]int, model.MaxRating)
	for i := model.MinRating; i <= model.MaxRating; i++ {
		d[i] = 0
	}
	return d
}
