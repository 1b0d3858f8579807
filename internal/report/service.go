// Package report 汇总管理后台的只读统计，可选 Redis 短时缓存。
package report

import (
	"context"
	"sort"
	"time"

	"storefront/internal/catalog"
	"storefront/internal/model"
	"storefront/internal/review"
	rediskey "storefront/pkg/redis"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	salesWindowDays = 30
	topProductLimit = 5
)

// Cache 是报表结果缓存，nil 表示不缓存。
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}

// RecentOrders 由订单模块提供。
type RecentOrders interface {
	Recent(ctx context.Context, limit int) ([]model.Order, error)
}

type Service struct {
	db      *gorm.DB
	catalog *catalog.Service
	orders  RecentOrders
	cache   Cache
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(db *gorm.DB, catalog *catalog.Service, orders RecentOrders, cache Cache, logger *zap.Logger) *Service {
	return &Service{db: db, catalog: catalog, orders: orders, cache: cache, logger: logger, now: time.Now}
}

// cached 先查缓存，未命中再计算并回填。缓存故障只记日志。
func cached[T any](ctx context.Context, s *Service, key string, compute func() (T, error)) (T, error) {
	var out T
	if s.cache != nil {
		found, err := s.cache.Get(ctx, key, &out)
		if err != nil {
			s.logger.Warn("stats cache get failed", zap.String("key", key), zap.Error(err))
		} else if found {
			return out, nil
		}
	}
	out, err := compute()
	if err != nil {
		return out, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, out); err != nil {
			s.logger.Warn("stats cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return out, nil
}

type Overview struct {
	TotalUsers       int64           `json:"totalUsers"`
	TotalProducts    int64           `json:"totalProducts"`
	TotalOrders      int64           `json:"totalOrders"`
	TotalRevenue     decimal.Decimal `json:"totalRevenue"`
	TotalReviews     int64           `json:"totalReviews"`
	OrdersThisMonth  int64           `json:"ordersThisMonth"`
	RevenueThisMonth decimal.Decimal `json:"revenueThisMonth"`
}

func (s *Service) Overview(ctx context.Context) (Overview, error) {
	return cached(ctx, s, rediskey.StatsKey("overview"), func() (Overview, error) {
		var out Overview
		db := s.db.WithContext(ctx)
		counts := []struct {
			table any
			dst   *int64
		}{
			{&model.User{}, &out.TotalUsers},
			{&model.Product{}, &out.TotalProducts},
			{&model.Order{}, &out.TotalOrders},
			{&model.Review{}, &out.TotalReviews},
		}
		for _, c := range counts {
			if err := db.Model(c.table).Count(c.dst).Error; err != nil {
				return Overview{}, err
			}
		}

		now := s.now()
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		var err error
		if out.TotalRevenue, err = s.revenue(ctx, nil); err != nil {
			return Overview{}, err
		}
		if out.RevenueThisMonth, err = s.revenue(ctx, &monthStart); err != nil {
			return Overview{}, err
		}
		if err := db.Model(&model.Order{}).Where("created_at >= ?", monthStart).Count(&out.OrdersThisMonth).Error; err != nil {
			return Overview{}, err
		}
		out.TotalRevenue = out.TotalRevenue.Round(2)
		out.RevenueThisMonth = out.RevenueThisMonth.Round(2)
		return out, nil
	})
}

// revenue 在 Go 侧用 decimal 累加，避免各数据库 SUM 返回类型不一致。
func (s *Service) revenue(ctx context.Context, since *time.Time) (decimal.Decimal, error) {
	q := s.db.WithContext(ctx).Model(&model.Order{})
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	var totals []decimal.Decimal
	if err := q.Pluck("total_amount", &totals).Error; err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(t)
	}
	return sum, nil
}

type DaySales struct {
	Date    string          `json:"date"`
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

// SalesByDay 近 30 天按自然日分组，日期升序，没有订单的日子不出现。
func (s *Service) SalesByDay(ctx context.Context) ([]DaySales, error) {
	return cached(ctx, s, rediskey.StatsKey("sales-by-day"), func() ([]DaySales, error) {
		since := s.now().AddDate(0, 0, -salesWindowDays)
		var rows []struct {
			CreatedAt   time.Time
			TotalAmount decimal.Decimal
		}
		err := s.db.WithContext(ctx).Model(&model.Order{}).
			Select("created_at", "total_amount").
			Where("created_at >= ?", since).
			Order("created_at ASC").
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		out := []DaySales{}
		for _, r := range rows {
			day := r.CreatedAt.In(s.now().Location()).Format(time.DateOnly)
			if n := len(out); n > 0 && out[n-1].Date == day {
				out[n-1].Orders++
				out[n-1].Revenue = out[n-1].Revenue.Add(r.TotalAmount)
				continue
			}
			out = append(out, DaySales{Date: day, Orders: 1, Revenue: r.TotalAmount})
		}
		return out, nil
	})
}

type ProductSales struct {
	ID         uint            `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Image      string          `json:"img"`
	Quantity   int             `json:"quantity"`
	OrderCount int             `json:"orderCount"`
}

// TopProducts 按快照明细累计销量取前 5；销量相同时保持首次出现的顺序。
func (s *Service) TopProducts(ctx context.Context) ([]ProductSales, error) {
	return cached(ctx, s, rediskey.StatsKey("top-products"), func() ([]ProductSales, error) {
		var orders []model.Order
		if err := s.db.WithContext(ctx).Select("id", "items").Order("id ASC").Find(&orders).Error; err != nil {
			return nil, err
		}
		return rankProducts(orders, topProductLimit), nil
	})
}

func rankProducts(orders []model.Order, limit int) []ProductSales {
	index := map[uint]int{}
	out := []ProductSales{}
	for _, o := range orders {
		for _, it := range o.Items {
			if i, ok := index[it.ProductID]; ok {
				out[i].Quantity += it.Quantity
				out[i].OrderCount++
				continue
			}
			index[it.ProductID] = len(out)
			out = append(out, ProductSales{
				ID:         it.ProductID,
				Name:       it.Name,
				Price:      it.Price,
				Image:      it.Image,
				Quantity:   it.Quantity,
				OrderCount: 1,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Quantity > out[j].Quantity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RecentOrders 不缓存，管理员需要看到最新下单。
func (s *Service) RecentOrders(ctx context.Context, limit int) ([]model.Order, error) {
	return s.orders.Recent(ctx, limit)
}

// ReviewDistribution 全部评价按 1..5 计数，缺失的分值补 0。
func (s *Service) ReviewDistribution(ctx context.Context) (map[int]int, error) {
	return cached(ctx, s, rediskey.StatsKey("reviews-distribution"), func() (map[int]int, error) {
		var rows []struct {
			Rating int
			Count  int
		}
		err := s.db.WithContext(ctx).Model(&model.Review{}).
			Select("rating, COUNT(id) AS count").
			Group("rating").
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		dist := review.EmptyDistribution()
		for _, r := range rows {
			if _, ok := dist[r.Rating]; ok {
				dist[r.Rating] = r.Count
			}
		}
		return dist, nil
	})
}

func (s *Service) StockAlerts(ctx context.Context) (catalog.StockAlerts, error) {
	return cached(ctx, s, rediskey.StatsKey("stock-alerts"), func() (catalog.StockAlerts, error) {
		return s.catalog.StockAlerts(ctx)
	})
}
