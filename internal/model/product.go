package model

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// 金额在 JSON 中以数字输出。
	decimal.MarshalJSONWithoutQuotes = true
}

// LowStockThreshold 以下（不含 0）视为低库存。
const LowStockThreshold = 10

// Product 商品：价格用 decimal 保存两位小数，Rating 只由评价聚合写入。
type Product struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name        string          `gorm:"size:255;not null" json:"name"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Category    string          `gorm:"size:128;not null;index" json:"category"`
	Stock       int             `gorm:"not null;default:0;index" json:"stock"`
	Image       string          `gorm:"size:512;not null" json:"img"`
	Badge       *string         `gorm:"size:64" json:"badge,omitempty"`
	Rating      float64         `gorm:"type:decimal(2,1);not null;default:0" json:"rating"`
}

func (Product) TableName() string { return "products" }

// ProductSummary 是评价列表里附带的商品投影。
type ProductSummary struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Image string `json:"img"`
}

func (ProductSummary) TableName() string { return "products" }
