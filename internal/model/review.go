package model

import "time"

const (
	MinRating = 1
	MaxRating = 5
)

// Review 每个用户对每个商品至多一条，由 (product_id, user_id) 唯一索引保证。
type Review struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProductID uint   `gorm:"not null;uniqueIndex:idx_reviews_product_user" json:"product_id"`
	UserID    uint   `gorm:"not null;uniqueIndex:idx_reviews_product_user;index" json:"user_id"`
	Rating    int    `gorm:"not null" json:"rating"`
	Comment   string `gorm:"type:text" json:"comment"`
	UserName  string `gorm:"size:128" json:"user_name"`
	Approved  bool   `gorm:"not null;index" json:"is_approved"`

	Product *ProductSummary `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

func (Review) TableName() string { return "reviews" }
