package model

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ValidRole 只接受 user / admin。
func ValidRole(r Role) bool { return r == RoleUser || r == RoleAdmin }

// User 账号。IsActive 不设 gorm default，否则 false 会在插入时被默认值覆盖。
type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name         string `gorm:"size:128;not null" json:"name"`
	Email        string `gorm:"size:191;uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"size:255;not null" json:"-"`
	Role         Role   `gorm:"size:16;not null;index" json:"role"`
	IsActive     bool   `gorm:"not null" json:"is_active"`
}

func (User) TableName() string { return "users" }

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

// Owner 是订单上附带的用户公开字段。
type Owner struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (Owner) TableName() string { return "users" }
