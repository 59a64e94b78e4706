package model

import "time"

// User represents a shopper or an administrator account
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username" gorm:"type:varchar(80);uniqueIndex;not null"`
	Email     string    `json:"email" gorm:"type:varchar(120);uniqueIndex;not null"`
	Password  string    `json:"-" gorm:"type:varchar(255);not null"`
	IsAdmin   bool      `json:"is_admin" gorm:"not null"`
	FullName  string    `json:"full_name" gorm:"type:varchar(100)"`
	Address   string    `json:"address" gorm:"type:text"`
	Phone     string    `json:"phone" gorm:"type:varchar(20)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Principal is the authenticated caller attached to a request
type Principal struct {
	UserID   uint
	Username string
	IsAdmin  bool
}
