package model

import "time"

// CartItem is one line of a user's cart; (UserID, ProductID) is unique
type CartItem struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_cart_user_product"`
	ProductID uint      `json:"product_id" gorm:"not null;uniqueIndex:idx_cart_user_product;index"`
	Quantity  int       `json:"quantity" gorm:"not null;check:quantity >= 1"`
	AddedAt   time.Time `json:"added_at" gorm:"autoCreateTime"`
}
