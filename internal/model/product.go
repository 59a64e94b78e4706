package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog record and the source of truth for price and stock
type Product struct {
	ID          uint                `json:"id" gorm:"primarykey"`
	Name        string              `json:"name" gorm:"type:varchar(200);not null"`
	Description string              `json:"description" gorm:"type:text"`
	Price       decimal.Decimal     `json:"price" gorm:"type:numeric(10,2);not null"`
	SalePrice   decimal.NullDecimal `json:"sale_price" gorm:"type:numeric(10,2)"`
	ImageURL    string              `json:"image_url" gorm:"type:varchar(300)"`
	CategoryID  uint                `json:"category_id" gorm:"index;not null"`
	Stock       int                 `json:"stock" gorm:"not null;check:stock >= 0"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Category groups products. It cannot be removed while products reference it.
type Category struct {
	ID          uint      `json:"id" gorm:"primarykey"`
	Name        string    `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
}
