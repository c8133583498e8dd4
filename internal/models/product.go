package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog.
type Product struct {
	ID          uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	Name        string          `json:"name" gorm:"type:varchar(255);not null" validate:"required,notblank,max=255"`
	Description string          `json:"description" gorm:"type:text;not null;default:''"`
	Price       decimal.Decimal `json:"price" gorm:"type:numeric(10,2);not null" validate:"gte=0,lt=100000000"`
	Stock       int             `json:"stock" gorm:"not null;default:0"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
