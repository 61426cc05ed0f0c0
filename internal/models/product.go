package models

import "gorm.io/gorm"

// Category groups products in the catalog.
type Category struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Name        string `json:"name" gorm:"uniqueIndex;type:varchar(100)" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"omitempty,max=500"`
	gorm.Model
}

// Product represents a product in the store. StockLeft is the authoritative
// inventory count; order transactions are its only writers in the order flow
// (see repositories.InventoryLedger).
type Product struct {
	ID          string  `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Name        string  `json:"name" validate:"required,min=3,max=100"`
	Description string  `json:"description" validate:"omitempty,max=500"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	StockLeft   int     `json:"stock_left" validate:"gte=0"`
	CategoryID  string  `json:"category_id" gorm:"type:varchar(36);index" validate:"omitempty,uuid"`
	gorm.Model
}
