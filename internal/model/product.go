package model

import "time"

// Product is a stocked medication. Name is unique across the store.
type Product struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	Name        string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Price       float64   `gorm:"not null;check:price > 0" json:"price"`
	Quantity    int       `gorm:"not null;check:quantity >= 0" json:"quantity"`
	CreatedDate time.Time `gorm:"column:created_date;autoCreateTime" json:"created_date"`
}

func (Product) TableName() string { return "products" }
