package model

import "time"

// StockAudit is one recorded quantity change, written by the stock event consumer.
type StockAudit struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	EventID     string    `gorm:"size:36;uniqueIndex;not null" json:"event_id"`
	ProductName string    `gorm:"size:100;not null;index" json:"product_name"`
	Kind        string    `gorm:"size:16;not null" json:"kind"`
	Delta       int       `gorm:"not null" json:"delta"`
	Quantity    int       `gorm:"not null" json:"quantity"` // resulting stock level
	OccurredAt  time.Time `gorm:"not null;index" json:"occurred_at"`
}

func (StockAudit) TableName() string { return "stock_audits" }
