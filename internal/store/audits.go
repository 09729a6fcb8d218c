package store

import (
	"context"

	"gorm.io/gorm/clause"

	"pharmacy_inventory/internal/model"
)

// DefaultAuditLimit caps ListAudits when the caller passes no limit.
const DefaultAuditLimit = 50

// RecordAudit stores a stock change. Redelivered events (same EventID) are
// accepted without writing a second row.
func (s *Store) RecordAudit(ctx context.Context, a *model.StockAudit) error {
	db, err := s.conn(ctx, "record audit")
	if err != nil {
		return err
	}
	if err := db.Create(a).Error; err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fault("record audit", err)
	}
	return nil
}

// ListAudits returns the newest stock changes of one product first.
func (s *Store) ListAudits(ctx context.Context, productName string, limit int) ([]model.StockAudit, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	db, err := s.conn(ctx, "list audits")
	if err != nil {
		return nil, err
	}
	list := []model.StockAudit{}
	err = db.Where("product_name = ?", productName).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "occurred_at"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true}).
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, fault("list audits", err)
	}
	return list, nil
}
