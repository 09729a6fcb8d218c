package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pharmacy_inventory/internal/model"
	"pharmacy_inventory/internal/validation"
)

var (
	// ErrInvalidSortKey is returned for a sort key outside the allow-list.
	ErrInvalidSortKey = errors.New("sort key must be one of name, price, quantity")
	// ErrQuantityOutOfRange is returned when an adjustment would leave [0, MaxQuantity].
	ErrQuantityOutOfRange = errors.New("quantity change would leave the allowed range")
	// ErrDuplicateRecords is returned when records given to BulkLoad repeat a name.
	ErrDuplicateRecords = errors.New("records repeat a product name")
)

// SortKey orders List results. The zero value keeps insertion order.
type SortKey string

const (
	Unsorted       SortKey = ""
	SortByName     SortKey = "name"
	SortByPrice    SortKey = "price"
	SortByQuantity SortKey = "quantity"
)

// sortColumns is the only source of column names that reach ORDER BY.
var sortColumns = map[SortKey]string{
	SortByName:     "name",
	SortByPrice:    "price",
	SortByQuantity: "quantity",
}

// ParseSortKey maps user input onto the allow-list.
func ParseSortKey(s string) (SortKey, error) {
	key := SortKey(s)
	if key == Unsorted {
		return Unsorted, nil
	}
	if _, ok := sortColumns[key]; !ok {
		return Unsorted, ErrInvalidSortKey
	}
	return key, nil
}

// BulkLoad discards every product row and inserts records in their place.
// Record IDs are ignored and reassigned.
func (s *Store) BulkLoad(ctx context.Context, records []model.Product) error {
	db, err := s.conn(ctx, "bulk load")
	if err != nil {
		return err
	}

	rows := make([]model.Product, len(records))
	for i, r := range records {
		rows[i] = model.Product{Name: r.Name, Price: r.Price, Quantity: r.Quantity}
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.Product{}).Error; err != nil {
			return errors.Wrap(err, "clear products")
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateRecords
			}
			return errors.Wrapf(err, "insert %d products", len(rows))
		}
		return nil
	})
	if errors.Is(err, ErrDuplicateRecords) {
		return err
	}
	return fault("bulk load", err)
}

// Add inserts one product. ok is false when the name is already taken.
func (s *Store) Add(ctx context.Context, name string, price float64, quantity int) (*model.Product, bool, error) {
	db, err := s.conn(ctx, "add")
	if err != nil {
		return nil, false, err
	}
	p := &model.Product{Name: name, Price: price, Quantity: quantity}
	if err := db.Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, false, nil
		}
		return nil, false, fault("add", err)
	}
	return p, true, nil
}

// SetQuantity overwrites the stock level and returns the level it replaced.
// ok is false when no product has that name.
func (s *Store) SetQuantity(ctx context.Context, name string, quantity int) (prev int, ok bool, err error) {
	db, err := s.conn(ctx, "set quantity")
	if err != nil {
		return 0, false, err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		read := tx
		if s.driver != DriverSQLite {
			// sqlite has no FOR UPDATE; its single connection already serializes writers
			read = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		prev, ok, err = quantityOf(read, name)
		if err != nil || !ok {
			return err
		}
		return tx.Model(&model.Product{}).Where("name = ?", name).Update("quantity", quantity).Error
	})
	if err != nil {
		return 0, false, fault("set quantity", err)
	}
	return prev, ok, nil
}

// AdjustQuantity adds delta to the stock level in a single guarded UPDATE and
// returns the new level. ok is false when no product has that name. The row
// is left untouched and ErrQuantityOutOfRange returned when the result would
// fall outside [0, MaxQuantity].
func (s *Store) AdjustQuantity(ctx context.Context, name string, delta int) (int, bool, error) {
	db, err := s.conn(ctx, "adjust quantity")
	if err != nil {
		return 0, false, err
	}

	var (
		newQty int
		found  bool
	)
	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Product{}).
			Where("name = ? AND quantity + ? >= 0 AND quantity + ? <= ?", name, delta, delta, validation.MaxQuantity).
			Update("quantity", gorm.Expr("quantity + ?", delta))
		if res.Error != nil {
			return res.Error
		}

		qty, ok, err := quantityOf(tx, name)
		if err != nil {
			return err
		}
		newQty, found = qty, ok
		if ok && res.RowsAffected == 0 && delta != 0 {
			return ErrQuantityOutOfRange
		}
		return nil
	})
	if errors.Is(err, ErrQuantityOutOfRange) {
		return newQty, true, ErrQuantityOutOfRange
	}
	if err != nil {
		return 0, false, fault("adjust quantity", err)
	}
	return newQty, found, nil
}

// List returns every product, ordered by key when one is given.
func (s *Store) List(ctx context.Context, key SortKey, descending bool) ([]model.Product, error) {
	var orderBy []clause.OrderByColumn
	if key != Unsorted {
		col, ok := sortColumns[key]
		if !ok {
			return nil, ErrInvalidSortKey
		}
		orderBy = append(orderBy, clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: descending})
	}
	orderBy = append(orderBy, clause.OrderByColumn{Column: clause.Column{Name: "id"}})

	db, err := s.conn(ctx, "list")
	if err != nil {
		return nil, err
	}
	list := []model.Product{}
	q := db.Model(&model.Product{})
	for _, o := range orderBy {
		q = q.Order(o)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, fault("list", err)
	}
	return list, nil
}

// Names returns all product names alphabetically.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	db, err := s.conn(ctx, "names")
	if err != nil {
		return nil, err
	}
	names := []string{}
	err = db.Model(&model.Product{}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "name"}}).
		Pluck("name", &names).Error
	if err != nil {
		return nil, fault("names", err)
	}
	return names, nil
}

// Get looks a product up by name.
func (s *Store) Get(ctx context.Context, name string) (*model.Product, bool, error) {
	db, err := s.conn(ctx, "get")
	if err != nil {
		return nil, false, err
	}
	var p model.Product
	if err := db.Where("name = ?", name).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fault("get", err)
	}
	return &p, true, nil
}

// QuantityOf returns the current stock level of a product.
func (s *Store) QuantityOf(ctx context.Context, name string) (int, bool, error) {
	db, err := s.conn(ctx, "quantity of")
	if err != nil {
		return 0, false, err
	}
	qty, ok, err := quantityOf(db, name)
	if err != nil {
		return 0, false, fault("quantity of", err)
	}
	return qty, ok, nil
}

// Exists reports whether a product with that name is stored.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	db, err := s.conn(ctx, "exists")
	if err != nil {
		return false, err
	}
	var count int64
	if err := db.Model(&model.Product{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, fault("exists", err)
	}
	return count > 0, nil
}

func quantityOf(db *gorm.DB, name string) (int, bool, error) {
	var p model.Product
	err := db.Select("quantity").Where("name = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return p.Quantity, true, nil
}
