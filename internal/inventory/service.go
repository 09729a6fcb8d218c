// Package inventory is what the REST, CLI and load-test adapters call: it
// validates raw input, runs the store operation, emits a stock event and
// records metrics.
//
// UI actions map onto the store like this:
//
//	set a quantity  (PUT .../quantity, `pharmacy set`)          -> SetQuantity
//	apply a delta   (POST .../adjust, `pharmacy adjust`, loadtest) -> AdjustQuantity
package inventory

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"pharmacy_inventory/internal/events"
	"pharmacy_inventory/internal/metrics"
	"pharmacy_inventory/internal/model"
	"pharmacy_inventory/internal/store"
	"pharmacy_inventory/internal/validation"
)

var (
	ErrDuplicateName   = errors.New("product already exists")
	ErrProductNotFound = errors.New("product not found")
)

// EventSink receives stock events after successful writes.
type EventSink interface {
	Emit(ctx context.Context, ev events.StockEvent) error
}

type Service struct {
	store *store.Store
	sink  EventSink
	log   log.FieldLogger
}

// NewService wires the store to an event sink; a nil sink drops events.
func NewService(st *store.Store, sink EventSink) *Service {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Service{
		store: st,
		sink:  sink,
		log:   log.WithField("component", "inventory"),
	}
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// AddProduct validates raw form input and inserts the product.
func (s *Service) AddProduct(ctx context.Context, name, priceRaw, quantityRaw string) (*model.Product, error) {
	fields, err := validation.ValidateProduct(name, priceRaw, quantityRaw)
	if err != nil {
		metrics.Observe("add", metrics.OutcomeRejected)
		return nil, err
	}
	p, ok, err := s.store.Add(ctx, fields.Name, fields.Price, fields.Quantity)
	if err != nil {
		metrics.Observe("add", metrics.OutcomeError)
		return nil, err
	}
	if !ok {
		metrics.Observe("add", metrics.OutcomeDuplicate)
		return nil, ErrDuplicateName
	}
	metrics.Observe("add", metrics.OutcomeOK)
	s.emit(ctx, events.NewStockEvent(p.Name, events.KindAdded, p.Quantity, p.Quantity))
	return p, nil
}

// SetQuantity overwrites a product's stock level.
func (s *Service) SetQuantity(ctx context.Context, name, quantityRaw string) (int, error) {
	n, err := validation.ValidateName(name)
	if err != nil {
		metrics.Observe("set", metrics.OutcomeRejected)
		return 0, err
	}
	qty, err := validation.ValidateQuantity(quantityRaw)
	if err != nil {
		metrics.Observe("set", metrics.OutcomeRejected)
		return 0, err
	}

	prev, ok, err := s.store.SetQuantity(ctx, n, qty)
	if err != nil {
		metrics.Observe("set", metrics.OutcomeError)
		return 0, err
	}
	if !ok {
		metrics.Observe("set", metrics.OutcomeNotFound)
		return 0, ErrProductNotFound
	}
	metrics.Observe("set", metrics.OutcomeOK)
	s.emit(ctx, events.NewStockEvent(n, events.KindSet, qty-prev, qty))
	return qty, nil
}

// AdjustQuantity adds a signed delta to a product's stock level and returns
// the new level.
func (s *Service) AdjustQuantity(ctx context.Context, name, deltaRaw string) (int, error) {
	n, err := validation.ValidateName(name)
	if err != nil {
		metrics.Observe("adjust", metrics.OutcomeRejected)
		return 0, err
	}
	delta, err := validation.ValidateDelta(deltaRaw)
	if err != nil {
		metrics.Observe("adjust", metrics.OutcomeRejected)
		return 0, err
	}

	qty, ok, err := s.store.AdjustQuantity(ctx, n, delta)
	switch {
	case errors.Is(err, store.ErrQuantityOutOfRange):
		metrics.Observe("adjust", metrics.OutcomeRejected)
		return qty, err
	case err != nil:
		metrics.Observe("adjust", metrics.OutcomeError)
		return 0, err
	case !ok:
		metrics.Observe("adjust", metrics.OutcomeNotFound)
		return 0, ErrProductNotFound
	}
	metrics.Observe("adjust", metrics.OutcomeOK)
	if delta != 0 {
		s.emit(ctx, events.NewStockEvent(n, events.KindAdjusted, delta, qty))
	}
	return qty, nil
}

// List returns every product, sorted by sortRaw when it names an allowed column.
func (s *Service) List(ctx context.Context, sortRaw string, descending bool) ([]model.Product, error) {
	key, err := store.ParseSortKey(sortRaw)
	if err != nil {
		return nil, err
	}
	return s.store.List(ctx, key, descending)
}

func (s *Service) Names(ctx context.Context) ([]string, error) {
	return s.store.Names(ctx)
}

func (s *Service) Get(ctx context.Context, name string) (*model.Product, error) {
	p, ok, err := s.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func (s *Service) QuantityOf(ctx context.Context, name string) (int, error) {
	qty, ok, err := s.store.QuantityOf(ctx, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrProductNotFound
	}
	return qty, nil
}

// History returns recorded stock changes of a product, newest first.
func (s *Service) History(ctx context.Context, name string, limit int) ([]model.StockAudit, error) {
	return s.store.ListAudits(ctx, name, limit)
}

// Seed bulk-loads SampleProducts. Without force it only fills an empty
// store. It returns how many products were loaded.
func (s *Service) Seed(ctx context.Context, force bool) (int, error) {
	if !force {
		existing, err := s.store.List(ctx, store.Unsorted, false)
		if err != nil {
			return 0, err
		}
		if len(existing) > 0 {
			return 0, nil
		}
	}
	if err := s.store.BulkLoad(ctx, SampleProducts); err != nil {
		metrics.Observe("seed", metrics.OutcomeError)
		return 0, err
	}
	metrics.Observe("seed", metrics.OutcomeOK)
	for _, p := range SampleProducts {
		s.emit(ctx, events.NewStockEvent(p.Name, events.KindSeeded, p.Quantity, p.Quantity))
	}
	s.log.WithField("count", len(SampleProducts)).Info("seeded sample products")
	return len(SampleProducts), nil
}

func (s *Service) emit(ctx context.Context, ev events.StockEvent) {
	if err := s.sink.Emit(ctx, ev); err != nil {
		metrics.StockEventsDropped.Inc()
		s.log.WithError(err).WithFields(log.Fields{
			"product": ev.ProductName,
			"kind":    ev.Kind,
		}).Warn("stock event not emitted")
	}
}

// UserMessage renders any error from this package as text fit for a user.
func UserMessage(err error) string {
	var verr *validation.Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.Message
	case errors.Is(err, ErrDuplicateName):
		return "A product with this name already exists"
	case errors.Is(err, ErrProductNotFound):
		return "Product not found"
	case errors.Is(err, store.ErrQuantityOutOfRange):
		return fmt.Sprintf("Quantity must stay between 0 and %d", validation.MaxQuantity)
	case errors.Is(err, store.ErrInvalidSortKey):
		return "Sort key must be one of name, price, quantity"
	case errors.Is(err, store.ErrDuplicateRecords):
		return "Products to load must have distinct names"
	case errors.Is(err, store.ErrUnavailable):
		return "Inventory storage is unavailable, please try again"
	default:
		return "Unexpected error"
	}
}
