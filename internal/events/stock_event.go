package events

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"pharmacy_inventory/internal/model"
)

// Kinds of stock change.
const (
	KindAdded    = "added"
	KindSet      = "set"
	KindAdjusted = "adjusted"
	KindSeeded   = "seeded"
)

// StockEvent is emitted after a successful write to a product's quantity.
type StockEvent struct {
	EventID     string    `json:"event_id"`
	ProductName string    `json:"product_name"`
	Kind        string    `json:"kind"`
	Delta       int       `json:"delta"`
	Quantity    int       `json:"quantity"` // level after the change
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewStockEvent stamps a fresh event id and time.
func NewStockEvent(productName, kind string, delta, quantity int) StockEvent {
	return StockEvent{
		EventID:     uuid.New().String(),
		ProductName: productName,
		Kind:        kind,
		Delta:       delta,
		Quantity:    quantity,
		OccurredAt:  time.Now().UTC(),
	}
}

// Validate rejects events a consumer must not persist.
func (e StockEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.ProductName == "" {
		return fmt.Errorf("product_name is required")
	}
	switch e.Kind {
	case KindAdded, KindSet, KindAdjusted, KindSeeded:
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Quantity < 0 {
		return fmt.Errorf("quantity must be >= 0")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	return nil
}

// Audit converts the event into its persisted form.
func (e StockEvent) Audit() *model.StockAudit {
	return &model.StockAudit{
		EventID:     e.EventID,
		ProductName: e.ProductName,
		Kind:        e.Kind,
		Delta:       e.Delta,
		Quantity:    e.Quantity,
		OccurredAt:  e.OccurredAt,
	}
}

// streamValues is the flat field map written with XADD.
func (e StockEvent) streamValues() map[string]interface{} {
	return map[string]interface{}{
		"event_id":     e.EventID,
		"product_name": e.ProductName,
		"kind":         e.Kind,
		"delta":        strconv.Itoa(e.Delta),
		"quantity":     strconv.Itoa(e.Quantity),
		"occurred_at":  e.OccurredAt.Format(time.RFC3339Nano),
	}
}

func parseStockEvent(values map[string]interface{}) (StockEvent, error) {
	eventID, err := getStreamString(values, "event_id")
	if err != nil {
		return StockEvent{}, err
	}
	name, err := getStreamString(values, "product_name")
	if err != nil {
		return StockEvent{}, err
	}
	kind, err := getStreamString(values, "kind")
	if err != nil {
		return StockEvent{}, err
	}
	deltaStr, err := getStreamString(values, "delta")
	if err != nil {
		return StockEvent{}, err
	}
	qtyStr, err := getStreamString(values, "quantity")
	if err != nil {
		return StockEvent{}, err
	}
	atStr, err := getStreamString(values, "occurred_at")
	if err != nil {
		return StockEvent{}, err
	}

	delta, err := strconv.Atoi(deltaStr)
	if err != nil {
		return StockEvent{}, fmt.Errorf("invalid delta %q", deltaStr)
	}
	qty, err := strconv.Atoi(qtyStr)
	if err != nil {
		return StockEvent{}, fmt.Errorf("invalid quantity %q", qtyStr)
	}
	at, err := time.Parse(time.RFC3339Nano, atStr)
	if err != nil {
		return StockEvent{}, fmt.Errorf("invalid occurred_at %q", atStr)
	}

	ev := StockEvent{
		EventID:     eventID,
		ProductName: name,
		Kind:        kind,
		Delta:       delta,
		Quantity:    qty,
		OccurredAt:  at,
	}
	if err := ev.Validate(); err != nil {
		return StockEvent{}, err
	}
	return ev, nil
}

func getStreamString(values map[string]interface{}, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
