// Package validation turns raw text input into well-formed product fields.
package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	MaxNameLength = 100
	MaxPrice      = 999999.99
	MaxQuantity   = 999999
)

// Error is a user-facing rejection reason for one field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string { return e.Message }

func fail(field, msg string) *Error {
	return &Error{Field: field, Message: msg}
}

// ProductFields is a validated product tuple.
type ProductFields struct {
	Name     string
	Price    float64
	Quantity int
}

// ValidateName returns the trimmed name.
func ValidateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fail("name", "Drug name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", fail("name", fmt.Sprintf("Drug name cannot exceed %d characters", MaxNameLength))
	}
	return name, nil
}

// ValidatePrice parses a positive price no larger than MaxPrice.
func ValidatePrice(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fail("price", "Price is required")
	}
	price, err := strconv.ParseFloat(s, 64)
	// out-of-range input still yields ±Inf or 0, which the bounds below reject
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, fail("price", "Price must be a valid number")
	}
	if math.IsNaN(price) {
		return 0, fail("price", "Price must be a valid number")
	}
	if price <= 0 {
		return 0, fail("price", "Price must be greater than 0")
	}
	if price > MaxPrice {
		return 0, fail("price", "Price is too large")
	}
	return price, nil
}

// ValidateQuantity parses a stock level in [0, MaxQuantity].
func ValidateQuantity(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fail("quantity", "Quantity is required")
	}
	qty, err := strconv.Atoi(s)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, fail("quantity", "Quantity must be a valid integer")
	}
	if err := CheckQuantity(qty); err != nil {
		return 0, err
	}
	return qty, nil
}

// CheckQuantity applies the quantity bounds to an already typed value.
func CheckQuantity(qty int) error {
	if qty < 0 {
		return fail("quantity", "Quantity must be 0 or greater")
	}
	if qty > MaxQuantity {
		return fail("quantity", "Quantity is too large")
	}
	return nil
}

// ValidateDelta parses a signed quantity change. A delta of zero is allowed.
func ValidateDelta(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fail("delta", "Quantity change is required")
	}
	delta, err := strconv.Atoi(s)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, fail("delta", "Quantity change must be a valid integer")
	}
	if delta > MaxQuantity || delta < -MaxQuantity {
		return 0, fail("delta", "Quantity change is too large")
	}
	return delta, nil
}

// ValidateProduct checks name, price and quantity in that order and
// reports only the first failure.
func ValidateProduct(name, priceRaw, quantityRaw string) (ProductFields, error) {
	n, err := ValidateName(name)
	if err != nil {
		return ProductFields{}, err
	}
	price, err := ValidatePrice(priceRaw)
	if err != nil {
		return ProductFields{}, err
	}
	qty, err := ValidateQuantity(quantityRaw)
	if err != nil {
		return ProductFields{}, err
	}
	return ProductFields{Name: n, Price: price, Quantity: qty}, nil
}
