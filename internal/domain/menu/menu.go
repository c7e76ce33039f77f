package menu

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

const (
	maxNameLength = 64
	maxDescLength = 1000
)

// maxPrice is the largest value a NUMERIC(6,2) column holds.
var maxPrice = decimal.RequireFromString("9999.99")

// Assets stores uploaded images by key.
type Assets interface {
	// Put stores the content under a new key derived from name.
	Put(ctx context.Context, name string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// Upload is an image submitted with a menu item.
type Upload struct {
	Filename string
	Body     io.Reader
}

// NewItem holds the input for adding a menu item.
type NewItem struct {
	Name        string
	Description string
	Price       decimal.Decimal
	CategoryID  *int64
	Available   bool
	Image       *Upload
}

// Patch holds a partial update of a menu item. Nil fields are left unchanged.
type Patch struct {
	Name          *string
	Description   *string
	Price         *decimal.Decimal
	CategoryID    *int64
	ClearCategory bool
	Available     *bool
	Image         *Upload
	RemoveImage   bool
}

// InvalidFieldError indicates a menu item field failed validation.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validateName(name string) error {
	switch {
	case name == "":
		return &InvalidFieldError{Field: "name", Reason: "must not be empty"}
	case len(name) > maxNameLength:
		return &InvalidFieldError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", maxNameLength)}
	}
	return nil
}

func validateDescription(desc string) error {
	if len(desc) > maxDescLength {
		return &InvalidFieldError{Field: "description", Reason: fmt.Sprintf("must be at most %d characters", maxDescLength)}
	}
	return nil
}

func validatePrice(p decimal.Decimal) error {
	switch {
	case !p.IsPositive():
		return &InvalidFieldError{Field: "price", Reason: "must be greater than 0"}
	case p.GreaterThan(maxPrice):
		return &InvalidFieldError{Field: "price", Reason: "must be at most " + maxPrice.StringFixed(2)}
	case !p.Round(2).Equal(p):
		return &InvalidFieldError{Field: "price", Reason: "must have at most 2 decimal places"}
	}
	return nil
}
