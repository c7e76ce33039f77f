package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a restaurant, category or menu item does not exist.
var ErrNotFound = errors.New("not found")

// Chain groups restaurants operated under one brand.
type Chain struct {
	ID   int64
	Name string
}

// Restaurant is a place that serves a menu.
type Restaurant struct {
	ID       int64
	Name     string
	Address  string
	Chain    *Chain
	Cuisine  string
	Rating   decimal.Decimal
	Opening  string
	Closing  string
	ImageKey string
}

// Category is a named section of a restaurant menu.
type Category struct {
	ID           int64
	RestaurantID int64
	Name         string
}

// MenuItem is a dish offered by a restaurant.
type MenuItem struct {
	ID             int64
	RestaurantID   int64
	RestaurantName string
	CategoryID     *int64
	Name           string
	Description    string
	Price          decimal.Decimal
	Available      bool
	ImageKey       string
	// Archived items are hidden from menus but still referenced by past orders.
	Archived bool
}

// Reader provides read access to the catalog.
type Reader interface {
	ListRestaurants(ctx context.Context) ([]Restaurant, error)
	GetRestaurant(ctx context.Context, id int64) (*Restaurant, error)
	// ListMenu returns non-archived items of a restaurant ordered by name.
	ListMenu(ctx context.Context, restaurantID int64) ([]MenuItem, error)
	GetMenuItem(ctx context.Context, id int64) (*MenuItem, error)
	GetCategory(ctx context.Context, id int64) (*Category, error)
}

// Repository provides read and write access to the catalog.
type Repository interface {
	Reader
	CreateMenuItem(ctx context.Context, item *MenuItem) error
	UpdateMenuItem(ctx context.Context, item *MenuItem) error
	ArchiveMenuItem(ctx context.Context, id int64) error
}
