package catalog

import (
	"context"
	"fmt"
)

// RestaurantMenu is a restaurant together with its orderable items.
type RestaurantMenu struct {
	Restaurant *Restaurant
	Items      []MenuItem
}

// Service serves catalog browsing for customers.
type Service struct {
	catalog Reader
}

// NewService creates a catalog Service.
func NewService(catalog Reader) *Service {
	return &Service{catalog: catalog}
}

// ListRestaurants returns all restaurants.
func (s *Service) ListRestaurants(ctx context.Context) ([]Restaurant, error) {
	list, err := s.catalog.ListRestaurants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	return list, nil
}

// GetRestaurant returns a restaurant by id.
func (s *Service) GetRestaurant(ctx context.Context, id int64) (*Restaurant, error) {
	r, err := s.catalog.GetRestaurant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get restaurant %d: %w", id, err)
	}
	return r, nil
}

// Menu returns a restaurant and its non-archived menu items.
func (s *Service) Menu(ctx context.Context, restaurantID int64) (*RestaurantMenu, error) {
	r, err := s.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	items, err := s.catalog.ListMenu(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list menu %d: %w", restaurantID, err)
	}
	return &RestaurantMenu{Restaurant: r, Items: items}, nil
}
