package menu

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/Kiongsoh/CS50W/internal/domain/auth"
	"github.com/Kiongsoh/CS50W/internal/domain/catalog"
)

// Service lets kitchen operators manage the menu of their restaurant.
type Service struct {
	catalog catalog.Repository
	assets  Assets
}

// NewService creates a menu Service.
func NewService(repo catalog.Repository, assets Assets) *Service {
	return &Service{catalog: repo, assets: assets}
}

// List returns the non-archived items of the actor's restaurant.
func (s *Service) List(ctx context.Context, actor auth.Principal) ([]catalog.MenuItem, error) {
	restaurantID, err := actor.Kitchen()
	if err != nil {
		return nil, err
	}
	items, err := s.catalog.ListMenu(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list menu %d: %w", restaurantID, err)
	}
	return items, nil
}

// Get returns one item of the actor's restaurant.
func (s *Service) Get(ctx context.Context, actor auth.Principal, id int64) (*catalog.MenuItem, error) {
	restaurantID, err := actor.Kitchen()
	if err != nil {
		return nil, err
	}
	return s.owned(ctx, restaurantID, id)
}

// owned returns the item when it belongs to restaurantID. Items of other
// restaurants are reported as missing.
func (s *Service) owned(ctx context.Context, restaurantID, id int64) (*catalog.MenuItem, error) {
	item, err := s.catalog.GetMenuItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get menu item %d: %w", id, err)
	}
	if item.Archived || item.RestaurantID != restaurantID {
		return nil, fmt.Errorf("get menu item %d: %w", id, catalog.ErrNotFound)
	}
	return item, nil
}

func (s *Service) checkCategory(ctx context.Context, restaurantID int64, id *int64) error {
	if id == nil {
		return nil
	}
	c, err := s.catalog.GetCategory(ctx, *id)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return &InvalidFieldError{Field: "category_id", Reason: "unknown category"}
	case err != nil:
		return fmt.Errorf("get category %d: %w", *id, err)
	case c.RestaurantID != restaurantID:
		return &InvalidFieldError{Field: "category_id", Reason: "unknown category"}
	}
	return nil
}

// Add creates a menu item in the actor's restaurant.
func (s *Service) Add(ctx context.Context, actor auth.Principal, in NewItem) (*catalog.MenuItem, error) {
	restaurantID, err := actor.Kitchen()
	if err != nil {
		return nil, err
	}

	item := &catalog.MenuItem{
		RestaurantID: restaurantID,
		CategoryID:   in.CategoryID,
		Name:         strings.TrimSpace(in.Name),
		Description:  strings.TrimSpace(in.Description),
		Price:        in.Price,
		Available:    in.Available,
	}
	if err := s.validate(ctx, item); err != nil {
		return nil, err
	}

	if in.Image != nil {
		key, err := s.assets.Put(ctx, in.Image.Filename, in.Image.Body)
		if err != nil {
			return nil, fmt.Errorf("store image: %w", err)
		}
		item.ImageKey = key
	}

	if err := s.catalog.CreateMenuItem(ctx, item); err != nil {
		s.dropAsset(ctx, item.ImageKey)
		return nil, fmt.Errorf("create menu item: %w", err)
	}
	return item, nil
}

// Edit applies a patch to an item of the actor's restaurant. A replaced image
// is removed after the item is saved.
func (s *Service) Edit(ctx context.Context, actor auth.Principal, id int64, p Patch) (*catalog.MenuItem, error) {
	restaurantID, err := actor.Kitchen()
	if err != nil {
		return nil, err
	}
	item, err := s.owned(ctx, restaurantID, id)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		item.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		item.Description = strings.TrimSpace(*p.Description)
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
	if p.Available != nil {
		item.Available = *p.Available
	}
	switch {
	case p.ClearCategory:
		item.CategoryID = nil
	case p.CategoryID != nil:
		item.CategoryID = p.CategoryID
	}
	if err := s.validate(ctx, item); err != nil {
		return nil, err
	}

	oldKey := item.ImageKey
	switch {
	case p.Image != nil:
		key, err := s.assets.Put(ctx, p.Image.Filename, p.Image.Body)
		if err != nil {
			return nil, fmt.Errorf("store image: %w", err)
		}
		item.ImageKey = key
	case p.RemoveImage:
		item.ImageKey = ""
	}

	if err := s.catalog.UpdateMenuItem(ctx, item); err != nil {
		if item.ImageKey != oldKey {
			s.dropAsset(ctx, item.ImageKey)
		}
		return nil, fmt.Errorf("update menu item %d: %w", id, err)
	}
	if item.ImageKey != oldKey {
		s.dropAsset(ctx, oldKey)
	}
	return item, nil
}

// Delete archives an item of the actor's restaurant and drops its image.
// Archived items stay referenced by past orders.
func (s *Service) Delete(ctx context.Context, actor auth.Principal, id int64) error {
	restaurantID, err := actor.Kitchen()
	if err != nil {
		return err
	}
	item, err := s.owned(ctx, restaurantID, id)
	if err != nil {
		return err
	}
	if err := s.catalog.ArchiveMenuItem(ctx, id); err != nil {
		return fmt.Errorf("archive menu item %d: %w", id, err)
	}
	s.dropAsset(ctx, item.ImageKey)
	return nil
}

func (s *Service) validate(ctx context.Context, item *catalog.MenuItem) error {
	if err := validateName(item.Name); err != nil {
		return err
	}
	if err := validateDescription(item.Description); err != nil {
		return err
	}
	if err := validatePrice(item.Price); err != nil {
		return err
	}
	return s.checkCategory(ctx, item.RestaurantID, item.CategoryID)
}

// dropAsset deletes key best-effort.
func (s *Service) dropAsset(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.assets.Delete(ctx, key); err != nil {
		zctx.From(ctx).Warn("Delete image asset",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
