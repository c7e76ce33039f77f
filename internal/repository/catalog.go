package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kiongsoh/CS50W/internal/domain/catalog"
)

const (
	restaurantColumns = `r.id, r.name, r.address, c.id, c.name, r.cuisine, r.rating,
		to_char(r.opening, 'HH24:MI'), to_char(r.closing, 'HH24:MI'), r.image_key`

	listRestaurantsSQL = `SELECT ` + restaurantColumns + `
		FROM restaurants r LEFT JOIN chains c ON c.id = r.chain_id
		ORDER BY r.name`

	getRestaurantSQL = `SELECT ` + restaurantColumns + `
		FROM restaurants r LEFT JOIN chains c ON c.id = r.chain_id
		WHERE r.id = $1`

	menuItemColumns = `m.id, m.restaurant_id, r.name, m.category_id, m.name, m.description,
		m.price, m.available, m.image_key, m.archived`

	listMenuSQL = `SELECT ` + menuItemColumns + `
		FROM menu_items m JOIN restaurants r ON r.id = m.restaurant_id
		WHERE m.restaurant_id = $1 AND NOT m.archived
		ORDER BY m.name, m.id`

	getMenuItemSQL = `SELECT ` + menuItemColumns + `
		FROM menu_items m JOIN restaurants r ON r.id = m.restaurant_id
		WHERE m.id = $1`

	getCategorySQL = `SELECT id, restaurant_id, name FROM menu_categories WHERE id = $1`

	createMenuItemSQL = `INSERT INTO menu_items
		(restaurant_id, category_id, name, description, price, available, image_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	updateMenuItemSQL = `UPDATE menu_items
		SET category_id = $2, name = $3, description = $4, price = $5, available = $6, image_key = $7
		WHERE id = $1 AND NOT archived`

	archiveMenuItemSQL = `UPDATE menu_items SET archived = TRUE, available = FALSE, image_key = ''
		WHERE id = $1 AND NOT archived`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// ListRestaurants returns all restaurants ordered by name.
func (r *CatalogRepository) ListRestaurants(ctx context.Context) ([]catalog.Restaurant, error) {
	rows, err := r.pool.Query(ctx, listRestaurantsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing restaurants: %w", err)
	}
	return pgx.CollectRows(rows, scanRestaurant)
}

// GetRestaurant returns a single restaurant.
func (r *CatalogRepository) GetRestaurant(ctx context.Context, id int64) (*catalog.Restaurant, error) {
	rows, err := r.pool.Query(ctx, getRestaurantSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting restaurant %d: %w", id, err)
	}
	rest, err := pgx.CollectExactlyOneRow(rows, scanRestaurant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting restaurant %d: %w", id, err)
	}
	return &rest, nil
}

// ListMenu returns the non-archived items of a restaurant.
func (r *CatalogRepository) ListMenu(ctx context.Context, restaurantID int64) ([]catalog.MenuItem, error) {
	rows, err := r.pool.Query(ctx, listMenuSQL, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("listing menu of restaurant %d: %w", restaurantID, err)
	}
	return pgx.CollectRows(rows, scanMenuItem)
}

// GetMenuItem returns a menu item, archived or not.
func (r *CatalogRepository) GetMenuItem(ctx context.Context, id int64) (*catalog.MenuItem, error) {
	rows, err := r.pool.Query(ctx, getMenuItemSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting menu item %d: %w", id, err)
	}
	item, err := pgx.CollectExactlyOneRow(rows, scanMenuItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting menu item %d: %w", id, err)
	}
	return &item, nil
}

// GetCategory returns a menu category.
func (r *CatalogRepository) GetCategory(ctx context.Context, id int64) (*catalog.Category, error) {
	var c catalog.Category
	err := r.pool.QueryRow(ctx, getCategorySQL, id).Scan(&c.ID, &c.RestaurantID, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting category %d: %w", id, err)
	}
	return &c, nil
}

// CreateMenuItem inserts item and sets its ID.
func (r *CatalogRepository) CreateMenuItem(ctx context.Context, item *catalog.MenuItem) error {
	err := r.pool.QueryRow(ctx, createMenuItemSQL,
		item.RestaurantID, item.CategoryID, item.Name, item.Description,
		item.Price, item.Available, item.ImageKey,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("creating menu item %q: %w", item.Name, err)
	}
	return nil
}

// UpdateMenuItem saves the mutable fields of item.
func (r *CatalogRepository) UpdateMenuItem(ctx context.Context, item *catalog.MenuItem) error {
	tag, err := r.pool.Exec(ctx, updateMenuItemSQL,
		item.ID, item.CategoryID, item.Name, item.Description,
		item.Price, item.Available, item.ImageKey,
	)
	if err != nil {
		return fmt.Errorf("updating menu item %d: %w", item.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// ArchiveMenuItem hides an item from menus and marks it unavailable.
func (r *CatalogRepository) ArchiveMenuItem(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, archiveMenuItemSQL, id)
	if err != nil {
		return fmt.Errorf("archiving menu item %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func scanRestaurant(row pgx.CollectableRow) (catalog.Restaurant, error) {
	var (
		rest      catalog.Restaurant
		chainID   *int64
		chainName *string
	)
	err := row.Scan(
		&rest.ID, &rest.Name, &rest.Address, &chainID, &chainName, &rest.Cuisine, &rest.Rating,
		&rest.Opening, &rest.Closing, &rest.ImageKey,
	)
	if chainID != nil && chainName != nil {
		rest.Chain = &catalog.Chain{ID: *chainID, Name: *chainName}
	}
	return rest, err
}

func scanMenuItem(row pgx.CollectableRow) (catalog.MenuItem, error) {
	var m catalog.MenuItem
	err := row.Scan(
		&m.ID, &m.RestaurantID, &m.RestaurantName, &m.CategoryID, &m.Name, &m.Description,
		&m.Price, &m.Available, &m.ImageKey, &m.Archived,
	)
	return m, err
}
