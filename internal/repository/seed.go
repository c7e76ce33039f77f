package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Kiongsoh/CS50W/internal/domain/auth"
	"github.com/Kiongsoh/CS50W/internal/domain/catalog"
)

const (
	upsertChainSQL = `INSERT INTO chains (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`

	upsertRestaurantSQL = `INSERT INTO restaurants
		(name, address, chain_id, cuisine, rating, opening, closing, image_key)
		VALUES ($1, $2, $3, $4, $5, $6::time, $7::time, $8)
		ON CONFLICT (name) DO UPDATE SET
			address = EXCLUDED.address,
			chain_id = EXCLUDED.chain_id,
			cuisine = EXCLUDED.cuisine,
			rating = EXCLUDED.rating,
			opening = EXCLUDED.opening,
			closing = EXCLUDED.closing,
			image_key = EXCLUDED.image_key
		RETURNING id`

	upsertCategorySQL = `INSERT INTO menu_categories (restaurant_id, name) VALUES ($1, $2)
		ON CONFLICT (restaurant_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`

	// Menu items have no natural key; the live item with the same name in
	// the same restaurant is updated in place.
	updateSeedItemSQL = `UPDATE menu_items
		SET category_id = $3, description = $4, price = $5, available = $6
		WHERE restaurant_id = $1 AND name = $2 AND NOT archived
		RETURNING id`

	upsertUserSQL = `INSERT INTO users (email, password_hash, is_kitchen, managed_restaurant_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			is_kitchen = EXCLUDED.is_kitchen,
			managed_restaurant_id = EXCLUDED.managed_restaurant_id
		RETURNING id, created_at`
)

// Seeder writes reference data idempotently. It is used by the seed-db tool.
type Seeder struct {
	pool *pgxpool.Pool
}

// NewSeeder returns a Seeder that uses the given pool.
func NewSeeder(pool *pgxpool.Pool) *Seeder {
	return &Seeder{pool: pool}
}

// UpsertChain returns the ID of the chain called name, creating it if needed.
func (s *Seeder) UpsertChain(ctx context.Context, name string) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, upsertChainSQL, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("upserting chain %q: %w", name, err)
	}
	return id, nil
}

// UpsertRestaurant inserts or updates r by name and sets its ID.
func (s *Seeder) UpsertRestaurant(ctx context.Context, r *catalog.Restaurant) error {
	var chainID *int64
	if r.Chain != nil {
		chainID = &r.Chain.ID
	}
	rating := r.Rating
	if rating.IsZero() {
		rating = decimal.NewFromInt(1)
	}
	err := s.pool.QueryRow(ctx, upsertRestaurantSQL,
		r.Name, r.Address, chainID, r.Cuisine, rating, r.Opening, r.Closing, r.ImageKey,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("upserting restaurant %q: %w", r.Name, err)
	}
	return nil
}

// UpsertCategory returns the ID of a restaurant's category, creating it if needed.
func (s *Seeder) UpsertCategory(ctx context.Context, restaurantID int64, name string) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, upsertCategorySQL, restaurantID, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("upserting category %q: %w", name, err)
	}
	return id, nil
}

// UpsertMenuItem updates the live item with the same restaurant and name, or
// inserts a new one, and sets item.ID.
func (s *Seeder) UpsertMenuItem(ctx context.Context, item *catalog.MenuItem) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, updateSeedItemSQL,
			item.RestaurantID, item.Name, item.CategoryID, item.Description, item.Price, item.Available,
		).Scan(&item.ID)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("updating menu item %q: %w", item.Name, err)
		}

		err = tx.QueryRow(ctx, createMenuItemSQL,
			item.RestaurantID, item.CategoryID, item.Name, item.Description,
			item.Price, item.Available, item.ImageKey,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("inserting menu item %q: %w", item.Name, err)
		}
		return nil
	})
}

// UpsertUser inserts or updates u by email and sets its ID.
func (s *Seeder) UpsertUser(ctx context.Context, u *auth.User) error {
	err := s.pool.QueryRow(ctx, upsertUserSQL,
		u.Email, u.PasswordHash, u.IsKitchen, u.ManagedRestaurantID,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting user %q: %w", u.Email, err)
	}
	return nil
}
