package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Kiongsoh/CS50W/internal/domain/auth"
	"github.com/Kiongsoh/CS50W/internal/domain/catalog"
	"github.com/Kiongsoh/CS50W/internal/repository"
)

type seedFile struct {
	Chains []struct {
		Name string `yaml:"name"`
	} `yaml:"chains"`
	Restaurants []restaurantYAML `yaml:"restaurants"`
	Users       []userYAML       `yaml:"users"`
}

type restaurantYAML struct {
	Name       string          `yaml:"name"`
	Address    string          `yaml:"address"`
	Chain      string          `yaml:"chain"`
	Cuisine    string          `yaml:"cuisine"`
	Rating     decimal.Decimal `yaml:"rating"`
	Opening    string          `yaml:"opening"`
	Closing    string          `yaml:"closing"`
	Categories []string        `yaml:"categories"`
	Menu       []menuItemYAML  `yaml:"menu"`
}

type menuItemYAML struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Price       decimal.Decimal `yaml:"price"`
	Category    string          `yaml:"category"`
	Available   *bool           `yaml:"available"`
}

type userYAML struct {
	Email      string `yaml:"email"`
	Password   string `yaml:"password"`
	Kitchen    bool   `yaml:"kitchen"`
	Restaurant string `yaml:"restaurant"`
}

func main() {
	var (
		databaseURL string
		seedPath    string
		bcryptCost  int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/catalog.yaml", "path to the catalog YAML file")
	flag.IntVar(&bcryptCost, "bcrypt-cost", bcrypt.DefaultCost, "bcrypt cost for seeded passwords")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, seedPath, bcryptCost); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, seedPath string, cost int) error {
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed file")
	}

	lg.Info("Connecting to database")
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	s := repository.NewSeeder(pool)

	chains := make(map[string]int64, len(seed.Chains))
	for _, c := range seed.Chains {
		id, err := s.UpsertChain(ctx, c.Name)
		if err != nil {
			return err
		}
		chains[c.Name] = id
	}

	restaurants, err := seedRestaurants(ctx, lg, s, seed.Restaurants, chains)
	if err != nil {
		return errors.Wrap(err, "seed restaurants")
	}

	if err := seedUsers(ctx, lg, s, seed.Users, restaurants, cost); err != nil {
		return errors.Wrap(err, "seed users")
	}
	return nil
}

// seedRestaurants upserts restaurants first, then fills their menus
// concurrently. It returns restaurant IDs by name.
func seedRestaurants(
	ctx context.Context,
	lg *zap.Logger,
	s *repository.Seeder,
	list []restaurantYAML,
	chains map[string]int64,
) (map[string]int64, error) {
	ids := make(map[string]int64, len(list))
	for _, ry := range list {
		r := &catalog.Restaurant{
			Name:    ry.Name,
			Address: ry.Address,
			Cuisine: ry.Cuisine,
			Rating:  ry.Rating,
			Opening: orDefault(ry.Opening, "09:00"),
			Closing: orDefault(ry.Closing, "22:00"),
		}
		if ry.Chain != "" {
			chainID, ok := chains[ry.Chain]
			if !ok {
				return nil, errors.Errorf("restaurant %q: unknown chain %q", ry.Name, ry.Chain)
			}
			r.Chain = &catalog.Chain{ID: chainID, Name: ry.Chain}
		}
		if err := s.UpsertRestaurant(ctx, r); err != nil {
			return nil, err
		}
		ids[ry.Name] = r.ID
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, ry := range list {
		restaurantID := ids[ry.Name]
		g.Go(func() error {
			return seedMenu(gctx, lg, s, restaurantID, ry)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedMenu(ctx context.Context, lg *zap.Logger, s *repository.Seeder, restaurantID int64, ry restaurantYAML) error {
	categories := make(map[string]int64, len(ry.Categories))
	for _, name := range ry.Categories {
		id, err := s.UpsertCategory(ctx, restaurantID, name)
		if err != nil {
			return err
		}
		categories[name] = id
	}

	for _, my := range ry.Menu {
		item := &catalog.MenuItem{
			RestaurantID: restaurantID,
			Name:         my.Name,
			Description:  my.Description,
			Price:        my.Price,
			Available:    my.Available == nil || *my.Available,
		}
		if my.Category != "" {
			id, ok := categories[my.Category]
			if !ok {
				return errors.Errorf("menu item %q: unknown category %q", my.Name, my.Category)
			}
			item.CategoryID = &id
		}
		if err := s.UpsertMenuItem(ctx, item); err != nil {
			return err
		}
	}

	lg.Info("Seeded menu",
		zap.String("restaurant", ry.Name),
		zap.Int("categories", len(categories)),
		zap.Int("items", len(ry.Menu)),
	)
	return nil
}

func seedUsers(
	ctx context.Context,
	lg *zap.Logger,
	s *repository.Seeder,
	list []userYAML,
	restaurants map[string]int64,
	cost int,
) error {
	for _, uy := range list {
		hash, err := bcrypt.GenerateFromPassword([]byte(uy.Password), cost)
		if err != nil {
			return errors.Wrapf(err, "hash password of %s", uy.Email)
		}
		u := &auth.User{
			Email:        strings.ToLower(strings.TrimSpace(uy.Email)),
			PasswordHash: string(hash),
			IsKitchen:    uy.Kitchen,
		}
		if uy.Restaurant != "" {
			id, ok := restaurants[uy.Restaurant]
			if !ok {
				return errors.Errorf("user %q: unknown restaurant %q", uy.Email, uy.Restaurant)
			}
			u.ManagedRestaurantID = &id
		}
		if err := s.UpsertUser(ctx, u); err != nil {
			return err
		}
		lg.Info("Seeded user", zap.String("email", u.Email), zap.Bool("kitchen", u.IsKitchen))
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
