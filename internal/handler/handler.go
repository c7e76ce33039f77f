// Package handler implements the JSON HTTP API of the kitchen service.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/Kiongsoh/CS50W/internal/domain/auth"
	"github.com/Kiongsoh/CS50W/internal/domain/catalog"
	"github.com/Kiongsoh/CS50W/internal/domain/menu"
	"github.com/Kiongsoh/CS50W/internal/domain/order"
	"github.com/Kiongsoh/CS50W/internal/session"
)

// OrderService is the cart and lifecycle API used by the handlers.
type OrderService interface {
	AddItem(ctx context.Context, customer auth.Principal, menuItemID int64, forceNew bool) (*order.Order, error)
	RemoveItem(ctx context.Context, customer auth.Principal, menuItemID int64) (*order.Order, error)
	SetInstructions(ctx context.Context, customer auth.Principal, menuItemID int64, instructions string) (*order.Order, error)
	Cart(ctx context.Context, customer auth.Principal) (*order.Order, error)
	CurrentQuantity(ctx context.Context, customer auth.Principal) (int, decimal.Decimal, error)
	ItemQuantities(ctx context.Context, customer auth.Principal) (map[int64]int, error)
	ItemTotals(ctx context.Context, customer auth.Principal) (map[int64]decimal.Decimal, error)
	Confirm(ctx context.Context, customer auth.Principal, orderID int64) (*order.Order, error)
	ConfirmCart(ctx context.Context, customer auth.Principal) (*order.Order, error)
	KitchenTransition(ctx context.Context, actor auth.Principal, orderID int64, action order.Action, cancel *order.CancelDetails) (*order.Order, error)
	ListForKitchen(ctx context.Context, actor auth.Principal, filter order.KitchenFilter) ([]order.Order, error)
	ListHistory(ctx context.Context, customer auth.Principal) ([]order.Order, error)
}

// MenuService manages the menu of a kitchen operator's restaurant.
type MenuService interface {
	List(ctx context.Context, actor auth.Principal) ([]catalog.MenuItem, error)
	Get(ctx context.Context, actor auth.Principal, id int64) (*catalog.MenuItem, error)
	Add(ctx context.Context, actor auth.Principal, in menu.NewItem) (*catalog.MenuItem, error)
	Edit(ctx context.Context, actor auth.Principal, id int64, p menu.Patch) (*catalog.MenuItem, error)
	Delete(ctx context.Context, actor auth.Principal, id int64) error
}

// CatalogService serves public restaurant data.
type CatalogService interface {
	ListRestaurants(ctx context.Context) ([]catalog.Restaurant, error)
	Menu(ctx context.Context, restaurantID int64) (*catalog.RestaurantMenu, error)
}

// AccountService registers and authenticates users.
type AccountService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, email, password string) (*auth.User, error)
}

// Users looks up the account behind a session.
type Users interface {
	GetByID(ctx context.Context, id int64) (*auth.User, error)
}

// Sessions issues and resolves session tokens.
type Sessions interface {
	Issue(ctx context.Context, userID int64) (string, *session.Session, error)
	Resolve(ctx context.Context, raw string) (*session.Session, error)
	Revoke(ctx context.Context, raw string) error
	TTL() time.Duration
}

// Assets maps stored image keys to public URLs.
type Assets interface {
	URL(key string) string
}

// Options holds the dependencies and settings of a Handler.
type Options struct {
	Orders   OrderService
	Menu     MenuService
	Catalog  CatalogService
	Accounts AccountService
	Users    Users
	Sessions Sessions
	Assets   Assets

	// CookieSecure sets the Secure attribute of the session cookie.
	CookieSecure bool
	// MaxUploadSize limits multipart bodies. Zero selects 8 MiB.
	MaxUploadSize int64
	// MeterProvider defaults to a no-op provider.
	MeterProvider metric.MeterProvider
}

// Handler serves the /api routes.
type Handler struct {
	orders   OrderService
	menu     MenuService
	catalog  CatalogService
	accounts AccountService
	users    Users
	sessions Sessions
	assets   Assets

	validate     *validator.Validate
	cookieSecure bool
	maxUpload    int64

	cartMutations metric.Int64Counter
	transitions   metric.Int64Counter
}

// New validates opts and creates a Handler.
func New(opts Options) (*Handler, error) {
	switch {
	case opts.Orders == nil:
		return nil, errors.New("orders service is required")
	case opts.Menu == nil:
		return nil, errors.New("menu service is required")
	case opts.Catalog == nil:
		return nil, errors.New("catalog service is required")
	case opts.Accounts == nil:
		return nil, errors.New("account service is required")
	case opts.Users == nil:
		return nil, errors.New("users repository is required")
	case opts.Sessions == nil:
		return nil, errors.New("session manager is required")
	case opts.Assets == nil:
		return nil, errors.New("assets are required")
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = noop.NewMeterProvider()
	}
	if opts.MaxUploadSize == 0 {
		opts.MaxUploadSize = 8 << 20
	}

	meter := opts.MeterProvider.Meter("github.com/Kiongsoh/CS50W/internal/handler")
	cartMutations, err := meter.Int64Counter("kitchen.cart.mutations",
		metric.WithDescription("Cart mutations by operation"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cart mutations counter")
	}
	transitions, err := meter.Int64Counter("kitchen.order.transitions",
		metric.WithDescription("Order status transitions by target status"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create transitions counter")
	}

	return &Handler{
		orders:        opts.Orders,
		menu:          opts.Menu,
		catalog:       opts.Catalog,
		accounts:      opts.Accounts,
		users:         opts.Users,
		sessions:      opts.Sessions,
		assets:        opts.Assets,
		validate:      newValidator(),
		cookieSecure:  opts.CookieSecure,
		maxUpload:     opts.MaxUploadSize,
		cartMutations: cartMutations,
		transitions:   transitions,
	}, nil
}

// Routes returns the API mux. Every route resolves the session first.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/restaurants", h.listRestaurants)
	mux.HandleFunc("GET /api/restaurants/{id}/menu", h.restaurantMenu)

	mux.HandleFunc("GET /api/cart", h.customer(h.getCart))
	mux.HandleFunc("POST /api/cart/add", h.customer(h.addToCart))
	mux.HandleFunc("POST /api/cart/remove", h.customer(h.removeFromCart))
	mux.HandleFunc("POST /api/cart/instructions", h.customer(h.setInstructions))
	mux.HandleFunc("GET /api/cart/quantity", h.customer(h.cartQuantity))
	mux.HandleFunc("GET /api/cart/items", h.customer(h.cartItems))
	mux.HandleFunc("POST /api/cart/checkout", h.customer(h.checkout))

	mux.HandleFunc("GET /api/orders", h.customer(h.orderHistory))
	mux.HandleFunc("POST /api/orders/{id}/confirm", h.customer(h.confirmOrder))

	mux.HandleFunc("GET /api/kitchen/orders", h.customer(h.kitchenOrders))
	mux.HandleFunc("POST /api/kitchen/orders/{id}/status", h.customer(h.kitchenStatus))
	mux.HandleFunc("GET /api/kitchen/menu", h.customer(h.listMenu))
	mux.HandleFunc("POST /api/kitchen/menu", h.customer(h.addMenuItem))
	mux.HandleFunc("GET /api/kitchen/menu/{id}", h.customer(h.getMenuItem))
	mux.HandleFunc("POST /api/kitchen/menu/{id}", h.customer(h.editMenuItem))
	mux.HandleFunc("DELETE /api/kitchen/menu/{id}", h.customer(h.deleteMenuItem))

	mux.HandleFunc("POST /api/auth/register", h.register)
	mux.HandleFunc("POST /api/auth/login", h.login)
	mux.HandleFunc("POST /api/auth/logout", h.logout)
	mux.HandleFunc("GET /api/auth/me", h.customer(h.me))

	return h.authenticate(mux)
}
