package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kiongsoh/CS50W/internal/domain/auth"
	"github.com/Kiongsoh/CS50W/internal/domain/catalog"
	"github.com/Kiongsoh/CS50W/internal/domain/menu"
	"github.com/Kiongsoh/CS50W/internal/domain/order"
	"github.com/Kiongsoh/CS50W/internal/session"
)

// --- Mock implementations ---

// mockOrders embeds the interface so that tests only implement the calls
// they exercise.
type mockOrders struct {
	OrderService

	order *order.Order
	list  []order.Order
	err   error

	gotItemID   int64
	gotForceNew bool
	gotAction   order.Action
	gotCancel   *order.CancelDetails
	gotFilter   order.KitchenFilter
	quantities  map[int64]int
	totals      map[int64]decimal.Decimal
}

func (m *mockOrders) AddItem(_ context.Context, _ auth.Principal, id int64, forceNew bool) (*order.Order, error) {
	m.gotItemID, m.gotForceNew = id, forceNew
	return m.order, m.err
}

func (m *mockOrders) RemoveItem(_ context.Context, _ auth.Principal, id int64) (*order.Order, error) {
	m.gotItemID = id
	return m.order, m.err
}

func (m *mockOrders) Cart(context.Context, auth.Principal) (*order.Order, error) {
	return m.order, m.err
}

func (m *mockOrders) ItemQuantities(context.Context, auth.Principal) (map[int64]int, error) {
	return m.quantities, m.err
}

func (m *mockOrders) ItemTotals(context.Context, auth.Principal) (map[int64]decimal.Decimal, error) {
	return m.totals, m.err
}

func (m *mockOrders) ConfirmCart(context.Context, auth.Principal) (*order.Order, error) {
	return m.order, m.err
}

func (m *mockOrders) KitchenTransition(_ context.Context, _ auth.Principal, _ int64, a order.Action, c *order.CancelDetails) (*order.Order, error) {
	m.gotAction, m.gotCancel = a, c
	return m.order, m.err
}

func (m *mockOrders) ListForKitchen(_ context.Context, _ auth.Principal, f order.KitchenFilter) ([]order.Order, error) {
	m.gotFilter = f
	return m.list, m.err
}

type mockMenu struct {
	MenuService

	gotNew   menu.NewItem
	gotImage string
	gotPatch menu.Patch
	err      error
}

func (m *mockMenu) Add(_ context.Context, _ auth.Principal, in menu.NewItem) (*catalog.MenuItem, error) {
	m.gotNew = in
	if in.Image != nil {
		b, _ := io.ReadAll(in.Image.Body)
		m.gotImage = string(b)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &catalog.MenuItem{ID: 7, RestaurantID: 1, Name: in.Name, Price: in.Price, Available: in.Available, ImageKey: "abc.png"}, nil
}

func (m *mockMenu) Edit(_ context.Context, _ auth.Principal, id int64, p menu.Patch) (*catalog.MenuItem, error) {
	m.gotPatch = p
	if m.err != nil {
		return nil, m.err
	}
	return &catalog.MenuItem{ID: id, RestaurantID: 1, Name: "Edited", Price: decimal.NewFromInt(1)}, nil
}

type mockCatalog struct {
	CatalogService
}

type mockAccounts struct {
	user *auth.User
	err  error
}

func (m *mockAccounts) Register(_ context.Context, req auth.RegisterRequest) (*auth.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &auth.User{ID: 50, Email: req.Email, IsKitchen: req.Kitchen}, nil
}

func (m *mockAccounts) Login(context.Context, string, string) (*auth.User, error) {
	return m.user, m.err
}

type mockUsers struct {
	users map[int64]*auth.User
}

func (m *mockUsers) GetByID(_ context.Context, id int64) (*auth.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return u, nil
}

// mockSessions accepts tokens of the form "tok-<user id>".
type mockSessions struct {
	revoked []string
}

func (m *mockSessions) Issue(_ context.Context, userID int64) (string, *session.Session, error) {
	return "tok-" + formatID(userID), &session.Session{ID: "sid", UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (m *mockSessions) Resolve(_ context.Context, raw string) (*session.Session, error) {
	switch raw {
	case "tok-1":
		return &session.Session{UserID: 1}, nil
	case "tok-2":
		return &session.Session{UserID: 2}, nil
	}
	return nil, session.ErrInvalid
}

func (m *mockSessions) Revoke(_ context.Context, raw string) error {
	m.revoked = append(m.revoked, raw)
	return nil
}

func (m *mockSessions) TTL() time.Duration { return time.Hour }

type mockAssets struct{}

func (mockAssets) URL(key string) string { return "/media/" + key }

// --- Helpers ---

var restaurantID = int64(1)

type testEnv struct {
	orders   *mockOrders
	menu     *mockMenu
	accounts *mockAccounts
	sessions *mockSessions
	server   http.Handler
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		orders:   &mockOrders{},
		menu:     &mockMenu{},
		accounts: &mockAccounts{},
		sessions: &mockSessions{},
	}
	h, err := New(Options{
		Orders:   env.orders,
		Menu:     env.menu,
		Catalog:  &mockCatalog{},
		Accounts: env.accounts,
		Users: &mockUsers{users: map[int64]*auth.User{
			1: {ID: 1, Email: "diner@example.com"},
			2: {ID: 2, Email: "chef@example.com", IsKitchen: true, ManagedRestaurantID: &restaurantID},
		}},
		Sessions: env.sessions,
		Assets:   mockAssets{},
	})
	require.NoError(t, err)
	env.server = h.Routes()
	return env
}

func (env *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

// fields decodes the top-level object of a response into raw values.
func fields(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	out := make(map[string]string)
	d := jx.DecodeBytes(rec.Body.Bytes())
	require.NoError(t, d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		out[string(key)] = raw.String()
		return nil
	}), rec.Body.String())
	return out
}

func sampleOrder() *order.Order {
	return &order.Order{
		ID:             10,
		CustomerID:     1,
		RestaurantID:   1,
		RestaurantName: "Trattoria",
		Status:         order.StatusInCart,
		Total:          decimal.RequireFromString("21.00"),
		Items: []order.Item{
			{MenuItemID: 5, Name: "Carbonara", UnitPrice: decimal.RequireFromString("10.50"), Quantity: 2},
		},
	}
}

// --- Tests ---

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestAuthRequired(t *testing.T) {
	env := newEnv(t)

	for _, token := range []string{"", "tok-unknown"} {
		rec := env.do(t, http.MethodGet, "/api/cart", token, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		f := fields(t, rec)
		assert.Equal(t, `"authentication_required"`, f["error"])
		assert.Equal(t, `"/api/auth/login"`, f["login_url"])
	}
}

func TestAddToCart(t *testing.T) {
	env := newEnv(t)
	env.orders.order = sampleOrder()

	rec := env.do(t, http.MethodPost, "/api/cart/add", "tok-1", `{"item_id":"5","force_new":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	f := fields(t, rec)
	assert.Equal(t, "true", f["success"])
	assert.Equal(t, "2", f["quantity"])
	assert.Equal(t, `"21.00"`, f["total_price"])
	assert.Contains(t, f["cart"], `"line_total":"21.00"`)
	assert.Equal(t, int64(5), env.orders.gotItemID)
	assert.True(t, env.orders.gotForceNew)
}

func TestAddToCart_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		kind   string
	}{
		{
			name:   "missing item",
			body:   `{}`,
			status: http.StatusBadRequest,
			kind:   kindBadRequest,
		},
		{
			name:   "malformed body",
			body:   `{"item_id":`,
			status: http.StatusBadRequest,
			kind:   kindBadRequest,
		},
		{
			name:   "non numeric id",
			body:   `{"item_id":"abc"}`,
			status: http.StatusBadRequest,
			kind:   kindBadRequest,
		},
		{
			name:   "force_new not a boolean",
			body:   `{"item_id":5,"force_new":"garbage"}`,
			status: http.StatusBadRequest,
			kind:   kindBadRequest,
		},
		{
			name:   "force_new wrong type",
			body:   `{"item_id":5,"force_new":3}`,
			status: http.StatusBadRequest,
			kind:   kindBadRequest,
		},
		{
			name: "other restaurant",
			body: `{"item_id":5}`,
			err: &order.RestaurantConflictError{
				CurrentRestaurantID:   2,
				CurrentRestaurantName: "Ramen Bar",
				RequestedRestaurantID: 1,
			},
			status: http.StatusConflict,
			kind:   kindConflict,
		},
		{
			name:   "unavailable",
			body:   `{"item_id":5}`,
			err:    errors.Wrap(order.ErrItemUnavailable, "add"),
			status: http.StatusConflict,
			kind:   kindUnavailable,
		},
		{
			name:   "missing item in catalog",
			body:   `{"item_id":5}`,
			err:    errors.Wrap(catalog.ErrNotFound, "get menu item 5"),
			status: http.StatusNotFound,
			kind:   kindNotFound,
		},
		{
			name:   "storage failure",
			body:   `{"item_id":5}`,
			err:    errors.New("connection reset"),
			status: http.StatusInternalServerError,
			kind:   kindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			env.orders.err = tt.err

			rec := env.do(t, http.MethodPost, "/api/cart/add", "tok-1", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			f := fields(t, rec)
			assert.Equal(t, "false", f["success"])
			assert.Equal(t, `"`+tt.kind+`"`, f["error"])
			assert.NotContains(t, f["message"], "connection reset")
		})
	}
}

func TestAddToCart_ConflictCarriesRestaurant(t *testing.T) {
	env := newEnv(t)
	env.orders.err = &order.RestaurantConflictError{
		CurrentRestaurantID:   2,
		CurrentRestaurantName: "Ramen Bar",
		RequestedRestaurantID: 1,
	}

	rec := env.do(t, http.MethodPost, "/api/cart/add", "tok-1", `{"item_id":5}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	f := fields(t, rec)
	assert.Contains(t, f["message"], "Ramen Bar")
	assert.JSONEq(t, `{"id":2,"name":"Ramen Bar"}`, f["current_restaurant"])
	assert.Equal(t, "1", f["requested_restaurant_id"])
}

func TestGetCart_Empty(t *testing.T) {
	env := newEnv(t)
	env.orders.err = order.ErrNotFound

	rec := env.do(t, http.MethodGet, "/api/cart", "tok-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", fields(t, rec)["cart"])
}

func TestCartItems(t *testing.T) {
	env := newEnv(t)
	env.orders.quantities = map[int64]int{5: 2}
	env.orders.totals = map[int64]decimal.Decimal{5: decimal.RequireFromString("21")}

	rec := env.do(t, http.MethodGet, "/api/cart/items", "tok-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	f := fields(t, rec)
	assert.JSONEq(t, `{"5":2}`, f["quantities"])
	assert.JSONEq(t, `{"5":"21.00"}`, f["total_prices"])
}

func TestCheckout_EmptyCart(t *testing.T) {
	env := newEnv(t)
	env.orders.err = order.ErrEmptyCart

	rec := env.do(t, http.MethodPost, "/api/cart/checkout", "tok-1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, `"invalid_state"`, fields(t, rec)["error"])
}

func TestKitchenStatus(t *testing.T) {
	env := newEnv(t)
	o := sampleOrder()
	o.Status = order.StatusCancelled
	o.Cancellation = &order.Cancellation{Reason: order.CancelBusy, Notes: "rush hour"}
	env.orders.order = o

	rec := env.do(t, http.MethodPost, "/api/kitchen/orders/10/status", "tok-2",
		`{"action":"cancel","reason":"busy","notes":"rush hour"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, order.ActionCancel, env.orders.gotAction)
	require.NotNil(t, env.orders.gotCancel)
	assert.Equal(t, order.CancelBusy, env.orders.gotCancel.Reason)
	assert.Contains(t, fields(t, rec)["order"], `"reason":"busy"`)
}

func TestKitchenStatus_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		err    error
		status int
	}{
		{name: "bad id", path: "/api/kitchen/orders/x/status", body: `{"action":"accept"}`, status: http.StatusBadRequest},
		{name: "unknown action", path: "/api/kitchen/orders/10/status", body: `{"action":"teleport"}`, status: http.StatusBadRequest},
		{name: "unknown reason", path: "/api/kitchen/orders/10/status", body: `{"action":"cancel","reason":"bored"}`, status: http.StatusBadRequest},
		{
			name:   "foreign order",
			path:   "/api/kitchen/orders/10/status",
			body:   `{"action":"accept"}`,
			err:    auth.ErrUnauthorized,
			status: http.StatusForbidden,
		},
		{
			name:   "no restaurant",
			path:   "/api/kitchen/orders/10/status",
			body:   `{"action":"accept"}`,
			err:    auth.ErrNoManagedRestaurant,
			status: http.StatusForbidden,
		},
		{
			name:   "wrong state",
			path:   "/api/kitchen/orders/10/status",
			body:   `{"action":"complete"}`,
			err:    &order.InvalidStateError{OrderID: 10, From: order.StatusPaid, To: order.StatusCompleted},
			status: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			env.orders.err = tt.err
			rec := env.do(t, http.MethodPost, tt.path, "tok-2", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestKitchenOrders_Filter(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodGet, "/api/kitchen/orders", "tok-2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.KitchenFilter{ActiveOnly: true}, env.orders.gotFilter)

	rec = env.do(t, http.MethodGet, "/api/kitchen/orders?history=true", "tok-2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.KitchenFilter{}, env.orders.gotFilter)
	assert.Equal(t, "[]", fields(t, rec)["orders"])

	rec = env.do(t, http.MethodGet, "/api/kitchen/orders?history=maybe", "tok-2", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `"history must be a boolean"`, fields(t, rec)["message"])
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"true", "1", "on", "YES", " True "} {
		got, err := parseBool("flag", v)
		require.NoError(t, err, v)
		assert.True(t, got, v)
	}
	for _, v := range []string{"", "false", "0", "off", "no"} {
		got, err := parseBool("flag", v)
		require.NoError(t, err, v)
		assert.False(t, got, v)
	}

	_, err := parseBool("force_new", "garbage")
	var badReq *badRequestError
	require.ErrorAs(t, err, &badReq)
	assert.Equal(t, "force_new must be a boolean", badReq.Error())
}

func TestAddToCart_ForceNewString(t *testing.T) {
	env := newEnv(t)
	env.orders.order = sampleOrder()

	rec := env.do(t, http.MethodPost, "/api/cart/add", "tok-1", `{"item_id":5,"force_new":"true"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, env.orders.gotForceNew)

	rec = env.do(t, http.MethodPost, "/api/cart/add", "tok-1", `{"item_id":5,"force_new":"garbage"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `"force_new must be a boolean"`, fields(t, rec)["message"])
}

func TestAddMenuItem_Multipart(t *testing.T) {
	env := newEnv(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "Gnocchi"))
	require.NoError(t, mw.WriteField("price", "8.50"))
	require.NoError(t, mw.WriteField("available", "on"))
	fw, err := mw.CreateFormFile("image", "gnocchi.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/kitchen/menu", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer tok-2")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Gnocchi", env.menu.gotNew.Name)
	assert.True(t, decimal.RequireFromString("8.50").Equal(env.menu.gotNew.Price))
	assert.True(t, env.menu.gotNew.Available)
	require.NotNil(t, env.menu.gotNew.Image)
	assert.Equal(t, "gnocchi.png", env.menu.gotNew.Image.Filename)
	assert.Equal(t, "png-bytes", env.menu.gotImage)
	assert.Contains(t, fields(t, rec)["item"], `"image_url":"/media/abc.png"`)
}

func TestAddMenuItem_Rejects(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodPost, "/api/kitchen/menu", "tok-1", `{"name":"x","price":"1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code, "diners cannot edit menus")

	rec = env.do(t, http.MethodPost, "/api/kitchen/menu", "tok-2", `{"name":"x","price":"cheap"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.menu.err = &menu.InvalidFieldError{Field: "price", Reason: "must be greater than 0"}
	rec = env.do(t, http.MethodPost, "/api/kitchen/menu", "tok-2", `{"name":"x","price":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `"invalid price: must be greater than 0"`, fields(t, rec)["message"])
}

func TestEditMenuItem_JSONPatch(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodPost, "/api/kitchen/menu/7", "tok-2",
		`{"price":12.25,"category_id":null,"available":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	p := env.menu.gotPatch
	assert.Nil(t, p.Name)
	require.NotNil(t, p.Price)
	assert.True(t, decimal.RequireFromString("12.25").Equal(*p.Price))
	assert.True(t, p.ClearCategory)
	require.NotNil(t, p.Available)
	assert.False(t, *p.Available)
}

func TestLoginLogout(t *testing.T) {
	env := newEnv(t)
	env.accounts.user = &auth.User{ID: 1, Email: "diner@example.com"}

	rec := env.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"diner@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, "tok-1", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, `"tok-1"`, fields(t, rec)["token"])

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookies[0])
	me := httptest.NewRecorder()
	env.server.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, fields(t, me)["user"], `"email":"diner@example.com"`)

	rec = env.do(t, http.MethodPost, "/api/auth/logout", "tok-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"tok-1"}, env.sessions.revoked)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestLogin_Errors(t *testing.T) {
	env := newEnv(t)
	env.accounts.err = auth.ErrInvalidCredentials

	rec := env.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"a@b.c","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `"invalid_credentials"`, fields(t, rec)["error"])

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"a@b.c"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `"password is required"`, fields(t, rec)["message"])
}

func TestRegister(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "",
		`{"email":"chef@example.com","password":"longenough","confirmation":"longenough","kitchen":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, fields(t, rec)["user"], `"is_kitchen":true`)

	rec = env.do(t, http.MethodPost, "/api/auth/register", "",
		`{"email":"not-an-email","password":"longenough","confirmation":"longenough"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.accounts.err = auth.ErrEmailTaken
	rec = env.do(t, http.MethodPost, "/api/auth/register", "",
		`{"email":"chef@example.com","password":"longenough","confirmation":"longenough"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `"email address already taken"`, fields(t, rec)["message"])
}
