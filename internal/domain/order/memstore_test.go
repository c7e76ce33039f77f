package order

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/Kiongsoh/CS50W/internal/domain/catalog"
)

// --- In-memory transactional store ---

// memStore serializes transactions with a mutex and restores a snapshot when
// the transaction function fails.
type memStore struct {
	mu          sync.Mutex
	orders      map[int64]Order
	lines       map[int64]Item
	cancels     []Cancellation
	restaurants map[int64]string
	nextID      int64

	// failOn makes the named Tx method return errInjected.
	failOn string
}

var errInjected = errors.New("injected failure")

func newMemStore(restaurants map[int64]string) *memStore {
	return &memStore{
		orders:      make(map[int64]Order),
		lines:       make(map[int64]Item),
		restaurants: restaurants,
	}
}

type memSnapshot struct {
	orders  map[int64]Order
	lines   map[int64]Item
	cancels []Cancellation
	nextID  int64
}

func (m *memStore) snapshot() memSnapshot {
	return memSnapshot{
		orders:  maps.Clone(m.orders),
		lines:   maps.Clone(m.lines),
		cancels: slices.Clone(m.cancels),
		nextID:  m.nextID,
	}
}

func (m *memStore) restore(s memSnapshot) {
	m.orders = s.orders
	m.lines = s.lines
	m.cancels = s.cancels
	m.nextID = s.nextID
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(ctx, &memTx{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) OpenOrder(_ context.Context, customerID int64) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.findOpen(customerID)
	if o == nil {
		return nil, ErrNotFound
	}
	o.Items = m.linesOf(o.ID)
	return o, nil
}

func (m *memStore) List(_ context.Context, q Query) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Order
	for _, o := range m.orders {
		if q.CustomerID != 0 && o.CustomerID != q.CustomerID {
			continue
		}
		if q.RestaurantID != 0 && o.RestaurantID != q.RestaurantID {
			continue
		}
		if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, o.Status) {
			continue
		}
		o.Items = m.linesOf(o.ID)
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b Order) int {
		return int(b.ID - a.ID)
	})
	return out, nil
}

func (m *memStore) findOpen(customerID int64) *Order {
	for _, o := range m.orders {
		if o.CustomerID == customerID && o.Status == StatusInCart {
			return &o
		}
	}
	return nil
}

func (m *memStore) linesOf(orderID int64) []Item {
	var out []Item
	for _, it := range m.lines {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	slices.SortFunc(out, func(a, b Item) int {
		return int(a.ID - b.ID)
	})
	return out
}

func (m *memStore) openCount(customerID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, o := range m.orders {
		if o.CustomerID == customerID && o.Status == StatusInCart {
			n++
		}
	}
	return n
}

func (m *memStore) get(id int64) (Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if ok {
		o.Items = m.linesOf(id)
	}
	return o, ok
}

type memTx struct {
	m *memStore
}

func (t *memTx) fail(method string) error {
	if t.m.failOn == method {
		return errInjected
	}
	return nil
}

func (t *memTx) LockCustomer(_ context.Context, _ int64) error {
	return t.fail("LockCustomer")
}

func (t *memTx) OpenOrder(_ context.Context, customerID int64) (*Order, error) {
	if err := t.fail("OpenOrder"); err != nil {
		return nil, err
	}
	o := t.m.findOpen(customerID)
	if o == nil {
		return nil, ErrNotFound
	}
	return o, nil
}

func (t *memTx) GetForUpdate(_ context.Context, id int64) (*Order, error) {
	if err := t.fail("GetForUpdate"); err != nil {
		return nil, err
	}
	o, ok := t.m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (t *memTx) Create(_ context.Context, o *Order) error {
	if err := t.fail("Create"); err != nil {
		return err
	}
	if t.m.findOpen(o.CustomerID) != nil && o.Status == StatusInCart {
		return errors.New("duplicate open order")
	}
	t.m.nextID++
	o.ID = t.m.nextID
	o.RestaurantName = t.m.restaurants[o.RestaurantID]
	o.CreatedAt = time.Unix(o.ID, 0)
	o.UpdatedAt = o.CreatedAt
	stored := *o
	stored.Items = nil
	t.m.orders[o.ID] = stored
	return nil
}

func (t *memTx) Delete(_ context.Context, id int64) error {
	if err := t.fail("Delete"); err != nil {
		return err
	}
	for lineID, it := range t.m.lines {
		if it.OrderID == id {
			delete(t.m.lines, lineID)
		}
	}
	t.m.cancels = slices.DeleteFunc(t.m.cancels, func(c Cancellation) bool {
		return c.OrderID == id
	})
	delete(t.m.orders, id)
	return nil
}

func (t *memTx) Line(_ context.Context, orderID, menuItemID int64) (*Item, error) {
	if err := t.fail("Line"); err != nil {
		return nil, err
	}
	for _, it := range t.m.lines {
		if it.OrderID == orderID && it.MenuItemID == menuItemID {
			return &it, nil
		}
	}
	return nil, ErrLineNotFound
}

func (t *memTx) Lines(_ context.Context, orderID int64) ([]Item, error) {
	if err := t.fail("Lines"); err != nil {
		return nil, err
	}
	return t.m.linesOf(orderID), nil
}

func (t *memTx) AddLine(_ context.Context, it *Item) error {
	if err := t.fail("AddLine"); err != nil {
		return err
	}
	t.m.nextID++
	it.ID = t.m.nextID
	t.m.lines[it.ID] = *it
	return nil
}

func (t *memTx) SetLineQuantity(_ context.Context, lineID int64, quantity int) error {
	if err := t.fail("SetLineQuantity"); err != nil {
		return err
	}
	it := t.m.lines[lineID]
	it.Quantity = quantity
	t.m.lines[lineID] = it
	return nil
}

func (t *memTx) SetLineInstructions(_ context.Context, lineID int64, instructions string) error {
	if err := t.fail("SetLineInstructions"); err != nil {
		return err
	}
	it := t.m.lines[lineID]
	it.Instructions = instructions
	t.m.lines[lineID] = it
	return nil
}

func (t *memTx) DeleteLine(_ context.Context, lineID int64) error {
	if err := t.fail("DeleteLine"); err != nil {
		return err
	}
	delete(t.m.lines, lineID)
	return nil
}

func (t *memTx) SetTotal(_ context.Context, orderID int64, total decimal.Decimal) error {
	if err := t.fail("SetTotal"); err != nil {
		return err
	}
	o := t.m.orders[orderID]
	o.Total = total
	t.m.orders[orderID] = o
	return nil
}

func (t *memTx) SetStatus(_ context.Context, orderID int64, status Status) error {
	if err := t.fail("SetStatus"); err != nil {
		return err
	}
	o := t.m.orders[orderID]
	o.Status = status
	t.m.orders[orderID] = o
	return nil
}

func (t *memTx) AddCancellation(_ context.Context, c *Cancellation) error {
	if err := t.fail("AddCancellation"); err != nil {
		return err
	}
	t.m.nextID++
	c.ID = t.m.nextID
	t.m.cancels = append(t.m.cancels, *c)
	return nil
}

// --- Catalog and notifier mocks ---

type mockCatalog struct {
	items map[int64]*catalog.MenuItem
}

func (m *mockCatalog) ListRestaurants(_ context.Context) ([]catalog.Restaurant, error) {
	return nil, nil
}

func (m *mockCatalog) GetRestaurant(_ context.Context, id int64) (*catalog.Restaurant, error) {
	return &catalog.Restaurant{ID: id}, nil
}

func (m *mockCatalog) ListMenu(_ context.Context, _ int64) ([]catalog.MenuItem, error) {
	return nil, nil
}

func (m *mockCatalog) GetMenuItem(_ context.Context, id int64) (*catalog.MenuItem, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *mockCatalog) GetCategory(_ context.Context, _ int64) (*catalog.Category, error) {
	return nil, catalog.ErrNotFound
}

type mockNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *mockNotifier) OrderChanged(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}
