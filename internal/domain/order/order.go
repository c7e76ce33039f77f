package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusInCart Status = "incart"
	// StatusCheckout is recognised when reading legacy rows but never written.
	StatusCheckout  Status = "checkout"
	StatusPaid      Status = "paid"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// transitions lists the states reachable from each state.
var transitions = map[Status][]Status{
	StatusInCart:   {StatusPaid, StatusCancelled},
	StatusCheckout: {StatusPaid, StatusCancelled},
	StatusPaid:     {StatusAccepted, StatusCancelled},
	StatusAccepted: {StatusCompleted, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusInCart, StatusCheckout, StatusPaid, StatusAccepted, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether an order in state s may move to state to.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// nonCartStatuses are every status except incart, in lifecycle order.
var nonCartStatuses = []Status{
	StatusCheckout,
	StatusPaid,
	StatusAccepted,
	StatusCompleted,
	StatusCancelled,
}

// activeStatuses are the states a kitchen still has to act on.
var activeStatuses = []Status{StatusPaid, StatusAccepted}

// Action is a kitchen command applied to an order.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
)

// Target returns the status an action moves an order to.
func (a Action) Target() (Status, error) {
	switch a {
	case ActionAccept:
		return StatusAccepted, nil
	case ActionCancel:
		return StatusCancelled, nil
	case ActionComplete:
		return StatusCompleted, nil
	default:
		return "", ErrUnknownAction
	}
}

// CancelReason is the machine-readable cause of a cancellation.
type CancelReason string

const (
	CancelUnavailable CancelReason = "unavailable"
	CancelCustomer    CancelReason = "customer"
	CancelClosed      CancelReason = "closed"
	CancelBusy        CancelReason = "busy"
	CancelOthers      CancelReason = "others"
)

// Valid reports whether r is a known reason.
func (r CancelReason) Valid() bool {
	switch r {
	case CancelUnavailable, CancelCustomer, CancelClosed, CancelBusy, CancelOthers:
		return true
	}
	return false
}

// Cancellation records why a kitchen cancelled an order.
type Cancellation struct {
	ID        int64
	OrderID   int64
	Reason    CancelReason
	Notes     string
	CreatedAt time.Time
}

// Order is a customer's order at one restaurant. While its status is incart
// it acts as the customer's shopping cart.
type Order struct {
	ID             int64
	CustomerID     int64
	RestaurantID   int64
	RestaurantName string
	Status         Status
	Total          decimal.Decimal
	Items          []Item
	Cancellation   *Cancellation
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Quantity returns the number of units across all lines.
func (o *Order) Quantity() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// Sum recomputes the order total from its lines.
func (o *Order) Sum() decimal.Decimal {
	return sumLines(o.Items)
}

func sumLines(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// Item is one menu item's line within an order.
type Item struct {
	ID         int64
	OrderID    int64
	MenuItemID int64
	Name       string
	// UnitPrice is the menu price at the moment the line was created.
	UnitPrice    decimal.Decimal
	Quantity     int
	Instructions string
}

// LineTotal returns UnitPrice × Quantity.
func (it Item) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Query filters order listings. Zero fields do not filter.
type Query struct {
	CustomerID   int64
	RestaurantID int64
	Statuses     []Status
}

// Repository defines persistence operations for orders.
type Repository interface {
	// InTx runs fn in a single transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// OpenOrder returns the customer's incart order with its lines.
	OpenOrder(ctx context.Context, customerID int64) (*Order, error)
	// List returns matching orders with their lines, newest first.
	List(ctx context.Context, q Query) ([]Order, error)
}

// Tx is the set of order mutations available inside a transaction.
type Tx interface {
	// LockCustomer serializes cart mutations of one customer.
	LockCustomer(ctx context.Context, customerID int64) error
	// OpenOrder returns the customer's incart order without lines, locked.
	OpenOrder(ctx context.Context, customerID int64) (*Order, error)
	// GetForUpdate returns an order without lines, locked.
	GetForUpdate(ctx context.Context, id int64) (*Order, error)
	Create(ctx context.Context, o *Order) error
	// Delete removes an order together with its lines and cancellation.
	Delete(ctx context.Context, id int64) error

	Line(ctx context.Context, orderID, menuItemID int64) (*Item, error)
	Lines(ctx context.Context, orderID int64) ([]Item, error)
	AddLine(ctx context.Context, it *Item) error
	SetLineQuantity(ctx context.Context, lineID int64, quantity int) error
	SetLineInstructions(ctx context.Context, lineID int64, instructions string) error
	DeleteLine(ctx context.Context, lineID int64) error

	SetTotal(ctx context.Context, orderID int64, total decimal.Decimal) error
	SetStatus(ctx context.Context, orderID int64, status Status) error
	AddCancellation(ctx context.Context, c *Cancellation) error
}

// Event describes a committed status change.
type Event struct {
	OrderID      int64
	CustomerID   int64
	RestaurantID int64
	From         Status
	To           Status
	Total        decimal.Decimal
	At           time.Time
}

// Notifier publishes order events to interested parties.
type Notifier interface {
	OrderChanged(ctx context.Context, e Event) error
}
