package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Kiongsoh/CS50W/internal/domain/catalog"
)

// Sentinel errors for order operations.
var (
	ErrNotFound        = errors.New("order not found")
	ErrLineNotFound    = errors.New("item not in cart")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrItemUnavailable = errors.New("item is currently unavailable")
	ErrUnknownAction   = errors.New("unknown action")
	ErrInvalidReason   = errors.New("unknown cancellation reason")
)

// RestaurantConflictError is returned when a customer adds an item from a
// restaurant other than the one their cart belongs to.
type RestaurantConflictError struct {
	CurrentRestaurantID   int64
	CurrentRestaurantName string
	RequestedRestaurantID int64
}

func (e *RestaurantConflictError) Error() string {
	return fmt.Sprintf(
		"your cart contains items from %s, do you want to discard the selection and add this item instead?",
		e.CurrentRestaurantName,
	)
}

// InvalidStateError indicates a lifecycle transition not permitted from the
// order's current status.
type InvalidStateError struct {
	OrderID int64
	From    Status
	To      Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("order %d cannot move from %s to %s", e.OrderID, e.From, e.To)
}

// InconsistentTotalError indicates the stored total diverged from the sum of
// the order lines.
type InconsistentTotalError struct {
	OrderID  int64
	Expected decimal.Decimal
	Computed decimal.Decimal
}

func (e *InconsistentTotalError) Error() string {
	return fmt.Sprintf("order %d total %s does not match line sum %s",
		e.OrderID, e.Expected.StringFixed(2), e.Computed.StringFixed(2))
}

// Service implements cart aggregation and the order lifecycle.
type Service struct {
	orders   Repository
	catalog  catalog.Reader
	notifier Notifier
	now      func() time.Time
}

// NewService creates an order Service with the required dependencies.
// A nil notifier disables events.
func NewService(orders Repository, menu catalog.Reader, notifier Notifier) *Service {
	return &Service{
		orders:   orders,
		catalog:  menu,
		notifier: notifier,
		now:      time.Now,
	}
}

// settle applies delta to the stored total and verifies the result against the
// sum of the order lines. It refreshes o.Items and o.Total on success.
func (s *Service) settle(ctx context.Context, tx Tx, o *Order, delta decimal.Decimal) error {
	lines, err := tx.Lines(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("get lines of order %d: %w", o.ID, err)
	}

	expected := o.Total.Add(delta)
	computed := sumLines(lines)
	if expected.IsNegative() || !expected.Equal(computed) {
		return &InconsistentTotalError{OrderID: o.ID, Expected: expected, Computed: computed}
	}

	if err := tx.SetTotal(ctx, o.ID, computed); err != nil {
		return fmt.Errorf("set total of order %d: %w", o.ID, err)
	}
	o.Total = computed
	o.Items = lines
	return nil
}

// transition moves o to the given status and returns the event to publish
// once the transaction commits.
func (s *Service) transition(ctx context.Context, tx Tx, o *Order, to Status) (Event, error) {
	if !o.Status.CanTransition(to) {
		return Event{}, &InvalidStateError{OrderID: o.ID, From: o.Status, To: to}
	}
	if err := tx.SetStatus(ctx, o.ID, to); err != nil {
		return Event{}, fmt.Errorf("set status of order %d: %w", o.ID, err)
	}

	now := s.now()
	e := Event{
		OrderID:      o.ID,
		CustomerID:   o.CustomerID,
		RestaurantID: o.RestaurantID,
		From:         o.Status,
		To:           to,
		Total:        o.Total,
		At:           now,
	}
	o.Status = to
	o.UpdatedAt = now
	return e, nil
}

// notify publishes a committed event. Failures are logged only.
func (s *Service) notify(ctx context.Context, e Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.OrderChanged(ctx, e); err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.Int64("order_id", e.OrderID),
			zap.String("status", string(e.To)),
			zap.Error(err),
		)
	}
}
