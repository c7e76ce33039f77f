package order

import (
	"context"
	"fmt"

	"github.com/Kiongsoh/CS50W/internal/domain/auth"
)

// CancelDetails carries the reason and notes of a kitchen cancellation.
type CancelDetails struct {
	Reason CancelReason
	Notes  string
}

// KitchenFilter selects which orders a kitchen listing contains.
type KitchenFilter struct {
	// IncludeInCart also lists open carts.
	IncludeInCart bool
	// ActiveOnly restricts the listing to paid and accepted orders.
	ActiveOnly bool
}

func (f KitchenFilter) statuses() []Status {
	switch {
	case f.ActiveOnly:
		return activeStatuses
	case f.IncludeInCart:
		return append([]Status{StatusInCart}, nonCartStatuses...)
	default:
		return nonCartStatuses
	}
}

// Confirm checks out one of the customer's carts and marks it paid.
func (s *Service) Confirm(ctx context.Context, customer auth.Principal, orderID int64) (*Order, error) {
	var (
		result *Order
		event  Event
	)
	err := s.orders.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.GetForUpdate(ctx, orderID)
		if err != nil {
			return fmt.Errorf("get order %d: %w", orderID, err)
		}
		if o.CustomerID != customer.UserID {
			return auth.ErrUnauthorized
		}
		event, err = s.confirm(ctx, tx, o)
		if err != nil {
			return err
		}
		result = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, event)
	return result, nil
}

// ConfirmCart checks out the customer's open cart.
func (s *Service) ConfirmCart(ctx context.Context, customer auth.Principal) (*Order, error) {
	var (
		result *Order
		event  Event
	)
	err := s.orders.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockCustomer(ctx, customer.UserID); err != nil {
			return fmt.Errorf("lock customer %d: %w", customer.UserID, err)
		}
		o, err := tx.OpenOrder(ctx, customer.UserID)
		if err != nil {
			return fmt.Errorf("get open order: %w", err)
		}
		event, err = s.confirm(ctx, tx, o)
		if err != nil {
			return err
		}
		result = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, event)
	return result, nil
}

func (s *Service) confirm(ctx context.Context, tx Tx, o *Order) (Event, error) {
	if o.Status != StatusInCart {
		return Event{}, &InvalidStateError{OrderID: o.ID, From: o.Status, To: StatusPaid}
	}

	lines, err := tx.Lines(ctx, o.ID)
	if err != nil {
		return Event{}, fmt.Errorf("get lines of order %d: %w", o.ID, err)
	}
	if len(lines) == 0 {
		return Event{}, ErrEmptyCart
	}
	if sum := sumLines(lines); !sum.Equal(o.Total) {
		return Event{}, &InconsistentTotalError{OrderID: o.ID, Expected: o.Total, Computed: sum}
	}
	o.Items = lines

	return s.transition(ctx, tx, o, StatusPaid)
}

// KitchenTransition applies a kitchen action to an order of the actor's
// restaurant. Cancelling records the given details.
func (s *Service) KitchenTransition(
	ctx context.Context,
	actor auth.Principal,
	orderID int64,
	action Action,
	cancel *CancelDetails,
) (*Order, error) {
	restaurantID, err := actor.Kitchen()
	if err != nil {
		return nil, err
	}
	to, err := action.Target()
	if err != nil {
		return nil, err
	}

	var details CancelDetails
	if to == StatusCancelled {
		if cancel != nil {
			details = *cancel
		}
		if details.Reason == "" {
			details.Reason = CancelOthers
		}
		if !details.Reason.Valid() {
			return nil, ErrInvalidReason
		}
	}

	var (
		result *Order
		event  Event
	)
	err = s.orders.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.GetForUpdate(ctx, orderID)
		if err != nil {
			return fmt.Errorf("get order %d: %w", orderID, err)
		}
		if o.RestaurantID != restaurantID {
			return auth.ErrUnauthorized
		}

		event, err = s.transition(ctx, tx, o, to)
		if err != nil {
			return err
		}

		if to == StatusCancelled {
			c := &Cancellation{
				OrderID:   o.ID,
				Reason:    details.Reason,
				Notes:     details.Notes,
				CreatedAt: event.At,
			}
			if err := tx.AddCancellation(ctx, c); err != nil {
				return fmt.Errorf("record cancellation of order %d: %w", o.ID, err)
			}
			o.Cancellation = c
		}

		if o.Items, err = tx.Lines(ctx, o.ID); err != nil {
			return fmt.Errorf("get lines of order %d: %w", o.ID, err)
		}
		result = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, event)
	return result, nil
}

// ListForKitchen returns orders of the actor's restaurant, newest first.
func (s *Service) ListForKitchen(ctx context.Context, actor auth.Principal, filter KitchenFilter) ([]Order, error) {
	restaurantID, err := actor.Kitchen()
	if err != nil {
		return nil, err
	}
	list, err := s.orders.List(ctx, Query{
		RestaurantID: restaurantID,
		Statuses:     filter.statuses(),
	})
	if err != nil {
		return nil, fmt.Errorf("list orders of restaurant %d: %w", restaurantID, err)
	}
	return list, nil
}

// ListHistory returns the customer's checked-out orders, newest first.
func (s *Service) ListHistory(ctx context.Context, customer auth.Principal) ([]Order, error) {
	list, err := s.orders.List(ctx, Query{
		CustomerID: customer.UserID,
		Statuses:   nonCartStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("list orders of customer %d: %w", customer.UserID, err)
	}
	return list, nil
}
