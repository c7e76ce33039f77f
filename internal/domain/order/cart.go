package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/Kiongsoh/CS50W/internal/domain/auth"
	"github.com/Kiongsoh/CS50W/internal/domain/catalog"
)

// AddItem puts one unit of a menu item into the customer's cart, creating the
// cart on first use. When the cart belongs to another restaurant the call
// fails with *RestaurantConflictError unless forceNew discards the old cart.
func (s *Service) AddItem(ctx context.Context, customer auth.Principal, menuItemID int64, forceNew bool) (*Order, error) {
	item, err := s.catalog.GetMenuItem(ctx, menuItemID)
	if err != nil {
		return nil, fmt.Errorf("get menu item %d: %w", menuItemID, err)
	}
	if item.Archived {
		return nil, fmt.Errorf("get menu item %d: %w", menuItemID, catalog.ErrNotFound)
	}
	if !item.Available {
		return nil, ErrItemUnavailable
	}

	var result *Order
	err = s.orders.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockCustomer(ctx, customer.UserID); err != nil {
			return fmt.Errorf("lock customer %d: %w", customer.UserID, err)
		}

		o, err := tx.OpenOrder(ctx, customer.UserID)
		switch {
		case errors.Is(err, ErrNotFound):
			o = nil
		case err != nil:
			return fmt.Errorf("get open order: %w", err)
		}

		if o != nil && o.RestaurantID != item.RestaurantID {
			if !forceNew {
				return &RestaurantConflictError{
					CurrentRestaurantID:   o.RestaurantID,
					CurrentRestaurantName: o.RestaurantName,
					RequestedRestaurantID: item.RestaurantID,
				}
			}
			if err := tx.Delete(ctx, o.ID); err != nil {
				return fmt.Errorf("discard order %d: %w", o.ID, err)
			}
			o = nil
		}

		if o == nil {
			o = &Order{
				CustomerID:     customer.UserID,
				RestaurantID:   item.RestaurantID,
				RestaurantName: item.RestaurantName,
				Status:         StatusInCart,
				Total:          decimal.Zero,
			}
			if err := tx.Create(ctx, o); err != nil {
				return fmt.Errorf("create order: %w", err)
			}
		}

		unit, err := s.incrementLine(ctx, tx, o.ID, item)
		if err != nil {
			return err
		}
		if err := s.settle(ctx, tx, o, unit); err != nil {
			return err
		}
		result = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// incrementLine finds or creates the line for item and returns the unit price
// that was added.
func (s *Service) incrementLine(ctx context.Context, tx Tx, orderID int64, item *catalog.MenuItem) (decimal.Decimal, error) {
	line, err := tx.Line(ctx, orderID, item.ID)
	switch {
	case errors.Is(err, ErrLineNotFound):
		line = &Item{
			OrderID:    orderID,
			MenuItemID: item.ID,
			Name:       item.Name,
			UnitPrice:  item.Price,
			Quantity:   1,
		}
		if err := tx.AddLine(ctx, line); err != nil {
			return decimal.Zero, fmt.Errorf("add line for item %d: %w", item.ID, err)
		}
		return line.UnitPrice, nil
	case err != nil:
		return decimal.Zero, fmt.Errorf("get line for item %d: %w", item.ID, err)
	}

	if err := tx.SetLineQuantity(ctx, line.ID, line.Quantity+1); err != nil {
		return decimal.Zero, fmt.Errorf("increment line %d: %w", line.ID, err)
	}
	return line.UnitPrice, nil
}

// RemoveItem takes one unit of a menu item out of the customer's cart and
// deletes the line when its quantity reaches zero.
func (s *Service) RemoveItem(ctx context.Context, customer auth.Principal, menuItemID int64) (*Order, error) {
	var result *Order
	err := s.orders.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockCustomer(ctx, customer.UserID); err != nil {
			return fmt.Errorf("lock customer %d: %w", customer.UserID, err)
		}

		o, err := tx.OpenOrder(ctx, customer.UserID)
		if err != nil {
			return fmt.Errorf("get open order: %w", err)
		}

		line, err := tx.Line(ctx, o.ID, menuItemID)
		if err != nil {
			return fmt.Errorf("get line for item %d: %w", menuItemID, err)
		}

		if line.Quantity > 1 {
			err = tx.SetLineQuantity(ctx, line.ID, line.Quantity-1)
		} else {
			err = tx.DeleteLine(ctx, line.ID)
		}
		if err != nil {
			return fmt.Errorf("decrement line %d: %w", line.ID, err)
		}

		if err := s.settle(ctx, tx, o, line.UnitPrice.Neg()); err != nil {
			return err
		}
		result = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetInstructions replaces the special instructions of a cart line.
func (s *Service) SetInstructions(ctx context.Context, customer auth.Principal, menuItemID int64, instructions string) (*Order, error) {
	var result *Order
	err := s.orders.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockCustomer(ctx, customer.UserID); err != nil {
			return fmt.Errorf("lock customer %d: %w", customer.UserID, err)
		}
		o, err := tx.OpenOrder(ctx, customer.UserID)
		if err != nil {
			return fmt.Errorf("get open order: %w", err)
		}
		line, err := tx.Line(ctx, o.ID, menuItemID)
		if err != nil {
			return fmt.Errorf("get line for item %d: %w", menuItemID, err)
		}
		if err := tx.SetLineInstructions(ctx, line.ID, instructions); err != nil {
			return fmt.Errorf("set instructions of line %d: %w", line.ID, err)
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
	return result, nil
}

// Cart returns the customer's open order with its lines.
func (s *Service) Cart(ctx context.Context, customer auth.Principal) (*Order, error) {
	o, err := s.orders.OpenOrder(ctx, customer.UserID)
	if err != nil {
		return nil, fmt.Errorf("get open order: %w", err)
	}
	return o, nil
}

// CurrentQuantity returns the unit count and total of the customer's cart,
// or zero values when there is none.
func (s *Service) CurrentQuantity(ctx context.Context, customer auth.Principal) (int, decimal.Decimal, error) {
	o, err := s.openOrNil(ctx, customer)
	if err != nil || o == nil {
		return 0, decimal.Zero, err
	}
	return o.Quantity(), o.Total, nil
}

// ItemQuantities returns the quantity of each menu item in the customer's cart.
func (s *Service) ItemQuantities(ctx context.Context, customer auth.Principal) (map[int64]int, error) {
	o, err := s.openOrNil(ctx, customer)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]int)
	if o == nil {
		return out, nil
	}
	for _, it := range o.Items {
		out[it.MenuItemID] = it.Quantity
	}
	return out, nil
}

// ItemTotals returns the line total of each menu item in the customer's cart.
func (s *Service) ItemTotals(ctx context.Context, customer auth.Principal) (map[int64]decimal.Decimal, error) {
	o, err := s.openOrNil(ctx, customer)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]decimal.Decimal)
	if o == nil {
		return out, nil
	}
	for _, it := range o.Items {
		out[it.MenuItemID] = it.LineTotal()
	}
	return out, nil
}

func (s *Service) openOrNil(ctx context.Context, customer auth.Principal) (*Order, error) {
	o, err := s.orders.OpenOrder(ctx, customer.UserID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get open order: %w", err)
	}
	return o, nil
}
