package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Kiongsoh/CS50W/internal/domain/order"
)

const (
	orderColumns = `o.id, o.customer_id, o.restaurant_id, r.name, o.status, o.total_price,
		o.created_at, o.updated_at, c.id, c.reason, c.notes, c.created_at`

	orderFrom = ` FROM orders o
		JOIN restaurants r ON r.id = o.restaurant_id
		LEFT JOIN cancellations c ON c.order_id = o.id`

	openOrderSQL = `SELECT ` + orderColumns + orderFrom + `
		WHERE o.customer_id = $1 AND o.status = 'incart'`

	openOrderForUpdateSQL = openOrderSQL + ` FOR UPDATE OF o`

	getOrderForUpdateSQL = `SELECT ` + orderColumns + orderFrom + `
		WHERE o.id = $1 FOR UPDATE OF o`

	listOrdersSQL = `SELECT ` + orderColumns + orderFrom + `
		WHERE ($1::bigint = 0 OR o.customer_id = $1)
		  AND ($2::bigint = 0 OR o.restaurant_id = $2)
		  AND (cardinality($3::text[]) = 0 OR o.status = ANY($3))
		ORDER BY o.created_at DESC, o.id DESC`

	lockCustomerSQL = `SELECT id FROM users WHERE id = $1 FOR UPDATE`

	createOrderSQL = `INSERT INTO orders (customer_id, restaurant_id, status, total_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	deleteOrderLinesSQL        = `DELETE FROM order_items WHERE order_id = $1`
	deleteOrderCancellationSQL = `DELETE FROM cancellations WHERE order_id = $1`
	deleteOrderSQL             = `DELETE FROM orders WHERE id = $1`

	lineColumns = `li.id, li.order_id, li.menu_item_id, m.name, li.unit_price, li.quantity, li.instructions`

	lineFrom = ` FROM order_items li JOIN menu_items m ON m.id = li.menu_item_id`

	getLineSQL = `SELECT ` + lineColumns + lineFrom + `
		WHERE li.order_id = $1 AND li.menu_item_id = $2 FOR UPDATE OF li`

	listLinesSQL = `SELECT ` + lineColumns + lineFrom + `
		WHERE li.order_id = ANY($1) ORDER BY li.order_id, li.id`

	addLineSQL = `INSERT INTO order_items (order_id, menu_item_id, unit_price, quantity, instructions)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	setLineQuantitySQL     = `UPDATE order_items SET quantity = $2 WHERE id = $1`
	setLineInstructionsSQL = `UPDATE order_items SET instructions = $2 WHERE id = $1`
	deleteLineSQL          = `DELETE FROM order_items WHERE id = $1`

	setTotalSQL  = `UPDATE orders SET total_price = $2, updated_at = now() WHERE id = $1`
	setStatusSQL = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`

	addCancellationSQL = `INSERT INTO cancellations (order_id, reason, notes, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
)

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// InTx runs fn in a read-committed transaction.
func (r *OrderRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &orderTx{tx: tx})
	})
}

// OpenOrder returns the customer's incart order with its lines.
func (r *OrderRepository) OpenOrder(ctx context.Context, customerID int64) (*order.Order, error) {
	o, err := getOrder(ctx, r.pool, openOrderSQL, customerID)
	if err != nil {
		return nil, err
	}
	lines, err := listLines(ctx, r.pool, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = lines[o.ID]
	return o, nil
}

// List returns matching orders with their lines, newest first.
func (r *OrderRepository) List(ctx context.Context, q order.Query) ([]order.Order, error) {
	statuses := make([]string, len(q.Statuses))
	for i, s := range q.Statuses {
		statuses[i] = string(s)
	}

	rows, err := r.pool.Query(ctx, listOrdersSQL, q.CustomerID, q.RestaurantID, statuses)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	lines, err := listLines(ctx, r.pool, ids...)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = lines[orders[i].ID]
	}
	return orders, nil
}

var _ order.Tx = (*orderTx)(nil)

type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) LockCustomer(ctx context.Context, customerID int64) error {
	if _, err := t.tx.Exec(ctx, lockCustomerSQL, customerID); err != nil {
		return fmt.Errorf("locking customer %d: %w", customerID, err)
	}
	return nil
}

func (t *orderTx) OpenOrder(ctx context.Context, customerID int64) (*order.Order, error) {
	return getOrder(ctx, t.tx, openOrderForUpdateSQL, customerID)
}

func (t *orderTx) GetForUpdate(ctx context.Context, id int64) (*order.Order, error) {
	return getOrder(ctx, t.tx, getOrderForUpdateSQL, id)
}

func (t *orderTx) Create(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRow(ctx, createOrderSQL,
		o.CustomerID, o.RestaurantID, string(o.Status), o.Total,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating order: %w", err)
	}
	return nil
}

func (t *orderTx) Delete(ctx context.Context, id int64) error {
	for _, q := range []string{deleteOrderLinesSQL, deleteOrderCancellationSQL, deleteOrderSQL} {
		if _, err := t.tx.Exec(ctx, q, id); err != nil {
			return fmt.Errorf("deleting order %d: %w", id, err)
		}
	}
	return nil
}

func (t *orderTx) Line(ctx context.Context, orderID, menuItemID int64) (*order.Item, error) {
	rows, err := t.tx.Query(ctx, getLineSQL, orderID, menuItemID)
	if err != nil {
		return nil, fmt.Errorf("getting line of order %d: %w", orderID, err)
	}
	it, err := pgx.CollectExactlyOneRow(rows, scanLine)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrLineNotFound
		}
		return nil, fmt.Errorf("getting line of order %d: %w", orderID, err)
	}
	return &it, nil
}

func (t *orderTx) Lines(ctx context.Context, orderID int64) ([]order.Item, error) {
	lines, err := listLines(ctx, t.tx, orderID)
	if err != nil {
		return nil, err
	}
	return lines[orderID], nil
}

func (t *orderTx) AddLine(ctx context.Context, it *order.Item) error {
	err := t.tx.QueryRow(ctx, addLineSQL,
		it.OrderID, it.MenuItemID, it.UnitPrice, it.Quantity, it.Instructions,
	).Scan(&it.ID)
	if err != nil {
		return fmt.Errorf("adding line to order %d: %w", it.OrderID, err)
	}
	return nil
}

func (t *orderTx) SetLineQuantity(ctx context.Context, lineID int64, quantity int) error {
	return t.exec(ctx, setLineQuantitySQL, lineID, quantity)
}

func (t *orderTx) SetLineInstructions(ctx context.Context, lineID int64, instructions string) error {
	return t.exec(ctx, setLineInstructionsSQL, lineID, instructions)
}

func (t *orderTx) DeleteLine(ctx context.Context, lineID int64) error {
	return t.exec(ctx, deleteLineSQL, lineID)
}

func (t *orderTx) SetTotal(ctx context.Context, orderID int64, total decimal.Decimal) error {
	return t.exec(ctx, setTotalSQL, orderID, total)
}

func (t *orderTx) SetStatus(ctx context.Context, orderID int64, status order.Status) error {
	return t.exec(ctx, setStatusSQL, orderID, string(status))
}

func (t *orderTx) AddCancellation(ctx context.Context, c *order.Cancellation) error {
	err := t.tx.QueryRow(ctx, addCancellationSQL,
		c.OrderID, string(c.Reason), c.Notes, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("adding cancellation to order %d: %w", c.OrderID, err)
	}
	return nil
}

// exec runs a statement that must touch exactly one row.
func (t *orderTx) exec(ctx context.Context, sql string, id int64, args ...any) error {
	tag, err := t.tx.Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("updating row %d: %w", id, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("updating row %d: %d rows affected", id, tag.RowsAffected())
	}
	return nil
}

func getOrder(ctx context.Context, q querier, sql string, arg int64) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return &o, nil
}

// listLines returns the lines of the given orders keyed by order ID.
func listLines(ctx context.Context, q querier, orderIDs ...int64) (map[int64][]order.Item, error) {
	rows, err := q.Query(ctx, listLinesSQL, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("listing order lines: %w", err)
	}
	lines, err := pgx.CollectRows(rows, scanLine)
	if err != nil {
		return nil, fmt.Errorf("listing order lines: %w", err)
	}
	out := make(map[int64][]order.Item, len(orderIDs))
	for _, it := range lines {
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o           order.Order
		status      string
		cancelID    *int64
		cancelWhy   *string
		cancelNotes *string
		cancelAt    *time.Time
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.RestaurantID, &o.RestaurantName, &status, &o.Total,
		&o.CreatedAt, &o.UpdatedAt, &cancelID, &cancelWhy, &cancelNotes, &cancelAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if cancelID != nil {
		o.Cancellation = &order.Cancellation{
			ID:      *cancelID,
			OrderID: o.ID,
			Reason:  order.CancelReason(*cancelWhy),
			Notes:   *cancelNotes,
		}
		if cancelAt != nil {
			o.Cancellation.CreatedAt = *cancelAt
		}
	}
	return o, nil
}

func scanLine(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.UnitPrice, &it.Quantity, &it.Instructions)
	return it, err
}
