package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/linemk/storefront/internal/domain/models"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrLineAlreadyCommitted = errors.New("order line stock already committed")
)

// OrderStorage описывает методы для работы с заказами.
type OrderStorage interface {
	// CreateOrder записывает заказ и его позиции одной транзакцией.
	CreateOrder(ctx context.Context, order *models.Order) error
	// GetOrderByID возвращает заказ с позициями.
	GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// GetOrdersByUserID возвращает заказы пользователя, новые первыми.
	GetOrdersByUserID(ctx context.Context, userID int64) ([]*models.Order, error)
	// ListOrders возвращает все заказы.
	ListOrders(ctx context.Context) ([]*models.Order, error)
	// ListUnfulfilledOrders возвращает заказы, оформление которых не доведено до конца.
	ListUnfulfilledOrders(ctx context.Context) ([]*models.Order, error)
	// CommitLineStock списывает остаток по позиции и помечает позицию списанной в одной транзакции.
	CommitLineStock(ctx context.Context, orderID uuid.UUID, line models.OrderLine) error
	// SetFulfillment переводит заказ на следующий шаг оформления.
	SetFulfillment(ctx context.Context, id uuid.UUID, state models.Fulfillment) error
	MarkPaid(ctx context.Context, id uuid.UUID, result models.PaymentResult, at time.Time) error
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
}

// orderRepository — конкретная реализация OrderStorage.
type orderRepository struct {
	log      *slog.Logger
	db       *sql.DB
	products ProductStorage
}

// NewOrderRepository создаёт новый репозиторий заказов.
// products нужен для списания остатков внутри транзакции заказа.
func NewOrderRepository(log *slog.Logger, db *sql.DB, products ProductStorage) OrderStorage {
	return &orderRepository{log: log, db: db, products: products}
}

const orderColumns = `id, user_id, address, city, postal_code, country, payment_method, payment_result,
	items_price, tax_price, shipping_price, total_price, is_paid, paid_at, is_delivered, delivered_at,
	fulfillment, created_at, updated_at`

func (r *orderRepository) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		r.log.Error("transaction rollback failed", slog.Any("error", err))
	}
}

func (r *orderRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer r.rollback(tx)

	addr := order.ShippingAddress
	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (id, user_id, address, city, postal_code, country, payment_method,
		                     items_price, tax_price, shipping_price, total_price, fulfillment)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING created_at, updated_at`,
		order.ID, order.UserID, addr.Address, addr.City, addr.PostalCode, addr.Country, order.PaymentMethod,
		order.ItemsPrice, order.TaxPrice, order.ShippingPrice, order.TotalPrice, order.Fulfillment,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for i := range order.Lines {
		l := &order.Lines[i]
		err := tx.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, position, product_id, name, image, price, qty)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			order.ID, i, l.ProductID, l.Name, l.Image, l.Price, l.Qty,
		).Scan(&l.ID)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	var (
		paymentResult []byte
		paidAt        sql.NullTime
		deliveredAt   sql.NullTime
	)
	err := row.Scan(&o.ID, &o.UserID,
		&o.ShippingAddress.Address, &o.ShippingAddress.City, &o.ShippingAddress.PostalCode, &o.ShippingAddress.Country,
		&o.PaymentMethod, &paymentResult,
		&o.ItemsPrice, &o.TaxPrice, &o.ShippingPrice, &o.TotalPrice,
		&o.IsPaid, &paidAt, &o.IsDelivered, &deliveredAt,
		&o.Fulfillment, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(paymentResult) > 0 {
		o.PaymentResult = &models.PaymentResult{}
		if err := json.Unmarshal(paymentResult, o.PaymentResult); err != nil {
			return nil, fmt.Errorf("failed to decode payment result: %w", err)
		}
	}
	if paidAt.Valid {
		o.PaidAt = &paidAt.Time
	}
	if deliveredAt.Valid {
		o.DeliveredAt = &deliveredAt.Time
	}
	o.Lines = []models.OrderLine{}
	return o, nil
}

func (r *orderRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if err := r.attachLines(ctx, []*models.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) GetOrdersByUserID(ctx context.Context, userID int64) ([]*models.Order, error) {
	return r.queryOrders(ctx, "SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
}

func (r *orderRepository) ListOrders(ctx context.Context) ([]*models.Order, error) {
	return r.queryOrders(ctx, "SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC")
}

func (r *orderRepository) ListUnfulfilledOrders(ctx context.Context) ([]*models.Order, error) {
	return r.queryOrders(ctx, "SELECT "+orderColumns+" FROM orders WHERE fulfillment <> 'completed' ORDER BY created_at")
}

func (r *orderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachLines подгружает позиции всех заказов одним запросом
func (r *orderRepository) attachLines(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID.String())
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT order_id, id, product_id, name, image, price, qty, stock_committed
		 FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY order_id, position`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID uuid.UUID
			l       models.OrderLine
		)
		if err := rows.Scan(&orderID, &l.ID, &l.ProductID, &l.Name, &l.Image, &l.Price, &l.Qty, &l.StockCommitted); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	return rows.Err()
}

func (r *orderRepository) CommitLineStock(ctx context.Context, orderID uuid.UUID, line models.OrderLine) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer r.rollback(tx)

	res, err := tx.ExecContext(ctx,
		`UPDATE order_items SET stock_committed = TRUE
		 WHERE id = $1 AND order_id = $2 AND stock_committed = FALSE`, line.ID, orderID)
	if err != nil {
		return fmt.Errorf("failed to mark order item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrLineAlreadyCommitted
	}

	if err := r.products.DecrementStock(ctx, tx, line.ProductID, line.Qty); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *orderRepository) SetFulfillment(ctx context.Context, id uuid.UUID, state models.Fulfillment) error {
	return r.execOnOrder(ctx, "UPDATE orders SET fulfillment = $1, updated_at = NOW() WHERE id = $2", state, id)
}

// MarkPaid повторно выставляет флаг без ошибки, перезаписывая время и результат оплаты
func (r *orderRepository) MarkPaid(ctx context.Context, id uuid.UUID, result models.PaymentResult, at time.Time) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode payment result: %w", err)
	}
	return r.execOnOrder(ctx,
		"UPDATE orders SET is_paid = TRUE, paid_at = $1, payment_result = $2, updated_at = NOW() WHERE id = $3",
		at, string(payload), id)
}

func (r *orderRepository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.execOnOrder(ctx,
		"UPDATE orders SET is_delivered = TRUE, delivered_at = $1, updated_at = NOW() WHERE id = $2", at, id)
}

func (r *orderRepository) execOnOrder(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}
