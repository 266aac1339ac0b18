package storage_test

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/linemk/storefront/internal/domain/models"
	"github.com/linemk/storefront/internal/lib/logger"
	"github.com/linemk/storefront/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	orderCols = []string{"id", "user_id", "address", "city", "postal_code", "country", "payment_method", "payment_result",
		"items_price", "tax_price", "shipping_price", "total_price", "is_paid", "paid_at", "is_delivered", "delivered_at",
		"fulfillment", "created_at", "updated_at"}
	orderItemCols = []string{"order_id", "id", "product_id", "name", "image", "price", "qty", "stock_committed"}
)

func newOrderRepo(t *testing.T) (storage.OrderStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return storage.NewOrderRepository(logger.Discard(), db, storage.NewProductRepository(db)), mock
}

func sampleOrder() *models.Order {
	return &models.Order{
		ID:     uuid.New(),
		UserID: 7,
		Lines: []models.OrderLine{
			{ProductID: 1, Name: "Airpods", Image: "/a.jpg", Price: decimal.RequireFromString("89.99"), Qty: 2},
			{ProductID: 2, Name: "Camera", Image: "/c.jpg", Price: decimal.RequireFromString("929.99"), Qty: 1},
		},
		ShippingAddress: models.ShippingAddress{Address: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
		PaymentMethod:   "PayPal",
		ItemsPrice:      decimal.RequireFromString("1109.97"),
		TaxPrice:        decimal.RequireFromString("10"),
		ShippingPrice:   decimal.Zero,
		TotalPrice:      decimal.RequireFromString("1119.97"),
		Fulfillment:     models.FulfillmentCreated,
	}
}

func TestCreateOrder_Success(t *testing.T) {
	repo, mock := newOrderRepo(t)
	order := sampleOrder()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WithArgs(order.ID, int64(7), "1 Main St", "Springfield", "12345", "US", "PayPal",
			order.ItemsPrice, order.TaxPrice, order.ShippingPrice, order.TotalPrice, models.FulfillmentCreated).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO order_items")).
		WithArgs(order.ID, 0, int64(1), "Airpods", "/a.jpg", order.Lines[0].Price, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO order_items")).
		WithArgs(order.ID, 1, int64(2), "Camera", "/c.jpg", order.Lines[1].Price, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))
	mock.ExpectCommit()

	err := repo.CreateOrder(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, now, order.CreatedAt)
	assert.Equal(t, int64(11), order.Lines[0].ID)
	assert.Equal(t, int64(12), order.Lines[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrder_ItemFailureRollsBack(t *testing.T) {
	repo, mock := newOrderRepo(t)
	order := sampleOrder()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO order_items")).WillReturnError(errors.New("db error"))
	mock.ExpectRollback()

	err := repo.CreateOrder(context.Background(), order)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByID(t *testing.T) {
	repo, mock := newOrderRepo(t)
	id := uuid.New()
	now := time.Now()
	payment := `{"id":"PAY-1","status":"COMPLETED","update_time":"t","email_address":"payer@example.com"}`

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = $1")).WithArgs(id).
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(
			id.String(), int64(7), "1 Main St", "Springfield", "12345", "US", "PayPal", payment,
			"179.98", "15", "0", "194.98", true, now, false, nil,
			"stock_committed", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items WHERE order_id = ANY($1::uuid[])")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(orderItemCols).
			AddRow(id.String(), int64(11), int64(1), "Airpods", "/a.jpg", "89.99", 2, true))

	order, err := repo.GetOrderByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, order.ID)
	assert.Equal(t, models.FulfillmentStockCommitted, order.Fulfillment)
	assert.True(t, order.TotalPrice.Equal(decimal.RequireFromString("194.98")))
	require.NotNil(t, order.PaymentResult)
	assert.Equal(t, "COMPLETED", order.PaymentResult.Status)
	require.NotNil(t, order.PaidAt)
	assert.Nil(t, order.DeliveredAt)
	require.Len(t, order.Lines, 1)
	assert.True(t, order.Lines[0].StockCommitted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByID_NotFound(t *testing.T) {
	repo, mock := newOrderRepo(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = $1")).WithArgs(id).
		WillReturnRows(sqlmock.NewRows(orderCols))

	order, err := repo.GetOrderByID(context.Background(), id)
	assert.ErrorIs(t, err, storage.ErrOrderNotFound)
	assert.Nil(t, order)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUnfulfilledOrders(t *testing.T) {
	repo, mock := newOrderRepo(t)
	first, second := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE fulfillment <> 'completed'")).
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow(first.String(), int64(7), "a", "b", "c", "d", "PayPal", nil, "10", "0", "0", "10", false, nil, false, nil, "created", now, now).
			AddRow(second.String(), int64(8), "a", "b", "c", "d", "PayPal", nil, "20", "0", "0", "20", false, nil, false, nil, "stock_committed", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items WHERE order_id = ANY($1::uuid[])")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(orderItemCols).
			AddRow(first.String(), int64(1), int64(1), "Airpods", "", "10", 1, false).
			AddRow(second.String(), int64(2), int64(2), "Camera", "", "10", 1, true).
			AddRow(second.String(), int64(3), int64(3), "Phone", "", "10", 1, true))

	orders, err := repo.ListUnfulfilledOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Nil(t, orders[0].PaymentResult)
	assert.Len(t, orders[0].Lines, 1)
	assert.Len(t, orders[1].Lines, 2)
	assert.Equal(t, models.FulfillmentCreated, orders[0].Fulfillment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrdersByUserID_Empty(t *testing.T) {
	repo, mock := newOrderRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE user_id = $1")).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(orderCols))

	orders, err := repo.GetOrdersByUserID(context.Background(), 7)
	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitLineStock(t *testing.T) {
	const markLine = "UPDATE order_items SET stock_committed = TRUE"
	const decrement = "UPDATE products SET count_in_stock = count_in_stock - $1"

	orderID := uuid.New()
	line := models.OrderLine{ID: 11, ProductID: 5, Name: "Airpods", Qty: 2}

	t.Run("commits", func(t *testing.T) {
		repo, mock := newOrderRepo(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(markLine)).WithArgs(int64(11), orderID).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(decrement)).WithArgs(2, int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, repo.CommitLineStock(context.Background(), orderID, line))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already committed", func(t *testing.T) {
		repo, mock := newOrderRepo(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(markLine)).WithArgs(int64(11), orderID).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.CommitLineStock(context.Background(), orderID, line)
		assert.ErrorIs(t, err, storage.ErrLineAlreadyCommitted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient stock keeps line uncommitted", func(t *testing.T) {
		repo, mock := newOrderRepo(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(markLine)).WithArgs(int64(11), orderID).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(decrement)).WithArgs(2, int64(5)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		err := repo.CommitLineStock(context.Background(), orderID, line)
		assert.ErrorIs(t, err, storage.ErrInsufficientStock)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMarkPaid(t *testing.T) {
	repo, mock := newOrderRepo(t)
	id := uuid.New()
	at := time.Now()
	result := models.PaymentResult{ID: "PAY-1", Status: "COMPLETED", UpdateTime: "t", EmailAddress: "payer@example.com"}
	payload, err := json.Marshal(result)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET is_paid = TRUE")).
		WithArgs(at, string(payload), id).WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.MarkPaid(context.Background(), id, result, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDelivered_NotFound(t *testing.T) {
	repo, mock := newOrderRepo(t)
	id := uuid.New()
	at := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET is_delivered = TRUE")).
		WithArgs(at, id).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkDelivered(context.Background(), id, at)
	assert.ErrorIs(t, err, storage.ErrOrderNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetFulfillment(t *testing.T) {
	repo, mock := newOrderRepo(t)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET fulfillment = $1")).
		WithArgs(models.FulfillmentCompleted, id).WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.SetFulfillment(context.Background(), id, models.FulfillmentCompleted))
	assert.NoError(t, mock.ExpectationsWereMet())
}
