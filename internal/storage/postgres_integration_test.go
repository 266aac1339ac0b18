//go:build integration

package storage_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/linemk/storefront/internal/domain/models"
	"github.com/linemk/storefront/internal/lib/logger"
	"github.com/linemk/storefront/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB поднимает postgres в контейнере и применяет миграции из ./migrations
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrate.New("file://../../migrations", dsn)
	require.NoError(t, err)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, db *sql.DB, email string) *models.User {
	t.Helper()
	user, err := storage.NewUserRepository(db).CreateUser(context.Background(),
		&models.User{Name: "Buyer", Email: email, PassHash: []byte("hash")})
	require.NoError(t, err)
	return user
}

func TestPostgres_UserUniqueEmail(t *testing.T) {
	db := setupTestDB(t)
	createUser(t, db, "ann@example.com")

	_, err := storage.NewUserRepository(db).CreateUser(context.Background(),
		&models.User{Name: "Other", Email: "ann@example.com", PassHash: []byte("hash")})
	assert.ErrorIs(t, err, storage.ErrUserExists)
}

func TestPostgres_CartRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	user := createUser(t, db, "cart@example.com")
	carts := storage.NewCartRepository(logger.Discard(), db)

	line := models.CartLine{ProductID: 1, Name: "Airpods", Image: "/a.jpg", Price: decimal.RequireFromString("89.99"), Qty: 3}
	require.NoError(t, carts.UpsertCartLine(ctx, user.ID, line))
	line.Qty = 2
	require.NoError(t, carts.UpsertCartLine(ctx, user.ID, line))

	cart, err := carts.GetCartByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 2, cart.Lines[0].Qty)
	assert.True(t, cart.Lines[0].Price.Equal(decimal.RequireFromString("89.99")))

	require.NoError(t, carts.DeleteCart(ctx, user.ID))
	require.NoError(t, carts.DeleteCart(ctx, user.ID))
	_, err = carts.GetCartByUserID(ctx, user.ID)
	assert.ErrorIs(t, err, storage.ErrCartNotFound)
}

func TestPostgres_OrderLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	user := createUser(t, db, "order@example.com")
	products := storage.NewProductRepository(db)
	orders := storage.NewOrderRepository(logger.Discard(), db, products)

	p, err := products.GetProductByID(ctx, 1)
	require.NoError(t, err)

	order := &models.Order{
		ID:              uuid.New(),
		UserID:          user.ID,
		Lines:           []models.OrderLine{{ProductID: p.ID, Name: p.Name, Image: p.Image, Price: p.Price, Qty: 2}},
		ShippingAddress: models.ShippingAddress{Address: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
		PaymentMethod:   "PayPal",
		ItemsPrice:      p.Price.Mul(decimal.NewFromInt(2)),
		TaxPrice:        decimal.Zero,
		ShippingPrice:   decimal.Zero,
		TotalPrice:      p.Price.Mul(decimal.NewFromInt(2)),
		Fulfillment:     models.FulfillmentCreated,
	}
	require.NoError(t, orders.CreateOrder(ctx, order))

	pending, err := orders.ListUnfulfilledOrders(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, orders.CommitLineStock(ctx, order.ID, order.Lines[0]))
	assert.ErrorIs(t, orders.CommitLineStock(ctx, order.ID, order.Lines[0]), storage.ErrLineAlreadyCommitted)

	after, err := products.GetProductByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, p.CountInStock-2, after.CountInStock)

	require.NoError(t, orders.SetFulfillment(ctx, order.ID, models.FulfillmentCompleted))
	require.NoError(t, orders.MarkPaid(ctx, order.ID, models.PaymentResult{ID: "PAY-1", Status: "COMPLETED"}, time.Now()))

	stored, err := orders.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPaid)
	require.NotNil(t, stored.PaymentResult)
	assert.Equal(t, "PAY-1", stored.PaymentResult.ID)
	assert.True(t, stored.Lines[0].StockCommitted)

	pending, err = orders.ListUnfulfilledOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPostgres_ConcurrentCommitNeverOversells(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	user := createUser(t, db, "race@example.com")
	products := storage.NewProductRepository(db)
	orders := storage.NewOrderRepository(logger.Discard(), db, products)

	// в сидах у камеры (id 3) на складе 5 штук
	p, err := products.GetProductByID(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, 5, p.CountInStock)

	const buyers = 12
	placed := make([]*models.Order, 0, buyers)
	for i := 0; i < buyers; i++ {
		o := &models.Order{
			ID:              uuid.New(),
			UserID:          user.ID,
			Lines:           []models.OrderLine{{ProductID: p.ID, Name: p.Name, Image: p.Image, Price: p.Price, Qty: 1}},
			ShippingAddress: models.ShippingAddress{Address: "a", City: "b", PostalCode: "c", Country: "d"},
			PaymentMethod:   "PayPal",
			ItemsPrice:      p.Price,
			TaxPrice:        decimal.Zero,
			ShippingPrice:   decimal.Zero,
			TotalPrice:      p.Price,
			Fulfillment:     models.FulfillmentCreated,
		}
		require.NoError(t, orders.CreateOrder(ctx, o))
		placed = append(placed, o)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
		short     int
	)
	for _, o := range placed {
		wg.Add(1)
		go func(o *models.Order) {
			defer wg.Done()
			err := orders.CommitLineStock(ctx, o.ID, o.Lines[0])
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				committed++
			case errors.Is(err, storage.ErrInsufficientStock):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(o)
	}
	wg.Wait()

	assert.Equal(t, 5, committed)
	assert.Equal(t, buyers-5, short)

	after, err := products.GetProductByID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, after.CountInStock)
}
