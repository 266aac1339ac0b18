package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linemk/storefront/internal/domain/models"
	"github.com/linemk/storefront/internal/storage"
	"github.com/shopspring/decimal"
)

// memStore — каталог и заказы в памяти. Списание остатка выполняется под мьютексом
// с той же проверкой, что и условный UPDATE в postgres.
type memStore struct {
	mu       sync.Mutex
	products map[int64]*models.Product
	orders   map[uuid.UUID]*models.Order
	nextLine int64

	decrements int

	// сбои для проверки частичного оформления
	createErr     error
	commitErr     func(line models.OrderLine) error
	fulfillmentTo map[models.Fulfillment]error
}

var (
	_ storage.ProductStorage = (*memStore)(nil)
	_ storage.OrderStorage   = (*memStore)(nil)
)

func newMemStore(products ...*models.Product) *memStore {
	s := &memStore{
		products:      make(map[int64]*models.Product),
		orders:        make(map[uuid.UUID]*models.Order),
		fulfillmentTo: make(map[models.Fulfillment]error),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func newProduct(id int64, name string, price string, stock int) *models.Product {
	return &models.Product{ID: id, Name: name, Image: "/images/" + name + ".jpg", Price: decimal.RequireFromString(price), CountInStock: stock}
}

func (s *memStore) stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].CountInStock
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, storage.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) ListProducts(ctx context.Context) ([]*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Product, 0, len(s.products))
	for _, p := range s.products {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) DecrementStock(ctx context.Context, tx *sql.Tx, id int64, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decrementLocked(id, amount)
}

func (s *memStore) decrementLocked(id int64, amount int) error {
	p, ok := s.products[id]
	if !ok {
		return storage.ErrProductNotFound
	}
	if p.CountInStock < amount {
		return storage.ErrInsufficientStock
	}
	p.CountInStock -= amount
	s.decrements++
	return nil
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Lines = append([]models.OrderLine(nil), o.Lines...)
	return &cp
}

func (s *memStore) CreateOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	now := time.Now()
	order.CreatedAt, order.UpdatedAt = now, now
	for i := range order.Lines {
		s.nextLine++
		order.Lines[i].ID = s.nextLine
	}
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *memStore) GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *memStore) filter(keep func(o *models.Order) bool) []*models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Order, 0)
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *memStore) GetOrdersByUserID(ctx context.Context, userID int64) ([]*models.Order, error) {
	return s.filter(func(o *models.Order) bool { return o.UserID == userID }), nil
}

func (s *memStore) ListOrders(ctx context.Context) ([]*models.Order, error) {
	return s.filter(func(*models.Order) bool { return true }), nil
}

func (s *memStore) ListUnfulfilledOrders(ctx context.Context) ([]*models.Order, error) {
	return s.filter(func(o *models.Order) bool { return o.Fulfillment != models.FulfillmentCompleted }), nil
}

func (s *memStore) CommitLineStock(ctx context.Context, orderID uuid.UUID, line models.OrderLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		if err := s.commitErr(line); err != nil {
			return err
		}
	}
	o, ok := s.orders[orderID]
	if !ok {
		return storage.ErrOrderNotFound
	}
	for i := range o.Lines {
		if o.Lines[i].ID != line.ID {
			continue
		}
		if o.Lines[i].StockCommitted {
			return storage.ErrLineAlreadyCommitted
		}
		if err := s.decrementLocked(line.ProductID, line.Qty); err != nil {
			return err
		}
		o.Lines[i].StockCommitted = true
		return nil
	}
	return storage.ErrOrderNotFound
}

func (s *memStore) SetFulfillment(ctx context.Context, id uuid.UUID, state models.Fulfillment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fulfillmentTo[state]; err != nil {
		return err
	}
	o, ok := s.orders[id]
	if !ok {
		return storage.ErrOrderNotFound
	}
	o.Fulfillment = state
	return nil
}

func (s *memStore) MarkPaid(ctx context.Context, id uuid.UUID, result models.PaymentResult, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return storage.ErrOrderNotFound
	}
	o.IsPaid = true
	o.PaidAt = &at
	o.PaymentResult = &result
	return nil
}

func (s *memStore) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return storage.ErrOrderNotFound
	}
	o.IsDelivered = true
	o.DeliveredAt = &at
	return nil
}

// memCarts — корзины в памяти
type memCarts struct {
	mu        sync.Mutex
	carts     map[int64]*models.Cart
	reads     int
	deleteErr error
}

var _ storage.CartStorage = (*memCarts)(nil)

func newMemCarts() *memCarts {
	return &memCarts{carts: make(map[int64]*models.Cart)}
}

func (c *memCarts) GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	cart, ok := c.carts[userID]
	if !ok {
		return nil, storage.ErrCartNotFound
	}
	cp := *cart
	cp.Lines = append([]models.CartLine{}, cart.Lines...)
	return &cp, nil
}

func (c *memCarts) UpsertCartLine(ctx context.Context, userID int64, line models.CartLine) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cart, ok := c.carts[userID]
	if !ok {
		cart = &models.Cart{UserID: userID, Lines: []models.CartLine{}}
		c.carts[userID] = cart
	}
	for i := range cart.Lines {
		if cart.Lines[i].ProductID == line.ProductID {
			cart.Lines[i].Qty = line.Qty
			return nil
		}
	}
	cart.Lines = append(cart.Lines, line)
	return nil
}

func (c *memCarts) RemoveCartLine(ctx context.Context, userID int64, productID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cart, ok := c.carts[userID]
	if !ok {
		return storage.ErrCartNotFound
	}
	for i := range cart.Lines {
		if cart.Lines[i].ProductID == productID {
			cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)
			return nil
		}
	}
	return storage.ErrCartLineNotFound
}

func (c *memCarts) DeleteCart(ctx context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	delete(c.carts, userID)
	return nil
}
