package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/linemk/storefront/internal/domain/models"
	"github.com/linemk/storefront/internal/storage"
	"github.com/shopspring/decimal"
)

// Caller — проверенный пользователь, от имени которого выполняется операция
type Caller struct {
	UserID  int64
	IsAdmin bool
}

// OrderLineInput — позиция из запроса. Доверяем только ProductID и Qty:
// имя, картинка и цена берутся из каталога в момент оформления.
type OrderLineInput struct {
	ProductID int64
	Name      string
	Image     string
	Price     decimal.Decimal
	Qty       int
}

type PlaceOrderInput struct {
	UserID          int64
	Lines           []OrderLineInput
	ShippingAddress models.ShippingAddress
	PaymentMethod   string
	TaxPrice        decimal.Decimal
	ShippingPrice   decimal.Decimal
	TotalPrice      decimal.Decimal // только для сверки с рассчитанной суммой
}

// ReconcileReport — итог прохода по незавершённым заказам
type ReconcileReport struct {
	Checked   int         `json:"checked"`
	Completed int         `json:"completed"`
	Failed    []uuid.UUID `json:"failed"`
}

// CartClearer удаляет корзину пользователя после оформления заказа
type CartClearer interface {
	Clear(ctx context.Context, userID int64) error
}

type OrderService interface {
	PlaceOrder(ctx context.Context, in PlaceOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, caller Caller, id uuid.UUID) (*models.Order, error)
	MyOrders(ctx context.Context, caller Caller) ([]*models.Order, error)
	AllOrders(ctx context.Context, caller Caller) ([]*models.Order, error)
	MarkPaid(ctx context.Context, caller Caller, id uuid.UUID, result models.PaymentResult) (*models.Order, error)
	MarkDelivered(ctx context.Context, caller Caller, id uuid.UUID) (*models.Order, error)
	Unfulfilled(ctx context.Context, caller Caller) ([]*models.Order, error)
	Reconcile(ctx context.Context, caller Caller, id uuid.UUID) (*models.Order, error)
	ReconcilePending(ctx context.Context) (*ReconcileReport, error)
}

type orderService struct {
	log      *slog.Logger
	products storage.ProductStorage
	orders   storage.OrderStorage
	carts    CartClearer
	now      func() time.Time
	newID    func() uuid.UUID
}

func NewOrderService(log *slog.Logger, products storage.ProductStorage, orders storage.OrderStorage, carts CartClearer) OrderService {
	return &orderService{
		log:      log,
		products: products,
		orders:   orders,
		carts:    carts,
		now:      time.Now,
		newID:    uuid.New,
	}
}

// PlaceOrder оформляет заказ:
//  1. пустой заказ отклоняется;
//  2. каждая позиция проверяется по каталогу (товар есть, остатка хватает) — до любой записи;
//  3. заказ записывается со снимками позиций;
//  4. остатки списываются по одной позиции;
//  5. корзина покупателя удаляется.
//
// Ошибка на шагах 4–5 не откатывает заказ: возвращается *FulfillmentError,
// а заказ остаётся в списке незавершённых до сверки.
func (s *orderService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*models.Order, error) {
	const op = "service.OrderService.PlaceOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", in.UserID), slog.Int("lines", len(in.Lines)))
	logger.Info("placing order")

	if len(in.Lines) == 0 {
		logger.Warn("empty order")
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyOrder)
	}
	if in.TaxPrice.IsNegative() {
		return nil, fmt.Errorf("%s: %w", op, &ValidationError{Field: "taxPrice", Reason: "must not be negative"})
	}
	if in.ShippingPrice.IsNegative() {
		return nil, fmt.Errorf("%s: %w", op, &ValidationError{Field: "shippingPrice", Reason: "must not be negative"})
	}

	requested := make(map[int64]int, len(in.Lines))
	for i, l := range in.Lines {
		if l.Qty < 1 {
			logger.Warn("invalid quantity", slog.Int("line", i), slog.Int("qty", l.Qty))
			return nil, fmt.Errorf("%s: line %d: %w", op, i, ErrInvalidQuantity)
		}
		requested[l.ProductID] += l.Qty
	}

	// все товары должны существовать
	products := make(map[int64]*models.Product, len(requested))
	for _, l := range in.Lines {
		if _, ok := products[l.ProductID]; ok {
			continue
		}
		p, err := s.products.GetProductByID(ctx, l.ProductID)
		if err != nil {
			if errors.Is(err, storage.ErrProductNotFound) {
				logger.Warn("product not found", slog.Int64("productID", l.ProductID))
				return nil, fmt.Errorf("%s: %w", op, &ProductNotFoundError{ProductID: l.ProductID, Name: l.Name})
			}
			logger.Error("failed to get product", slog.Any("error", err))
			return nil, &StorageError{Op: op, Err: err}
		}
		products[l.ProductID] = p
	}

	// остатка должно хватать на все позиции сразу; повторяющиеся товары суммируются
	for _, l := range in.Lines {
		p := products[l.ProductID]
		if requested[p.ID] > p.CountInStock {
			logger.Warn("insufficient stock",
				slog.Int64("productID", p.ID),
				slog.Int("available", p.CountInStock),
				slog.Int("requested", requested[p.ID]),
			)
			return nil, fmt.Errorf("%s: %w", op, &InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Available: p.CountInStock,
				Requested: requested[p.ID],
			})
		}
	}

	order := &models.Order{
		ID:              s.newID(),
		UserID:          in.UserID,
		Lines:           make([]models.OrderLine, 0, len(in.Lines)),
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		TaxPrice:        in.TaxPrice,
		ShippingPrice:   in.ShippingPrice,
		Fulfillment:     models.FulfillmentCreated,
	}
	items := decimal.Zero
	for _, l := range in.Lines {
		p := products[l.ProductID]
		if !l.Price.IsZero() && !l.Price.Equal(p.Price) {
			logger.Warn("client price differs from catalog, using catalog price",
				slog.Int64("productID", p.ID),
				slog.String("clientPrice", l.Price.String()),
				slog.String("catalogPrice", p.Price.String()),
			)
		}
		line := models.OrderLine{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.Image,
			Price:     p.Price,
			Qty:       l.Qty,
		}
		items = items.Add(line.Subtotal())
		order.Lines = append(order.Lines, line)
	}
	order.ItemsPrice = items
	order.TotalPrice = items.Add(in.TaxPrice).Add(in.ShippingPrice)
	if !in.TotalPrice.IsZero() && !in.TotalPrice.Equal(order.TotalPrice) {
		logger.Warn("client total differs from computed total",
			slog.String("clientTotal", in.TotalPrice.String()),
			slog.String("total", order.TotalPrice.String()),
		)
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		logger.Error("failed to create order", slog.Any("error", err))
		return nil, &StorageError{Op: op, Err: err}
	}
	logger = logger.With(slog.String("orderID", order.ID.String()))
	logger.Info("order recorded")

	if err := s.fulfill(ctx, logger, order, true); err != nil {
		return order, err
	}

	logger.Info("order placed", slog.String("total", order.TotalPrice.String()))
	return order, nil
}

// fulfill доводит заказ от текущего состояния до FulfillmentCompleted.
// Уже списанные позиции пропускаются, поэтому вызов можно повторять.
func (s *orderService) fulfill(ctx context.Context, logger *slog.Logger, order *models.Order, clearCart bool) error {
	if order.Fulfillment == models.FulfillmentCreated {
		for i := range order.Lines {
			l := &order.Lines[i]
			if l.StockCommitted {
				continue
			}
			err := s.orders.CommitLineStock(ctx, order.ID, *l)
			switch {
			case err == nil, errors.Is(err, storage.ErrLineAlreadyCommitted):
				l.StockCommitted = true
			case errors.Is(err, storage.ErrInsufficientStock):
				// остаток ушёл параллельному заказу между проверкой и списанием
				logger.Error("stock taken by a concurrent order", slog.Int64("productID", l.ProductID))
				return &FulfillmentError{OrderID: order.ID, Stage: order.Fulfillment, Err: s.stockError(ctx, *l)}
			case errors.Is(err, storage.ErrProductNotFound):
				return &FulfillmentError{OrderID: order.ID, Stage: order.Fulfillment, Err: &ProductNotFoundError{ProductID: l.ProductID, Name: l.Name}}
			default:
				logger.Error("failed to commit stock", slog.Int64("productID", l.ProductID), slog.Any("error", err))
				return &FulfillmentError{OrderID: order.ID, Stage: order.Fulfillment, Err: err}
			}
		}
		if err := s.advance(ctx, order, models.FulfillmentStockCommitted); err != nil {
			logger.Error("failed to update fulfillment", slog.Any("error", err))
			return err
		}
	}

	if order.Fulfillment == models.FulfillmentStockCommitted {
		if clearCart {
			if err := s.carts.Clear(ctx, order.UserID); err != nil {
				logger.Error("failed to clear cart", slog.Any("error", err))
				return &FulfillmentError{OrderID: order.ID, Stage: order.Fulfillment, Err: err}
			}
		}
		if err := s.advance(ctx, order, models.FulfillmentCompleted); err != nil {
			logger.Error("failed to update fulfillment", slog.Any("error", err))
			return err
		}
	}
	return nil
}

func (s *orderService) advance(ctx context.Context, order *models.Order, next models.Fulfillment) error {
	if err := s.orders.SetFulfillment(ctx, order.ID, next); err != nil {
		return &FulfillmentError{OrderID: order.ID, Stage: order.Fulfillment, Err: err}
	}
	order.Fulfillment = next
	return nil
}

// stockError перечитывает товар, чтобы сообщить актуальный остаток
func (s *orderService) stockError(ctx context.Context, l models.OrderLine) error {
	e := &InsufficientStockError{ProductID: l.ProductID, Name: l.Name, Requested: l.Qty}
	if p, err := s.products.GetProductByID(ctx, l.ProductID); err == nil {
		e.Available = p.CountInStock
	}
	return e
}

func (s *orderService) GetOrder(ctx context.Context, caller Caller, id uuid.UUID) (*models.Order, error) {
	const op = "service.OrderService.GetOrder"

	order, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != caller.UserID && !caller.IsAdmin {
		s.log.Warn("order access denied", slog.String("op", op), slog.Int64("userID", caller.UserID), slog.String("orderID", id.String()))
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}
	return order, nil
}

func (s *orderService) MyOrders(ctx context.Context, caller Caller) ([]*models.Order, error) {
	const op = "service.OrderService.MyOrders"

	orders, err := s.orders.GetOrdersByUserID(ctx, caller.UserID)
	if err != nil {
		s.log.Error("failed to get orders", slog.String("op", op), slog.Int64("userID", caller.UserID), slog.Any("error", err))
		return nil, &StorageError{Op: op, Err: err}
	}
	return orders, nil
}

func (s *orderService) AllOrders(ctx context.Context, caller Caller) ([]*models.Order, error) {
	const op = "service.OrderService.AllOrders"

	if !caller.IsAdmin {
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}
	orders, err := s.orders.ListOrders(ctx)
	if err != nil {
		s.log.Error("failed to list orders", slog.String("op", op), slog.Any("error", err))
		return nil, &StorageError{Op: op, Err: err}
	}
	return orders, nil
}

// MarkPaid отмечает заказ оплаченным. Проверяется только существование заказа;
// повторная оплата перезаписывает время и результат.
func (s *orderService) MarkPaid(ctx context.Context, caller Caller, id uuid.UUID, result models.PaymentResult) (*models.Order, error) {
	const op = "service.OrderService.MarkPaid"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", caller.UserID), slog.String("orderID", id.String()))

	if err := s.orders.MarkPaid(ctx, id, result, s.now()); err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}
		logger.Error("failed to mark order paid", slog.Any("error", err))
		return nil, &StorageError{Op: op, Err: err}
	}
	logger.Info("order paid", slog.String("paymentStatus", result.Status))
	return s.load(ctx, op, id)
}

// MarkDelivered доступен только администратору
func (s *orderService) MarkDelivered(ctx context.Context, caller Caller, id uuid.UUID) (*models.Order, error) {
	const op = "service.OrderService.MarkDelivered"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", caller.UserID), slog.String("orderID", id.String()))

	if !caller.IsAdmin {
		logger.Warn("non-admin tried to mark order delivered")
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}
	if err := s.orders.MarkDelivered(ctx, id, s.now()); err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}
		logger.Error("failed to mark order delivered", slog.Any("error", err))
		return nil, &StorageError{Op: op, Err: err}
	}
	logger.Info("order delivered")
	return s.load(ctx, op, id)
}

func (s *orderService) Unfulfilled(ctx context.Context, caller Caller) ([]*models.Order, error) {
	const op = "service.OrderService.Unfulfilled"

	if !caller.IsAdmin {
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}
	orders, err := s.orders.ListUnfulfilledOrders(ctx)
	if err != nil {
		s.log.Error("failed to list unfulfilled orders", slog.String("op", op), slog.Any("error", err))
		return nil, &StorageError{Op: op, Err: err}
	}
	return orders, nil
}

// Reconcile продолжает оформление заказа с сохранённого шага.
// Корзину при сверке не трогаем: пользователь мог уже собрать новую.
func (s *orderService) Reconcile(ctx context.Context, caller Caller, id uuid.UUID) (*models.Order, error) {
	const op = "service.OrderService.Reconcile"

	if !caller.IsAdmin {
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}
	order, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	return order, s.reconcile(ctx, op, order)
}

func (s *orderService) reconcile(ctx context.Context, op string, order *models.Order) error {
	logger := s.log.With(slog.String("op", op), slog.String("orderID", order.ID.String()), slog.String("stage", string(order.Fulfillment)))
	if order.Fulfillment == models.FulfillmentCompleted {
		logger.Info("order already completed")
		return nil
	}
	if err := s.fulfill(ctx, logger, order, false); err != nil {
		return err
	}
	logger.Info("order reconciled")
	return nil
}

func (s *orderService) ReconcilePending(ctx context.Context) (*ReconcileReport, error) {
	const op = "service.OrderService.ReconcilePending"

	orders, err := s.orders.ListUnfulfilledOrders(ctx)
	if err != nil {
		s.log.Error("failed to list unfulfilled orders", slog.String("op", op), slog.Any("error", err))
		return nil, &StorageError{Op: op, Err: err}
	}

	report := &ReconcileReport{Checked: len(orders), Failed: []uuid.UUID{}}
	for _, order := range orders {
		if err := s.reconcile(ctx, op, order); err != nil {
			s.log.Error("reconcile failed", slog.String("op", op), slog.String("orderID", order.ID.String()), slog.Any("error", err))
			report.Failed = append(report.Failed, order.ID)
			continue
		}
		report.Completed++
	}
	return report, nil
}

func (s *orderService) load(ctx context.Context, op string, id uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}
		s.log.Error("failed to get order", slog.String("op", op), slog.String("orderID", id.String()), slog.Any("error", err))
		return nil, &StorageError{Op: op, Err: err}
	}
	return order, nil
}
