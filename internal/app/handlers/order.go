package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/linemk/storefront/internal/domain/models"
	"github.com/linemk/storefront/internal/service"
	"github.com/shopspring/decimal"
)

// PlaceOrderRequest — входная схема оформления заказа.
// Из позиций сервис использует только product и qty, остальное берётся из каталога.
type PlaceOrderRequest struct {
	OrderItems      []OrderItemRequest     `json:"orderItems" validate:"dive"`
	ShippingAddress ShippingAddressRequest `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod" validate:"required"`
	TaxPrice        decimal.Decimal        `json:"taxPrice"`
	ShippingPrice   decimal.Decimal        `json:"shippingPrice"`
	TotalPrice      decimal.Decimal        `json:"totalPrice"`
}

type OrderItemRequest struct {
	Product int64           `json:"product" validate:"required,gt=0"`
	Name    string          `json:"name"`
	Image   string          `json:"image"`
	Price   decimal.Decimal `json:"price"`
	Qty     int             `json:"qty"`
}

type ShippingAddressRequest struct {
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

// PaymentResultRequest — ответ платёжного шлюза, сохраняется без разбора
type PaymentResultRequest struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	UpdateTime   string `json:"update_time"`
	EmailAddress string `json:"email_address"`
}

func (req PlaceOrderRequest) toInput(userID int64) service.PlaceOrderInput {
	lines := make([]service.OrderLineInput, 0, len(req.OrderItems))
	for _, it := range req.OrderItems {
		lines = append(lines, service.OrderLineInput{
			ProductID: it.Product,
			Name:      it.Name,
			Image:     it.Image,
			Price:     it.Price,
			Qty:       it.Qty,
		})
	}
	return service.PlaceOrderInput{
		UserID: userID,
		Lines:  lines,
		ShippingAddress: models.ShippingAddress{
			Address:    req.ShippingAddress.Address,
			City:       req.ShippingAddress.City,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
		},
		PaymentMethod: req.PaymentMethod,
		TaxPrice:      req.TaxPrice,
		ShippingPrice: req.ShippingPrice,
		TotalPrice:    req.TotalPrice,
	}
}

// PlaceOrderHandler обрабатывает запрос POST /api/orders
func PlaceOrderHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.PlaceOrderHandler"
		logger := log.With(slog.String("op", op))

		caller, err := callerFrom(r)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		var req PlaceOrderRequest
		if err := decodeAndValidate(r, &req); err != nil {
			// пустой заказ отклоняем раньше проверки адреса
			var vErr *service.ValidationError
			if len(req.OrderItems) == 0 && errors.As(err, &vErr) && vErr.Field != "body" {
				err = service.ErrEmptyOrder
			}
			writeError(w, logger, err)
			return
		}

		order, err := orders.PlaceOrder(r.Context(), req.toInput(caller.UserID))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, order)
	}
}

// MyOrdersHandler обрабатывает запрос GET /api/orders/myorders
func MyOrdersHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.MyOrdersHandler"))

		caller, err := callerFrom(r)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		list, err := orders.MyOrders(r.Context(), caller)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, list)
	}
}

// ListOrdersHandler обрабатывает запрос GET /api/orders (админ)
func ListOrdersHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.ListOrdersHandler"))

		caller, err := callerFrom(r)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		list, err := orders.AllOrders(r.Context(), caller)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, list)
	}
}

// UnfulfilledOrdersHandler обрабатывает запрос GET /api/orders/unfulfilled (админ)
func UnfulfilledOrdersHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.UnfulfilledOrdersHandler"))

		caller, err := callerFrom(r)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		list, err := orders.Unfulfilled(r.Context(), caller)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, list)
	}
}

// GetOrderHandler обрабатывает запрос GET /api/orders/{id}; доступен владельцу и админу
func GetOrderHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return orderAction(log, "handlers.GetOrderHandler", func(r *http.Request, caller service.Caller, id uuid.UUID) (*models.Order, error) {
		return orders.GetOrder(r.Context(), caller, id)
	})
}

// PayOrderHandler обрабатывает запрос PUT /api/orders/{id}/pay
func PayOrderHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return orderAction(log, "handlers.PayOrderHandler", func(r *http.Request, caller service.Caller, id uuid.UUID) (*models.Order, error) {
		var req PaymentResultRequest
		if err := decodeOptional(r, &req); err != nil {
			return nil, err
		}
		return orders.MarkPaid(r.Context(), caller, id, models.PaymentResult{
			ID:           req.ID,
			Status:       req.Status,
			UpdateTime:   req.UpdateTime,
			EmailAddress: req.EmailAddress,
		})
	})
}

// DeliverOrderHandler обрабатывает запрос PUT /api/orders/{id}/deliver (админ)
func DeliverOrderHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return orderAction(log, "handlers.DeliverOrderHandler", func(r *http.Request, caller service.Caller, id uuid.UUID) (*models.Order, error) {
		return orders.MarkDelivered(r.Context(), caller, id)
	})
}

// ReconcileOrderHandler обрабатывает запрос POST /api/orders/{id}/reconcile (админ)
func ReconcileOrderHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return orderAction(log, "handlers.ReconcileOrderHandler", func(r *http.Request, caller service.Caller, id uuid.UUID) (*models.Order, error) {
		return orders.Reconcile(r.Context(), caller, id)
	})
}

// orderAction — общий каркас для маршрутов вида /api/orders/{id}/...
func orderAction(log *slog.Logger, op string, action func(r *http.Request, caller service.Caller, id uuid.UUID) (*models.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", op))

		caller, err := callerFrom(r)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			// как и в исходном API, несуществующий формат id — это ненайденный заказ
			writeError(w, logger, service.ErrOrderNotFound)
			return
		}

		order, err := action(r, caller, id)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, order)
	}
}
