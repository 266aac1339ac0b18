package handlers

import (
	"log/slog"
	"net/http"

	"github.com/linemk/storefront/internal/service"
)

// UpsertCartRequest — установка количества товара в корзине.
// Qty — указатель, чтобы 0 дошёл до сервиса и был отклонён как неверное количество.
type UpsertCartRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Qty       *int  `json:"qty" validate:"required"`
}

// GetCartHandler обрабатывает запрос GET /api/cart
func GetCartHandler(log *slog.Logger, carts service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetCartHandler"
		logger := log.With(slog.String("op", op))

		caller, err := callerFrom(r)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		cart, err := carts.Get(r.Context(), caller.UserID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, cart)
	}
}

// UpsertCartHandler обрабатывает запрос POST /api/cart
func UpsertCartHandler(log *slog.Logger, carts service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpsertCartHandler"
		logger := log.With(slog.String("op", op))

		caller, err := callerFrom(r)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		var req UpsertCartRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, logger, err)
			return
		}

		cart, err := carts.UpsertLine(r.Context(), caller.UserID, req.ProductID, *req.Qty)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, cart)
	}
}

// RemoveCartLineHandler обрабатывает запрос DELETE /api/cart/{productId}
func RemoveCartLineHandler(log *slog.Logger, carts service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.RemoveCartLineHandler"
		logger := log.With(slog.String("op", op))

		caller, err := callerFrom(r)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		productID, err := int64Param(r, "productId")
		if err != nil {
			writeError(w, logger, err)
			return
		}

		cart, err := carts.RemoveLine(r.Context(), caller.UserID, productID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, cart)
	}
}
