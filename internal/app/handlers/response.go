package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/linemk/storefront/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/storefront/internal/service"
)

var validate = validator.New()

// ErrorResponse — тело ответа при ошибке
type ErrorResponse struct {
	Message string `json:"message"`
	OrderID string `json:"orderId,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

// writeError переводит ошибку сервиса в HTTP-статус и сообщение для клиента.
// Текст внутренних ошибок наружу не отдаётся.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, resp := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.Any("error", err))
	} else {
		logger.Warn("request rejected", slog.Int("status", status), slog.Any("error", err))
	}
	writeJSON(w, logger, status, resp)
}

func errorResponse(err error) (int, ErrorResponse) {
	var (
		fulfillErr *service.FulfillmentError
		validErr   *service.ValidationError
		stockErr   *service.InsufficientStockError
		missingErr *service.ProductNotFoundError
	)

	switch {
	case errors.As(err, &fulfillErr):
		// заказ уже записан: клиенту нужен его идентификатор для сверки
		status := http.StatusInternalServerError
		msg := "order recorded, fulfillment pending"
		if errors.As(err, &stockErr) {
			status = http.StatusConflict
			msg = "order recorded, but " + stockErr.Error()
		}
		return status, ErrorResponse{Message: msg, OrderID: fulfillErr.OrderID.String()}
	case errors.As(err, &validErr):
		return http.StatusBadRequest, ErrorResponse{Message: validErr.Error()}
	case errors.As(err, &stockErr):
		return http.StatusBadRequest, ErrorResponse{Message: stockErr.Error()}
	case errors.As(err, &missingErr):
		return http.StatusNotFound, ErrorResponse{Message: missingErr.Error()}
	}

	for _, e := range []struct {
		target error
		status int
	}{
		{service.ErrEmptyOrder, http.StatusBadRequest},
		{service.ErrInvalidQuantity, http.StatusBadRequest},
		{service.ErrUserExists, http.StatusBadRequest},
		{service.ErrCartNotFound, http.StatusNotFound},
		{service.ErrCartLineNotFound, http.StatusNotFound},
		{service.ErrOrderNotFound, http.StatusNotFound},
		{service.ErrUserNotFound, http.StatusNotFound},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrUnauthorized, http.StatusUnauthorized},
		{service.ErrForbidden, http.StatusForbidden},
	} {
		if errors.Is(err, e.target) {
			return e.status, ErrorResponse{Message: e.target.Error()}
		}
	}
	return http.StatusInternalServerError, ErrorResponse{Message: "internal server error"}
}

// decodeAndValidate читает JSON тело и проверяет теги validate
func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &service.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	return validateStruct(dst)
}

// decodeOptional допускает пустое тело: dst остаётся нулевым значением
func decodeOptional(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return &service.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	return validateStruct(dst)
}

func validateStruct(dst any) error {
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &service.ValidationError{Field: fe.Namespace(), Reason: "failed on '" + fe.Tag() + "'"}
		}
		return &service.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}
