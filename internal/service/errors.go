package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/linemk/storefront/internal/domain/models"
)

var (
	ErrEmptyOrder         = errors.New("no order items")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrProductNotFound    = errors.New("product not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrCartNotFound       = errors.New("cart not found")
	ErrCartLineNotFound   = errors.New("product not found in cart")
	ErrOrderNotFound      = errors.New("order not found")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
)

// ValidationError — входные данные не прошли проверку
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProductNotFoundError указывает, какой товар из запроса не найден в каталоге.
type ProductNotFoundError struct {
	ProductID int64
	Name      string
}

func (e *ProductNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("Product not found: %s", e.Name)
	}
	return fmt.Sprintf("Product not found: %d", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool { return target == ErrProductNotFound }

// InsufficientStockError указывает товар и доступный остаток.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s. Available: %d", e.Name, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// StorageError — сбой хранилища. Автоматических повторов нет, вызывающий может повторить запрос.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: storage failure: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// FulfillmentError возвращается, когда заказ уже записан, но списание остатков
// или очистка корзины не завершились. Заказ остаётся в состоянии Stage и
// дожидается сверки (Reconcile).
type FulfillmentError struct {
	OrderID uuid.UUID
	Stage   models.Fulfillment
	Err     error
}

func (e *FulfillmentError) Error() string {
	return fmt.Sprintf("order %s recorded but fulfillment stopped at %q: %v", e.OrderID, e.Stage, e.Err)
}

func (e *FulfillmentError) Unwrap() error { return e.Err }
