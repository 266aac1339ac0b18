package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/storefront/internal/cache"
	"github.com/linemk/storefront/internal/domain/models"
	"github.com/linemk/storefront/internal/storage"
)

// CartService определяет операции над корзиной пользователя.
type CartService interface {
	// Get возвращает корзину; если её нет, возвращается пустая корзина без ошибки.
	Get(ctx context.Context, userID int64) (*models.Cart, error)
	// UpsertLine устанавливает количество товара в корзине (не прибавляет к имеющемуся).
	UpsertLine(ctx context.Context, userID, productID int64, qty int) (*models.Cart, error)
	RemoveLine(ctx context.Context, userID, productID int64) (*models.Cart, error)
	// Clear удаляет корзину целиком. Повторный вызов не ошибка.
	Clear(ctx context.Context, userID int64) error
}

type cartService struct {
	log      *slog.Logger
	carts    storage.CartStorage
	products storage.ProductStorage
	cache    cache.CartCache
}

// NewCartService создаёт сервис корзины. cartCache может быть nil — тогда корзина читается из базы каждый раз.
func NewCartService(log *slog.Logger, carts storage.CartStorage, products storage.ProductStorage, cartCache cache.CartCache) CartService {
	return &cartService{
		log:      log,
		carts:    carts,
		products: products,
		cache:    cartCache,
	}
}

func (s *cartService) Get(ctx context.Context, userID int64) (*models.Cart, error) {
	const op = "service.CartService.Get"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID))

	// поколение читается до базы: запись, случившаяся после чтения, не даст закэшировать старую корзину
	var (
		gen       int64
		cacheable bool
	)
	if s.cache != nil {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			// кэш недоступен — идём в базу
			logger.Warn("cart cache read failed", slog.Any("error", err))
		}
		if g, err := s.cache.Generation(ctx, userID); err == nil {
			gen, cacheable = g, true
		}
	}

	cart, err := s.carts.GetCartByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrCartNotFound) {
			return &models.Cart{UserID: userID, Lines: []models.CartLine{}}, nil
		}
		logger.Error("failed to get cart", slog.Any("error", err))
		return nil, &StorageError{Op: op, Err: err}
	}

	if cacheable {
		switch err := s.cache.Set(ctx, cart, gen); {
		case errors.Is(err, cache.ErrStale):
			logger.Debug("cart changed while reading, not cached")
		case err != nil:
			logger.Warn("cart cache write failed", slog.Any("error", err))
		}
	}
	return cart, nil
}

func (s *cartService) UpsertLine(ctx context.Context, userID, productID int64, qty int) (*models.Cart, error) {
	const op = "service.CartService.UpsertLine"
	logger := s.log.With(
		slog.String("op", op),
		slog.Int64("userID", userID),
		slog.Int64("productID", productID),
		slog.Int("qty", qty),
	)

	if qty < 1 {
		logger.Warn("invalid quantity")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidQuantity)
	}

	product, err := s.products.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, storage.ErrProductNotFound) {
			logger.Warn("product not found")
			return nil, fmt.Errorf("%s: %w", op, &ProductNotFoundError{ProductID: productID})
		}
		logger.Error("failed to get product", slog.Any("error", err))
		return nil, &StorageError{Op: op, Err: err}
	}

	if qty > product.CountInStock {
		logger.Warn("insufficient stock", slog.Int("available", product.CountInStock))
		return nil, fmt.Errorf("%s: %w", op, &InsufficientStockError{
			ProductID: product.ID,
			Name:      product.Name,
			Available: product.CountInStock,
			Requested: qty,
		})
	}

	line := models.CartLine{
		ProductID: product.ID,
		Name:      product.Name,
		Image:     product.Image,
		Price:     product.Price,
		Qty:       qty,
	}
	if err := s.carts.UpsertCartLine(ctx, userID, line); err != nil {
		logger.Error("failed to upsert cart line", slog.Any("error", err))
		return nil, &StorageError{Op: op, Err: err}
	}
	s.invalidate(ctx, logger, userID)

	logger.Info("cart line saved")
	return s.Get(ctx, userID)
}

func (s *cartService) RemoveLine(ctx context.Context, userID, productID int64) (*models.Cart, error) {
	const op = "service.CartService.RemoveLine"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.Int64("productID", productID))

	if err := s.carts.RemoveCartLine(ctx, userID, productID); err != nil {
		switch {
		case errors.Is(err, storage.ErrCartNotFound):
			return nil, fmt.Errorf("%s: %w", op, ErrCartNotFound)
		case errors.Is(err, storage.ErrCartLineNotFound):
			return nil, fmt.Errorf("%s: %w", op, ErrCartLineNotFound)
		}
		logger.Error("failed to remove cart line", slog.Any("error", err))
		return nil, &StorageError{Op: op, Err: err}
	}
	s.invalidate(ctx, logger, userID)

	logger.Info("cart line removed")
	return s.Get(ctx, userID)
}

func (s *cartService) Clear(ctx context.Context, userID int64) error {
	const op = "service.CartService.Clear"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID))

	if err := s.carts.DeleteCart(ctx, userID); err != nil {
		logger.Error("failed to delete cart", slog.Any("error", err))
		return &StorageError{Op: op, Err: err}
	}
	s.invalidate(ctx, logger, userID)
	return nil
}

// invalidate сбрасывает кэш после записи; ошибка кэша только логируется
func (s *cartService) invalidate(ctx context.Context, logger *slog.Logger, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, userID); err != nil {
		logger.Warn("cart cache invalidation failed", slog.Any("error", err))
	}
}
