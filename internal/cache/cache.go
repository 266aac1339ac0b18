package cache

import (
	"context"
	"errors"

	"github.com/linemk/storefront/internal/domain/models"
)

// CartCache хранит корзины между запросами; источник правды — база.
//
// Каждая запись корзины сопровождается поколением. Delete увеличивает поколение,
// Set записывает корзину, только если поколение не изменилось с момента Generation.
// Так чтение, начатое до записи в базу, не вернёт в кэш устаревшую корзину.
type CartCache interface {
	Get(ctx context.Context, userID int64) (*models.Cart, error)
	// Generation возвращает текущее поколение корзины; читается до обращения к базе.
	Generation(ctx context.Context, userID int64) (int64, error)
	Set(ctx context.Context, cart *models.Cart, gen int64) error
	Delete(ctx context.Context, userID int64) error
}

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrStale — корзина изменилась после чтения из базы, запись в кэш пропущена
	ErrStale = errors.New("cache entry is stale")
)
