package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/storefront/internal/domain/models"
)

var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrCartLineNotFound = errors.New("product not found in cart")
)

// CartStorage описывает методы для работы с корзинами (одна корзина на пользователя).
type CartStorage interface {
	// GetCartByUserID возвращает корзину вместе с позициями.
	GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error)
	// UpsertCartLine создаёт корзину при необходимости и записывает позицию.
	// Для существующей позиции меняется только количество.
	UpsertCartLine(ctx context.Context, userID int64, line models.CartLine) error
	// RemoveCartLine удаляет позицию из корзины.
	RemoveCartLine(ctx context.Context, userID int64, productID int64) error
	// DeleteCart удаляет корзину целиком, отсутствие корзины ошибкой не считается.
	DeleteCart(ctx context.Context, userID int64) error
}

type cartRepository struct {
	log *slog.Logger
	db  *sql.DB
}

// NewCartRepository создаёт новый репозиторий корзин.
func NewCartRepository(log *slog.Logger, db *sql.DB) CartStorage {
	return &cartRepository{log: log, db: db}
}

func (r *cartRepository) GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error) {
	var cartID int64
	cart := &models.Cart{UserID: userID, Lines: []models.CartLine{}}

	row := r.db.QueryRowContext(ctx, "SELECT id, created_at, updated_at FROM carts WHERE user_id = $1", userID)
	if err := row.Scan(&cartID, &cart.CreatedAt, &cart.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT product_id, name, image, price, qty FROM cart_items WHERE cart_id = $1 ORDER BY id", cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l models.CartLine
		if err := rows.Scan(&l.ProductID, &l.Name, &l.Image, &l.Price, &l.Qty); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		cart.Lines = append(cart.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cart, nil
}

func (r *cartRepository) UpsertCartLine(ctx context.Context, userID int64, line models.CartLine) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.log.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
	}()

	var cartID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO carts (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		 RETURNING id`, userID).Scan(&cartID)
	if err != nil {
		return fmt.Errorf("failed to ensure cart: %w", err)
	}

	// снимок name/image/price пишется только для новой позиции
	_, err = tx.ExecContext(ctx,
		`INSERT INTO cart_items (cart_id, product_id, name, image, price, qty)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (cart_id, product_id) DO UPDATE SET qty = EXCLUDED.qty`,
		cartID, line.ProductID, line.Name, line.Image, line.Price, line.Qty)
	if err != nil {
		return fmt.Errorf("failed to upsert cart item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *cartRepository) RemoveCartLine(ctx context.Context, userID int64, productID int64) error {
	var cartID int64
	if err := r.db.QueryRowContext(ctx, "SELECT id FROM carts WHERE user_id = $1", userID).Scan(&cartID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCartNotFound
		}
		return err
	}

	res, err := r.db.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2", cartID, productID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCartLineNotFound
	}
	return nil
}

func (r *cartRepository) DeleteCart(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM carts WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}
