package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/storefront/internal/domain/models"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ProductStorage описывает методы для работы с каталогом.
type ProductStorage interface {
	// GetProductByID возвращает товар по идентификатору.
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	// ListProducts возвращает весь каталог.
	ListProducts(ctx context.Context) ([]*models.Product, error)
	// DecrementStock списывает amount единиц товара в рамках транзакции tx.
	DecrementStock(ctx context.Context, tx *sql.Tx, id int64, amount int) error
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт новый репозиторий каталога.
func NewProductRepository(db *sql.DB) ProductStorage {
	return &productRepository{db: db}
}

const productColumns = `id, name, description, brand, category, image, price, count_in_stock, rating, num_reviews, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	p := &models.Product{}
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Brand, &p.Category, &p.Image,
		&p.Price, &p.CountInStock, &p.Rating, &p.NumReviews, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *productRepository) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *productRepository) ListProducts(ctx context.Context) ([]*models.Product, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+productColumns+" FROM products ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]*models.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

// DecrementStock уменьшает остаток одним условным UPDATE: проверка и списание
// выполняются атомарно, поэтому параллельные заказы не уводят остаток в минус.
// Если строка не обновилась, отдельным запросом выясняем причину.
func (r *productRepository) DecrementStock(ctx context.Context, tx *sql.Tx, id int64, amount int) error {
	if amount < 1 {
		return fmt.Errorf("invalid decrement amount %d", amount)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE products SET count_in_stock = count_in_stock - $1, updated_at = NOW()
		 WHERE id = $2 AND count_in_stock >= $1`, amount, id)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)", id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check product: %w", err)
	}
	if !exists {
		return ErrProductNotFound
	}
	return ErrInsufficientStock
}
