package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart — корзина пользователя, у каждого пользователя не больше одной.
type Cart struct {
	UserID    int64      `json:"user"`
	Lines     []CartLine `json:"cartItems"`
	CreatedAt time.Time  `json:"createdAt,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt,omitempty"`
}

// CartLine хранит копию имени, картинки и цены товара на момент добавления.
// Копия не обновляется при изменении каталога.
type CartLine struct {
	ProductID int64           `json:"product"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Price     decimal.Decimal `json:"price"`
	Qty       int             `json:"qty"`
}

// Empty сообщает, есть ли в корзине позиции
func (c *Cart) Empty() bool {
	return c == nil || len(c.Lines) == 0
}

// Line возвращает позицию по товару
func (c *Cart) Line(productID int64) (CartLine, bool) {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}
