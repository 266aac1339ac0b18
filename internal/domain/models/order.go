package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Fulfillment — шаг, до которого дошло оформление заказа.
// Заказ в состоянии отличном от FulfillmentCompleted ждёт сверки.
type Fulfillment string

const (
	FulfillmentCreated        Fulfillment = "created"         // заказ записан, склад не списан
	FulfillmentStockCommitted Fulfillment = "stock_committed" // склад списан, корзина не очищена
	FulfillmentCompleted      Fulfillment = "completed"
)

// Order представляет оформленный заказ.
// После создания меняются только статусы оплаты, доставки и Fulfillment.
type Order struct {
	ID              uuid.UUID       `json:"id"`
	UserID          int64           `json:"user"`
	Lines           []OrderLine     `json:"orderItems"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	PaymentResult   *PaymentResult  `json:"paymentResult,omitempty"`
	ItemsPrice      decimal.Decimal `json:"itemsPrice"`
	TaxPrice        decimal.Decimal `json:"taxPrice"`
	ShippingPrice   decimal.Decimal `json:"shippingPrice"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	IsPaid          bool            `json:"isPaid"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	IsDelivered     bool            `json:"isDelivered"`
	DeliveredAt     *time.Time      `json:"deliveredAt,omitempty"`
	Fulfillment     Fulfillment     `json:"fulfillment"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// OrderLine — копия позиции на момент оформления
type OrderLine struct {
	ID             int64           `json:"id"`
	ProductID      int64           `json:"product"`
	Name           string          `json:"name"`
	Image          string          `json:"image"`
	Price          decimal.Decimal `json:"price"`
	Qty            int             `json:"qty"`
	StockCommitted bool            `json:"-"`
}

type ShippingAddress struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// PaymentResult — ответ платёжного шлюза, хранится как есть
type PaymentResult struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	UpdateTime   string `json:"update_time"`
	EmailAddress string `json:"email_address"`
}

// Subtotal — цена позиции, умноженная на количество
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Qty)))
}
