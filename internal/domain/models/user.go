package models

import "time"

// User представляет пользователя магазина
type User struct {
	ID        int64
	Name      string
	Email     string
	PassHash  []byte
	IsAdmin   bool // доступ к выдаче заказов и сверке
	CreatedAt time.Time
}
