package domain

import "time"

// PaymentMethod - внешний источник денег пользователя (карта, кошелек).
// Details хранит токен провайдера и никогда не отдается наружу.
type PaymentMethod struct {
	ID        int64
	OwnerID   int64
	Title     string
	Details   string
	IsDefault bool
	CreatedAt time.Time
	DeletedAt *time.Time
}
