package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

// LineRequest — строка запроса на создание или обновление заказа.
type LineRequest struct {
	ItemID   int64
	Quantity int32
}

// OrderRequest — запрос на создание или полную замену заказа.
// Пустой Status означает CREATED при создании и текущий статус при обновлении.
type OrderRequest struct {
	UserID int64
	Status domain.OrderStatus
	Items  []LineRequest
}

// OrderQuery — параметры отфильтрованной постраничной выборки.
type OrderQuery struct {
	StartDate *time.Time
	EndDate   *time.Time
	Statuses  []domain.OrderStatus
	Page      domain.PageRequest
}

// OrderItemView — позиция заказа с текущими названием и ценой из каталога.
type OrderItemView struct {
	ID        int64
	ItemID    int64
	ItemName  string
	ItemPrice decimal.Decimal
	Quantity  int32
}

// OrderView — заказ, обогащённый данными пользователя и каталога.
type OrderView struct {
	ID         int64
	UserID     int64
	Status     domain.OrderStatus
	TotalPrice decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
	UserInfo   domain.Identity
	Items      []OrderItemView
}
