package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusCreated — статус по умолчанию для нового заказа.
	OrderStatusCreated OrderStatus = "CREATED"
	// OrderStatusProcessing — заказ принят в работу.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered — заказ доставлен покупателю.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCompleted — заказ закрыт.
	OrderStatusCompleted OrderStatus = "COMPLETED"
	// OrderStatusCancelled — заказ отменён.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Valid проверяет, что статус входит в поддерживаемое перечисление.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// NormalizeOrderStatus приводит статус из запроса к каноническому виду:
// без пробелов по краям и в верхнем регистре.
func NormalizeOrderStatus(raw string) OrderStatus {
	return OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
}

// ParseOrderStatus разбирает строковое значение статуса без учёта регистра.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := NormalizeOrderStatus(raw)
	if !status.Valid() {
		return "", ErrOrderStatusInvalid
	}
	return status, nil
}

// OrderItem — позиция заказа. Название и цена товара не хранятся:
// они подтягиваются из каталога в момент построения ответа.
type OrderItem struct {
	ID        int64
	OrderID   int64
	ItemID    int64
	Quantity  int32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID         int64
	UserID     int64
	Status     OrderStatus
	TotalPrice decimal.Decimal
	Deleted    bool
	Items      []OrderItem
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ReplaceItems отвязывает текущие позиции и устанавливает новый набор.
// Старые позиции не переиспользуются: их идентификаторы и back-reference сбрасываются.
func (o *Order) ReplaceItems(items []OrderItem) {
	for i := range o.Items {
		o.Items[i].OrderID = 0
	}
	o.Items = make([]OrderItem, 0, len(items))
	for _, item := range items {
		item.ID = 0
		item.OrderID = o.ID
		o.Items = append(o.Items, item)
	}
}

// Clone возвращает копию заказа с собственным срезом позиций.
func (o Order) Clone() Order {
	dst := o
	dst.Items = append([]OrderItem(nil), o.Items...)
	return dst
}

// ValidateInvariants проверяет инварианты агрегата относительно цен каталога
// и возвращает список замечаний. prices — цена за единицу по ItemID.
func (o *Order) ValidateInvariants(prices map[int64]decimal.Decimal) []error {
	var errs []error

	if o.UserID <= 0 {
		errs = append(errs, ErrUserIDRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrOrderStatusInvalid)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	calc := decimal.Zero
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
			continue
		}
		price, ok := prices[item.ItemID]
		if !ok {
			errs = append(errs, ErrItemNotFound)
			continue
		}
		calc = calc.Add(LineTotal(price, item.Quantity))
	}
	if !calc.Equal(o.TotalPrice) {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}

// LineTotal считает стоимость строки заказа без потери точности.
func LineTotal(unitPrice decimal.Decimal, quantity int32) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt32(quantity))
}
