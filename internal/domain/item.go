package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Item — позиция каталога с текущими названием и ценой.
type Item struct {
	ID        int64
	Name      string
	Price     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет обязательные поля товара.
func (i Item) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return ErrItemNameRequired
	}
	if !i.Price.IsPositive() {
		return ErrItemPriceInvalid
	}
	return nil
}
