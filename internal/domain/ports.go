package domain

import "context"

// CatalogLookup разрешает идентификатор товара в его текущие название и цену.
type CatalogLookup interface {
	// FindItem возвращает товар или ErrItemNotFound.
	FindItem(ctx context.Context, itemID int64) (Item, error)
}

// UserDirectory — клиент внешнего справочника пользователей.
// Вызовы могут падать и зависать; устойчивость обеспечивает вызывающая сторона.
type UserDirectory interface {
	// GetUserByID возвращает запись пользователя или ошибку.
	GetUserByID(ctx context.Context, id int64) (Identity, error)
	// GetUserByEmail может вернуть запись без id — это означает "пользователь не найден".
	GetUserByEmail(ctx context.Context, email string) (Identity, error)
}
