package domain

import (
	"context"
	"time"
)

// Filter — предикат выборки. Один и тот же предикат проверяется в памяти
// (IsSatisfiedBy) и рендерится в SQL-условие (ToSql) для PostgreSQL.
type Filter[T any] interface {
	IsSatisfiedBy(v T) bool
	ToSql() (string, []any, error)
}

// OrderRepository описывает требования к хранилищу заказов.
// Каждая операция записи атомарна в пределах одного агрегата.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями и присваивает идентификаторы.
	Create(ctx context.Context, order Order) (Order, error)
	// Save перезаписывает заказ и полностью заменяет его позиции с учётом optimistic locking.
	Save(ctx context.Context, order Order) (Order, error)
	// FindByID возвращает не удалённый заказ или ErrOrderNotFound.
	FindByID(ctx context.Context, id int64) (Order, error)
	// FindByUserID возвращает не удалённые заказы пользователя в порядке id.
	FindByUserID(ctx context.Context, userID int64) ([]Order, error)
	// FindPage возвращает страницу заказов, удовлетворяющих фильтру.
	FindPage(ctx context.Context, filter Filter[Order], page PageRequest) (Page[Order], error)
	// SoftDelete помечает не удалённый заказ как удалённый, не переписывая позиции.
	SoftDelete(ctx context.Context, id int64) error
	// FindAll возвращает все записи, включая мягко удалённые.
	FindAll(ctx context.Context) ([]Order, error)
	// IsItemReferenced сообщает, используется ли товар хотя бы в одной позиции заказа.
	IsItemReferenced(ctx context.Context, itemID int64) (bool, error)
}

// ItemRepository описывает хранилище каталога товаров.
type ItemRepository interface {
	Create(ctx context.Context, item Item) (Item, error)
	Save(ctx context.Context, item Item) (Item, error)
	// FindByID возвращает товар или ErrItemNotFound.
	FindByID(ctx context.Context, id int64) (Item, error)
	FindPage(ctx context.Context, filter Filter[Item], page PageRequest) (Page[Item], error)
	// FindAll возвращает товары, удовлетворяющие фильтру, в порядке id.
	FindAll(ctx context.Context, filter Filter[Item]) ([]Item, error)
	Delete(ctx context.Context, id int64) error
	Exists(ctx context.Context, id int64) (bool, error)
}

// IdempotencyRepository хранит состояние запросов POST /api/orders с Idempotency-Key.
type IdempotencyRepository interface {
	// CreateProcessing регистрирует ключ. Если ключ занят, возвращает
	// существующую запись и ошибку из IdempotencyRecord.Conflict.
	CreateProcessing(ctx context.Context, req IdempotentRequest) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	// Complete сохраняет ответ; статус выбирается IdempotencyStatusFor.
	Complete(ctx context.Context, key string, httpStatus int, responseBody []byte) error
	// DeleteExpired удаляет не больше limit истёкших ключей, начиная с самых старых.
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
