package domain

import "errors"

// Категории ошибок. Конкретные ошибки ниже относятся ровно к одной категории
// и распознаются через errors.Is(err, ErrNotFound) и т.п.
var (
	// ErrNotFound — запрошенная сущность отсутствует среди живых записей.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument — нарушен инвариант или некорректен запрос.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict — конкурентное изменение или повторное использование ключа.
	ErrConflict = errors.New("conflict")
	// ErrDependencyUnavailable — внешняя зависимость недоступна. Наружу не выходит.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

var (
	// ErrOrderNotFound возвращается, если заказ не найден или мягко удалён.
	ErrOrderNotFound = kindError(ErrNotFound, "order not found")
	// ErrItemNotFound возвращается, если товара нет в каталоге.
	ErrItemNotFound = kindError(ErrNotFound, "item not found")
	// ErrUserNotFound — справочник пользователей не знает такого пользователя.
	ErrUserNotFound = kindError(ErrNotFound, "user not found")

	// Ошибка отсутствующего или неположительного идентификатора пользователя.
	ErrUserIDRequired = kindError(ErrInvalidArgument, "user id must be positive")
	// Ошибка неактивного пользователя при создании/обновлении заказа.
	ErrUserInactive = kindError(ErrInvalidArgument, "user is inactive")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = kindError(ErrInvalidArgument, "order must have at least one item")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = kindError(ErrInvalidArgument, "quantity must be positive")
	// Ошибка неизвестного статуса заказа.
	ErrOrderStatusInvalid = kindError(ErrInvalidArgument, "unknown order status")
	// Ошибка пустого названия товара.
	ErrItemNameRequired = kindError(ErrInvalidArgument, "item name is mandatory")
	// Ошибка неположительной цены товара.
	ErrItemPriceInvalid = kindError(ErrInvalidArgument, "price must be positive")
	// Ошибка удаления товара, который используется в заказах.
	ErrItemInUse = kindError(ErrInvalidArgument, "item is used in existing orders")
	// Ошибка диапазона цен: минимальная больше максимальной.
	ErrPriceRangeInvalid = kindError(ErrInvalidArgument, "min price cannot be greater than max price")
	// Ошибка диапазона дат: начало позже конца.
	ErrDateRangeInvalid = kindError(ErrInvalidArgument, "start date cannot be after end date")
	// Ошибка параметров страницы.
	ErrPageInvalid = kindError(ErrInvalidArgument, "invalid page request")
	// Ошибка поля или направления сортировки.
	ErrSortInvalid = kindError(ErrInvalidArgument, "invalid sort parameters")
	// Ошибка пустого email при поиске пользователя.
	ErrEmailRequired = kindError(ErrInvalidArgument, "email is required")

	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = kindError(ErrConflict, "order version conflict")

	// Ошибки идемпотентности запросов.
	ErrIdempotencyKeyRequired         = kindError(ErrInvalidArgument, "idempotency key is required")
	ErrIdempotencyRequestHashRequired = kindError(ErrInvalidArgument, "idempotency request hash is required")
	ErrIdempotencyKeyTooLong          = kindError(ErrInvalidArgument, "idempotency key is too long")
	ErrIdempotencyKeyAlreadyExists    = kindError(ErrConflict, "idempotency key already exists")
	ErrIdempotencyHashMismatch        = kindError(ErrConflict, "idempotency key reused with different payload")
	ErrIdempotencyKeyNotFound         = kindError(ErrNotFound, "idempotency key not found")

	// ErrUserDirectoryUnavailable — справочник пользователей не ответил вовремя или вернул ошибку.
	ErrUserDirectoryUnavailable = kindError(ErrDependencyUnavailable, "user directory unavailable")

	// ErrTotalMismatch — сумма заказа не совпадает с суммой позиций. Это внутренняя ошибка.
	ErrTotalMismatch = errors.New("order total does not match items sum")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsIdempotencyConflict проверяет, что ключ уже занят или переиспользован с другим телом.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// categorizedError — ошибка с сообщением, принадлежащая категории kind.
type categorizedError struct {
	kind error
	msg  string
}

func kindError(kind error, msg string) error {
	return &categorizedError{kind: kind, msg: msg}
}

func (e *categorizedError) Error() string { return e.msg }

func (e *categorizedError) Is(target error) bool { return target == e.kind }
