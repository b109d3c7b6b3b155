package specification

import (
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

// Колонки таблицы orders, на которые ссылаются условия.
const (
	orderColumnDeleted   = "deleted"
	orderColumnStatus    = "status"
	orderColumnCreatedAt = "created_at"
)

// NotDeleted оставляет только живые заказы.
func NotDeleted() Spec[domain.Order] {
	return New(
		func(o domain.Order) bool { return !o.Deleted },
		sq.Eq{orderColumnDeleted: false},
	)
}

// StatusIn оставляет заказы с одним из перечисленных статусов.
// Пустой набор ограничений не накладывает.
func StatusIn(statuses []domain.OrderStatus) Spec[domain.Order] {
	if len(statuses) == 0 {
		return All[domain.Order]()
	}

	set := slices.Clone(statuses)
	values := make([]string, 0, len(set))
	for _, s := range set {
		values = append(values, string(s))
	}

	return New(
		func(o domain.Order) bool { return slices.Contains(set, o.Status) },
		sq.Eq{orderColumnStatus: values},
	)
}

// CreatedAtBetween ограничивает дату создания; обе границы включительные,
// отсутствующая граница не ограничивает выборку с этой стороны.
func CreatedAtBetween(start, end *time.Time) Spec[domain.Order] {
	switch {
	case start == nil && end == nil:
		return All[domain.Order]()
	case end == nil:
		from := *start
		return New(
			func(o domain.Order) bool { return !o.CreatedAt.Before(from) },
			sq.GtOrEq{orderColumnCreatedAt: from},
		)
	case start == nil:
		to := *end
		return New(
			func(o domain.Order) bool { return !o.CreatedAt.After(to) },
			sq.LtOrEq{orderColumnCreatedAt: to},
		)
	default:
		from, to := *start, *end
		return New(
			func(o domain.Order) bool {
				return !o.CreatedAt.Before(from) && !o.CreatedAt.After(to)
			},
			sq.And{
				sq.GtOrEq{orderColumnCreatedAt: from},
				sq.LtOrEq{orderColumnCreatedAt: to},
			},
		)
	}
}

// BuildOrderSpecification собирает фильтр списка заказов: живые заказы
// в диапазоне дат с одним из статусов.
func BuildOrderSpecification(start, end *time.Time, statuses []domain.OrderStatus) Spec[domain.Order] {
	return And(
		NotDeleted(),
		CreatedAtBetween(start, end),
		StatusIn(statuses),
	)
}
