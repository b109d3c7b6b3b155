package specification

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

const (
	itemColumnName  = "name"
	itemColumnPrice = "price"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// NameContains ищет подстроку в названии без учёта регистра.
// Пустая строка ограничений не накладывает.
func NameContains(name string) Spec[domain.Item] {
	needle := strings.TrimSpace(name)
	if needle == "" {
		return All[domain.Item]()
	}
	lower := strings.ToLower(needle)

	return New(
		func(i domain.Item) bool { return strings.Contains(strings.ToLower(i.Name), lower) },
		sq.ILike{itemColumnName: "%" + likeEscaper.Replace(needle) + "%"},
	)
}

// PriceAtLeast оставляет товары с ценой не ниже minPrice.
func PriceAtLeast(minPrice *decimal.Decimal) Spec[domain.Item] {
	if minPrice == nil {
		return All[domain.Item]()
	}
	bound := *minPrice
	return New(
		func(i domain.Item) bool { return i.Price.GreaterThanOrEqual(bound) },
		sq.GtOrEq{itemColumnPrice: bound},
	)
}

// PriceAtMost оставляет товары с ценой не выше maxPrice.
func PriceAtMost(maxPrice *decimal.Decimal) Spec[domain.Item] {
	if maxPrice == nil {
		return All[domain.Item]()
	}
	bound := *maxPrice
	return New(
		func(i domain.Item) bool { return i.Price.LessThanOrEqual(bound) },
		sq.LtOrEq{itemColumnPrice: bound},
	)
}

// PriceBetween — ценовой диапазон с включительными границами.
func PriceBetween(minPrice, maxPrice *decimal.Decimal) Spec[domain.Item] {
	return And(PriceAtLeast(minPrice), PriceAtMost(maxPrice))
}

// BuildItemSpecification собирает фильтр поиска по каталогу.
func BuildItemSpecification(name string, minPrice, maxPrice *decimal.Decimal) Spec[domain.Item] {
	return And(NameContains(name), PriceBetween(minPrice, maxPrice))
}
