package memory

import (
	"cmp"
	"slices"
	"strings"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

func sortOrders(orders []domain.Order, s domain.Sort) {
	slices.SortStableFunc(orders, func(a, b domain.Order) int {
		var c int
		switch s.Field {
		case domain.OrderSortUserID:
			c = cmp.Compare(a.UserID, b.UserID)
		case domain.OrderSortStatus:
			c = strings.Compare(string(a.Status), string(b.Status))
		case domain.OrderSortTotalPrice:
			c = a.TotalPrice.Cmp(b.TotalPrice)
		case domain.OrderSortCreatedAt:
			c = a.CreatedAt.Compare(b.CreatedAt)
		case domain.OrderSortUpdatedAt:
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		return directed(c, s.Direction)
	})
}

func sortItems(items []domain.Item, s domain.Sort) {
	slices.SortStableFunc(items, func(a, b domain.Item) int {
		var c int
		switch s.Field {
		case domain.ItemSortName:
			c = strings.Compare(a.Name, b.Name)
		case domain.ItemSortPrice:
			c = a.Price.Cmp(b.Price)
		case domain.ItemSortCreatedAt:
			c = a.CreatedAt.Compare(b.CreatedAt)
		case domain.ItemSortUpdatedAt:
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		return directed(c, s.Direction)
	})
}

func directed(c int, dir domain.SortDirection) int {
	if dir == domain.SortDesc {
		return -c
	}
	return c
}

// paginate вырезает страницу из уже отсортированной выборки.
func paginate[T any](all []T, page domain.PageRequest) []T {
	offset := page.Offset()
	if page.Size <= 0 || offset < 0 || offset >= len(all) {
		return []T{}
	}
	end := min(offset+page.Size, len(all))
	return all[offset:end]
}
