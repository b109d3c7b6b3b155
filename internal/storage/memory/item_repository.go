package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

type itemRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[int64]domain.Item
	nextID int64
}

// NewItemRepository создаёт in-memory каталог товаров.
func NewItemRepository() domain.ItemRepository {
	return &itemRepositoryInMemory{
		items: make(map[int64]domain.Item),
	}
}

func (r *itemRepositoryInMemory) Create(_ context.Context, item domain.Item) (domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	item.ID = r.nextID
	r.items[item.ID] = item
	return item, nil
}

func (r *itemRepositoryInMemory) Save(_ context.Context, item domain.Item) (domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[item.ID]
	if !ok {
		return domain.Item{}, domain.ErrItemNotFound
	}
	item.CreatedAt = current.CreatedAt
	r.items[item.ID] = item
	return item, nil
}

func (r *itemRepositoryInMemory) FindByID(_ context.Context, id int64) (domain.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return domain.Item{}, domain.ErrItemNotFound
	}
	return item, nil
}

func (r *itemRepositoryInMemory) FindPage(_ context.Context, filter domain.Filter[domain.Item], page domain.PageRequest) (domain.Page[domain.Item], error) {
	matched := r.collect(filter)
	sortItems(matched, page.Sort)
	return domain.NewPage(paginate(matched, page), page, int64(len(matched))), nil
}

func (r *itemRepositoryInMemory) FindAll(_ context.Context, filter domain.Filter[domain.Item]) ([]domain.Item, error) {
	matched := r.collect(filter)
	sortItems(matched, domain.Sort{Field: domain.ItemSortID, Direction: domain.SortAsc})
	return matched, nil
}

func (r *itemRepositoryInMemory) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrItemNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *itemRepositoryInMemory) Exists(_ context.Context, id int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.items[id]
	return ok, nil
}

func (r *itemRepositoryInMemory) collect(filter domain.Filter[domain.Item]) []domain.Item {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Item, 0, len(r.items))
	for _, item := range r.items {
		if filter != nil && !filter.IsSatisfiedBy(item) {
			continue
		}
		result = append(result, item)
	}
	return result
}

var _ domain.ItemRepository = (*itemRepositoryInMemory)(nil)
