package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu         sync.RWMutex
	orders     map[int64]domain.Order
	nextID     int64
	nextItemID int64
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		orders: make(map[int64]domain.Order),
	}
}

// Create сохраняет новый заказ и присваивает идентификаторы заказу и позициям.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order.ID != 0 {
		if _, exists := r.orders[order.ID]; exists {
			return domain.Order{}, domain.ErrOrderVersionConflict
		}
	}

	r.nextID++
	order = order.Clone()
	order.ID = r.nextID
	r.assignItemIDs(&order)

	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.orders[order.ID] = order
	return order.Clone(), nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(_ context.Context, order domain.Order) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[order.ID]
	if !ok || current.Deleted {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.Order{}, domain.ErrOrderVersionConflict
	}

	order = order.Clone()
	order.CreatedAt = current.CreatedAt
	order.Version++
	r.assignItemIDs(&order)

	r.orders[order.ID] = order
	return order.Clone(), nil
}

// FindByID возвращает живой заказ или ErrOrderNotFound.
func (r *orderRepositoryInMemory) FindByID(_ context.Context, id int64) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok || order.Deleted {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// FindByUserID возвращает живые заказы пользователя в порядке id.
func (r *orderRepositoryInMemory) FindByUserID(_ context.Context, userID int64) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.orders {
		if order.Deleted || order.UserID != userID {
			continue
		}
		result = append(result, order.Clone())
	}
	sortOrders(result, domain.Sort{Field: domain.OrderSortID, Direction: domain.SortAsc})

	return result, nil
}

// FindPage фильтрует заказы предикатом, сортирует и отдаёт запрошенную страницу.
func (r *orderRepositoryInMemory) FindPage(_ context.Context, filter domain.Filter[domain.Order], page domain.PageRequest) (domain.Page[domain.Order], error) {
	r.mu.RLock()
	matched := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if filter != nil && !filter.IsSatisfiedBy(order) {
			continue
		}
		matched = append(matched, order.Clone())
	}
	r.mu.RUnlock()

	sortOrders(matched, page.Sort)
	return domain.NewPage(paginate(matched, page), page, int64(len(matched))), nil
}

// SoftDelete помечает живой заказ удалённым; позиции не трогаются.
func (r *orderRepositoryInMemory) SoftDelete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok || order.Deleted {
		return domain.ErrOrderNotFound
	}

	order.Deleted = true
	order.UpdatedAt = time.Now().UTC()
	order.Version++
	r.orders[id] = order
	return nil
}

// FindAll возвращает все записи, включая удалённые, в порядке id.
func (r *orderRepositoryInMemory) FindAll(_ context.Context) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		result = append(result, order.Clone())
	}
	sortOrders(result, domain.Sort{Field: domain.OrderSortID, Direction: domain.SortAsc})
	return result, nil
}

// IsItemReferenced учитывает и мягко удалённые заказы: их позиции продолжают существовать.
func (r *orderRepositoryInMemory) IsItemReferenced(_ context.Context, itemID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, order := range r.orders {
		if slices.ContainsFunc(order.Items, func(it domain.OrderItem) bool { return it.ItemID == itemID }) {
			return true, nil
		}
	}
	return false, nil
}

// assignItemIDs выдаёт идентификаторы новым позициям. Вызывается под r.mu.
func (r *orderRepositoryInMemory) assignItemIDs(order *domain.Order) {
	for i := range order.Items {
		item := &order.Items[i]
		if item.ID == 0 {
			r.nextItemID++
			item.ID = r.nextItemID
		}
		item.OrderID = order.ID
		if item.CreatedAt.IsZero() {
			item.CreatedAt = order.UpdatedAt
		}
		if item.UpdatedAt.IsZero() {
			item.UpdatedAt = order.UpdatedAt
		}
	}
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
