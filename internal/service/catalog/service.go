// Package catalog реализует каталог товаров: CRUD, поиск по названию и цене
// и поиск товара по id для менеджера заказов.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
	"github.com/vladislavdragonenkov/ordersvc/internal/metrics"
	"github.com/vladislavdragonenkov/ordersvc/internal/specification"
	"github.com/vladislavdragonenkov/ordersvc/internal/tracing"
)

// ItemInput — поля товара, которые задаёт клиент.
type ItemInput struct {
	Name  string
	Price decimal.Decimal
}

// Service — каталог товаров.
type Service struct {
	items   domain.ItemRepository
	orders  domain.OrderRepository
	metrics *metrics.OrderMetrics
	logger  *log.Entry
	now     func() time.Time
}

// NewService создаёт каталог. orders нужен для запрета удаления используемых товаров.
func NewService(items domain.ItemRepository, orders domain.OrderRepository, m *metrics.OrderMetrics, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "catalog-service")
	}
	return &Service{
		items:   items,
		orders:  orders,
		metrics: m,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// FindItem реализует domain.CatalogLookup.
func (s *Service) FindItem(ctx context.Context, itemID int64) (domain.Item, error) {
	return s.items.FindByID(ctx, itemID)
}

// GetItem возвращает товар по id.
func (s *Service) GetItem(ctx context.Context, id int64) (item domain.Item, err error) {
	ctx, done := s.begin(ctx, "get_item")
	defer func() { done(err) }()

	s.logger.WithField("item_id", id).Debug("Fetching item")
	return s.items.FindByID(ctx, id)
}

// ListItems возвращает страницу каталога.
func (s *Service) ListItems(ctx context.Context, page domain.PageRequest) (result domain.Page[domain.Item], err error) {
	ctx, done := s.begin(ctx, "list_items")
	defer func() { done(err) }()

	if err := page.Validate(domain.ItemSortFields); err != nil {
		return domain.Page[domain.Item]{}, err
	}
	return s.items.FindPage(ctx, specification.All[domain.Item](), page)
}

// SearchItems ищет товары по подстроке названия и ценовому диапазону.
// Любой из параметров может отсутствовать.
func (s *Service) SearchItems(ctx context.Context, name string, minPrice, maxPrice *decimal.Decimal) (result []domain.Item, err error) {
	ctx, done := s.begin(ctx, "search_items")
	defer func() { done(err) }()

	if minPrice != nil && maxPrice != nil && minPrice.GreaterThan(*maxPrice) {
		return nil, domain.ErrPriceRangeInvalid
	}

	s.logger.WithFields(log.Fields{
		"name":      name,
		"min_price": minPrice,
		"max_price": maxPrice,
	}).Debug("Searching items")
	return s.items.FindAll(ctx, specification.BuildItemSpecification(name, minPrice, maxPrice))
}

// CreateItem добавляет товар в каталог.
func (s *Service) CreateItem(ctx context.Context, in ItemInput) (item domain.Item, err error) {
	ctx, done := s.begin(ctx, "create_item")
	defer func() { done(err) }()

	now := s.now()
	item = domain.Item{
		Name:      strings.TrimSpace(in.Name),
		Price:     in.Price,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := item.Validate(); err != nil {
		return domain.Item{}, err
	}

	created, err := s.items.Create(ctx, item)
	if err != nil {
		return domain.Item{}, fmt.Errorf("create item: %w", err)
	}
	s.logger.WithField("item_id", created.ID).Info("Item created")
	return created, nil
}

// UpdateItem заменяет название и цену товара.
func (s *Service) UpdateItem(ctx context.Context, id int64, in ItemInput) (item domain.Item, err error) {
	ctx, done := s.begin(ctx, "update_item")
	defer func() { done(err) }()

	existing, err := s.items.FindByID(ctx, id)
	if err != nil {
		return domain.Item{}, err
	}

	existing.Name = strings.TrimSpace(in.Name)
	existing.Price = in.Price
	existing.UpdatedAt = s.now()
	if err := existing.Validate(); err != nil {
		return domain.Item{}, err
	}

	saved, err := s.items.Save(ctx, existing)
	if err != nil {
		return domain.Item{}, fmt.Errorf("update item %d: %w", id, err)
	}
	s.logger.WithField("item_id", id).Info("Item updated")
	return saved, nil
}

// DeleteItem удаляет товар, если он не используется ни в одном заказе.
func (s *Service) DeleteItem(ctx context.Context, id int64) (err error) {
	ctx, done := s.begin(ctx, "delete_item")
	defer func() { done(err) }()

	exists, err := s.items.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("check item %d: %w", id, err)
	}
	if !exists {
		return domain.ErrItemNotFound
	}

	referenced, err := s.orders.IsItemReferenced(ctx, id)
	if err != nil {
		return fmt.Errorf("check item %d usage: %w", id, err)
	}
	if referenced {
		return domain.ErrItemInUse
	}

	if err := s.items.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("item_id", id).Info("Item deleted")
	return nil
}

// ItemExists сообщает, есть ли товар в каталоге.
func (s *Service) ItemExists(ctx context.Context, id int64) (bool, error) {
	return s.items.Exists(ctx, id)
}

func (s *Service) begin(ctx context.Context, operation string) (context.Context, func(error)) {
	ctx, span := tracing.StartSpan(ctx, "catalog."+operation)
	finish := s.metrics.StartOperation(operation)
	return ctx, func(err error) {
		finish(err)
		tracing.EndSpan(span, err)
	}
}

var _ domain.CatalogLookup = (*Service)(nil)
