// Package orders управляет жизненным циклом агрегата заказа: создание,
// полная замена, мягкое удаление и выборки с обогащением ответа
// данными пользователя и каталога.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
	"github.com/vladislavdragonenkov/ordersvc/internal/metrics"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/userdir"
	"github.com/vladislavdragonenkov/ordersvc/internal/specification"
	"github.com/vladislavdragonenkov/ordersvc/internal/tracing"
)

// DefaultEnrichmentConcurrency ограничивает число одновременных обращений
// к справочнику пользователей при обогащении списка.
const DefaultEnrichmentConcurrency = 8

// IdentityResolver разрешает пользователя с деградацией; реализуется userdir.Resolver.
type IdentityResolver interface {
	ResolveUserByID(ctx context.Context, id int64, site userdir.CallSite) domain.Identity
	ResolveUserByEmail(ctx context.Context, email string) domain.Identity
}

// Manager — менеджер агрегата заказа. Собственного изменяемого состояния
// не имеет и безопасен для конкурентного использования.
type Manager struct {
	orders  domain.OrderRepository
	catalog domain.CatalogLookup
	users   IdentityResolver

	metrics     *metrics.OrderMetrics
	logger      *log.Entry
	enrichLimit int
	now         func() time.Time
}

// Option настраивает Manager.
type Option func(*Manager)

// WithMetrics подключает метрики операций.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(mgr *Manager) {
		if logger != nil {
			mgr.logger = logger
		}
	}
}

// WithEnrichmentConcurrency задаёт число параллельных обогащений строк списка.
func WithEnrichmentConcurrency(n int) Option {
	return func(mgr *Manager) {
		if n > 0 {
			mgr.enrichLimit = n
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(mgr *Manager) {
		if now != nil {
			mgr.now = now
		}
	}
}

// NewManager собирает менеджер заказов.
func NewManager(orders domain.OrderRepository, catalog domain.CatalogLookup, users IdentityResolver, opts ...Option) *Manager {
	m := &Manager{
		orders:      orders,
		catalog:     catalog,
		users:       users,
		logger:      log.New().WithField("component", "order-manager"),
		enrichLimit: DefaultEnrichmentConcurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateOrder проверяет пользователя и позиции, считает сумму и сохраняет заказ.
// Ничего не сохраняется, если хотя бы одна проверка не прошла.
func (m *Manager) CreateOrder(ctx context.Context, req OrderRequest) (view OrderView, err error) {
	ctx, done := m.begin(ctx, "create_order")
	defer func() { done(err) }()

	logger := m.logger.WithField("user_id", req.UserID)
	logger.Info("Creating order")

	status, err := requestedStatus(req.Status, domain.OrderStatusCreated)
	if err != nil {
		return OrderView{}, err
	}
	if err := m.validateUser(ctx, req.UserID); err != nil {
		return OrderView{}, err
	}

	now := m.now()
	items, prices, total, err := m.buildItems(ctx, req.Items, now)
	if err != nil {
		return OrderView{}, err
	}

	order := domain.Order{
		UserID:     req.UserID,
		Status:     status,
		TotalPrice: total,
		Items:      items,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := checkInvariants(&order, prices); err != nil {
		return OrderView{}, err
	}

	created, err := m.orders.Create(ctx, order)
	if err != nil {
		return OrderView{}, fmt.Errorf("persist order: %w", err)
	}
	logger.WithFields(log.Fields{
		"order_id": created.ID,
		"total":    created.TotalPrice.String(),
	}).Info("Order created")

	return m.render(ctx, created)
}

// GetOrderByID возвращает живой заказ. Сбой справочника пользователей не ломает чтение.
func (m *Manager) GetOrderByID(ctx context.Context, id int64) (view OrderView, err error) {
	ctx, done := m.begin(ctx, "get_order")
	defer func() { done(err) }()

	m.logger.WithField("order_id", id).Debug("Fetching order")
	order, err := m.orders.FindByID(ctx, id)
	if err != nil {
		return OrderView{}, err
	}
	return m.render(ctx, order)
}

// GetOrdersWithFilter возвращает страницу живых заказов по датам создания и статусам.
func (m *Manager) GetOrdersWithFilter(ctx context.Context, q OrderQuery) (result domain.Page[OrderView], err error) {
	ctx, done := m.begin(ctx, "list_orders")
	defer func() { done(err) }()

	if err := q.Page.Validate(domain.OrderSortFields); err != nil {
		return domain.Page[OrderView]{}, err
	}
	if q.StartDate != nil && q.EndDate != nil && q.StartDate.After(*q.EndDate) {
		return domain.Page[OrderView]{}, domain.ErrDateRangeInvalid
	}
	for _, status := range q.Statuses {
		if !status.Valid() {
			return domain.Page[OrderView]{}, fmt.Errorf("%w: %q", domain.ErrOrderStatusInvalid, status)
		}
	}

	m.logger.WithFields(log.Fields{
		"start_date": q.StartDate,
		"end_date":   q.EndDate,
		"statuses":   q.Statuses,
		"page":       q.Page.Page,
		"size":       q.Page.Size,
	}).Debug("Listing orders")

	filter := specification.BuildOrderSpecification(q.StartDate, q.EndDate, q.Statuses)
	page, err := m.orders.FindPage(ctx, filter, q.Page)
	if err != nil {
		return domain.Page[OrderView]{}, fmt.Errorf("find orders page: %w", err)
	}

	views, err := m.renderAll(ctx, page.Content)
	if err != nil {
		return domain.Page[OrderView]{}, err
	}
	return domain.Page[OrderView]{
		Content:       views,
		Page:          page.Page,
		Size:          page.Size,
		TotalElements: page.TotalElements,
	}, nil
}

// GetOrdersByUserID возвращает все живые заказы пользователя в порядке id.
func (m *Manager) GetOrdersByUserID(ctx context.Context, userID int64) (views []OrderView, err error) {
	ctx, done := m.begin(ctx, "list_user_orders")
	defer func() { done(err) }()

	return m.ordersOfUser(ctx, userID)
}

// GetOrdersByUserEmail находит пользователя по email и возвращает его заказы.
// Если справочник не знает email (или недоступен), возвращается ErrUserNotFound:
// подставить деградированного пользователя здесь нельзя, у него нет id.
func (m *Manager) GetOrdersByUserEmail(ctx context.Context, email string) (views []OrderView, err error) {
	ctx, done := m.begin(ctx, "list_user_orders_by_email")
	defer func() { done(err) }()

	email = strings.TrimSpace(email)
	if email == "" {
		return nil, domain.ErrEmailRequired
	}

	identity := m.users.ResolveUserByEmail(ctx, email)
	if !identity.HasID() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, email)
	}
	return m.ordersOfUser(ctx, identity.ID)
}

// UpdateOrder полностью заменяет пользователя, статус и позиции заказа.
// Позиции, которых нет в запросе, удаляются.
func (m *Manager) UpdateOrder(ctx context.Context, id int64, req OrderRequest) (view OrderView, err error) {
	ctx, done := m.begin(ctx, "update_order")
	defer func() { done(err) }()

	logger := m.logger.WithFields(log.Fields{"order_id": id, "user_id": req.UserID})
	logger.Info("Updating order")

	order, err := m.orders.FindByID(ctx, id)
	if err != nil {
		return OrderView{}, err
	}

	status, err := requestedStatus(req.Status, order.Status)
	if err != nil {
		return OrderView{}, err
	}
	if err := m.validateUser(ctx, req.UserID); err != nil {
		return OrderView{}, err
	}

	now := m.now()
	items, prices, total, err := m.buildItems(ctx, req.Items, now)
	if err != nil {
		return OrderView{}, err
	}

	order.UserID = req.UserID
	order.Status = status
	order.TotalPrice = total
	order.ReplaceItems(items)
	order.UpdatedAt = now
	if err := checkInvariants(&order, prices); err != nil {
		return OrderView{}, err
	}

	saved, err := m.orders.Save(ctx, order)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
			return OrderView{}, err
		}
		return OrderView{}, fmt.Errorf("persist order %d: %w", id, err)
	}
	logger.WithField("total", saved.TotalPrice.String()).Info("Order updated")

	return m.render(ctx, saved)
}

// DeleteOrder мягко удаляет заказ. Повторное удаление возвращает ErrOrderNotFound.
func (m *Manager) DeleteOrder(ctx context.Context, id int64) (err error) {
	ctx, done := m.begin(ctx, "delete_order")
	defer func() { done(err) }()

	if err := m.orders.SoftDelete(ctx, id); err != nil {
		return err
	}
	m.logger.WithField("order_id", id).Info("Order deleted")
	return nil
}

func (m *Manager) ordersOfUser(ctx context.Context, userID int64) ([]OrderView, error) {
	if userID <= 0 {
		return nil, domain.ErrUserIDRequired
	}

	m.logger.WithField("user_id", userID).Debug("Listing user orders")
	orders, err := m.orders.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find orders of user %d: %w", userID, err)
	}
	return m.renderAll(ctx, orders)
}

// validateUser отклоняет только пользователя, которого справочник явно
// вернул неактивным. Деградированная запись всегда активна.
func (m *Manager) validateUser(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return domain.ErrUserIDRequired
	}

	identity := m.users.ResolveUserByID(ctx, userID, userdir.SiteValidation)
	if !identity.Active {
		return fmt.Errorf("%w: id %d", domain.ErrUserInactive, userID)
	}
	return nil
}

// buildItems проверяет строки запроса и считает сумму заказа.
// Возвращает позиции, цены по ItemID и итог.
func (m *Manager) buildItems(ctx context.Context, lines []LineRequest, now time.Time) ([]domain.OrderItem, map[int64]decimal.Decimal, decimal.Decimal, error) {
	if len(lines) == 0 {
		return nil, nil, decimal.Zero, domain.ErrItemsRequired
	}

	items := make([]domain.OrderItem, 0, len(lines))
	prices := make(map[int64]decimal.Decimal, len(lines))
	total := decimal.Zero

	for idx, line := range lines {
		item, err := m.catalog.FindItem(ctx, line.ItemID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, nil, decimal.Zero, fmt.Errorf("%w: id %d", domain.ErrItemNotFound, line.ItemID)
			}
			return nil, nil, decimal.Zero, fmt.Errorf("lookup item %d: %w", line.ItemID, err)
		}
		if line.Quantity <= 0 {
			return nil, nil, decimal.Zero, fmt.Errorf("%w: item[%d] quantity %d", domain.ErrItemQtyInvalid, idx, line.Quantity)
		}

		prices[item.ID] = item.Price
		total = total.Add(domain.LineTotal(item.Price, line.Quantity))
		items = append(items, domain.OrderItem{
			ItemID:    line.ItemID,
			Quantity:  line.Quantity,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	return items, prices, total, nil
}

// render собирает ответ. Пользователь всегда разрешается заново в режиме
// обогащения, название и цена позиций берутся из каталога на момент ответа.
func (m *Manager) render(ctx context.Context, order domain.Order) (OrderView, error) {
	view := OrderView{
		ID:         order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		TotalPrice: order.TotalPrice,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
		UserInfo:   m.users.ResolveUserByID(ctx, order.UserID, userdir.SiteEnrichment),
		Items:      make([]OrderItemView, 0, len(order.Items)),
	}

	for _, line := range order.Items {
		item, err := m.catalog.FindItem(ctx, line.ItemID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return OrderView{}, fmt.Errorf("render order %d: item %d is missing from catalog", order.ID, line.ItemID)
		case err != nil:
			return OrderView{}, fmt.Errorf("render order %d: lookup item %d: %w", order.ID, line.ItemID, err)
		}
		view.Items = append(view.Items, OrderItemView{
			ID:        line.ID,
			ItemID:    line.ItemID,
			ItemName:  item.Name,
			ItemPrice: item.Price,
			Quantity:  line.Quantity,
		})
	}
	return view, nil
}

// renderAll обогащает строки параллельно, не больше enrichLimit одновременно,
// сохраняя исходный порядок.
func (m *Manager) renderAll(ctx context.Context, orders []domain.Order) ([]OrderView, error) {
	views := make([]OrderView, len(orders))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.enrichLimit)
	for i, order := range orders {
		i, order := i, order
		g.Go(func() error {
			view, err := m.render(gctx, order)
			if err != nil {
				return err
			}
			views[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

func (m *Manager) begin(ctx context.Context, operation string) (context.Context, func(error)) {
	ctx, span := tracing.StartSpan(ctx, "orders."+operation)
	finish := m.metrics.StartOperation(operation)
	return ctx, func(err error) {
		finish(err)
		tracing.EndSpan(span, err)
	}
}

func requestedStatus(requested, fallback domain.OrderStatus) (domain.OrderStatus, error) {
	if requested == "" {
		return fallback, nil
	}
	if !requested.Valid() {
		return "", fmt.Errorf("%w: %q", domain.ErrOrderStatusInvalid, requested)
	}
	return requested, nil
}

// checkInvariants повторно проверяет собранный агрегат перед записью.
func checkInvariants(order *domain.Order, prices map[int64]decimal.Decimal) error {
	if errs := order.ValidateInvariants(prices); len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
