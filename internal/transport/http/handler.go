// Package httptransport — REST API сервиса заказов и каталога на chi.
package httptransport

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/catalog"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/orders"
	"github.com/vladislavdragonenkov/ordersvc/internal/tracing"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	maxBodyBytes         = 1 << 20
	requestTimeout       = 30 * time.Second
)

// OrderService — операции менеджера заказов, которые использует API.
type OrderService interface {
	CreateOrder(ctx context.Context, req orders.OrderRequest) (orders.OrderView, error)
	GetOrderByID(ctx context.Context, id int64) (orders.OrderView, error)
	GetOrdersWithFilter(ctx context.Context, q orders.OrderQuery) (domain.Page[orders.OrderView], error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]orders.OrderView, error)
	GetOrdersByUserEmail(ctx context.Context, email string) ([]orders.OrderView, error)
	UpdateOrder(ctx context.Context, id int64, req orders.OrderRequest) (orders.OrderView, error)
	DeleteOrder(ctx context.Context, id int64) error
}

// CatalogService — операции каталога, которые использует API.
type CatalogService interface {
	GetItem(ctx context.Context, id int64) (domain.Item, error)
	ListItems(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Item], error)
	SearchItems(ctx context.Context, name string, minPrice, maxPrice *decimal.Decimal) ([]domain.Item, error)
	CreateItem(ctx context.Context, in catalog.ItemInput) (domain.Item, error)
	UpdateItem(ctx context.Context, id int64, in catalog.ItemInput) (domain.Item, error)
	DeleteItem(ctx context.Context, id int64) error
	ItemExists(ctx context.Context, id int64) (bool, error)
}

// Handler обслуживает /api/orders и /api/items.
type Handler struct {
	orders  OrderService
	catalog CatalogService
	guard   *idempotency.Guard
	logger  *log.Entry
}

// NewHandler собирает обработчики. guard == nil отключает поддержку Idempotency-Key.
func NewHandler(orderSvc OrderService, catalogSvc CatalogService, guard *idempotency.Guard, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "http-api")
	}
	return &Handler{
		orders:  orderSvc,
		catalog: catalogSvc,
		guard:   guard,
		logger:  logger,
	}
}

// RouterConfig — настройки CORS.
type RouterConfig struct {
	AllowedOrigins []string
}

// NewRouter возвращает chi-роутер с middleware и маршрутами API.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(h.logger))
	router.Use(middleware.Recoverer)
	router.Use(tracing.Middleware)
	router.Use(middleware.Timeout(requestTimeout))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", idempotencyKeyHeader},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.createOrder)
			r.Get("/", h.listOrders)
			r.Get("/{id}", h.getOrder)
			r.Put("/{id}", h.updateOrder)
			r.Delete("/{id}", h.deleteOrder)
			r.Get("/user/{userId}", h.ordersByUser)
			r.Get("/user/email/{email}", h.ordersByEmail)
		})
		r.Route("/items", func(r chi.Router) {
			r.Post("/", h.createItem)
			r.Get("/", h.listItems)
			r.Get("/search", h.searchItems)
			r.Get("/exists/{id}", h.itemExists)
			r.Get("/{id}", h.getItem)
			r.Put("/{id}", h.updateItem)
			r.Delete("/{id}", h.deleteItem)
		})
	})

	return router
}
