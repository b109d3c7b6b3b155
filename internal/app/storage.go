package app

import (
	"context"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/ordersvc/internal/health"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/userdir"
	"github.com/vladislavdragonenkov/ordersvc/internal/storage/memory"
	"github.com/vladislavdragonenkov/ordersvc/internal/storage/postgres"
)

// runtimeDependencies — хранилища, выбранные по StorageDriver.
type runtimeDependencies struct {
	orders         domain.OrderRepository
	items          domain.ItemRepository
	idempotency    domain.IdempotencyRepository
	storageChecker healthcheck.Checker
	closeFn        func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		logger.Info("using in-memory storage")
		return &runtimeDependencies{
			orders:         memory.NewOrderRepository(),
			items:          memory.NewItemRepository(),
			idempotency:    memory.NewIdempotencyRepository(),
			storageChecker: healthcheck.NewSimpleChecker("storage", func() error { return nil }),
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires OMS_POSTGRES_DSN")
		}

		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("postgres schema is up to date")
		}

		logger.Info("using postgres storage")
		return &runtimeDependencies{
			orders:         postgres.NewOrderRepository(store),
			items:          postgres.NewItemRepository(store),
			idempotency:    postgres.NewIdempotencyRepository(store),
			storageChecker: healthcheck.NewPingChecker("postgres", 0, store.Ping),
			closeFn:        store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// newUserDirectory возвращает REST-клиент справочника либо заглушку,
// если адрес не задан: все пользователи тогда получают деградированные записи.
func newUserDirectory(cfg Config, logger *log.Entry) domain.UserDirectory {
	if cfg.UserServiceURL == "" {
		logger.Warn("OMS_USER_SERVICE_URL is not set, using stub user directory")
		return userdir.NewMockDirectory()
	}
	return userdir.NewHTTPClient(cfg.UserServiceURL, &http.Client{}, logger.WithField("component", "user-directory-client"))
}
