package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/app"
	"github.com/vladislavdragonenkov/ordersvc/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
// Неизвестный уровень оставляет info и возвращает ошибку для предупреждения.
func setupLogger(level string) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		return err
	}
	log.SetLevel(parsed)
	return nil
}

// startupFields — поля стартовой записи лога: сведения о сборке и адреса.
func startupFields(build version.Build, cfg app.Config) log.Fields {
	fields := log.Fields(build.Fields())
	fields["grpc_addr"] = cfg.GRPCAddr
	fields["http_addr"] = cfg.HTTPAddr
	fields["metrics_addr"] = cfg.MetricsAddr
	fields["storage_driver"] = cfg.StorageDriver
	fields["user_directory"] = "stub"
	if cfg.UserServiceURL != "" {
		fields["user_directory"] = cfg.UserServiceURL
	}
	return fields
}

func main() {
	cfg, err := app.LoadConfig(os.Getenv("OMS_CONFIG_FILE"))
	if err != nil {
		_ = setupLogger("info")
		log.WithError(err).Fatal("не удалось загрузить конфигурацию")
	}
	if err := setupLogger(cfg.LogLevel); err != nil {
		log.WithError(err).Warn("неизвестный уровень логирования, используем info")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(startupFields(version.Current(), cfg)).Info("запускаем OrderService")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("OrderService остановлен")
}
