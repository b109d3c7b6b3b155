package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/ordersvc/internal/health"
	"github.com/vladislavdragonenkov/ordersvc/internal/metrics"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/catalog"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/orders"
	"github.com/vladislavdragonenkov/ordersvc/internal/service/userdir"
	"github.com/vladislavdragonenkov/ordersvc/internal/tracing"
	httptransport "github.com/vladislavdragonenkov/ordersvc/internal/transport/http"
	"github.com/vladislavdragonenkov/ordersvc/internal/version"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Run собирает зависимости, запускает gRPC, HTTP API, сервер метрик и
// воркер очистки ключей идемпотентности и блокируется до отмены ctx
// или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := log.WithField("component", "app")

	build := version.Current()
	tracer, err := tracing.Init(version.Service, build.Version, cfg.JaegerEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}
	}()

	deps, err := initRuntimeDependencies(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		return err
	}
	defer deps.close(logger)

	orderMetrics := metrics.NewOrderMetrics()
	resolver := userdir.NewResolver(
		newUserDirectory(cfg, logger),
		userdir.Config{
			Timeout:          cfg.UserServiceTimeout,
			ErrorThreshold:   cfg.BreakerErrorThreshold,
			SuccessThreshold: cfg.BreakerSuccessThreshold,
			OpenTimeout:      cfg.BreakerOpenTimeout,
		},
		log.WithField("component", "user-resolver"),
		userdir.WithRecorder(orderMetrics),
	)
	catalogSvc := catalog.NewService(deps.items, deps.orders, orderMetrics, log.WithField("component", "catalog"))
	manager := orders.NewManager(deps.orders, catalogSvc, resolver,
		orders.WithMetrics(orderMetrics),
		orders.WithLogger(log.WithField("component", "order-manager")),
		orders.WithEnrichmentConcurrency(cfg.EnrichmentConcurrency),
	)
	guard := idempotency.NewGuard(deps.idempotency, cfg.IdempotencyTTL, orderMetrics, log.WithField("component", "idempotency-guard"))
	cleanupWorker := idempotency.NewCleanupWorker(deps.idempotency, orderMetrics, log.WithField("component", "idempotency-cleanup"),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	apiHandler := httptransport.NewRouter(
		httptransport.NewHandler(manager, catalogSvc, guard, log.WithField("layer", "http")),
		httptransport.RouterConfig{AllowedOrigins: cfg.CORSAllowedOrigins},
	)

	healthHandler := healthcheck.NewHandler(build.Version)
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	healthHandler.RegisterChecker("user-directory", userdir.HealthChecker(resolver))

	grpcServer, grpcHealth := newGRPCServer(logger)

	listeners, err := listen(cfg.GRPCAddr, cfg.HTTPAddr, cfg.MetricsAddr)
	if err != nil {
		return err
	}
	grpcLis, apiLis, metricsLis := listeners[0], listeners[1], listeners[2]

	apiSrv := &http.Server{Handler: apiHandler, ReadHeaderTimeout: readHeaderTimeout}
	metricsSrv := &http.Server{Handler: newMetricsMux(healthHandler), ReadHeaderTimeout: readHeaderTimeout}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("HTTP API слушает %s", apiLis.Addr())
		return serveHTTP(apiSrv, apiLis, "api")
	})
	g.Go(func() error {
		logger.Infof("метрики доступны по адресу %s/metrics", metricsLis.Addr())
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", metricsLis.Addr(), metricsLis.Addr(), metricsLis.Addr())
		return serveHTTP(metricsSrv, metricsLis, "metrics")
	})
	g.Go(func() error {
		cleanupWorker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем серверы")
		grpcHealth.Shutdown()
		stopGRPC(grpcServer, logger)
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// listen открывает все адреса или ни одного.
func listen(addrs ...string) ([]net.Listener, error) {
	listeners := make([]net.Listener, 0, len(addrs))
	for _, addr := range addrs {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			for _, opened := range listeners {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("listen %s: %w", addr, err)
		}
		listeners = append(listeners, lis)
	}
	return listeners, nil
}

// newGRPCServer создаёт gRPC-сервер со стандартным health-сервисом,
// reflection и Prometheus-интерсепторами.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(version.Service, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	return server, healthServer
}

// newMetricsMux отдаёт /metrics для Prometheus и health-эндпоинты.
func newMetricsMux(healthHandler *healthcheck.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	return mux
}

func serveHTTP(srv *http.Server, lis net.Listener, name string) error {
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

// stopGRPC ждёт завершения активных вызовов, но не дольше shutdownTimeout.
func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
