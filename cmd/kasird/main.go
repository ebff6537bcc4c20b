package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/warung/kasir/internal/config"
	"github.com/warung/kasir/internal/db"
	"github.com/warung/kasir/internal/events"
	grpcserver "github.com/warung/kasir/internal/grpc"
	"github.com/warung/kasir/internal/httpapi"
	"github.com/warung/kasir/internal/metrics"
	"github.com/warung/kasir/internal/receipt"
	"github.com/warung/kasir/internal/repo"
	"github.com/warung/kasir/internal/sale"
	"github.com/warung/kasir/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logger.NewLoggerWithOptions(cfg.ServiceName, cfg.LogLevel, logger.Options{File: cfg.LogFile})
	defer log.Sync()

	log.Info("Kasir service starting", zap.String("db_driver", cfg.DBDriver))

	// Connect to database
	log.Info("Connecting to database...")
	database, err := db.Connect(cfg.DBDriver, cfg.DSN())
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	// Run migrations
	log.Info("Running database migrations...")
	if err := db.RunMigrations(database); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Initialize repositories
	catalogRepo := repo.NewCatalogRepository(database, log)
	inventoryRepo := repo.NewInventoryRepository(database, log)
	transactionRepo := repo.NewTransactionRepository(database, log)
	cashierRepo := repo.NewCashierRepository(database, log)

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)

	// Connect to RabbitMQ
	var sink events.Sink
	if cfg.RabbitMQURL == "" {
		log.Warn("RABBITMQ_URL not set, domain events will be discarded")
		sink = events.NewNoopPublisher(log)
	} else {
		log.Info("Connecting to RabbitMQ")
		publisher, err := events.NewPublisher(cfg.RabbitMQURL, log)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		sink = publisher
	}

	dispatcher, err := events.NewDispatcher(sink, cfg.EventWorkers, log)
	if err != nil {
		log.Fatal("Failed to start event dispatcher", zap.Error(err))
	}
	dispatcher.OnDrop(recorder.EventDropped)

	engine := sale.NewEngine(catalogRepo, inventoryRepo, transactionRepo, dispatcher, recorder, cfg.SaleTimeout, log)
	projector := receipt.NewProjector(transactionRepo, cashierRepo, log)

	// Create gRPC server
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(grpcserver.LoggingInterceptor(log)),
	)
	grpcserver.RegisterSaleService(grpcServer, grpcserver.NewSaleServer(engine, projector, catalogRepo, inventoryRepo, log))
	grpc_health_v1.RegisterHealthServer(grpcServer, grpcserver.NewHealthServer(database, dispatcher, log))

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatal("Failed to listen on gRPC port", zap.Error(err))
	}

	// Create HTTP server
	gin.SetMode(gin.ReleaseMode)
	handler := httpapi.NewHandler(engine, projector, catalogRepo, inventoryRepo, transactionRepo, cashierRepo, dispatcher, log)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      httpapi.NewRouter(handler, database, dispatcher, prometheus.DefaultGatherer, log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Starting gRPC server", zap.String("address", grpcListener.Addr().String()))
		return grpcServer.Serve(grpcListener)
	})

	g.Go(func() error {
		log.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		grpcServer.GracefulStop()

		// Sales still in flight have finished, so their events are queued by now.
		if err := dispatcher.Close(shutdownTimeout); err != nil {
			log.Error("Event publisher close error", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Server stopped")
}
