package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/api"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/config"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/consumer"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/events"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/gateway"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/idempotency"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/repository"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/service"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/sharding"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/migrations"
)

const paymentResultsGroup = "order-saga-payment-results"

type stores struct {
	orders    repository.OrderRepository
	inventory repository.InventoryLedger
	payments  repository.PaymentRepository
	products  repository.ProductRepository
	users     repository.UserRepository
}

func connectDBEnv(host, port, user, pass, dbname string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)

	var db *sql.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sql.Open("mysql", dsn)
		if err == nil {
			err = db.Ping()
			if err == nil {
				log.Info().Msgf("Connected to DB %s", dbname)
				return db, nil
			}
			db.Close()
		}
		log.Warn().Msgf("Retry %d: Failed to connect to DB %s (%s:%s): %v", i+1, dbname, host, port, err)
		time.Sleep(3 * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to DB %s at %s:%s after retries: %w", dbname, host, port, err)
}

func openStores(cfg config.Config, closers *[]io.Closer) (stores, error) {
	if cfg.Store != "mysql" {
		return stores{
			orders:    repository.NewMemoryOrderRepository(),
			inventory: repository.NewMemoryInventoryLedger(sharding.NewShardRouter(cfg.LockStripes)),
			payments:  repository.NewMemoryPaymentRepository(),
			products:  repository.NewMemoryProductRepository(),
			users:     repository.NewMemoryUserRepository(),
		}, nil
	}

	catalog, err := connectDBEnv(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)
	if err != nil {
		return stores{}, err
	}
	*closers = append(*closers, catalog)

	shardNames := cfg.OrderShards
	if len(shardNames) == 0 {
		shardNames = []string{cfg.DBName}
	}
	shards := make([]*sql.DB, 0, len(shardNames))
	for _, name := range shardNames {
		if name == cfg.DBName {
			shards = append(shards, catalog)
			continue
		}
		db, err := connectDBEnv(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, name)
		if err != nil {
			return stores{}, err
		}
		*closers = append(*closers, db)
		shards = append(shards, db)
	}

	if err := migrations.AutoMigrateCatalog(3, catalog); err != nil {
		return stores{}, fmt.Errorf("migrate catalog tables: %w", err)
	}
	if err := migrations.AutoMigrateOrders(3, shards...); err != nil {
		return stores{}, fmt.Errorf("migrate order tables: %w", err)
	}

	return stores{
		orders:    repository.NewMySQLOrderRepository(shards, sharding.NewShardRouter(len(shards))),
		inventory: repository.NewMySQLInventoryLedger(catalog),
		payments:  repository.NewMySQLPaymentRepository(catalog),
		products:  repository.NewMySQLProductRepository(catalog),
		users:     repository.NewMySQLUserRepository(catalog),
	}, nil
}

// openKeyStores returns the idempotency store and the product cache.
func openKeyStores(cfg config.Config, closers *[]io.Closer) (idempotency.Store, idempotency.Store) {
	if cfg.RedisAddr == "" {
		return idempotency.NewMemoryStore(), idempotency.NewMemoryStore()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	*closers = append(*closers, rdb)
	return idempotency.NewRedisStore(rdb, idempotency.KeyPrefix), idempotency.NewRedisStore(rdb, "cache:")
}

func openPublisher(cfg config.Config, logger zerolog.Logger) (events.Publisher, error) {
	switch cfg.EventBroker {
	case "kafka":
		return events.NewKafkaPublisher(config.NewKafkaWriter(cfg.KafkaBrokers, cfg.OrderEventsTopic)), nil
	case "rabbitmq":
		return events.NewRabbitPublisher(cfg.RabbitMQURL, cfg.OrderExchange)
	case "log", "":
		return events.NewLogPublisher(logger), nil
	}
	return nil, fmt.Errorf("unknown EVENT_BROKER %q", cfg.EventBroker)
}

func openGateway(cfg config.Config) gateway.Gateway {
	if cfg.PaymentGateway == "http" {
		return gateway.NewHTTPGateway(cfg.PaymentGatewayURL, cfg.PaymentTimeout)
	}
	return gateway.NewSimulatedGateway(gateway.SimulatedConfig{
		Latency:           cfg.PaymentSimLatency,
		FailureRate:       cfg.PaymentSimFailureRate,
		RefundFailureRate: cfg.RefundSimFailureRate,
	})
}

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	log.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				log.Error().Err(err).Msg("Error closing resource")
			}
		}
	}()

	repos, err := openStores(cfg, &closers)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open stores")
	}
	keys, cache := openKeyStores(cfg, &closers)

	publisher, err := openPublisher(cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open event publisher")
	}
	closers = append(closers, publisher)

	inventoryService := service.NewInventoryService(repos.inventory, repos.products)
	productService := service.NewProductService(repos.products, cache)
	authService := service.NewAuthService(repos.users, cfg.JWTSecret, cfg.JWTTTL)
	orderService := service.NewOrderService(repos.orders, repos.products, inventoryService, publisher, keys, cfg.IdempotencyTTL)
	paymentService := service.NewPaymentService(repos.payments, orderService, openGateway(cfg), publisher, keys, cfg.PaymentTimeout)
	orderService.SetPaymentCoordinator(paymentService)

	if cfg.SeedDemoData {
		if err := seedDemoData(ctx, authService, productService, inventoryService); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed demo data")
		}
	}

	consumerDone := make(chan struct{})
	if cfg.EventBroker == "kafka" && cfg.PaymentResultsTopic != "" {
		reader := config.NewKafkaReader(cfg.KafkaBrokers, cfg.PaymentResultsTopic, paymentResultsGroup)
		go func() {
			defer close(consumerDone)
			if err := consumer.NewConsumer(reader, paymentService).Run(ctx); err != nil {
				log.Error().Err(err).Msg("Payment result consumer failed")
			}
		}()
	} else {
		close(consumerDone)
	}

	e := api.NewRouter(api.RouterConfig{
		BasePath:       cfg.BasePath,
		JWTSecret:      cfg.JWTSecret,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Logger:         logger,
	}, api.Handlers{
		Auth:      api.NewAuthHandler(authService),
		Products:  api.NewProductHandler(productService),
		Inventory: api.NewInventoryHandler(inventoryService),
		Orders:    api.NewOrderHandler(orderService),
		Payments:  api.NewPaymentHandler(paymentService),
	})

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.Store).Str("broker", cfg.EventBroker).Msg("Order service listening")
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down HTTP server")
	}
	<-consumerDone
	paymentService.Close()
}
