package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"

	"ms-settlement/internal/auth"
	"ms-settlement/internal/catalog/catalog_api"
	catalog "ms-settlement/internal/catalog/service"
	"ms-settlement/internal/clock"
	"ms-settlement/internal/config"
	"ms-settlement/internal/database"
	"ms-settlement/internal/database/migrations"
	"ms-settlement/internal/history/history_api"
	history "ms-settlement/internal/history/service"
	"ms-settlement/internal/inventory"
	redislock "ms-settlement/internal/inventory/redis"
	"ms-settlement/internal/kafka"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/payment/gateway"
	"ms-settlement/internal/payment/payment_api"
	payment "ms-settlement/internal/payment/service"
	"ms-settlement/internal/settlement"
	"ms-settlement/internal/sse"
	"ms-settlement/internal/statistics"
	"ms-settlement/internal/statistics/statistics_api"
	"ms-settlement/internal/tickets/qr"
	tickets "ms-settlement/internal/tickets/service"
	"ms-settlement/internal/tickets/ticket_api"
	"ms-settlement/internal/worker"
)

// publisher is what the services publish settlement outcomes through.
type publisher interface {
	tickets.EventPublisher
	Close() error
}

type noopCloser struct{ kafka.NoopPublisher }

func (noopCloser) Close() error { return nil }

// fanout hands every settlement event to each publisher in turn.
type fanout []tickets.EventPublisher

func (f fanout) PublishSettlementEvent(ctx context.Context, event models.SettlementEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishSettlementEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func migrate(ctx context.Context, bunDB *bun.DB, cfg config.DatabaseConfig, log *logger.Logger) error {
	if !cfg.AutoMigrate {
		log.Info("MIGRATE", "Auto migration disabled")
		return nil
	}
	if !database.IsPostgres(bunDB) {
		if err := database.CreateSchema(ctx, bunDB); err != nil {
			return err
		}
		log.LogDatabase("CREATE_SCHEMA", "*", "SQLite schema built from models")
		return nil
	}
	runner := migrations.NewRunner(bunDB.DB, migrations.MigrateOptions{MigrationsDir: cfg.MigrationsDir}, log)
	defer runner.Close()
	return runner.MigrateUp()
}

func zoneLocker(ctx context.Context, cfg *config.Config, log *logger.Logger) (inventory.ZoneLocker, func(), error) {
	if cfg.Settlement.LockBackend != "redis" {
		log.Info("LOCK", "Using in-process zone locks")
		return inventory.NewLocalLocker(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis connection error: %w", err)
	}
	log.Info("LOCK", fmt.Sprintf("Using Redis zone locks at %s (DB: %d)", cfg.Redis.Addr, cfg.Redis.DB))
	locker := redislock.NewLocker(client, cfg.Settlement.LockTTL, cfg.Settlement.LockWait, log)
	return locker, func() { client.Close() }, nil
}

func newPublisher(cfg config.KafkaConfig, log *logger.Logger) publisher {
	if !cfg.Enabled {
		log.Warn("KAFKA", "Kafka disabled, settlement events will not be published")
		return noopCloser{kafka.NoopPublisher{Log: log}}
	}
	if err := kafka.EnsureTopicsExist(cfg.Brokers, kafka.TopicNames(cfg.Topics), log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		log.Info("KAFKA", "Required topics ensured successfully")
	}
	log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %v", cfg.Brokers))
	return kafka.NewProducer(cfg.Brokers, cfg.Topics, log)
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, fmt.Sprint(ww.Status()), time.Since(start).String())
		})
	}
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting settlement service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Invalid configuration: %v", err))
	}
	log.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if err := migrate(ctx, bunDB, cfg.Database, log); err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("Schema migration failed: %v", err))
	}

	locker, closeLocker, err := zoneLocker(ctx, cfg, log)
	if err != nil {
		log.Fatal("LOCK", err.Error())
	}
	defer closeLocker()

	pub := newPublisher(cfg.Kafka, log)
	defer pub.Close()
	emitter := sse.NewEmitter()
	events := fanout{pub, emitter}

	clk := clock.System()
	ledger := inventory.NewLedger(locker, clk)
	qrGen := qr.NewQRGenerator(cfg.QR.Secret)

	gw, err := gateway.New(cfg.Settlement, clk, log)
	if err != nil {
		log.Fatal("PAYMENT", fmt.Sprintf("Payment gateway unavailable: %v", err))
	}
	log.Info("PAYMENT", fmt.Sprintf("Using %s payment gateway", cfg.Settlement.Gateway))

	catalogService := catalog.NewCatalogService(bunDB, ledger, clk, log)
	ticketService := tickets.NewTicketService(bunDB, ledger, events, qrGen, clk, log,
		tickets.WithReservationTTL(cfg.Settlement.ReservationTTL))
	paymentService := payment.NewPaymentService(bunDB, ledger, clk, log, cfg.Settlement.Currency)
	orchestrator := settlement.NewOrchestrator(bunDB, paymentService, gw, ledger, qrGen, events, clk, log)
	historyService := history.NewHistoryService(bunDB, clk, log)
	statisticsService := statistics.NewService(bunDB)

	verifier, err := auth.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Token verifier setup failed: %v", err))
	}
	if verifier == nil {
		log.Warn("AUTH", "No OIDC issuer or JWT secret configured, API is unauthenticated")
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, log))
		r.Route("/api/v1", func(r chi.Router) {
			catalog_api.NewHandler(catalogService, log).RegisterRoutes(r)
			ticket_api.NewHandler(ticketService, cfg.Settlement.Currency, log).RegisterRoutes(r)
			payment_api.NewHandler(orchestrator, paymentService, log).RegisterRoutes(r)
			history_api.NewHandler(historyService, log).RegisterRoutes(r)
			statistics_api.NewHandler(statisticsService, log).RegisterRoutes(r)
			sse.NewHandler(emitter, log).RegisterRoutes(r)
		})
		log.Info("ROUTER", "API routes registered under /api/v1")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP", fmt.Sprintf("Settlement service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Worker.Enabled {
		expiry := worker.NewExpiryWorker(paymentService, ticketService, clk, cfg.Worker.ExpiryInterval,
			cfg.Settlement.ReservationTTL, cfg.Worker.BatchSize, log)
		g.Go(func() error {
			expiry.Start(gctx)
			return nil
		})
	}

	if cfg.Kafka.Enabled && cfg.Kafka.Topics.PaymentRequests != "" {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.PaymentRequests, cfg.Kafka.GroupID, log)
		defer consumer.Close()
		g.Go(func() error {
			return consumer.Start(gctx, func(ctx context.Context, req models.PaymentRequest) error {
				_, err := orchestrator.CreateAndSettle(ctx, req)
				return err
			})
		})
	}

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	if err := g.Wait(); err != nil {
		log.Error("APP", fmt.Sprintf("Service stopped with error: %v", err))
		return
	}
	log.Info("APP", "Settlement service shutdown complete")
}
