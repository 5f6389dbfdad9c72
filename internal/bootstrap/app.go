package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/grpc"

	_ "github.com/go-sql-driver/mysql"

	"github.com/rl1809/marketplace/internal/adapter/event"
	"github.com/rl1809/marketplace/internal/adapter/handler"
	"github.com/rl1809/marketplace/internal/adapter/handler/middleware"
	"github.com/rl1809/marketplace/internal/adapter/mail"
	"github.com/rl1809/marketplace/internal/adapter/queue"
	"github.com/rl1809/marketplace/internal/adapter/storage"
	"github.com/rl1809/marketplace/internal/config"
	"github.com/rl1809/marketplace/internal/core/service"
	"github.com/rl1809/marketplace/internal/logging"
	"github.com/rl1809/marketplace/internal/port"
)

type store interface {
	port.ProductRepository
	port.OrderRepository
	port.UserRepository
	port.Pinger
}

// App holds the servers and background workers of one marketplace process.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer *http.Server
	grpcServer *grpc.Server
	health     *handler.HealthReporter
	dispatcher *service.Dispatcher
	hub        *handler.Hub

	// background loops started by Run and stopped with its context
	loops []func(ctx context.Context) error

	closers []func() error
}

// InitWithConfig connects every backend the configuration selects and wires the services.
// The returned cleanup releases connections in reverse order of acquisition.
func InitWithConfig(ctx context.Context, cfg config.Config) (*App, func(), error) {
	app := &App{cfg: cfg, logger: logging.New("bootstrap")}
	cleanup := func() {
		for i := len(app.closers) - 1; i >= 0; i-- {
			if err := app.closers[i](); err != nil {
				app.logger.Warn("close", "error", err)
			}
		}
	}

	if err := app.init(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return app, cleanup, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg
	checks := map[string]port.Pinger{}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	checks[cfg.Storage.Driver] = st

	notifier, err := a.openNotifier()
	if err != nil {
		return err
	}

	a.hub = handler.NewHub(cfg.HTTP.AllowOrigins)
	a.closers = append(a.closers, func() error { a.hub.Close(); return nil })
	events, err := a.openEvents()
	if err != nil {
		return err
	}

	rate, err := cfg.CommissionRate()
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	a.closers = append(a.closers, rdb.Close)
	redisAdapter := storage.NewRedisAdapter(rdb,
		storage.WithIdempotencyTTL(cfg.Idempotency.TTL),
		storage.WithAttemptPolicy(cfg.Delivery.MaxAttempts, cfg.Delivery.LockoutWindow),
	)
	if err := redisAdapter.Ping(ctx); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	checks["redis"] = redisAdapter
	a.logger.Info("connected to redis", "addr", cfg.Redis.Addr)

	// Nothing below can fail. Closers run in reverse, so queued
	// notifications drain before their transports close.
	a.dispatcher = service.NewDispatcher(cfg.Notify.QueueSize,
		service.WithRetries(cfg.Notify.MaxRetries),
		service.WithBackoff(cfg.Notify.RetryBackoff),
		service.WithJobTimeout(cfg.Notify.JobTimeout),
	)
	a.dispatcher.Start(cfg.Notify.Workers)
	a.closers = append(a.closers, func() error { a.dispatcher.Close(); return nil })

	delivery := service.NewDeliveryService(st, st, notifier, a.dispatcher,
		service.WithAttemptLimiter(redisAdapter),
		service.WithCodeTTL(cfg.Delivery.CodeTTL),
		service.WithDeliveryEvents(events),
	)
	checkout := service.NewCheckoutService(st, st, st, delivery, notifier, a.dispatcher,
		service.WithIdempotency(redisAdapter),
		service.WithCommissionRate(rate),
		service.WithCheckoutEvents(events),
	)
	catalog := service.NewCatalogService(st)
	ledger := service.NewLedgerService(st)

	router := handler.NewRouter(handler.RouterConfig{
		Auth: middleware.AuthConfig{
			Secret:   cfg.Security.JWTSecret,
			Issuer:   cfg.Security.Issuer,
			Audience: cfg.Security.Audience,
		},
		AllowOrigins:   cfg.HTTP.AllowOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Logger:         logging.New("http"),
		Checks:         checks,
	}, handler.Handlers{
		Catalog: handler.NewCatalogHandler(catalog),
		Order:   handler.NewOrderHandler(checkout, delivery, ledger),
		Ledger:  handler.NewLedgerHandler(ledger),
		Hub:     a.hub,
	})

	a.httpServer = &http.Server{
		Addr:         cfg.App.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	a.health = handler.NewHealthReporter(checks, 10*time.Second, logging.New("grpc"))
	a.grpcServer = handler.NewGRPCServer(a.health)
	return nil
}

func (a *App) openStore(ctx context.Context) (store, error) {
	cfg := a.cfg
	switch cfg.Storage.Driver {
	case "mysql":
		db, err := sqlx.Open("mysql", cfg.MySQL.DSN)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connect mysql: %w", err)
		}
		if cfg.MySQL.Migrate {
			if err := adapter.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migrate mysql: %w", err)
			}
		}
		a.logger.Info("connected to mysql")
		return adapter, nil

	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		a.closers = append(a.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(ctx)
		})

		adapter := storage.NewMongoAdapter(client, cfg.Mongo.Database)
		if err := adapter.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		if err := adapter.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		txn, err := adapter.DetectTransactions(ctx)
		if err != nil {
			return nil, fmt.Errorf("mongo topology: %w", err)
		}
		a.logger.Info("connected to mongo", "database", cfg.Mongo.Database, "transactions", txn)
		return adapter, nil

	case "memory":
		a.logger.Warn("using in-memory store, data is lost on restart")
		return storage.NewMemoryAdapter(), nil
	}
	return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
}

// openNotifier returns the notifier the services publish to. With rabbitmq the
// same process also consumes the queues and delivers them by mail.
func (a *App) openNotifier() (port.Notifier, error) {
	cfg := a.cfg
	switch cfg.Notify.Driver {
	case "log":
		return mail.NewLogNotifier(), nil

	case "mail":
		return a.openMailer()

	case "rabbitmq":
		mailer, err := a.openMailer()
		if err != nil {
			return nil, err
		}

		conn, err := amqp.Dial(cfg.Rabbit.URL)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		a.closers = append(a.closers, conn.Close)

		pubCh, err := conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("open publish channel: %w", err)
		}
		producer, err := queue.NewRabbitNotifier(pubCh, cfg.Rabbit.Exchange)
		if err != nil {
			return nil, err
		}

		subCh, err := conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("open consume channel: %w", err)
		}
		consumer := queue.NewRouter(subCh,
			queue.WithPrefetch(cfg.Rabbit.Prefetch),
			queue.WithTimeout(cfg.Rabbit.Timeout),
		)
		queue.RegisterNotifications(consumer, mailer)
		if err := consumer.Start(); err != nil {
			return nil, fmt.Errorf("start notification consumer: %w", err)
		}
		a.logger.Info("notifications routed through rabbitmq", "exchange", cfg.Rabbit.Exchange)
		return producer, nil
	}
	return nil, fmt.Errorf("unsupported notify driver %q", cfg.Notify.Driver)
}

func (a *App) openMailer() (*mail.Notifier, error) {
	m := a.cfg.Mail
	client, err := mail.NewSMTPClient(mail.Options{
		Host:     m.Host,
		Port:     m.Port,
		Username: m.Username,
		Password: m.Password,
		From:     m.From,
		TLS:      m.TLS,
	})
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return mail.NewNotifier(client, m.From), nil
}

// openEvents publishes straight to the websocket hub, or through Kafka when enabled.
// With Kafka every instance consumes the topic in its own group and feeds its local hub.
func (a *App) openEvents() (port.EventPublisher, error) {
	cfg := a.cfg.Kafka
	if !cfg.Enabled {
		return a.hub, nil
	}

	producer, err := event.NewSyncProducer(cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	publisher := event.NewKafkaPublisher(producer, cfg.TopicEvents)
	a.closers = append(a.closers, publisher.Close)

	host, _ := os.Hostname()
	group, err := event.NewGroup(cfg.Brokers, cfg.GroupID+"-"+host)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer group: %w", err)
	}
	a.closers = append(a.closers, group.Close)

	consumer := event.NewConsumer(group, []string{cfg.TopicEvents}, a.hub.PublishOrderEvent)
	a.loops = append(a.loops, consumer.Start)
	a.logger.Info("order events routed through kafka", "topic", cfg.TopicEvents)
	return publisher, nil
}

// Run serves HTTP and gRPC until ctx is cancelled, then shuts both down gracefully.
func (a *App) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", a.cfg.App.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2+len(a.loops))
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.health.Run(ctx)
	}()

	for _, loop := range a.loops {
		wg.Add(1)
		go func(loop func(context.Context) error) {
			defer wg.Done()
			if err := loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}(loop)
	}

	go func() {
		a.logger.Info("gRPC server listening", "addr", a.cfg.App.GRPCAddr)
		if err := a.grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	go func() {
		a.logger.Info("HTTP server listening", "addr", a.cfg.App.HTTPAddr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		a.logger.Error("server failed", "error", runErr)
	}

	a.logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", "error", err)
	}
	a.logger.Info("HTTP server stopped")

	a.grpcServer.GracefulStop()
	a.logger.Info("gRPC server stopped")

	cancel()
	wg.Wait()
	return runErr
}
