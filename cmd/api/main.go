package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/WailSalutem-Health-Care/user-service/internal/config"
	"github.com/WailSalutem-Health-Care/user-service/internal/db"
	"github.com/WailSalutem-Health-Care/user-service/internal/email"
	apphttp "github.com/WailSalutem-Health-Care/user-service/internal/http"
	"github.com/WailSalutem-Health-Care/user-service/internal/messaging"
	"github.com/WailSalutem-Health-Care/user-service/internal/notification"
	"github.com/WailSalutem-Health-Care/user-service/internal/telemetry"
	"github.com/WailSalutem-Health-Care/user-service/internal/users"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("user-service: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := telemetry.ConfigureLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.InitProvider(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Telemetry shutdown: %v", err)
		}
	}()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		return err
	}

	database, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close()

	broker := messaging.NewBroker(cfg.RabbitMQ)
	defer func() {
		if err := broker.Close(); err != nil {
			log.Errorf("Closing RabbitMQ: %v", err)
		}
	}()
	if err := broker.ConnectWithRetry(ctx, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay); err != nil {
		log.Warnf("Starting without RabbitMQ, events will not be published: %v", err)
	}

	gateway := email.NewGateway(cfg.Email, nil)
	publisher := messaging.NewUserEventPublisher(broker, metrics)

	tracker, closeTracker := newAttemptTracker(ctx, cfg.Redis)
	defer closeTracker()

	consumer := notification.NewConsumer(broker, gateway, notification.Options{
		MaxRedeliveries: cfg.RabbitMQ.MaxRedeliveries,
		Templates:       cfg.Notifications.Templates,
		Tracker:         tracker,
		Metrics:         metrics,
	})

	userService := users.NewService(users.NewRepository(database), publisher)
	router := apphttp.SetupRouter(apphttp.Dependencies{
		ServiceName: cfg.Telemetry.ServiceName,
		Users:       users.NewHandler(userService),
		Broker:      broker,
		Email:       gateway,
		Consumer:    consumer,
		Metrics:     metrics,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           apphttp.CORSMiddleware(cfg.AllowedOrigins)(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("user-service starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if broker.IsConnected() {
		g.Go(func() error {
			// The consumer is not restarted; the API keeps serving without it.
			if err := consumer.Run(gctx); err != nil {
				log.Errorf("Notification consumer exited: %v", err)
			}
			return nil
		})
	} else {
		log.Warn("Notification consumer not started: RabbitMQ unavailable")
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newAttemptTracker uses Redis when configured and reachable so replicas share
// redelivery counts; otherwise counts are kept in process.
func newAttemptTracker(ctx context.Context, cfg config.RedisConfig) (notification.AttemptTracker, func()) {
	noop := func() {}
	if cfg.URL == "" {
		return notification.NewMemoryTracker(), noop
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		log.Warnf("Invalid REDIS_URL, tracking redeliveries in memory: %v", err)
		return notification.NewMemoryTracker(), noop
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warnf("Redis unreachable, tracking redeliveries in memory: %v", err)
		client.Close()
		return notification.NewMemoryTracker(), noop
	}

	log.Println("✓ Redis redelivery tracker connected")
	return notification.NewRedisTracker(client, cfg.AttemptsTTL), func() { client.Close() }
}
