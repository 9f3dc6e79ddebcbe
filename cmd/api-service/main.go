package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/print-relay/internal/agent"
	"github.com/cuongbtq/print-relay/internal/api/auth"
	"github.com/cuongbtq/print-relay/internal/api/handler"
	"github.com/cuongbtq/print-relay/internal/api/router"
	"github.com/cuongbtq/print-relay/internal/config"
	"github.com/cuongbtq/print-relay/internal/notes"
	"github.com/cuongbtq/print-relay/internal/printqueue/notify"
	"github.com/cuongbtq/print-relay/internal/printqueue/storage"
	"github.com/cuongbtq/print-relay/shared/logger"
	"github.com/cuongbtq/print-relay/shared/postgresql"
	"github.com/cuongbtq/print-relay/shared/rabbitmq"
	"github.com/cuongbtq/print-relay/shared/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	db, closeDB, err := initDatabase(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeDB()

	appLogger.Info("Database connection established", slog.String("driver", cfg.Database.Driver))

	if err := ensureSchema(db); err != nil {
		return err
	}

	notifier, closeNotifier, err := initNotifier(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}
	defer closeNotifier()

	store := storage.NewStore(&storage.Config{
		DB:       db,
		Logger:   appLogger.Component("print_queue"),
		Notes:    notes.NewStore(db, appLogger.Component("notes"), nil),
		Notifier: notifier,
	})
	devices := storage.NewDeviceRegistry(db, appLogger.Component("devices"), nil)

	deviceID, err := agent.LoadDeviceID(cfg.Monitor.DeviceIDPath)
	if err != nil {
		return fmt.Errorf("failed to load device id: %w", err)
	}

	settings, err := agent.OpenSettingsStore(cfg.Monitor.SettingsPath)
	if err != nil {
		return fmt.Errorf("failed to open monitor settings: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitors := agent.NewMonitorRegistry(ctx, agent.MonitorRegistryConfig{
		DeviceID:      deviceID,
		Store:         store,
		Devices:       devices,
		Settings:      settings,
		Logger:        appLogger.Logger,
		PollInterval:  cfg.Monitor.PollInterval,
		DialogTimeout: cfg.Monitor.DialogTimeout,
		PrintWidth:    cfg.Monitor.PrintWidth,
	})
	defer monitors.Close()

	r := initRouter(cfg, &handler.Dependencies{
		Logger:   appLogger.Logger,
		Store:    store,
		Devices:  devices,
		Monitors: monitors,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.String("device_id", deviceID),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Server failed", slog.Any("error", err))
		return err
	}

	// Event streams only end when their request context does.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		NoColor:      cfg.NoColor,
	})
}

// initDatabase opens the configured backend and returns its handle with a
// close function.
func initDatabase(cfg *config.DatabaseConfig, logger *slog.Logger) (*sqlx.DB, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		client, err := sqlite.NewClient(&sqlite.Config{
			Path:        cfg.Path,
			BusyTimeout: cfg.BusyTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return client.GetDB(), func() { client.Close() }, nil
	default:
		client, err := postgresql.NewClient(&postgresql.Config{
			Host:            cfg.Host,
			Port:            cfg.Port,
			User:            cfg.User,
			Password:        cfg.Password,
			Database:        cfg.Database,
			SSLMode:         cfg.SSLMode,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
			ConnectTimeout:  cfg.ConnectTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return client.GetDB(), func() { client.Close() }, nil
	}
}

func ensureSchema(db *sqlx.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := notes.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("failed to create notes schema: %w", err)
	}
	if err := storage.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("failed to create print queue schema: %w", err)
	}
	return nil
}

// initNotifier returns the in-process broker or a RabbitMQ-backed notifier.
func initNotifier(cfg *config.Config, logger *slog.Logger) (notify.Notifier, func(), error) {
	if cfg.Notifier.Driver != config.NotifierRabbitMQ {
		broker := notify.NewBroker(logger)
		return broker, func() { broker.Close() }, nil
	}

	client, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:              cfg.RabbitMQ.Host,
		Port:              cfg.RabbitMQ.Port,
		User:              cfg.RabbitMQ.User,
		Password:          cfg.RabbitMQ.Password,
		VHost:             cfg.RabbitMQ.VHost,
		ExchangeName:      cfg.RabbitMQ.Exchange.Name,
		ExchangeType:      cfg.RabbitMQ.Exchange.Type,
		ExchangeDurable:   cfg.RabbitMQ.Exchange.Durable,
		RetryAttempts:     cfg.RabbitMQ.Connection.RetryAttempts,
		RetryInterval:     cfg.RabbitMQ.Connection.RetryInterval,
		Heartbeat:         cfg.RabbitMQ.Connection.Heartbeat,
		PublishRetries:    cfg.RabbitMQ.Publish.RetryAttempts,
		PublishRetryDelay: cfg.RabbitMQ.Publish.RetryInterval,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("RabbitMQ connection established")
	return notify.NewRabbitNotifier(client, logger), func() { client.Close() }, nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, deps *handler.Dependencies) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	verifier := auth.NewVerifier(auth.Config{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
		Leeway: cfg.Auth.Leeway,
	})

	return router.SetupRouter(deps, router.Options{
		Verifier:       verifier,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ServiceName:    cfg.App.Name,
	})
}
