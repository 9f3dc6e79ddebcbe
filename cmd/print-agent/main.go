package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/print-relay/internal/agent"
	"github.com/cuongbtq/print-relay/internal/agent/control"
	"github.com/cuongbtq/print-relay/internal/config"
	"github.com/cuongbtq/print-relay/internal/notes"
	"github.com/cuongbtq/print-relay/internal/printer"
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

	defaultConfigPath := os.Getenv("PRINT_AGENT_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/print-agent/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	printAll := flag.Bool("print-all", false, "Print every pending request once and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAgentConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting print agent",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("owner_id", cfg.Agent.OwnerID),
	)

	db, closeDB, err := initDatabase(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeDB()

	if err := ensureSchema(db); err != nil {
		return err
	}

	notifier, closeNotifier, err := initNotifier(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}
	defer closeNotifier()

	deviceID, err := agent.LoadDeviceID(cfg.Agent.DeviceIDPath)
	if err != nil {
		return fmt.Errorf("failed to load device id: %w", err)
	}

	store := storage.NewStore(&storage.Config{
		DB:       db,
		Logger:   appLogger.Component("print_queue"),
		Notes:    notes.NewStore(db, appLogger.Component("notes"), nil),
		Notifier: notifier,
	})

	printAgent := agent.NewStandaloneAgent(&agent.StandaloneConfig{
		OwnerID:           cfg.Agent.OwnerID,
		DeviceID:          deviceID,
		Store:             store,
		Devices:           storage.NewDeviceRegistry(db, appLogger.Component("devices"), nil),
		Driver:            initPrinter(&cfg.Printer, appLogger.Logger),
		Logger:            appLogger.Logger,
		PollInterval:      cfg.Agent.PollInterval,
		Concurrency:       cfg.Agent.Concurrency,
		JobTimeout:        cfg.Agent.JobTimeout,
		MaxAttempts:       cfg.Agent.MaxAttempts,
		RetryDelay:        cfg.Agent.RetryDelay,
		HeartbeatInterval: cfg.Agent.HeartbeatInterval,
		ConflictInterval:  cfg.Agent.ConflictInterval,
		StaleClaimAfter:   cfg.Agent.StaleClaimAfter,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *printAll {
		result, err := printAgent.PrintAllPending(ctx)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	if cfg.Agent.AutoStart {
		if err := printAgent.Start(ctx); err != nil {
			return fmt.Errorf("failed to start agent: %w", err)
		}
		go watchConflicts(ctx, printAgent, appLogger.Logger)
	} else {
		appLogger.Info("Auto start disabled, waiting for print-all requests")
	}

	var srv *http.Server
	errChan := make(chan error, 1)
	if cfg.Control.Enabled {
		gin.SetMode(gin.ReleaseMode)
		srv = &http.Server{
			Addr:              cfg.Control.Address,
			Handler:           control.NewRouter(printAgent, appLogger.Component("control")),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()
		appLogger.Info("Control server listening", slog.String("address", cfg.Control.Address))
	}

	select {
	case <-ctx.Done():
		appLogger.Info("Received signal, shutting down gracefully")
	case err := <-errChan:
		appLogger.Error("Control server failed", slog.Any("error", err))
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Agent.ShutdownTimeout)
	defer shutdownCancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Control server forced to shutdown", slog.Any("error", err))
		}
	}

	if cfg.Agent.AutoStart {
		done := make(chan struct{})
		go func() {
			printAgent.Stop()
			close(done)
		}()

		select {
		case <-done:
		case <-shutdownCtx.Done():
			appLogger.Warn("Agent shutdown timeout exceeded, forcing exit")
		}
	}

	appLogger.Info("Print agent shutdown complete")
	return nil
}

// watchConflicts logs every flip of the multiple-devices warning.
func watchConflicts(ctx context.Context, a *agent.StandaloneAgent, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case multiple := <-a.ConflictChanges():
			if multiple {
				logger.Warn("Another device is printing for this owner; requests may be split between them")
			} else {
				logger.Info("This device is the only active printer for its owner again")
			}
		}
	}
}

// initPrinter builds the configured printer driver
func initPrinter(cfg *config.PrinterConfig, logger *slog.Logger) printer.Driver {
	if cfg.Driver == config.PrinterFile {
		return printer.NewFileDriver(cfg.OutputDir, cfg.Format, cfg.Width, logger)
	}

	return printer.NewTCPDriver(printer.TCPConfig{
		Name:           cfg.Name,
		Address:        cfg.Address,
		Port:           cfg.Port,
		ConnectTimeout: cfg.ConnectTimeout,
		IOTimeout:      cfg.IOTimeout,
		Width:          cfg.Width,
		Copies:         cfg.Copies,
	}, logger)
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
	if cfg.Driver == config.DriverSQLite {
		client, err := sqlite.NewClient(&sqlite.Config{
			Path:        cfg.Path,
			BusyTimeout: cfg.BusyTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return client.GetDB(), func() { client.Close() }, nil
	}

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

// initNotifier subscribes to RabbitMQ when the api-service publishes there;
// otherwise the agent relies on polling.
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
