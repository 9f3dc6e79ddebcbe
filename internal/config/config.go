package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	NotifierMemory   = "memory"
	NotifierRabbitMQ = "rabbitmq"

	PrinterESCPOSTCP = "escpos-tcp"
	PrinterFile      = "file"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Notifier NotifierConfig `yaml:"notifier"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Auth     AuthConfig     `yaml:"auth"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Agent    AgentConfig    `yaml:"agent"`
	Printer  PrinterConfig  `yaml:"printer"`
	Control  ControlConfig  `yaml:"control"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DatabaseConfig selects the backend and holds its connection settings.
// Path is used by sqlite only.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Path            string        `yaml:"path"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	BusyTimeout     time.Duration `yaml:"busy_timeout"`
}

// NotifierConfig selects how new pending requests are pushed to agents.
type NotifierConfig struct {
	Driver string `yaml:"driver"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	NoColor      bool   `yaml:"no_color"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// AuthConfig holds bearer token validation settings. Tokens are issued
// elsewhere; the api-service only verifies them.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	Leeway    time.Duration `yaml:"leeway"`
}

// MonitorConfig holds web monitor settings of the api-service.
type MonitorConfig struct {
	DeviceIDPath  string        `yaml:"device_id_path"`
	SettingsPath  string        `yaml:"settings_path"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	DialogTimeout time.Duration `yaml:"dialog_timeout"`
	PrintWidth    int           `yaml:"print_width"`
}

// AgentConfig holds standalone print agent settings.
type AgentConfig struct {
	OwnerID           string        `yaml:"owner_id"`
	DeviceIDPath      string        `yaml:"device_id_path"`
	AutoStart         bool          `yaml:"auto_start"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	Concurrency       int           `yaml:"concurrency"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ConflictInterval  time.Duration `yaml:"conflict_interval"`
	StaleClaimAfter   time.Duration `yaml:"stale_claim_after"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// PrinterConfig describes the printer attached to a standalone agent.
type PrinterConfig struct {
	Driver         string        `yaml:"driver"`
	Name           string        `yaml:"name"`
	Address        string        `yaml:"address"`
	Port           int           `yaml:"port"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	IOTimeout      time.Duration `yaml:"io_timeout"`
	Width          int           `yaml:"width"`
	Copies         int           `yaml:"copies"`
	OutputDir      string        `yaml:"output_dir"`
	Format         string        `yaml:"format"`
}

// ControlConfig holds the agent's local control server settings.
type ControlConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Load reads and parses the configuration file, then applies secret
// overrides from the environment and defaults.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("RABBITMQ_PASSWORD"); v != "" {
		c.RabbitMQ.Password = v
	}
	if v := os.Getenv("AUTH_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
}

func (c *Config) applyDefaults() {
	setDuration(&c.Server.ShutdownTimeout, 10*time.Second)

	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Database.Driver == DriverPostgres && c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Notifier.Driver == "" {
		c.Notifier.Driver = NotifierMemory
	}
	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "topic"
	}

	setDuration(&c.Monitor.PollInterval, 30*time.Second)
	setDuration(&c.Monitor.DialogTimeout, 5*time.Minute)

	setDuration(&c.Agent.PollInterval, 5*time.Second)
	setDuration(&c.Agent.JobTimeout, 30*time.Second)
	setDuration(&c.Agent.RetryDelay, 2*time.Second)
	setDuration(&c.Agent.HeartbeatInterval, 30*time.Second)
	setDuration(&c.Agent.ConflictInterval, time.Minute)
	setDuration(&c.Agent.ShutdownTimeout, 30*time.Second)
	if c.Agent.Concurrency == 0 {
		c.Agent.Concurrency = 1
	}
	if c.Agent.MaxAttempts == 0 {
		c.Agent.MaxAttempts = 3
	}

	if c.Printer.Driver == "" {
		c.Printer.Driver = PrinterESCPOSTCP
	}
	if c.Printer.Driver == PrinterESCPOSTCP && c.Printer.Port == 0 {
		c.Printer.Port = 9100
	}
	if c.Printer.Copies == 0 {
		c.Printer.Copies = 1
	}

	if c.Control.Address == "" {
		c.Control.Address = "127.0.0.1:9310"
	}
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	return nil
}

func (c *Config) validateNotifier() error {
	switch c.Notifier.Driver {
	case NotifierMemory:
		return nil
	case NotifierRabbitMQ:
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}
		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}
		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
		return nil
	default:
		return fmt.Errorf("unsupported notifier driver %q", c.Notifier.Driver)
	}
}

// ValidateAPIConfig checks the settings the api-service needs.
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateNotifier(); err != nil {
		return err
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret is required")
	}

	if c.Monitor.PrintWidth < 0 {
		return fmt.Errorf("monitor print_width must not be negative")
	}

	return nil
}

// ValidateAgentConfig checks the settings the standalone print agent needs.
func (c *Config) ValidateAgentConfig() error {
	if c.Agent.OwnerID == "" {
		return fmt.Errorf("agent owner_id is required")
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateNotifier(); err != nil {
		return err
	}

	if c.Agent.Concurrency <= 0 {
		return fmt.Errorf("agent concurrency must be greater than 0")
	}

	if c.Agent.MaxAttempts <= 0 {
		return fmt.Errorf("agent max_attempts must be greater than 0")
	}

	if c.Agent.HeartbeatInterval >= domain.DeviceLivenessWindow {
		return fmt.Errorf("agent heartbeat_interval must be shorter than %s", domain.DeviceLivenessWindow)
	}

	switch c.Printer.Driver {
	case PrinterESCPOSTCP:
		if c.Printer.Address == "" {
			return fmt.Errorf("printer address is required")
		}
		if c.Printer.Port < MinPort || c.Printer.Port > MaxPort {
			return fmt.Errorf("invalid printer port: %d (must be between %d and %d)", c.Printer.Port, MinPort, MaxPort)
		}
	case PrinterFile:
		if c.Printer.OutputDir == "" {
			return fmt.Errorf("printer output_dir is required")
		}
		if c.Printer.Format != "" && c.Printer.Format != "text" && c.Printer.Format != "escpos" {
			return fmt.Errorf("unsupported printer format %q", c.Printer.Format)
		}
	default:
		return fmt.Errorf("unsupported printer driver %q", c.Printer.Driver)
	}

	if c.Printer.Copies < 1 {
		return fmt.Errorf("printer copies must be at least 1")
	}

	return nil
}
