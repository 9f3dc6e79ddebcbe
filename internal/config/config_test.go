package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid api config",
			filePath: "testdata/api_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
				assert.Equal(t, DriverPostgres, cfg.Database.Driver)
				assert.Equal(t, "print_relay", cfg.Database.Database)
				assert.Equal(t, NotifierRabbitMQ, cfg.Notifier.Driver)
				assert.Equal(t, "print_requests", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "print-relay-api", cfg.App.Name)
				assert.Equal(t, 20*time.Second, cfg.Monitor.PollInterval)
				assert.Equal(t, 48, cfg.Monitor.PrintWidth)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/agent_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Zero(t, cfg.Database.Port)
	assert.Equal(t, NotifierMemory, cfg.Notifier.Driver)

	assert.Equal(t, 3*time.Second, cfg.Agent.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Agent.JobTimeout)
	assert.Equal(t, 3, cfg.Agent.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Agent.HeartbeatInterval)
	assert.Equal(t, time.Minute, cfg.Agent.ConflictInterval)
	assert.Equal(t, 10*time.Minute, cfg.Agent.StaleClaimAfter)
	assert.True(t, cfg.Agent.AutoStart)

	assert.Equal(t, PrinterESCPOSTCP, cfg.Printer.Driver)
	assert.Equal(t, 9100, cfg.Printer.Port)
	assert.Equal(t, 2, cfg.Printer.Copies)
	assert.Equal(t, "127.0.0.1:9310", cfg.Control.Address)

	assert.Equal(t, 30*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.DialogTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_PASSWORD", "env-db")
	t.Setenv("RABBITMQ_PASSWORD", "env-mq")
	t.Setenv("AUTH_JWT_SECRET", "env-secret")

	cfg, err := Load("testdata/api_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "env-db", cfg.Database.Password)
	assert.Equal(t, "env-mq", cfg.RabbitMQ.Password)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
}

func TestValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "invalid server port"},
		{name: "missing db host", mutate: func(c *Config) { c.Database.Host = "" }, wantErr: "database host is required"},
		{name: "unknown db driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "unsupported database driver"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database.Driver = DriverSQLite }, wantErr: "database path is required"},
		{name: "missing exchange", mutate: func(c *Config) { c.RabbitMQ.Exchange.Name = "" }, wantErr: "rabbitmq exchange name is required"},
		{name: "memory notifier needs no broker", mutate: func(c *Config) {
			c.Notifier.Driver = NotifierMemory
			c.RabbitMQ.Host = ""
		}},
		{name: "unknown notifier", mutate: func(c *Config) { c.Notifier.Driver = "kafka" }, wantErr: "unsupported notifier driver"},
		{name: "missing secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, wantErr: "jwt_secret is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("testdata/api_config.yaml")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.ValidateAPIConfig()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAgentConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing owner", mutate: func(c *Config) { c.Agent.OwnerID = "" }, wantErr: "owner_id is required"},
		{name: "missing printer address", mutate: func(c *Config) { c.Printer.Address = "" }, wantErr: "printer address is required"},
		{name: "heartbeat slower than liveness window", mutate: func(c *Config) { c.Agent.HeartbeatInterval = 3 * time.Minute }, wantErr: "heartbeat_interval"},
		{name: "file printer", mutate: func(c *Config) {
			c.Printer.Driver = PrinterFile
			c.Printer.OutputDir = "/tmp/spool"
		}},
		{name: "file printer without dir", mutate: func(c *Config) { c.Printer.Driver = PrinterFile }, wantErr: "output_dir is required"},
		{name: "file printer bad format", mutate: func(c *Config) {
			c.Printer.Driver = PrinterFile
			c.Printer.OutputDir = "/tmp/spool"
			c.Printer.Format = "pdf"
		}, wantErr: "unsupported printer format"},
		{name: "unknown printer driver", mutate: func(c *Config) { c.Printer.Driver = "usb" }, wantErr: "unsupported printer driver"},
		{name: "negative copies", mutate: func(c *Config) { c.Printer.Copies = -1 }, wantErr: "copies must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("testdata/agent_config.yaml")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.ValidateAgentConfig()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
