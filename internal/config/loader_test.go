package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
database:
  postgres:
    host: localhost
    port: 5432
    user: automation
    password: secret
    dbname: opsflow
    sslmode: disable
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Automation.Enabled)
	assert.Equal(t, 120, cfg.Automation.MaxActionsPerMinute)
	assert.Equal(t, 3, cfg.Automation.MaxLineageDepth)
	assert.Equal(t, 60*time.Second, cfg.Automation.RateLimitWindow)
	assert.Equal(t, 8, cfg.Automation.BusinessHours.StartHour)
	assert.Equal(t, 18, cfg.Automation.BusinessHours.EndHour)
	assert.Equal(t, "UTC", cfg.Automation.BusinessHours.Timezone)
	assert.Equal(t, "postgresql", cfg.Entities.Source)
	assert.Equal(t, "app_events", cfg.Broker.Kafka.EventTopic)
}

func TestLoadConfig_Overrides(t *testing.T) {
	body := minimalConfig + `
automation:
  enabled: false
  max_actions_per_minute: 10
  max_lineage_depth: 5
  business_hours:
    start_hour: 9
    end_hour: 17
    timezone: America/New_York
broker:
  type: kafka
  kafka:
    brokers: ["kafka:9092"]
    group_id: automation-worker
`
	cfg, err := LoadConfig(writeConfig(t, body))
	require.NoError(t, err)

	assert.False(t, cfg.Automation.Enabled)
	assert.Equal(t, 10, cfg.Automation.MaxActionsPerMinute)
	assert.Equal(t, 5, cfg.Automation.MaxLineageDepth)
	assert.Equal(t, "America/New_York", cfg.Automation.BusinessHours.Timezone)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Broker.Kafka.Brokers)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateStatic(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8080, ReadTimeoutSeconds: time.Second, WriteTimeoutSeconds: time.Second},
			Database: DatabaseConfig{Postgres: PostgresConfig{
				Host: "localhost", Port: 5432, User: "u", DBName: "db", SSLMode: "disable",
			}},
			Automation: AutomationConfig{
				MaxActionsPerMinute: 60,
				MaxLineageDepth:     3,
				BusinessHours:       BusinessHours{StartHour: 8, EndHour: 18, Timezone: "UTC"},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, field: "server.port"},
		{name: "unknown broker", mutate: func(c *Config) { c.Broker.Type = "rabbitmq" }, field: "broker.type"},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Broker.Type = "kafka" }, field: "broker.kafka.brokers"},
		{name: "missing postgres host", mutate: func(c *Config) { c.Database.Postgres.Host = "" }, field: "database.postgres.host"},
		{name: "bad sslmode", mutate: func(c *Config) { c.Database.Postgres.SSLMode = "sometimes" }, field: "database.postgres.sslmode"},
		{name: "negative rate limit", mutate: func(c *Config) { c.Automation.MaxActionsPerMinute = -1 }, field: "automation.max_actions_per_minute"},
		{name: "zero lineage depth", mutate: func(c *Config) { c.Automation.MaxLineageDepth = 0 }, field: "automation.max_lineage_depth"},
		{name: "inverted business hours", mutate: func(c *Config) { c.Automation.BusinessHours.StartHour = 19 }, field: "automation.business_hours"},
		{name: "unknown timezone", mutate: func(c *Config) { c.Automation.BusinessHours.Timezone = "Mars/Olympus" }, field: "automation.business_hours.timezone"},
		{name: "mongo source without uri", mutate: func(c *Config) { c.Entities.Source = "mongodb" }, field: "entities.source"},
		{name: "unknown entity source", mutate: func(c *Config) { c.Entities.Source = "csv" }, field: "entities.source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := ValidateStatic(cfg)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "'"+tt.field+"'")
		})
	}
}
