package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"expensetracker/internal/core"
)

// ConfigFileEnv names the environment variable pointing at an optional
// config file (toml, yaml or json, chosen by extension).
const ConfigFileEnv = "EXPENSES_CONFIG"

type Config struct {
	// HTTP Server
	Host            string
	Port            string
	ShutdownTimeout time.Duration

	// Database
	SQLiteDBPath string

	// Logging
	LogLevel  string
	LogFormat string

	// Preset categories offered by the forms
	Categories []string

	// AMQP, optional
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string
}

var keys = map[string]string{
	"host":             "HOST",
	"port":             "PORT",
	"shutdown_timeout": "SHUTDOWN_TIMEOUT",
	"sqlite_db_path":   "SQLITE_DB_PATH",
	"log_level":        "LOG_LEVEL",
	"log_format":       "LOG_FORMAT",
	"categories":       "CATEGORIES",
	"amqp_url":         "AMQP_URL",
	"amqp_exchange":    "AMQP_EXCHANGE",
	"amqp_routing_key": "AMQP_ROUTING_KEY",
}

// Load reads defaults, then the optional config file, then the environment.
// Later sources win.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", "8081")
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("sqlite_db_path", "./data/expenses.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("categories", strings.Join(core.DefaultCategories, ","))
	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "expenses")
	v.SetDefault("amqp_routing_key", "expense.events")

	for key, env := range keys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	return &Config{
		Host:            strings.TrimSpace(v.GetString("host")),
		Port:            strings.TrimSpace(v.GetString("port")),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		SQLiteDBPath:    strings.TrimSpace(v.GetString("sqlite_db_path")),
		LogLevel:        strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		LogFormat:       strings.ToLower(strings.TrimSpace(v.GetString("log_format"))),
		Categories:      splitList(v.Get("categories")),
		AMQPURL:         strings.TrimSpace(v.GetString("amqp_url")),
		AMQPExchange:    strings.TrimSpace(v.GetString("amqp_exchange")),
		AMQPRoutingKey:  strings.TrimSpace(v.GetString("amqp_routing_key")),
	}, nil
}

// splitList accepts a comma separated string (env) or a list (config file).
func splitList(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case string:
		parts = strings.Split(val, ",")
	case []string:
		parts = val
	case []any:
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// AMQPEnabled reports whether change events should be published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.Host == "" {
		errors = append(errors, "host cannot be empty")
	}

	if c.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %s: must be positive", c.ShutdownTimeout))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}

	validFormats := []string{"text", "json"}
	if !slices.Contains(validFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validFormats))
	}

	if len(c.Categories) == 0 {
		errors = append(errors, "at least one category is required")
	}
	if slices.Contains(c.Categories, core.AllCategories) {
		errors = append(errors, fmt.Sprintf("category '%s' is reserved for the filter", core.AllCategories))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRoutingKey == "" {
			errors = append(errors, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}
