package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for the user service.
type Config struct {
	Port           string `yaml:"port"`
	AllowedOrigins string `yaml:"allowed_origins"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`

	Database      DatabaseConfig      `yaml:"database"`
	RabbitMQ      RabbitMQConfig      `yaml:"rabbitmq"`
	Email         EmailConfig         `yaml:"email"`
	Redis         RedisConfig         `yaml:"redis"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// RabbitMQConfig holds broker connection and retry settings.
type RabbitMQConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	VHost           string        `yaml:"vhost"`
	Heartbeat       time.Duration `yaml:"heartbeat"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	MaxRedeliveries int           `yaml:"max_redeliveries"`
}

// EmailConfig holds the MailerSend credentials and sender identity.
// An empty APIKey leaves the email gateway uninitialized.
type EmailConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	SenderEmail string        `yaml:"sender_email"`
	SenderName  string        `yaml:"sender_name"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RedisConfig is optional; without a URL the consumer tracks redeliveries in memory.
type RedisConfig struct {
	URL         string        `yaml:"url"`
	AttemptsTTL time.Duration `yaml:"attempts_ttl"`
}

// NotificationsConfig maps event types to provider-side template ids.
// Event types without an entry are rendered locally.
type NotificationsConfig struct {
	Templates map[string]string `yaml:"templates"`
}

// TelemetryConfig holds OpenTelemetry settings, read from the standard OTEL_*
// variables.
type TelemetryConfig struct {
	Disabled         bool          `yaml:"disabled"`
	ServiceName      string        `yaml:"service_name"`
	ServiceNamespace string        `yaml:"service_namespace"`
	ServiceVersion   string        `yaml:"service_version"`
	Environment      string        `yaml:"environment"`
	OTLPEndpoint     string        `yaml:"otlp_endpoint"`
	TracesSampler    string        `yaml:"traces_sampler"`
	MetricsInterval  time.Duration `yaml:"metrics_interval"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Port:           "5000",
		AllowedOrigins: "http://localhost:3000",
		LogLevel:       "info",
		LogFormat:      "text",
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "users",
			SSLMode: "disable",
		},
		RabbitMQ: RabbitMQConfig{
			Host:            "localhost",
			Port:            5672,
			User:            "guest",
			Password:        "guest",
			VHost:           "/",
			Heartbeat:       600 * time.Second,
			MaxRetries:      10,
			RetryDelay:      2 * time.Second,
			MaxRedeliveries: 5,
		},
		Email: EmailConfig{
			BaseURL:     "https://api.mailersend.com",
			SenderEmail: "noreply@example.com",
			SenderName:  "User Management System",
			Timeout:     10 * time.Second,
		},
		Redis: RedisConfig{
			AttemptsTTL: 24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			ServiceName:      "user-service",
			ServiceNamespace: "wailsalutem",
			ServiceVersion:   "1.0.0",
			Environment:      "production",
			OTLPEndpoint:     "localhost:4317",
			TracesSampler:    "always_on",
			MetricsInterval:  30 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_FILE, and finally environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
		log.Printf("✓ Loaded configuration file: %s", path)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Port, "PORT")
	setString(&cfg.AllowedOrigins, "ALLOWED_ORIGINS")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")

	setString(&cfg.Database.Host, "DB_HOST")
	setString(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.Name, "DB_NAME")
	setString(&cfg.Database.SSLMode, "DB_SSLMODE")

	setString(&cfg.RabbitMQ.Host, "RABBITMQ_HOST")
	setString(&cfg.RabbitMQ.User, "RABBITMQ_USER")
	setString(&cfg.RabbitMQ.Password, "RABBITMQ_PASSWORD")
	setString(&cfg.RabbitMQ.VHost, "RABBITMQ_VHOST")
	if err := setInt(&cfg.RabbitMQ.Port, "RABBITMQ_PORT"); err != nil {
		return err
	}
	if err := setInt(&cfg.RabbitMQ.MaxRetries, "RABBITMQ_MAX_RETRIES"); err != nil {
		return err
	}
	if err := setInt(&cfg.RabbitMQ.MaxRedeliveries, "RABBITMQ_MAX_REDELIVERIES"); err != nil {
		return err
	}
	if err := setDuration(&cfg.RabbitMQ.RetryDelay, "RABBITMQ_RETRY_DELAY"); err != nil {
		return err
	}
	if err := setDuration(&cfg.RabbitMQ.Heartbeat, "RABBITMQ_HEARTBEAT"); err != nil {
		return err
	}

	setString(&cfg.Email.APIKey, "MAILERSEND_API_TOKEN")
	setString(&cfg.Email.BaseURL, "MAILERSEND_BASE_URL")
	setString(&cfg.Email.SenderEmail, "SENDER_EMAIL")
	setString(&cfg.Email.SenderName, "SENDER_NAME")

	setString(&cfg.Redis.URL, "REDIS_URL")
	if err := setDuration(&cfg.Redis.AttemptsTTL, "REDIS_ATTEMPTS_TTL"); err != nil {
		return err
	}

	if err := setBool(&cfg.Telemetry.Disabled, "OTEL_SDK_DISABLED"); err != nil {
		return err
	}
	setString(&cfg.Telemetry.ServiceName, "OTEL_SERVICE_NAME")
	setString(&cfg.Telemetry.ServiceNamespace, "OTEL_SERVICE_NAMESPACE")
	setString(&cfg.Telemetry.ServiceVersion, "OTEL_SERVICE_VERSION")
	setString(&cfg.Telemetry.Environment, "ENVIRONMENT")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Telemetry.TracesSampler, "OTEL_TRACES_SAMPLER")
	if err := setDuration(&cfg.Telemetry.MetricsInterval, "OTEL_METRICS_EXPORT_INTERVAL"); err != nil {
		return err
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
