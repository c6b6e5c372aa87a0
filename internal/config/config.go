package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"equipment-booking-backend/internal/service"
)

// Config represents the application configuration
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Log           LogConfig           `yaml:"log"`
	AMQP          AMQPConfig          `yaml:"amqp"`
	Redis         RedisConfig         `yaml:"redis"`
	Mail          MailConfig          `yaml:"mail"`
	Events        EventsConfig        `yaml:"events"`
	BusinessHours BusinessHoursConfig `yaml:"business_hours"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// AMQPConfig points at the broker carrying booking events. An empty URL
// disables publishing.
type AMQPConfig struct {
	URL      string `yaml:"url"`
	Queue    string `yaml:"queue"`
	Prefetch int    `yaml:"prefetch"`
}

// RedisConfig enables the pricing rule cache. An empty Addr disables it.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// MailConfig selects how customer notifications are delivered.
type MailConfig struct {
	Provider string         `yaml:"provider"` // "sendgrid", "smtp" or "log"
	SendGrid SendGridConfig `yaml:"sendgrid"`
	SMTP     SMTPConfig     `yaml:"smtp"`
}

type SendGridConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// SMTPConfig contains email service settings
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type EventsConfig struct {
	PublishTimeoutSeconds int `yaml:"publish_timeout_seconds"`
}

// BusinessHoursConfig bounds the slots offered by free-slot search.
type BusinessHoursConfig struct {
	Location  string   `yaml:"location"` // IANA zone, e.g. "Europe/Berlin"
	OpenHour  int      `yaml:"open_hour"`
	CloseHour int      `yaml:"close_hour"`
	Weekdays  []string `yaml:"weekdays"` // "monday" ... "sunday"
}

// SchedulerConfig contains cron schedule settings (with seconds field)
type SchedulerConfig struct {
	RefreshAvailability string `yaml:"refresh_availability"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the /metrics listener
}

// Load reads configuration from a YAML file. A .env file in the working
// directory, when present, is loaded into the environment first.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// AMQP
	if val := os.Getenv("AMQP_URL"); val != "" {
		c.AMQP.URL = val
	}
	if val := os.Getenv("AMQP_QUEUE"); val != "" {
		c.AMQP.Queue = val
	}

	// Redis
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		c.Redis.Password = val
	}

	// Mail
	if val := os.Getenv("MAIL_PROVIDER"); val != "" {
		c.Mail.Provider = val
	}
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Mail.SendGrid.APIKey = val
	}
	if val := os.Getenv("SMTP_HOST"); val != "" {
		c.Mail.SMTP.Host = val
	}
	if val := os.Getenv("SMTP_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Mail.SMTP.Port)
	}
	if val := os.Getenv("SMTP_USER"); val != "" {
		c.Mail.SMTP.User = val
	}
	if val := os.Getenv("SMTP_PASSWORD"); val != "" {
		c.Mail.SMTP.Password = val
	}

	// Business hours
	if val := os.Getenv("BUSINESS_HOURS_LOCATION"); val != "" {
		c.BusinessHours.Location = val
	}

	// Metrics
	if val := os.Getenv("METRICS_ADDR"); val != "" {
		c.Metrics.Addr = val
	}
}

// Validate checks if the configuration is valid and fills defaults
func (c *Config) Validate() error {
	// Database validation
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	// AMQP defaults
	if c.AMQP.Prefetch <= 0 {
		c.AMQP.Prefetch = 50
	}

	if c.Redis.TTLSeconds <= 0 {
		c.Redis.TTLSeconds = 300
	}

	// Mail validation
	c.Mail.Provider = strings.ToLower(c.Mail.Provider)
	switch c.Mail.Provider {
	case "":
		c.Mail.Provider = "log"
	case "log":
	case "sendgrid":
		if c.Mail.SendGrid.APIKey == "" {
			return fmt.Errorf("sendgrid api key is required")
		}
		if c.Mail.SendGrid.FromEmail == "" {
			return fmt.Errorf("sendgrid from email is required")
		}
	case "smtp":
		if c.Mail.SMTP.Host == "" {
			return fmt.Errorf("SMTP host is required")
		}
		if c.Mail.SMTP.Port <= 0 || c.Mail.SMTP.Port > 65535 {
			return fmt.Errorf("invalid SMTP port: %d", c.Mail.SMTP.Port)
		}
	default:
		return fmt.Errorf("unknown mail provider: %s", c.Mail.Provider)
	}

	if c.Events.PublishTimeoutSeconds <= 0 {
		c.Events.PublishTimeoutSeconds = 10
	}

	// Business hours defaults: Monday to Friday, 9 to 17, UTC
	if c.BusinessHours.Location == "" {
		c.BusinessHours.Location = "UTC"
	}
	if c.BusinessHours.OpenHour == 0 && c.BusinessHours.CloseHour == 0 {
		c.BusinessHours.OpenHour, c.BusinessHours.CloseHour = 9, 17
	}
	if c.BusinessHours.OpenHour < 0 || c.BusinessHours.CloseHour > 24 || c.BusinessHours.OpenHour >= c.BusinessHours.CloseHour {
		return fmt.Errorf("invalid business hours: %d-%d", c.BusinessHours.OpenHour, c.BusinessHours.CloseHour)
	}
	if len(c.BusinessHours.Weekdays) == 0 {
		c.BusinessHours.Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday"}
	}
	if _, err := c.BusinessHoursPolicy(); err != nil {
		return err
	}

	// Scheduler defaults
	if c.Scheduler.RefreshAvailability == "" {
		c.Scheduler.RefreshAvailability = "0 */15 * * * *" // every 15 minutes
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}

// PublishTimeout is the per-publisher delivery deadline for booking events.
func (c *Config) PublishTimeout() time.Duration {
	return time.Duration(c.Events.PublishTimeoutSeconds) * time.Second
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// BusinessHoursPolicy builds the free-slot policy described by the business_hours section.
func (c *Config) BusinessHoursPolicy() (service.WeeklyHours, error) {
	loc, err := time.LoadLocation(c.BusinessHours.Location)
	if err != nil {
		return service.WeeklyHours{}, fmt.Errorf("invalid business hours location: %w", err)
	}
	days := make([]time.Weekday, 0, len(c.BusinessHours.Weekdays))
	for _, name := range c.BusinessHours.Weekdays {
		d, ok := weekdays[strings.ToLower(name)]
		if !ok {
			return service.WeeklyHours{}, fmt.Errorf("invalid business day: %s", name)
		}
		days = append(days, d)
	}
	return service.WeeklyHours{
		Location:  loc,
		OpenHour:  c.BusinessHours.OpenHour,
		CloseHour: c.BusinessHours.CloseHour,
		Weekdays:  days,
	}, nil
}
