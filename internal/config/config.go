package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSlackBaseURL = "https://hooks.slack.com/services"
	DefaultSMTPHost     = "smtp.gmail.com"
	DefaultSMTPPort     = 465
	DefaultBrandURL     = "http://www.mashey.com"
)

// defaultTemplate is expanded when no config file is given. Variable names match
// the ones the connector has always been deployed with.
const defaultTemplate = `
slack:
  webhook_token: ${SLACK_WEBHOOK_ADDRESS}
sendgrid:
  api_key: ${SENDGRID_API_KEY}
  from: ${SENDGRID_FROM}
  to: ${SENDGRID_TO}
smtp:
  from: ${EMAIL_ORIGIN}
  to: ${EMAIL_DESTINATION}
  password: ${EMAIL_PW}
database:
  host: ${DATABASE_HOST}
  user: ${DATABASE_USER}
  password: ${DATABASE_PASSWORD}
  dbname: ${DATABASE_NAME}
rabbitmq:
  url: ${RABBITMQ_URL}
log_level: ${LOG_LEVEL}
`

type Config struct {
	TapName  string         `yaml:"tap_name"`
	Slack    SlackConfig    `yaml:"slack"`
	SendGrid SendGridConfig `yaml:"sendgrid"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	LogLevel string         `yaml:"log_level"`
}

type SlackConfig struct {
	BaseURL      string `yaml:"base_url"`
	WebhookToken string `yaml:"webhook_token"`
	// Timeout of zero keeps the HTTP client default.
	Timeout time.Duration `yaml:"timeout"`
}

func (s SlackConfig) Enabled() bool {
	return s.WebhookToken != ""
}

type SendGridConfig struct {
	APIKey string `yaml:"api_key"`
	Host   string `yaml:"host"`
	From   string `yaml:"from"`
	To     string `yaml:"to"`
}

func (s SendGridConfig) Enabled() bool {
	return s.APIKey != ""
}

type SMTPConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	From     string        `yaml:"from"`
	To       string        `yaml:"to"`
	Password string        `yaml:"password"`
	Brand    string        `yaml:"brand"`
	BrandURL string        `yaml:"brand_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

func (s SMTPConfig) Enabled() bool {
	return s.From != "" && s.To != ""
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

func (r RabbitMQConfig) Enabled() bool {
	return r.URL != ""
}

// Load reads the YAML config at path, expanding ${VAR} references from the
// environment (and an optional .env file). An empty path uses the built-in
// template, so a bare environment is enough to configure every channel.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	raw := defaultTemplate
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		raw = string(data)
	}

	return Parse(raw)
}

// Parse expands environment references in raw and decodes it.
func Parse(raw string) (*Config, error) {
	expanded := os.ExpandEnv(raw)

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.TapName == "" {
		c.TapName = "Tap AskNicely"
	}
	if c.Slack.BaseURL == "" {
		c.Slack.BaseURL = DefaultSlackBaseURL
	}
	if c.SMTP.Host == "" {
		c.SMTP.Host = DefaultSMTPHost
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = DefaultSMTPPort
	}
	if c.SMTP.Brand == "" {
		c.SMTP.Brand = "Mashey"
	}
	if c.SMTP.BrandURL == "" {
		c.SMTP.BrandURL = DefaultBrandURL
	}
	if c.SMTP.Timeout == 0 {
		c.SMTP.Timeout = 30 * time.Second
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "tap_notify"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "runs"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "tap_runs"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
