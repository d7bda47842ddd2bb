package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ErrInvalidConfig is wrapped by every validation failure returned from Load.
var ErrInvalidConfig = errors.New("invalid config")

// AsOfLayout is the layout of COHORT_AS_OF and the --as-of flag.
const AsOfLayout = "2006-01-02"

// DatabaseConfig describes how to reach the clinical database.
type DatabaseConfig struct {
	Driver         string
	DSN            string
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	SSLMode        string
	ConnectTimeout int // seconds
}

// GetDSN returns DSN when set, otherwise a key/value descriptor built from the parts.
func (c *DatabaseConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
	if c.ConnectTimeout > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", c.ConnectTimeout)
	}
	return dsn
}

// RedisNotifyConfig Redis stream sink for run summaries
type RedisNotifyConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Stream   string
}

// MQTTNotifyConfig MQTT sink for run summaries
type MQTTNotifyConfig struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// WebhookNotifyConfig HTTP sink for run summaries
type WebhookNotifyConfig struct {
	Enabled bool
	URL     string
	Timeout time.Duration
}

// Config cohort-extractor configuration
type Config struct {
	Database DatabaseConfig

	Export struct {
		OutputPath string
		SheetName  string
	}

	Cohort struct {
		VocabularyFile   string
		AsOf             string // YYYY-MM-DD, empty means today
		IdentifierLength int
		MinAge           int
		MaxAge           int
		RecencyYears     int
	}

	Notify struct {
		Redis   RedisNotifyConfig
		MQTT    MQTTNotifyConfig
		Webhook WebhookNotifyConfig
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads the configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	p := &intParser{}

	cfg.Database.Driver = getEnv("DB_DRIVER", "postgres")
	cfg.Database.DSN = getEnv("DB_DSN", "")
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = p.parse("DB_PORT", "5432")
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "clinical")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.ConnectTimeout = p.parse("DB_CONNECT_TIMEOUT", "10")

	cfg.Export.OutputPath = getEnv("COHORT_OUTPUT", "SQLstyleAccessData.xlsx")
	cfg.Export.SheetName = getEnv("COHORT_SHEET", "Cohort")

	cfg.Cohort.VocabularyFile = getEnv("COHORT_VOCABULARY_FILE", "")
	cfg.Cohort.AsOf = getEnv("COHORT_AS_OF", "")
	cfg.Cohort.IdentifierLength = p.parse("COHORT_ID_LENGTH", "7")
	cfg.Cohort.MinAge = p.parse("COHORT_MIN_AGE", "12")
	cfg.Cohort.MaxAge = p.parse("COHORT_MAX_AGE", "18")
	cfg.Cohort.RecencyYears = p.parse("COHORT_RECENCY_YEARS", "4")

	// notification sinks are opt-in
	cfg.Notify.Redis.Enabled = getEnv("NOTIFY_REDIS_ENABLED", "false") == "true"
	cfg.Notify.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Notify.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Notify.Redis.DB = p.parse("REDIS_DB", "0")
	cfg.Notify.Redis.Stream = getEnv("NOTIFY_REDIS_STREAM", "cohort:runs")

	cfg.Notify.MQTT.Enabled = getEnv("NOTIFY_MQTT_ENABLED", "false") == "true"
	cfg.Notify.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.Notify.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "cohort-extractor")
	cfg.Notify.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.Notify.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.Notify.MQTT.Topic = getEnv("NOTIFY_MQTT_TOPIC", "cohort/runs")
	qos := p.parse("MQTT_QOS", "1")
	if qos < 0 || qos > 2 {
		return nil, fmt.Errorf("%w: MQTT_QOS must be 0, 1 or 2, got %d", ErrInvalidConfig, qos)
	}
	cfg.Notify.MQTT.QoS = byte(qos)

	cfg.Notify.Webhook.Enabled = getEnv("NOTIFY_WEBHOOK_ENABLED", "false") == "true"
	cfg.Notify.Webhook.URL = getEnv("NOTIFY_WEBHOOK_URL", "")
	cfg.Notify.Webhook.Timeout = time.Duration(p.parse("NOTIFY_WEBHOOK_TIMEOUT", "10")) * time.Second

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and that every enabled sink has an address.
// It is called by Load and again after CLI flags are applied.
func (c *Config) Validate() error {
	switch {
	case c.Database.Driver == "":
		return fmt.Errorf("%w: DB_DRIVER is empty", ErrInvalidConfig)
	case c.Export.OutputPath == "":
		return fmt.Errorf("%w: output path is empty", ErrInvalidConfig)
	case c.Export.SheetName == "":
		return fmt.Errorf("%w: sheet name is empty", ErrInvalidConfig)
	case c.Cohort.IdentifierLength <= 0:
		return fmt.Errorf("%w: COHORT_ID_LENGTH must be positive, got %d", ErrInvalidConfig, c.Cohort.IdentifierLength)
	case c.Cohort.MinAge > c.Cohort.MaxAge:
		return fmt.Errorf("%w: COHORT_MIN_AGE %d > COHORT_MAX_AGE %d", ErrInvalidConfig, c.Cohort.MinAge, c.Cohort.MaxAge)
	case c.Cohort.RecencyYears < 0:
		return fmt.Errorf("%w: COHORT_RECENCY_YEARS must not be negative", ErrInvalidConfig)
	case c.Notify.Redis.Enabled && c.Notify.Redis.Addr == "":
		return fmt.Errorf("%w: redis notifier enabled without REDIS_ADDR", ErrInvalidConfig)
	case c.Notify.MQTT.Enabled && (c.Notify.MQTT.Broker == "" || c.Notify.MQTT.Topic == ""):
		return fmt.Errorf("%w: mqtt notifier enabled without broker or topic", ErrInvalidConfig)
	case c.Notify.MQTT.QoS > 2:
		return fmt.Errorf("%w: MQTT_QOS must be 0, 1 or 2", ErrInvalidConfig)
	case c.Notify.Webhook.Enabled && c.Notify.Webhook.URL == "":
		return fmt.Errorf("%w: webhook notifier enabled without NOTIFY_WEBHOOK_URL", ErrInvalidConfig)
	}
	if c.Cohort.AsOf != "" {
		if _, err := c.AsOfDate(); err != nil {
			return err
		}
	}
	return nil
}

// AsOfDate parses Cohort.AsOf. Callers check for an empty AsOf first.
func (c *Config) AsOfDate() (time.Time, error) {
	t, err := time.Parse(AsOfLayout, c.Cohort.AsOf)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: as-of date %q is not YYYY-MM-DD", ErrInvalidConfig, c.Cohort.AsOf)
	}
	return t, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// intParser keeps the first integer parse failure so Load can report it once.
type intParser struct {
	err error
}

func (p *intParser) parse(key, def string) int {
	raw := getEnv(key, def)
	v, err := strconv.Atoi(raw)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, raw)
		}
		return 0
	}
	return v
}
