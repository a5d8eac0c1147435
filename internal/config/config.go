package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port            int           `mapstructure:"port"`
		RequestTimeout  time.Duration `mapstructure:"requestTimeout"`  // Per-request handler timeout
		MaxBodyBytes    int64         `mapstructure:"maxBodyBytes"`    // Webhook body limit
		ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"` // Graceful shutdown budget
	} `mapstructure:"server"`
	Hub struct {
		BaseURL string `mapstructure:"baseURL"` // Public URL channels deliver webhooks to
	} `mapstructure:"hub"`
	NATS struct {
		URL        string             `mapstructure:"url"`
		Routing    ConsumerNatsConfig `mapstructure:"routing"`
		DLQStream  string             `mapstructure:"dlqStream"`  // Name of the Dead Letter Queue stream
		DLQSubject string             `mapstructure:"dlqSubject"` // Base subject for DLQ messages (e.g., v1.integration.dlq)
		DLQMaxAge  int                `mapstructure:"dlqMaxAgeDays"`
	} `mapstructure:"nats"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Company struct {
		Default string `mapstructure:"default"`
		ID      string `mapstructure:"id"`
	} `mapstructure:"company"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Assignment struct {
		RoundRobinMode string `mapstructure:"roundRobinMode"` // "random" or "rotate"
	} `mapstructure:"assignment"`
	WorkerPools struct {
		Reprocess ReprocessWorkerPoolConfig `mapstructure:"reprocess"`
	} `mapstructure:"workerPools"`
}

// ReprocessWorkerPoolConfig holds configuration for the pending-message reprocess pool
type ReprocessWorkerPoolConfig struct {
	PoolSize      int           `mapstructure:"poolSize"`      // Number of workers
	QueueSize     int           `mapstructure:"queueSize"`     // Max tasks blocked waiting for a worker
	ExpiryTime    time.Duration `mapstructure:"expiryTime"`    // Idle worker expiry time
	TaskTimeout   time.Duration `mapstructure:"taskTimeout"`   // Budget for one message
	SweepSchedule string        `mapstructure:"sweepSchedule"` // Cron schedule for the periodic sweep; empty disables it
	SweepAge      time.Duration `mapstructure:"sweepAge"`      // Only messages pending longer than this are swept
	SweepLimit    int           `mapstructure:"sweepLimit"`    // Max messages per sweep
}

// ConsumerNatsConfig holds configuration specific to a NATS consumer
type ConsumerNatsConfig struct {
	MaxAge       int64         `mapstructure:"maxAge"` // max age of messages in day
	Stream       string        `mapstructure:"stream"`
	Consumer     string        `mapstructure:"consumer"` // durable name
	QueueGroup   string        `mapstructure:"group"`
	SubjectList  []string      `mapstructure:"subjectList"`
	MaxDeliver   int           `mapstructure:"maxDeliver"`   // Max delivery attempts before DLQ
	NakBaseDelay time.Duration `mapstructure:"nakBaseDelay"` // Base delay for exponential backoff NAK
	NakMaxDelay  time.Duration `mapstructure:"nakMaxDelay"`  // Maximum delay for exponential backoff NAK
}

// RotationEnabled reports whether round-robin should use the persisted rotation.
func (c *Config) RotationEnabled() bool {
	return strings.EqualFold(c.Assignment.RoundRobinMode, "rotate") && c.Redis.Addr != ""
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.requestTimeout", 10*time.Second)
	v.SetDefault("server.maxBodyBytes", 1<<20)
	v.SetDefault("server.shutdownTimeout", 15*time.Second)
	v.SetDefault("hub.baseURL", "http://localhost:8080")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("assignment.roundRobinMode", "random")

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.routing.stream", "integration_messages")
	v.SetDefault("nats.routing.consumer", "integration_routing_")
	v.SetDefault("nats.routing.group", "integration_routing_")
	v.SetDefault("nats.routing.subjectList", []string{"v1.integration.messages.received"})
	v.SetDefault("nats.routing.maxAge", 7)
	v.SetDefault("nats.routing.maxDeliver", 5)
	v.SetDefault("nats.routing.nakBaseDelay", time.Second)
	v.SetDefault("nats.routing.nakMaxDelay", 5*time.Minute)
	v.SetDefault("nats.dlqStream", "integration_dlq")
	v.SetDefault("nats.dlqSubject", "v1.integration.dlq")
	v.SetDefault("nats.dlqMaxAgeDays", 7)

	// WorkerPools Defaults
	v.SetDefault("workerPools.reprocess.poolSize", 8)
	v.SetDefault("workerPools.reprocess.queueSize", 1000)
	v.SetDefault("workerPools.reprocess.expiryTime", time.Minute)
	v.SetDefault("workerPools.reprocess.taskTimeout", 30*time.Second)
	v.SetDefault("workerPools.reprocess.sweepSchedule", "@every 5m")
	v.SetDefault("workerPools.reprocess.sweepAge", 5*time.Minute)
	v.SetDefault("workerPools.reprocess.sweepLimit", 500)

	// Config file settings
	v.SetConfigName("default")
	v.SetConfigType("yaml")

	// Add lookup paths
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.franchise-integration-hub")
	v.AddConfigPath("/etc/franchise-integration-hub")

	// Try to read from config file
	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map environment variables to config fields
	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("nats.url", url)
	}
	if company := os.Getenv("COMPANY_ID"); company != "" {
		v.Set("company.id", company)
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		v.Set("redis.addr", addr)
	}
	if base := os.Getenv("HUB_BASE_URL"); base != "" {
		v.Set("hub.baseURL", base)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// CompanyID returns the tenant this process serves.
func (c *Config) CompanyID() string {
	if c.Company.ID != "" {
		return c.Company.ID
	}
	return c.Company.Default
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		path := append(parts, tag)
		key := strings.Join(path, ".")

		// If it's a struct, recursively bind its fields
		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		_ = v.BindEnv(key)
	}
}
