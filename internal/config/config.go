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
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	Gateway struct {
		BaseURL        string        `mapstructure:"baseURL"`
		Token          string        `mapstructure:"token"`
		ChatsTimeout   time.Duration `mapstructure:"chatsTimeout"`   // Overall deadline for a chat list fetch including retries
		PictureTimeout time.Duration `mapstructure:"pictureTimeout"` // Per-request deadline for profile picture fetches
		MaxAttempts    int           `mapstructure:"maxAttempts"`    // Total chat list attempts before giving up
		RetryInterval  time.Duration `mapstructure:"retryInterval"`  // Base interval of the linear retry backoff
	} `mapstructure:"gateway"`
	Roster struct {
		SearchDebounce time.Duration `mapstructure:"searchDebounce"` // Quiet period after the last keystroke before filtering
		ChangeDebounce time.Duration `mapstructure:"changeDebounce"` // Quiet period after a change feed burst before reloading
		PollInterval   time.Duration `mapstructure:"pollInterval"`   // Background reload period
	} `mapstructure:"roster"`
	Avatar struct {
		TTL          time.Duration `mapstructure:"ttl"`          // Cache entry lifetime
		BatchSize    int           `mapstructure:"batchSize"`    // Conversations enriched per merge cycle
		PoolSize     int           `mapstructure:"poolSize"`     // Fetch worker pool size
		FetchTimeout time.Duration `mapstructure:"fetchTimeout"` // Per-picture fetch deadline
	} `mapstructure:"avatar"`
	NATS struct {
		URL      string             `mapstructure:"url"`
		Realtime ConsumerNatsConfig `mapstructure:"realtime"`
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
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
}

// ConsumerNatsConfig holds configuration specific to a NATS consumer
type ConsumerNatsConfig struct {
	MaxAge       int64         `mapstructure:"maxAge"` // max age of messages in day
	Stream       string        `mapstructure:"stream"`
	Consumer     string        `mapstructure:"consumer"` // durable name
	QueueGroup   string        `mapstructure:"group"`
	SubjectList  []string      `mapstructure:"subjectList"`
	MaxDeliver   int           `mapstructure:"maxDeliver"`   // Max delivery attempts
	NakBaseDelay time.Duration `mapstructure:"nakBaseDelay"` // Base delay for exponential backoff NAK
	NakMaxDelay  time.Duration `mapstructure:"nakMaxDelay"`  // Maximum delay for exponential backoff NAK
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	// Create new viper instance
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)

	// Gateway defaults
	v.SetDefault("gateway.chatsTimeout", 10*time.Second)
	v.SetDefault("gateway.pictureTimeout", 3*time.Second)
	v.SetDefault("gateway.maxAttempts", 3)
	v.SetDefault("gateway.retryInterval", 500*time.Millisecond)

	// Roster defaults
	v.SetDefault("roster.searchDebounce", 300*time.Millisecond)
	v.SetDefault("roster.changeDebounce", 2*time.Second)
	v.SetDefault("roster.pollInterval", 2*time.Minute)

	// Avatar defaults
	v.SetDefault("avatar.ttl", 24*time.Hour)
	v.SetDefault("avatar.batchSize", 5)
	v.SetDefault("avatar.poolSize", 4)
	v.SetDefault("avatar.fetchTimeout", 3*time.Second)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.realtime.maxAge", 30)
	v.SetDefault("nats.realtime.stream", "wa_inbox_events_stream")
	v.SetDefault("nats.realtime.consumer", "wa_inbox_events_consumer")
	v.SetDefault("nats.realtime.group", "wa_inbox_events_group")
	v.SetDefault("nats.realtime.subjectList", []string{"v1.messages.upsert", "v1.leads.upsert"})
	v.SetDefault("nats.realtime.maxDeliver", 5)
	v.SetDefault("nats.realtime.nakBaseDelay", 1*time.Second)
	v.SetDefault("nats.realtime.nakMaxDelay", 30*time.Second)

	// Database defaults
	v.SetDefault("database.postgresAutoMigrate", true)

	// Company defaults
	v.SetDefault("company.default", "default_tenant")

	// Config file settings
	v.SetConfigName("default") // name of config file (without extension)
	v.SetConfigType("yaml")    // REQUIRED if the config file does not have the extension in the name

	// Add lookup paths
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.wa-inbox-service")
	v.AddConfigPath("/etc/wa-inbox-service")

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
	if base := os.Getenv("GATEWAY_BASE_URL"); base != "" {
		v.Set("gateway.baseURL", base)
	}
	if token := os.Getenv("GATEWAY_TOKEN"); token != "" {
		v.Set("gateway.token", token)
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		// Get the field tag value (mapstructure)
		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		// Build the env var path
		path := append(parts, tag)
		key := strings.Join(path, ".")

		// If it's a struct, recursively bind its fields
		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		// Bind the env var
		_ = v.BindEnv(key)
	}
}
