// This file defines the configuration structure for the application.
package config

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port     int `mapstructure:"port"`
	Database struct {
		Driver string `mapstructure:"driver"`
		Path   string `mapstructure:"path"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`
	Throttle struct {
		PerRow time.Duration `mapstructure:"per_row"`
	} `mapstructure:"throttle"`
	Jobs struct {
		BatchSize       int           `mapstructure:"batch_size"`
		BatchDelay      time.Duration `mapstructure:"batch_delay"`
		IdempotencyTTL  time.Duration `mapstructure:"idempotency_ttl"`
		Retention       time.Duration `mapstructure:"retention"`
		JanitorInterval int           `mapstructure:"janitor_interval"`
	} `mapstructure:"jobs"`
	Stream struct {
		Keepalive time.Duration `mapstructure:"keepalive"`
	} `mapstructure:"stream"`
	Server struct {
		MaxConnections   int    `mapstructure:"max_connections"`
		MinClientVersion string `mapstructure:"min_client_version"`
	} `mapstructure:"server"`
	Notify struct {
		WebhookURL string `mapstructure:"webhook_url"`
	} `mapstructure:"notify"`
}

// DataSource returns the connection string for the configured driver.
func (c *Config) DataSource() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return c.Database.Path
}

var (
	mu sync.Mutex
	v  = viper.New()
)

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct. A ".env" file,
// when present, is loaded into the environment first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()

	v = viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")
	v.AddConfigPath(".")

	// e.g., COLLECTIONS_JOBS_BATCH_SIZE overrides `jobs.batch_size`.
	v.SetEnvPrefix("COLLECTIONS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	return decode(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./collections.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("throttle.per_row", 100*time.Millisecond)
	v.SetDefault("jobs.batch_size", 1000)
	v.SetDefault("jobs.batch_delay", 100*time.Millisecond)
	v.SetDefault("jobs.idempotency_ttl", 24*time.Hour)
	v.SetDefault("jobs.retention", 72*time.Hour)
	v.SetDefault("jobs.janitor_interval", 10)
	v.SetDefault("stream.keepalive", 15*time.Second)
	v.SetDefault("server.max_connections", 512)
	v.SetDefault("server.min_client_version", "")
	v.SetDefault("notify.webhook_url", "")
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config.Jobs.BatchSize <= 0 {
		config.Jobs.BatchSize = 1000
	}
	return &config, nil
}

// Watch calls onChange with the re-read configuration whenever config.yml
// changes on disk. It is a no-op when no config file was loaded.
func Watch(onChange func(*Config)) {
	mu.Lock()
	defer mu.Unlock()

	if v.ConfigFileUsed() == "" {
		return
	}
	watched := v
	watched.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(watched)
		if err != nil {
			log.Printf("Ignoring invalid config change in %s: %v", e.Name, err)
			return
		}
		log.Printf("Config file changed: %s", e.Name)
		onChange(cfg)
	})
	watched.WatchConfig()
}
