package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/retrainer/pkg/models"
)

// Config holds all configuration for the retrainer. It is built once by Load and never mutated.
type Config struct {
	Server   ServerConfig
	Training TrainingConfig
	Publish  PublishConfig
	Storage  StorageConfig
	Poll     PollConfig
	Database DatabaseConfig
	Redis    RedisConfig
}

type ServerConfig struct {
	Port       int
	Env        string
	APIKeyHash string
}

// TrainingConfig addresses the batch retraining endpoint.
type TrainingConfig struct {
	URL            string
	Key            string
	QueryParameter string
	Timeout        time.Duration
}

// PublishConfig addresses the scoring endpoints a retrained model is pushed to.
// The secondary endpoint is optional.
type PublishConfig struct {
	URL           string
	Key           string
	Name          string
	SecondaryURL  string
	SecondaryKey  string
	SecondaryName string
}

type StorageConfig struct {
	Backend      string
	Account      string
	Key          string
	Container    string
	Endpoint     string
	UseSSL       bool
	ResultPrefix string
}

// PollConfig bounds how long the retrainer waits for a job to reach a terminal state.
type PollConfig struct {
	Interval    time.Duration
	MaxInterval time.Duration
	MaxAttempts int
	Timeout     time.Duration
	Backoff     string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

var validBackends = map[string]bool{
	"azure":  true,
	"minio":  true,
	"memory": true,
}

var validBackoffs = map[string]bool{
	"constant":    true,
	"exponential": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:       envInt("RETRAINER_PORT", 8080),
			Env:        envString("RETRAINER_ENV", "development"),
			APIKeyHash: os.Getenv("RETRAINER_API_KEY_HASH"),
		},
		Training: TrainingConfig{
			URL:            strings.TrimRight(os.Getenv("RETRAINER_TRAIN_URL"), "/"),
			Key:            os.Getenv("RETRAINER_TRAIN_KEY"),
			QueryParameter: envString("RETRAINER_QUERY_PARAMETER", "Database query"),
			Timeout:        envDuration("RETRAINER_HTTP_TIMEOUT", 30*time.Second),
		},
		Publish: PublishConfig{
			URL:           os.Getenv("RETRAINER_PUBLISH_URL"),
			Key:           os.Getenv("RETRAINER_PUBLISH_KEY"),
			Name:          os.Getenv("RETRAINER_PUBLISH_NAME"),
			SecondaryURL:  os.Getenv("RETRAINER_PUBLISH2_URL"),
			SecondaryKey:  os.Getenv("RETRAINER_PUBLISH2_KEY"),
			SecondaryName: os.Getenv("RETRAINER_PUBLISH2_NAME"),
		},
		Storage: StorageConfig{
			Backend:      envString("RETRAINER_STORAGE_BACKEND", "azure"),
			Account:      os.Getenv("RETRAINER_STORAGE_ACCOUNT"),
			Key:          os.Getenv("RETRAINER_STORAGE_KEY"),
			Container:    os.Getenv("RETRAINER_STORAGE_CONTAINER"),
			Endpoint:     os.Getenv("RETRAINER_STORAGE_ENDPOINT"),
			UseSSL:       envBool("RETRAINER_STORAGE_USE_SSL", true),
			ResultPrefix: envString("RETRAINER_RESULT_PREFIX", "retrainer-"),
		},
		Poll: PollConfig{
			Interval:    envDuration("RETRAINER_POLL_INTERVAL", 5*time.Second),
			MaxInterval: envDuration("RETRAINER_POLL_MAX_INTERVAL", time.Minute),
			MaxAttempts: envInt("RETRAINER_POLL_MAX_ATTEMPTS", 0),
			Timeout:     envDuration("RETRAINER_POLL_TIMEOUT", 2*time.Hour),
			Backoff:     envString("RETRAINER_POLL_BACKOFF", "constant"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 5),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 1),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
	}

	if cfg.Publish.SecondaryName == "" {
		cfg.Publish.SecondaryName = cfg.Publish.Name
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if err := requireHTTPURL("RETRAINER_TRAIN_URL", c.Training.URL); err != nil {
		return err
	}
	if c.Training.Key == "" {
		return fmt.Errorf("RETRAINER_TRAIN_KEY is required")
	}

	if err := requireHTTPURL("RETRAINER_PUBLISH_URL", c.Publish.URL); err != nil {
		return err
	}
	if c.Publish.Key == "" {
		return fmt.Errorf("RETRAINER_PUBLISH_KEY is required")
	}
	if c.Publish.Name == "" {
		return fmt.Errorf("RETRAINER_PUBLISH_NAME is required")
	}
	if (c.Publish.SecondaryURL == "") != (c.Publish.SecondaryKey == "") {
		return fmt.Errorf("RETRAINER_PUBLISH2_URL and RETRAINER_PUBLISH2_KEY must be set together")
	}
	if c.Publish.SecondaryURL != "" {
		if err := requireHTTPURL("RETRAINER_PUBLISH2_URL", c.Publish.SecondaryURL); err != nil {
			return err
		}
	}

	if !validBackends[c.Storage.Backend] {
		return fmt.Errorf("RETRAINER_STORAGE_BACKEND must be one of azure, minio, memory; got %q", c.Storage.Backend)
	}
	if c.Storage.Container == "" {
		return fmt.Errorf("RETRAINER_STORAGE_CONTAINER is required")
	}
	if c.Storage.Backend != "memory" {
		if c.Storage.Account == "" {
			return fmt.Errorf("RETRAINER_STORAGE_ACCOUNT is required")
		}
		if c.Storage.Key == "" {
			return fmt.Errorf("RETRAINER_STORAGE_KEY is required")
		}
	}
	if c.Storage.Backend == "minio" && c.Storage.Endpoint == "" {
		return fmt.Errorf("RETRAINER_STORAGE_ENDPOINT is required when RETRAINER_STORAGE_BACKEND is minio")
	}

	if c.Poll.Interval <= 0 {
		return fmt.Errorf("RETRAINER_POLL_INTERVAL must be positive, got %s", c.Poll.Interval)
	}
	if c.Poll.Timeout <= 0 {
		return fmt.Errorf("RETRAINER_POLL_TIMEOUT must be positive, got %s", c.Poll.Timeout)
	}
	if c.Poll.MaxAttempts < 0 {
		return fmt.Errorf("RETRAINER_POLL_MAX_ATTEMPTS must not be negative, got %d", c.Poll.MaxAttempts)
	}
	if !validBackoffs[c.Poll.Backoff] {
		return fmt.Errorf("RETRAINER_POLL_BACKOFF must be one of constant, exponential; got %q", c.Poll.Backoff)
	}

	return nil
}

// ConnectionString renders the storage account connection string embedded in
// blob references sent to the batch service.
func (c *Config) ConnectionString() string {
	return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s", c.Storage.Account, c.Storage.Key)
}

// PrimaryEndpoint returns the main publish endpoint.
func (c *Config) PrimaryEndpoint() models.PublishEndpoint {
	return models.PublishEndpoint{Name: c.Publish.Name, URL: c.Publish.URL, Key: c.Publish.Key}
}

// SecondaryEndpoint returns the second publish endpoint, if one is configured.
func (c *Config) SecondaryEndpoint() (models.PublishEndpoint, bool) {
	if c.Publish.SecondaryURL == "" {
		return models.PublishEndpoint{}, false
	}
	return models.PublishEndpoint{
		Name: c.Publish.SecondaryName,
		URL:  c.Publish.SecondaryURL,
		Key:  c.Publish.SecondaryKey,
	}, true
}

// PublishEndpoints returns every configured publish endpoint, primary first.
func (c *Config) PublishEndpoints() []models.PublishEndpoint {
	eps := []models.PublishEndpoint{c.PrimaryEndpoint()}
	if ep, ok := c.SecondaryEndpoint(); ok {
		eps = append(eps, ep)
	}
	return eps
}

func requireHTTPURL(key, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", key)
	}
	if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
		return fmt.Errorf("%s must start with http:// or https://, got %q", key, v)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
