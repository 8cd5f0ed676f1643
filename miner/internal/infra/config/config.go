package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultMaxRetries = 3

type Config struct {
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`

	PoolSize int           `yaml:"pool_size"`
	AckWait  time.Duration `yaml:"ack_wait"`
	RowLimit int           `yaml:"row_limit"`

	// TaskTTL of zero keeps finished tasks forever.
	TaskTTL         time.Duration `yaml:"task_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	Archive  Archive  `yaml:"archive"`
	Redis    Redis    `yaml:"redis"`
	MinIO    MinIO    `yaml:"minio"`
	NATS     NATS     `yaml:"nats"`
	Database Database `yaml:"database"`
}

type Archive struct {
	QueueCapacity int `yaml:"queue_capacity"`
	Workers       int `yaml:"workers"`
	MaxRetries    int `yaml:"max_retries"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MinIO struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Bucket          string `yaml:"bucket"`
	BasePath        string `yaml:"base_path"`
}

type NATS struct {
	URL              string `yaml:"url"`
	Name             string `yaml:"name"`
	MaxReconnects    int    `yaml:"max_reconnects"`
	Stream           string `yaml:"stream"`
	Subject          string `yaml:"subject"`
	Durable          string `yaml:"durable"`
	InterruptSubject string `yaml:"interrupt_subject"`
}

type Database struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	LogLevel        string        `yaml:"log_level"`
}

func MustLoad(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("config: cannot read file %q: %v", path, err)
	}

	// keys missing from the file keep these values
	cfg := Config{
		Archive: Archive{MaxRetries: defaultMaxRetries},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("config: cannot unmarshal yaml: %v", err)
	}

	if cfg.Redis.Addr == "" {
		log.Fatalf("config: redis.addr is empty")
	}
	if cfg.Database.Driver == "" {
		log.Fatalf("config: database.driver is empty")
	}
	if cfg.NATS.Subject == "" {
		log.Fatalf("config: nats.subject is empty")
	}
	if cfg.NATS.InterruptSubject == "" {
		log.Fatalf("config: nats.interrupt_subject is empty")
	}
	if cfg.TaskTTL < 0 {
		log.Fatalf("config: task_ttl must not be negative, got %s", cfg.TaskTTL)
	}

	if cfg.NATS.Stream == "" {
		cfg.NATS.Stream = "MINING_TASKS"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.Archive.Workers <= 0 {
		cfg.Archive.Workers = 2
	}
	// zero disables retries
	if cfg.Archive.MaxRetries < 0 {
		cfg.Archive.MaxRetries = defaultMaxRetries
	}

	return &cfg
}
