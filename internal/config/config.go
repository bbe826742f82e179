package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/timmy/catalogetl/internal/logger"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	ETL       ETLConfig       `mapstructure:"etl"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`   // sqlite file
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // s3, r2, s3compatible, memory
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type QueueConfig struct {
	Provider          string `mapstructure:"provider"` // sqs, memory
	Region            string `mapstructure:"region"`
	Endpoint          string `mapstructure:"endpoint"`
	AccessKey         string `mapstructure:"access_key"`
	SecretKey         string `mapstructure:"secret_key"`
	ChunkQueueURL     string `mapstructure:"chunk_queue_url"`
	WriteQueueURL     string `mapstructure:"write_queue_url"`
	LogQueueURL       string `mapstructure:"log_queue_url"`
	WaitSeconds       int32  `mapstructure:"wait_seconds"`
	MaxMessages       int32  `mapstructure:"max_messages"`
	VisibilityTimeout int32  `mapstructure:"visibility_timeout"`
	Concurrency       int    `mapstructure:"concurrency"`
}

type QdrantConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`

	ScoreThreshold float32 `mapstructure:"score_threshold"`
}

type ETLConfig struct {
	ChunkSize        int           `mapstructure:"chunk_size"`
	BatchSize        int           `mapstructure:"batch_size"`
	InvalidBatchSize int           `mapstructure:"invalid_batch_size"`
	FlushDelay       time.Duration `mapstructure:"flush_delay"`
	ReadSize         int           `mapstructure:"read_size"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Environment string `mapstructure:"environment"`
	File        string `mapstructure:"file"`
	FileOnly    bool   `mapstructure:"file_only"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
}

// LoggerConfig converts the logging section into a logger.EnvConfig.
func (c LoggingConfig) LoggerConfig(service string) *logger.EnvConfig {
	return &logger.EnvConfig{
		Level:       c.Level,
		Format:      c.Format,
		ServiceName: service,
		Environment: c.Environment,
		LogFile:     c.File,
		LogFileOnly: c.FileOnly,
		MaxSize:     c.MaxSize,
		MaxBackups:  c.MaxBackups,
		MaxAge:      c.MaxAge,
		Compress:    c.Compress,
	}
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets and endpoints commonly injected by the environment
	_ = v.BindEnv("database.password", "DATABASE_PASSWORD")
	_ = v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	_ = v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")
	_ = v.BindEnv("queue.access_key", "QUEUE_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	_ = v.BindEnv("queue.secret_key", "QUEUE_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")
	_ = v.BindEnv("queue.region", "QUEUE_REGION", "AWS_REGION")
	_ = v.BindEnv("qdrant.host", "QDRANT_HOST")
	_ = v.BindEnv("qdrant.port", "QDRANT_PORT")
	_ = v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	_ = v.BindEnv("embedding.api_key", "EMBEDDING_API_KEY", "JINA_API_KEY")
	_ = v.BindEnv("embedding.base_url", "EMBEDDING_BASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Embedding.ResolveEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/catalog.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "catalog")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.type", "s3compatible")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "catalog-imports")

	v.SetDefault("queue.provider", "sqs")
	v.SetDefault("queue.region", "us-east-1")
	v.SetDefault("queue.wait_seconds", 20)
	v.SetDefault("queue.max_messages", 10)
	v.SetDefault("queue.visibility_timeout", 300)
	v.SetDefault("queue.concurrency", 4)

	v.SetDefault("qdrant.enabled", false)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "catalog_items")
	v.SetDefault("qdrant.score_threshold", 0.0)

	v.SetDefault("embedding.enabled", true)
	v.SetDefault("embedding.name", "default")
	v.SetDefault("embedding.provider", "jina")
	v.SetDefault("embedding.model", "jina-embeddings-v3")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("embedding.timeout", "30s")

	v.SetDefault("etl.chunk_size", 5000)
	v.SetDefault("etl.batch_size", 10)
	v.SetDefault("etl.invalid_batch_size", 10)
	v.SetDefault("etl.flush_delay", "20ms")
	v.SetDefault("etl.read_size", 64*1024)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.environment", "local")
	v.SetDefault("logging.file", "/var/log/catalog-etl/app.log")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)
	v.SetDefault("logging.compress", true)
}

// Validate checks the settings every process depends on.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}
	switch c.Queue.Provider {
	case "sqs", "memory":
	default:
		return fmt.Errorf("queue: unknown provider %q", c.Queue.Provider)
	}
	if c.ETL.ChunkSize <= 0 {
		return fmt.Errorf("etl: chunk_size must be positive")
	}
	if c.ETL.BatchSize <= 0 || c.ETL.InvalidBatchSize <= 0 {
		return fmt.Errorf("etl: batch sizes must be positive")
	}
	if c.Embedding.Enabled {
		if err := c.Embedding.Validate(); err != nil {
			return err
		}
	}
	return nil
}
