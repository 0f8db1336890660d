package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/Ramsey-B/fern/pkg/models"
	fernredis "github.com/Ramsey-B/fern/pkg/redis"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"fern-api"`
	AppVersion                    string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3004" validate:"min=1,max=65535"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"300"` // reindex requests block
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL (host document repository)
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"fern"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Graph configuration lookup. The payload stored on the host object wins;
	// the GRAPH_DB_* values are only used when no payload exists.
	GraphConfigObjectID    string `env:"GRAPH_CONFIG_OBJECT_ID" env-default:"design"`
	GraphConfigPayloadName string `env:"GRAPH_CONFIG_PAYLOAD_NAME" env-default:"graphConfig"`
	GraphDBURI             string `env:"GRAPH_DB_URI" env-default:"bolt://localhost:7687"`
	GraphDBUser            string `env:"GRAPH_DB_USER" env-default:"neo4j"`
	GraphDBPassword        string `env:"GRAPH_DB_PASSWORD" env-default:"password"`
	GraphDBName            string `env:"GRAPH_DB_NAME" env-default:""`
	GraphDBDialect         string `env:"GRAPH_DB_DIALECT" env-default:"neo4j" validate:"oneof=neo4j memgraph"`
	GraphVerbose           bool   `env:"GRAPH_VERBOSE" env-default:"false"`

	// Kafka Consumer (host lifecycle events)
	KafkaBrokers         []string      `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaLifecycleTopic  string        `env:"KAFKA_LIFECYCLE_TOPIC" env-default:"documents.lifecycle"`
	KafkaConsumerGroup   string        `env:"KAFKA_CONSUMER_GROUP" env-default:"fern-consumer"`
	KafkaConsumerEnabled bool          `env:"KAFKA_CONSUMER_ENABLED" env-default:"true"`
	KafkaRetryBackoff    time.Duration `env:"KAFKA_RETRY_BACKOFF" env-default:"250ms"`
	KafkaMaxRetryBackoff time.Duration `env:"KAFKA_MAX_RETRY_BACKOFF" env-default:"10s"`

	// Kafka Producer (sync outcome events)
	KafkaProducerEnabled bool   `env:"KAFKA_PRODUCER_ENABLED" env-default:"false"`
	KafkaOutputTopic     string `env:"KAFKA_OUTPUT_TOPIC" env-default:"graph.sync"`
	KafkaBatchSize       int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout    int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks    int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression     string `env:"KAFKA_COMPRESSION" env-default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`

	// Redis (bulk reindex lock)
	RedisEnabled   bool          `env:"REDIS_ENABLED" env-default:"true"`
	RedisHost      string        `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort      int           `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD" env-default:""`
	RedisDB        int           `env:"REDIS_DB" env-default:"0"`
	RedisKeyPrefix string        `env:"REDIS_KEY_PREFIX" env-default:"fern:lock:"`
	ReindexLockTTL time.Duration `env:"REINDEX_LOCK_TTL" env-default:"5m"`

	// Tracing
	TracingEnabled     bool   `env:"TRACING_ENABLED" env-default:"false"`
	TracingExporter    string `env:"TRACING_EXPORTER" env-default:"otlp" validate:"oneof=otlp console"`
	OTLPEndpoint       string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPProtocol       string `env:"OTEL_EXPORTER_OTLP_PROTOCOL" env-default:"grpc" validate:"oneof=grpc http"`
	OTLPInsecure       bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
	OTLPURLPath        string `env:"OTEL_EXPORTER_OTLP_URL_PATH" env-default:""`
	OTLPTimeoutSeconds int    `env:"OTEL_EXPORTER_OTLP_TIMEOUT_SECONDS" env-default:"10"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads an optional .env file, then the environment
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// DatabaseURL is the golang-migrate / lib/pq connection URL
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DatabaseUserName, c.DatabasePassword, c.DatabaseHost, c.DatabasePort, c.DatabaseName, c.DatabaseSSLMode)
}

// Redis is the lock server connection
func (c *Config) Redis() fernredis.Config {
	return fernredis.Config{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// FallbackGraphConfig is used when the host holds no graph configuration
func (c *Config) FallbackGraphConfig() models.GraphConfig {
	cfg := models.DefaultGraphConfig()
	cfg.URI = c.GraphDBURI
	cfg.Username = c.GraphDBUser
	cfg.Password = c.GraphDBPassword
	cfg.DatabaseName = c.GraphDBName
	cfg.Dialect = c.GraphDBDialect
	cfg.Verbose = c.GraphVerbose
	return cfg
}
