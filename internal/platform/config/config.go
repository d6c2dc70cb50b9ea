package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// StoreBackend selects the persistence implementation for sessions,
// extraction records and results.
type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StorePostgres StoreBackend = "postgres"
	StoreRedis    StoreBackend = "redis"
)

// Config is the full process configuration, loaded from the environment.
type Config struct {
	Server     Server
	Store      StoreConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	AWS        AWSConfig
	Decision   DecisionConfig
	Extraction ExtractionConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string        `env:"KYC_ADDR" envDefault:":8080"`
	Environment    string        `env:"KYC_ENV" envDefault:"development"`
	LogLevel       string        `env:"KYC_LOG_LEVEL" envDefault:"info"`
	AllowedOrigin  string        `env:"KYC_CORS_ALLOWED_ORIGIN" envDefault:"*"`
	RequestTimeout time.Duration `env:"KYC_REQUEST_TIMEOUT" envDefault:"30s"`
}

// StoreConfig chooses the datastore.
type StoreConfig struct {
	Backend StoreBackend `env:"KYC_STORE_BACKEND" envDefault:"memory"`
}

// PostgresConfig configures the SQL datastore.
type PostgresConfig struct {
	DSN             string        `env:"KYC_POSTGRES_DSN"`
	MaxOpenConns    int           `env:"KYC_POSTGRES_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"KYC_POSTGRES_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"KYC_POSTGRES_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig configures the Redis datastore.
type RedisConfig struct {
	URL          string        `env:"KYC_REDIS_URL"`
	PoolSize     int           `env:"KYC_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"KYC_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"KYC_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"KYC_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"KYC_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures the trigger and notification topics. An empty
// broker list keeps triggers in process.
type KafkaConfig struct {
	Brokers           []string `env:"KYC_KAFKA_BROKERS" envSeparator:","`
	ConsumerGroup     string   `env:"KYC_KAFKA_CONSUMER_GROUP" envDefault:"kyc-pipeline"`
	DocumentTopic     string   `env:"KYC_KAFKA_DOCUMENT_TOPIC" envDefault:"kyc.document-uploaded"`
	ExtractionTopic   string   `env:"KYC_KAFKA_EXTRACTION_TOPIC" envDefault:"kyc.extraction-changed"`
	SelfieTopic       string   `env:"KYC_KAFKA_SELFIE_TOPIC" envDefault:"kyc.selfie-uploaded"`
	NotificationTopic string   `env:"KYC_KAFKA_NOTIFICATION_TOPIC" envDefault:"kyc.results"`
	Partitions        int32    `env:"KYC_KAFKA_PARTITIONS" envDefault:"6"`
	ReplicationFactor int16    `env:"KYC_KAFKA_REPLICATION_FACTOR" envDefault:"1"`
}

// Enabled reports whether Kafka transport is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// AWSConfig configures the object store and the OCR/face collaborators.
// Without a region, in-process stub collaborators are used.
type AWSConfig struct {
	Region          string        `env:"KYC_AWS_REGION"`
	Endpoint        string        `env:"KYC_AWS_ENDPOINT"`
	AccessKeyID     string        `env:"KYC_AWS_ACCESS_KEY_ID"`
	SecretAccessKey string        `env:"KYC_AWS_SECRET_ACCESS_KEY"`
	DocumentBucket  string        `env:"KYC_DOCUMENT_BUCKET" envDefault:"kyc-documents"`
	LivenessBucket  string        `env:"KYC_LIVENESS_BUCKET" envDefault:"kyc-liveness"`
	PresignTTL      time.Duration `env:"KYC_PRESIGN_TTL" envDefault:"15m"`
}

// Enabled reports whether AWS collaborators are configured.
func (a AWSConfig) Enabled() bool { return a.Region != "" }

// DecisionConfig tunes the fusion rule, the notification lease and the
// sweep of deferred re-evaluations.
type DecisionConfig struct {
	SimilarityThreshold float64       `env:"KYC_SIMILARITY_THRESHOLD" envDefault:"99.0"`
	LivenessGracePeriod time.Duration `env:"KYC_LIVENESS_GRACE_PERIOD" envDefault:"15m"`
	EvaluateTimeout     time.Duration `env:"KYC_DECISION_TIMEOUT" envDefault:"20s"`
	NotifyLease         time.Duration `env:"KYC_NOTIFY_LEASE" envDefault:"1m"`
	RescheduleInterval  time.Duration `env:"KYC_RESCHEDULE_INTERVAL" envDefault:"5s"`
}

// ExtractionConfig tunes the extraction worker and trigger retries.
type ExtractionConfig struct {
	FaceDetectionEnabled bool          `env:"KYC_FACE_DETECTION_ENABLED" envDefault:"true"`
	MinFaceConfidence    float64       `env:"KYC_MIN_FACE_CONFIDENCE" envDefault:"95"`
	MaxFields            int           `env:"KYC_MAX_EXTRACTED_FIELDS" envDefault:"64"`
	Timeout              time.Duration `env:"KYC_EXTRACTION_TIMEOUT" envDefault:"30s"`
	MaxAttempts          int           `env:"KYC_TRIGGER_MAX_ATTEMPTS" envDefault:"5"`
	InitialBackoff       time.Duration `env:"KYC_TRIGGER_INITIAL_BACKOFF" envDefault:"200ms"`
	MaxBackoff           time.Duration `env:"KYC_TRIGGER_MAX_BACKOFF" envDefault:"10s"`
	RedriveDelay         time.Duration `env:"KYC_TRIGGER_REDRIVE_DELAY" envDefault:"1m"`
}

// Load parses the environment into a Config and checks cross-field rules.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces rules the struct tags cannot express.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("KYC_POSTGRES_DSN is required for the postgres store")
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("KYC_REDIS_URL is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Decision.SimilarityThreshold < 0 || c.Decision.SimilarityThreshold > 100 {
		return fmt.Errorf("similarity threshold must be within [0, 100], got %v", c.Decision.SimilarityThreshold)
	}
	if c.Extraction.MaxFields <= 0 {
		return fmt.Errorf("max extracted fields must be positive")
	}
	if c.Extraction.MaxAttempts <= 0 {
		return fmt.Errorf("trigger max attempts must be positive")
	}
	if c.Decision.NotifyLease <= 0 {
		return fmt.Errorf("notification lease must be positive")
	}
	if c.Decision.RescheduleInterval <= 0 {
		return fmt.Errorf("reschedule interval must be positive")
	}
	return nil
}

// IsProduction reports whether the process runs with production defaults.
func (c Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
