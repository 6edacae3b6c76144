package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from the environment.
type Config struct {
	Environment string

	Server        ServerConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	Pipeline      PipelineConfig
	Limits        LimitsConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Brokers       []string
	LoginTopic    string
	ConsumerGroup string
}

type ElasticsearchConfig struct {
	URL        string
	Username   string
	Password   string
	AlertIndex string
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

// PipelineConfig tunes the anomaly-scoring pipeline.
type PipelineConfig struct {
	AnomalyThreshold    float64
	GeoJumpThresholdKM  float64
	VectorDimension     int
	ScoreRetention      time.Duration
	Workers             int
	UserLockStripes     int
	IPSetMode           string // "exact" or "bloom"
	BloomBits           uint64
	BloomHashes         int
	ForestTrees         int
	ForestSampleSize    int
	BootstrapSeed       int64
	BootstrapNormal     int
	BootstrapAnomalous  int
	SimilarityScanDepth int
}

// LimitsConfig holds the hard request limits enforced at ingress.
type LimitsConfig struct {
	MaxSeedEvents      int
	MaxBatchEvents     int
	MaxEventsPerMinute int
	MaxStreamDuration  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig reads configuration from the environment, loading .env first if present.
func LoadConfig() *Config {
	configOnce.Do(func() {
		_ = godotenv.Load()
		globalConfig = buildConfig()
	})
	return globalConfig
}

// Get returns the loaded configuration, loading it on first use.
func Get() *Config {
	if globalConfig == nil {
		return LoadConfig()
	}
	return globalConfig
}

func buildConfig() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8000),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			LoginTopic:    getEnv("KAFKA_LOGIN_TOPIC", "logins.events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "security-processors"),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:        getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username:   getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:   getEnv("ELASTICSEARCH_PASSWORD", ""),
			AlertIndex: getEnv("ELASTICSEARCH_ALERT_INDEX", "security-alerts"),
		},
		Clickhouse: ClickhouseConfig{
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "rediguard"),
		},
		Pipeline: PipelineConfig{
			AnomalyThreshold:    getEnvFloat("ANOMALY_THRESHOLD", 0.8),
			GeoJumpThresholdKM:  getEnvFloat("GEO_JUMP_THRESHOLD_KM", 1000),
			VectorDimension:     getEnvInt("VECTOR_DIMENSION", 128),
			ScoreRetention:      getEnvDuration("SCORE_RETENTION", 24*time.Hour),
			Workers:             getEnvInt("PIPELINE_WORKERS", 4),
			UserLockStripes:     getEnvInt("USER_LOCK_STRIPES", 64),
			IPSetMode:           getEnv("IPSET_MODE", "bloom"),
			BloomBits:           uint64(getEnvInt("BLOOM_BITS", 1<<20)),
			BloomHashes:         getEnvInt("BLOOM_HASHES", 7),
			ForestTrees:         getEnvInt("FOREST_TREES", 100),
			ForestSampleSize:    getEnvInt("FOREST_SAMPLE_SIZE", 256),
			BootstrapSeed:       int64(getEnvInt("BOOTSTRAP_SEED", 42)),
			BootstrapNormal:     getEnvInt("BOOTSTRAP_NORMAL", 1000),
			BootstrapAnomalous:  getEnvInt("BOOTSTRAP_ANOMALOUS", 50),
			SimilarityScanDepth: getEnvInt("SIMILARITY_SCAN_DEPTH", 500),
		},
		Limits: LimitsConfig{
			MaxSeedEvents:      getEnvInt("MAX_SEED_EVENTS", 10000),
			MaxBatchEvents:     getEnvInt("MAX_BATCH_EVENTS", 100),
			MaxEventsPerMinute: getEnvInt("MAX_EVENTS_PER_MINUTE", 100),
			MaxStreamDuration:  getEnvDuration("MAX_STREAM_DURATION", 4*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
