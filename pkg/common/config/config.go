package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64
	RateLimitRPS   float64
	RateLimitBurst int
	TrainingPort   string
	ServingPort    string

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	PostgresEnabled  bool

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisEnabled  bool

	// Kafka
	KafkaBrokers        []string
	KafkaGroupID        string
	KafkaEnabled        bool
	PipelineEventsTopic string

	// Pipeline
	DataDir           string
	RulesFile         string
	MissingnessCutoff float64
	WriteParquet      bool
	PatientBatchSize  int
	MaxConcurrentRuns int

	// Feature Store
	FeatureStoreCacheTTL time.Duration

	// Training
	ArtifactDir          string
	TrainingEpochs       int
	TrainingLearningRate float64
	TrainingTestFraction float64
	TrainingSeed         int64
	TrainingMaxWorkers   int
	TrainingBalanced     bool
	TrainingL2           float64
	TrainingThreshold    float64
	TrainingModelName    string
	TrainingAutoTrain    bool
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 5*time.Minute),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),
		RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),
		TrainingPort:   getEnv("TRAINING_PORT", "8088"),
		ServingPort:    getEnv("SERVING_PORT", "8089"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "readmission"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "readmission"),
		PostgresDB:       getEnv("POSTGRES_DB", "hospital"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresEnabled:  getBoolEnv("POSTGRES_ENABLED", false),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),

		KafkaBrokers:        getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:        getEnv("KAFKA_GROUP_ID", "readmission-training"),
		KafkaEnabled:        getBoolEnv("KAFKA_ENABLED", false),
		PipelineEventsTopic: getEnv("PIPELINE_EVENTS_TOPIC", "pipeline-runs"),

		DataDir:           getEnv("PIPELINE_DATA_DIR", "data"),
		RulesFile:         getEnv("PIPELINE_RULES_FILE", ""),
		MissingnessCutoff: getFloatEnv("PIPELINE_MISSINGNESS_CUTOFF", 0),
		WriteParquet:      getBoolEnv("PIPELINE_WRITE_PARQUET", false),
		PatientBatchSize:  getIntEnv("PIPELINE_PATIENT_BATCH_SIZE", 500),
		MaxConcurrentRuns: getIntEnv("PIPELINE_MAX_CONCURRENT_RUNS", 2),

		FeatureStoreCacheTTL: getDuration("FEATURE_STORE_CACHE_TTL", 24*time.Hour),

		ArtifactDir:          getEnv("TRAINING_ARTIFACT_DIR", "output"),
		TrainingEpochs:       getIntEnv("TRAINING_EPOCHS", 300),
		TrainingLearningRate: getFloatEnv("TRAINING_LEARNING_RATE", 0.1),
		TrainingTestFraction: getFloatEnv("TRAINING_TEST_FRACTION", 0.2),
		TrainingSeed:         int64(getIntEnv("TRAINING_SEED", 42)),
		TrainingMaxWorkers:   getIntEnv("TRAINING_MAX_WORKERS", 1),
		TrainingBalanced:     getBoolEnv("TRAINING_BALANCED", true),
		TrainingL2:           getFloatEnv("TRAINING_L2", 0),
		TrainingThreshold:    getFloatEnv("TRAINING_THRESHOLD", 0.5),
		TrainingModelName:    getEnv("TRAINING_MODEL_NAME", "readmission"),
		TrainingAutoTrain:    getBoolEnv("TRAINING_AUTO_TRAIN", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
