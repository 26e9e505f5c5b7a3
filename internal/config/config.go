// Package config reads application settings once at start into an immutable struct
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	wbfconfig "github.com/wb-go/wbf/config"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	StorageDriverMinio  = "minio"
	StorageDriverMemory = "memory"
)

// Config is built once by Load and is never mutated afterwards.
type Config struct {
	AppPort       string `validate:"required,numeric"`
	GinMode       string `validate:"omitempty,oneof=debug release test"`
	LogLevel      string `validate:"required,oneof=debug info warn error"`
	APIBasePath   string `validate:"omitempty,startswith=/"`
	PublicBaseURL string `validate:"omitempty,url"`

	Inference InferenceConfig

	MaxFileSize        int64 `validate:"gt=0"`
	MaxImageDimension  int   `validate:"gte=0"`
	HistoryLimit       int   `validate:"gt=0,lte=100"`
	DeleteRequireOwner bool

	StoreDriver    string `validate:"oneof=postgres memory"`
	PostgresDSN    string `validate:"required_if=StoreDriver postgres"`
	MigrationsPath string

	StorageDriver string `validate:"oneof=minio memory"`
	Minio         MinioConfig

	RedisAddr string
	CacheTTL  time.Duration `validate:"gt=0"`

	KafkaBroker  string
	KafkaTopic   string `validate:"required_with=KafkaBroker"`
	KafkaGroupID string
}

type InferenceConfig struct {
	Token          string        `validate:"required"`
	URL            string        `validate:"required,url"`
	DefaultModelID string        `validate:"required"`
	Timeout        time.Duration `validate:"gt=0"`
	RetryAttempts  int           `validate:"gte=1,lte=5"`
	RetryDelay     time.Duration `validate:"gte=0"`
}

type MinioConfig struct {
	Endpoint string
	User     string
	Pass     string
	Secure   bool
	Bucket   string
}

var defaults = map[string]string{
	"APP_PORT":                 "8080",
	"GIN_MODE":                 "release",
	"LOG_LEVEL":                "info",
	"INFERENCE_URL":            "https://router.huggingface.co/hf-inference/models",
	"DEFAULT_MODEL_ID":         "hakurei/waifu-diffusion-v1-4",
	"TIMEOUT_SECONDS":          "120",
	"INFERENCE_RETRY_ATTEMPTS": "2",
	"INFERENCE_RETRY_DELAY":    "2s",
	"MAX_FILE_SIZE":            "10485760",
	"MAX_IMAGE_DIMENSION":      "512",
	"HISTORY_LIMIT":            "50",
	"DELETE_REQUIRE_OWNER":     "false",
	"STORE_DRIVER":             StoreDriverPostgres,
	"MIGRATIONS_PATH":          "./migrations",
	"STORAGE_DRIVER":           StorageDriverMinio,
	"MINIO_ENDPOINT":           "minio:9000",
	"MINIO_SECURE":             "false",
	"BUCKET_NAME":              "colorizations",
	"CACHE_TTL":                "30s",
	"KAFKA_TOPIC":              "colorization-events",
	"KAFKA_GROUPID":            "colorization-stats",
}

// Load reads env (and the optional env-files) through wbf config.
func Load(envFiles ...string) (*Config, error) {
	appConfig := wbfconfig.New()
	appConfig.EnableEnv("")
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue // .env опционален, в контейнере всё приходит через окружение
		}
		if err := appConfig.LoadEnvFiles(f); err != nil {
			return nil, fmt.Errorf("failed to load env-file %q: %w", f, err)
		}
	}

	return FromSource(appConfig.GetString)
}

// FromSource builds and validates Config from a key lookup function.
func FromSource(get func(key string) string) (*Config, error) {
	r := reader{get: get}

	cfg := &Config{
		AppPort:       r.str("APP_PORT"),
		GinMode:       r.str("GIN_MODE"),
		LogLevel:      strings.ToLower(r.str("LOG_LEVEL")),
		APIBasePath:   strings.TrimRight(r.str("API_BASE_PATH"), "/"),
		PublicBaseURL: strings.TrimRight(r.str("PUBLIC_BASE_URL"), "/"),
		Inference: InferenceConfig{
			Token:          r.str("HF_TOKEN"),
			URL:            strings.TrimRight(r.str("INFERENCE_URL"), "/"),
			DefaultModelID: r.str("DEFAULT_MODEL_ID"),
			Timeout:        time.Duration(r.integer("TIMEOUT_SECONDS")) * time.Second,
			RetryAttempts:  r.integer("INFERENCE_RETRY_ATTEMPTS"),
			RetryDelay:     r.duration("INFERENCE_RETRY_DELAY"),
		},
		MaxFileSize:        int64(r.integer("MAX_FILE_SIZE")),
		MaxImageDimension:  r.integer("MAX_IMAGE_DIMENSION"),
		HistoryLimit:       r.integer("HISTORY_LIMIT"),
		DeleteRequireOwner: r.boolean("DELETE_REQUIRE_OWNER"),
		StoreDriver:        r.str("STORE_DRIVER"),
		PostgresDSN:        r.str("POSTGRES_DSN"),
		MigrationsPath:     r.str("MIGRATIONS_PATH"),
		StorageDriver:      r.str("STORAGE_DRIVER"),
		Minio: MinioConfig{
			Endpoint: r.str("MINIO_ENDPOINT"),
			User:     r.str("MINIO_USER"),
			Pass:     r.str("MINIO_PASS"),
			Secure:   r.boolean("MINIO_SECURE"),
			Bucket:   r.str("BUCKET_NAME"),
		},
		RedisAddr:    r.str("REDIS_ADDR"),
		CacheTTL:     r.duration("CACHE_TTL"),
		KafkaBroker:  r.str("KAFKA_BROKER"),
		KafkaTopic:   r.str("KAFKA_TOPIC"),
		KafkaGroupID: r.str("KAFKA_GROUPID"),
	}

	if r.err != nil {
		return nil, r.err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// reader запоминает первую ошибку парсинга, чтобы не проверять каждое поле отдельно
type reader struct {
	get func(string) string
	err error
}

func (r *reader) str(key string) string {
	if v := strings.TrimSpace(r.get(key)); v != "" {
		return v
	}
	return defaults[key]
}

func (r *reader) integer(key string) int {
	raw := r.str(key)
	v, err := strconv.Atoi(raw)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("config key %s: %q is not an integer", key, raw)
	}
	return v
}

func (r *reader) duration(key string) time.Duration {
	raw := r.str(key)
	v, err := time.ParseDuration(raw)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("config key %s: %q is not a duration", key, raw)
	}
	return v
}

func (r *reader) boolean(key string) bool {
	raw := r.str(key)
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("config key %s: %q is not a boolean", key, raw)
	}
	return v
}
