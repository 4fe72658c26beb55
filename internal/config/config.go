// Package config reads mdraft settings from environment variables and exposes
// them as typed values.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmobrien1/mdraft2/internal/model"
)

// Backend names accepted by the selector settings.
const (
	RepositoryPostgres = "postgres"
	RepositoryMemory   = "memory"

	BlobGCS = "gcs"
	BlobS3  = "s3"

	DispatcherCloudTasks = "cloudtasks"
	DispatcherAsynq      = "asynq"
	DispatcherLocal      = "local"

	OCRDocumentAI = "documentai"
	OCRPDFText    = "pdftext"

	EmbeddingVertex = "vertex"
	EmbeddingOpenAI = "openai"
)

// Config represents runtime configuration for the API, the delivery worker and
// the CLI.
type Config struct {
	Address     string
	DatabaseURL string
	Repository  string

	BlobBackend string
	Bucket      string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	Dispatcher       string
	ProjectID        string
	TasksLocation    string
	TasksQueue       string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	HostURL          string
	CallbackSecret   []byte
	DeliveryMaxRetry int
	Workers          int

	OCRBackend       string
	OCRProcessor     string
	EmbeddingBackend string
	Location         string
	EmbeddingModel   string
	EmbeddingHost    string
	EmbeddingDims    int

	MaxUploadBytes int64
	ProcessTimeout time.Duration
	CORSOrigin     string
	LogLevel       string
	LogPretty      bool
}

const (
	defaultAddress        = ":8080"
	defaultDBHost         = "127.0.0.1"
	defaultDBPort         = "5432"
	defaultS3Endpoint     = "localhost:9000"
	defaultS3Region       = "us-east-1"
	defaultTasksLocation  = "us-central1"
	defaultRedisAddr      = "localhost:6379"
	defaultHostURL        = "http://localhost:8080"
	defaultMaxRetry       = 5
	defaultWorkerCount    = 4
	defaultLocation       = "us-east4"
	defaultEmbeddingModel = "textembedding-gecko@003"
	defaultEmbeddingHost  = "http://localhost:11434/v1"
	defaultEmbeddingDims  = 768
	defaultMaxUpload      = 25 << 20 // 25 MiB
	defaultProcessTimeout = 10 * time.Minute
	defaultCORSOrigin     = "http://localhost:3000"
)

// Load reads configuration from environment variables falling back to
// defaults, then validates the backend selectors. A missing bucket name is not
// an error here; uploads report it when they need it.
func Load() (*Config, error) {
	cfg := &Config{
		Address:     listenAddress(),
		DatabaseURL: databaseURL(),
		Repository:  strings.ToLower(readEnv("REPOSITORY", RepositoryPostgres)),

		BlobBackend: strings.ToLower(readEnv("BLOB_BACKEND", BlobGCS)),
		Bucket:      readEnv("GCS_BUCKET_NAME", ""),
		S3Endpoint:  readEnv("S3_ENDPOINT", defaultS3Endpoint),
		S3AccessKey: readEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: readEnv("S3_SECRET_KEY", ""),
		S3Region:    readEnv("S3_REGION", defaultS3Region),
		S3UseSSL:    parseBool("S3_USE_SSL", false),

		Dispatcher:       strings.ToLower(readEnv("DISPATCHER", DispatcherCloudTasks)),
		ProjectID:        readEnv("GCP_PROJECT_ID", ""),
		TasksLocation:    readEnv("CLOUD_TASKS_LOCATION", defaultTasksLocation),
		TasksQueue:       readEnv("CLOUD_TASKS_QUEUE_NAME", ""),
		RedisAddr:        readEnv("REDIS_ADDR", defaultRedisAddr),
		RedisPassword:    readEnv("REDIS_PASSWORD", ""),
		RedisDB:          parseInt("REDIS_DB", 0),
		HostURL:          strings.TrimRight(readEnv("HOST_URL", defaultHostURL), "/"),
		CallbackSecret:   parseSecret("CALLBACK_SECRET"),
		DeliveryMaxRetry: parseInt("DELIVERY_MAX_RETRY", defaultMaxRetry),
		Workers:          parseInt("WORKERS", defaultWorkerCount),

		OCRBackend:       strings.ToLower(readEnv("OCR_BACKEND", OCRDocumentAI)),
		OCRProcessor:     readEnv("DOC_AI_PROCESSOR_NAME", ""),
		EmbeddingBackend: strings.ToLower(readEnv("EMBEDDING_PROVIDER", EmbeddingVertex)),
		Location:         readEnv("GCP_LOCATION", defaultLocation),
		EmbeddingModel:   readEnv("EMBEDDING_MODEL", defaultEmbeddingModel),
		EmbeddingHost:    readEnv("EMBEDDING_HOST", defaultEmbeddingHost),
		EmbeddingDims:    parseInt("EMBEDDING_DIMENSIONS", defaultEmbeddingDims),

		MaxUploadBytes: parseInt64("MAX_UPLOAD_BYTES", defaultMaxUpload),
		ProcessTimeout: parseDuration("PROCESS_TIMEOUT", defaultProcessTimeout),
		CORSOrigin:     readEnv("CORS_ORIGIN", defaultCORSOrigin),
		LogLevel:       strings.ToLower(readEnv("LOG_LEVEL", "info")),
		LogPretty:      parseBool("LOG_PRETTY", false),
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount
	}
	if cfg.DeliveryMaxRetry < 0 {
		cfg.DeliveryMaxRetry = defaultMaxRetry
	}
	if cfg.EmbeddingDims <= 0 {
		cfg.EmbeddingDims = defaultEmbeddingDims
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = defaultProcessTimeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the backend selectors and the callback base URL.
func (c *Config) Validate() error {
	choices := []struct {
		key, value string
		allowed    []string
	}{
		{"REPOSITORY", c.Repository, []string{RepositoryPostgres, RepositoryMemory}},
		{"BLOB_BACKEND", c.BlobBackend, []string{BlobGCS, BlobS3}},
		{"DISPATCHER", c.Dispatcher, []string{DispatcherCloudTasks, DispatcherAsynq, DispatcherLocal}},
		{"OCR_BACKEND", c.OCRBackend, []string{OCRDocumentAI, OCRPDFText}},
		{"EMBEDDING_PROVIDER", c.EmbeddingBackend, []string{EmbeddingVertex, EmbeddingOpenAI}},
	}
	for _, choice := range choices {
		if !contains(choice.allowed, choice.value) {
			return model.E(model.ErrConfiguration, "config",
				fmt.Errorf("%s=%q, want one of %s", choice.key, choice.value, strings.Join(choice.allowed, ", ")))
		}
	}
	u, err := url.Parse(c.HostURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return model.E(model.ErrConfiguration, "config", fmt.Errorf("HOST_URL=%q is not an absolute URL", c.HostURL))
	}
	return nil
}

// CallbackURL is the task-delivery target for document processing.
func (c *Config) CallbackURL() string {
	return c.HostURL + "/tasks/process"
}

// QueuePath is the Cloud Tasks parent resource.
func (c *Config) QueuePath() string {
	return fmt.Sprintf("projects/%s/locations/%s/queues/%s", c.ProjectID, c.TasksLocation, c.TasksQueue)
}

func listenAddress() string {
	if v := readEnv("MDRAFT_ADDRESS", ""); v != "" {
		return v
	}
	if port := readEnv("PORT", ""); port != "" {
		return ":" + port
	}
	return defaultAddress
}

// databaseURL prefers DATABASE_URL and otherwise assembles a DSN from the
// discrete DB_* variables.
func databaseURL() string {
	if v := readEnv("DATABASE_URL", ""); v != "" {
		return v
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(readEnv("DB_USER", ""), readEnv("DB_PASSWORD", "")),
		Host:   net.JoinHostPort(readEnv("DB_HOST", defaultDBHost), readEnv("DB_PORT", defaultDBPort)),
		Path:   "/" + readEnv("DB_NAME", ""),
	}
	return u.String()
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
