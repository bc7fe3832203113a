package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MaxHistoryPageSize is the largest history page the server will request.
const MaxHistoryPageSize = 200

// History contains the Elasticsearch search-history parameters shared by the
// worker and the retention job.
type History struct {
	ElasticsearchAddr string
	HistoryIndex      string
}

// AWS holds the region and optional static credentials for Lambda and S3.
// When either key is empty the SDK default credential chain is used.
type AWS struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Server describes the dashboard HTTP server.
type Server struct {
	AWS
	BindAddr         string
	SearchFunction   string
	ReportFunction   string
	InvokeTimeout    time.Duration
	Bucket           string
	DownloadTTL      time.Duration
	DownloadCapacity int
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	KafkaBrokers     []string
	EventsTopic      string
	HistoryAddr      string
	HistoryIndex     string
	HistoryPage      int
	HistoryMaxPage   int
	AllowedOrigins   []string
}

// Worker holds configuration for the Kafka -> Elasticsearch history worker.
type Worker struct {
	History
	KafkaBrokers   []string
	EventsTopic    string
	KafkaConsumer  string
	DedupeCapacity int
	DedupeTTL      time.Duration
	BatchSize      int
}

// Retention configures the search-history cleanup loop.
type Retention struct {
	History
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// WriteTimeout covers a search invocation followed by a report invocation.
func (s *Server) WriteTimeout() time.Duration {
	return 2*s.InvokeTimeout + time.Minute
}

// LoadServer builds a Server config from environment variables.
func LoadServer() (*Server, error) {
	c := &Server{
		AWS: AWS{
			Region:          getEnv("AWS_REGION", "ap-northeast-2"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		BindAddr:         getEnv("SERVER_BIND_ADDR", "0.0.0.0:8080"),
		SearchFunction:   getEnv("REMOTE_SEARCH_FUNCTION", "semantic_search"),
		ReportFunction:   getEnv("REMOTE_REPORT_FUNCTION", "gpt_analytics"),
		InvokeTimeout:    getDuration("REMOTE_INVOKE_TIMEOUT", "15m"),
		Bucket:           getEnv("OBJECT_STORE_BUCKET", "fairlabs-shared"),
		DownloadTTL:      getDuration("DOWNLOAD_TTL", "1h"),
		DownloadCapacity: getInt("DOWNLOAD_CAPACITY", 256),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getInt("REDIS_DB", 0),
		KafkaBrokers:     splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		EventsTopic:      getEnv("SEARCH_EVENTS_TOPIC", "dashboard_searches"),
		HistoryAddr:      getEnv("ELASTICSEARCH_ADDR", ""),
		HistoryIndex:     getEnv("HISTORY_INDEX", "dashboard_searches"),
		HistoryPage:      getInt("HISTORY_PAGE_SIZE", 20),
		HistoryMaxPage:   getInt("HISTORY_MAX_PAGE_SIZE", 100),
		AllowedOrigins:   splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	if c.SearchFunction == "" || c.ReportFunction == "" {
		return nil, fmt.Errorf("REMOTE_SEARCH_FUNCTION and REMOTE_REPORT_FUNCTION must be set")
	}
	if c.InvokeTimeout <= 0 {
		return nil, fmt.Errorf("REMOTE_INVOKE_TIMEOUT must be positive")
	}
	if c.DownloadCapacity <= 0 {
		return nil, fmt.Errorf("DOWNLOAD_CAPACITY must be positive")
	}
	if c.DownloadTTL <= 0 {
		return nil, fmt.Errorf("DOWNLOAD_TTL must be positive")
	}
	if c.HistoryPage <= 0 {
		return nil, fmt.Errorf("HISTORY_PAGE_SIZE must be positive")
	}
	if c.HistoryPage > c.HistoryMaxPage {
		return nil, fmt.Errorf("HISTORY_PAGE_SIZE cannot exceed HISTORY_MAX_PAGE_SIZE")
	}
	if c.HistoryMaxPage > MaxHistoryPageSize {
		return nil, fmt.Errorf("HISTORY_MAX_PAGE_SIZE cannot exceed %d", MaxHistoryPageSize)
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	c := &Worker{
		History:        loadHistory(),
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		EventsTopic:    getEnv("SEARCH_EVENTS_TOPIC", "dashboard_searches"),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "history-worker"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:      getInt("WORKER_BATCH_SIZE", 10),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		History:   loadHistory(),
		Interval:  getDuration("RETENTION_CRON", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func loadHistory() History {
	return History{
		ElasticsearchAddr: getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		HistoryIndex:      getEnv("HISTORY_INDEX", "dashboard_searches"),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
