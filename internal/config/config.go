// Package config loads the service's runtime configuration from a .env file,
// environment variables, and CLI overrides, in that ascending priority order.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every recognized configuration key (§6.3 of the design).
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	API      APIConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Watch    WatchConfig
	Process  ProcessingConfig
	Archive  ArchiveConfig
	Queue    QueueConfig
	Service  ServiceConfig
	Transcr  TranscriptionConfig
	S3       S3Config
}

type ServerConfig struct {
	Host    string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port    int    `env:"SERVER_PORT" envDefault:"8080"`
	Workers int    `env:"SERVER_WORKERS" envDefault:"0"` // 0 = runtime.NumCPU()
}

type DatabaseConfig struct {
	URL            string        `env:"DATABASE_URL,required"`
	MaxConnections int32         `env:"DATABASE_MAX_CONNECTIONS" envDefault:"20"`
	MinConnections int32         `env:"DATABASE_MIN_CONNECTIONS" envDefault:"4"`
	ConnectTimeout time.Duration `env:"DATABASE_CONNECT_TIMEOUT" envDefault:"10s"`
	IdleTimeout    time.Duration `env:"DATABASE_IDLE_TIMEOUT" envDefault:"5m"`
}

type StorageConfig struct {
	BaseDir          string   `env:"STORAGE_BASE_DIR" envDefault:"./data"`
	UploadDir        string   `env:"STORAGE_UPLOAD_DIR" envDefault:"uploads"`
	MaxFileSize      int64    `env:"STORAGE_MAX_FILE_SIZE" envDefault:"104857600"` // 100 MB
	AllowedExtensions []string `env:"STORAGE_ALLOWED_EXTENSIONS" envSeparator:"," envDefault:"mp3,wav,m4a,ogg"`
	OrganizeByDate   bool     `env:"STORAGE_ORGANIZE_BY_DATE" envDefault:"true"`
}

type APIConfig struct {
	EnableAuth  bool     `env:"API_ENABLE_AUTH" envDefault:"false"`
	RateLimit   float64  `env:"API_RATE_LIMIT" envDefault:"60"` // requests/min, per §6.3 notable default
	EnableCORS  bool     `env:"API_ENABLE_CORS" envDefault:"true"`
	CORSOrigins []string `env:"API_CORS_ORIGINS" envSeparator:","`
}

type SecurityConfig struct {
	RequireAPIKey       bool          `env:"SECURITY_REQUIRE_API_KEY" envDefault:"false"`
	EnableIPRestrictions bool         `env:"SECURITY_ENABLE_IP_RESTRICTIONS" envDefault:"false"`
	MaxUploadSize       int64         `env:"SECURITY_MAX_UPLOAD_SIZE" envDefault:"104857600"`
	RequestTimeout      time.Duration `env:"SECURITY_REQUEST_TIMEOUT" envDefault:"30s"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
	File   string `env:"LOG_FILE"`
}

// WatchConfig configures the FS Watcher (C7).
type WatchConfig struct {
	Directory       string        `env:"WATCH_DIRECTORY"`
	FilePatterns    []string      `env:"WATCH_FILE_PATTERNS" envSeparator:"," envDefault:"*.mp3,*.wav,*.m4a"`
	FileExtensions  []string      `env:"WATCH_FILE_EXTENSIONS" envSeparator:"," envDefault:"mp3,wav,m4a,ogg"`
	MinFileSize     int64         `env:"WATCH_MIN_FILE_SIZE" envDefault:"1024"` // 1 KiB, notable default
	MaxFileSize     int64         `env:"WATCH_MAX_FILE_SIZE" envDefault:"104857600"`
	DebounceDelay   time.Duration `env:"WATCH_DEBOUNCE_DELAY" envDefault:"1s"` // notable default
	Recursive       bool          `env:"WATCH_RECURSIVE" envDefault:"true"`
	FollowSymlinks  bool          `env:"WATCH_FOLLOW_SYMLINKS" envDefault:"false"`
}

// ProcessingConfig configures the File Processor worker pool (C9/C10).
type ProcessingConfig struct {
	IntervalSeconds      time.Duration `env:"PROCESSING_INTERVAL_SECONDS" envDefault:"2s"`
	Workers              int           `env:"PROCESSING_WORKERS" envDefault:"0"` // 0 = CPU count, min 2
	MaxRetryAttempts     int           `env:"PROCESSING_MAX_RETRY_ATTEMPTS" envDefault:"3"`
	RetryDelaySeconds    time.Duration `env:"PROCESSING_RETRY_DELAY_SECONDS" envDefault:"5s"`
	TimeoutSeconds       time.Duration `env:"PROCESSING_TIMEOUT_SECONDS" envDefault:"60s"`
	MoveAfterProcessing  bool          `env:"PROCESSING_MOVE_AFTER" envDefault:"true"`
	DeleteAfterProcessing bool         `env:"PROCESSING_DELETE_AFTER" envDefault:"false"`
	VerifyFileIntegrity  bool          `env:"PROCESSING_VERIFY_INTEGRITY" envDefault:"true"`
}

// ArchiveConfig configures where the File Processor moves consumed files (§6.2).
type ArchiveConfig struct {
	Directory         string `env:"ARCHIVE_DIRECTORY" envDefault:"./data/archive"`
	FailedDirectory   string `env:"ARCHIVE_FAILED_DIRECTORY" envDefault:"./data/failed"`
	TempDirectory     string `env:"ARCHIVE_TEMP_DIRECTORY" envDefault:"./data/tmp"`
	OrganizeByDate    bool   `env:"ARCHIVE_ORGANIZE_BY_DATE" envDefault:"true"`
	OrganizeBySystem  bool   `env:"ARCHIVE_ORGANIZE_BY_SYSTEM" envDefault:"false"`
	CompressArchive   bool   `env:"ARCHIVE_COMPRESS" envDefault:"false"`
	CompressionLevel  int    `env:"ARCHIVE_COMPRESSION_LEVEL" envDefault:"3"`
	MaxArchiveSize    int64  `env:"ARCHIVE_MAX_SIZE" envDefault:"0"`
	RetentionDays     int    `env:"ARCHIVE_RETENTION_DAYS" envDefault:"0"`
}

// QueueConfig configures the Work Queue (C8).
type QueueConfig struct {
	MaxSize         int    `env:"QUEUE_MAX_SIZE" envDefault:"10000"`
	PersistenceFile string `env:"QUEUE_PERSISTENCE_FILE" envDefault:"./data/queue.json.zst"`
	PriorityByAge   bool   `env:"QUEUE_PRIORITY_BY_AGE" envDefault:"true"`
	PriorityBySize  bool   `env:"QUEUE_PRIORITY_BY_SIZE" envDefault:"false"`
	BatchSize       int    `env:"QUEUE_BATCH_SIZE" envDefault:"50"`
}

// ServiceConfig configures the Monitor Service lifecycle (C10).
type ServiceConfig struct {
	Name                   string        `env:"SERVICE_NAME" envDefault:"radio-ingest-monitor"`
	ShutdownTimeoutSeconds time.Duration `env:"SERVICE_SHUTDOWN_TIMEOUT_SECONDS" envDefault:"30s"`
	HealthCheckInterval    time.Duration `env:"SERVICE_HEALTH_CHECK_INTERVAL_SECONDS" envDefault:"30s"`
	EnableMetrics          bool          `env:"SERVICE_ENABLE_METRICS" envDefault:"true"`
	MetricsInterval        time.Duration `env:"SERVICE_METRICS_INTERVAL_SECONDS" envDefault:"60s"`
	AutoRestart            bool          `env:"SERVICE_AUTO_RESTART" envDefault:"true"`
	MaxRestartAttempts     int           `env:"SERVICE_MAX_RESTART_ATTEMPTS" envDefault:"5"`
}

// TranscriptionConfig configures the async STT dispatch (C4). The STT engine
// itself is an external collaborator (see spec OUT OF SCOPE); only the
// dispatch-side knobs live here.
type TranscriptionConfig struct {
	Enabled        bool          `env:"TRANSCRIPTION_ENABLED" envDefault:"false"`
	Service        string        `env:"TRANSCRIPTION_SERVICE" envDefault:"whisper"`
	Workers        int           `env:"TRANSCRIPTION_WORKERS" envDefault:"2"`
	QueueSize      int           `env:"TRANSCRIPTION_QUEUE_SIZE" envDefault:"500"`
	TimeoutSeconds time.Duration `env:"TRANSCRIPTION_TIMEOUT_SECONDS" envDefault:"30s"`
	PythonPath     string        `env:"TRANSCRIPTION_PYTHON_PATH"`
	ServicePort    int           `env:"TRANSCRIPTION_SERVICE_PORT"`
	MaxRetries     int           `env:"TRANSCRIPTION_MAX_RETRIES" envDefault:"3"`
}

// S3Config configures the optional S3-backed blob tier (SPEC_FULL §2.2/§4.2).
type S3Config struct {
	Bucket     string `env:"S3_BUCKET"`
	Region     string `env:"S3_REGION" envDefault:"us-east-1"`
	Endpoint   string `env:"S3_ENDPOINT"`
	AccessKey  string `env:"S3_ACCESS_KEY"`
	SecretKey  string `env:"S3_SECRET_KEY"`
	Prefix     string `env:"S3_PREFIX"`
}

// Enabled reports whether S3 storage is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Overrides holds CLI flag values that take priority over environment variables.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	WatchDir    string
}

// Load reads configuration from a .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file > struct
// defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile) // silent if missing

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if overrides.DatabaseURL != "" {
		cfg.Database.URL = overrides.DatabaseURL
	}
	if overrides.LogLevel != "" {
		cfg.Logging.Level = overrides.LogLevel
	}
	if overrides.WatchDir != "" {
		cfg.Watch.Directory = overrides.WatchDir
	}
	if overrides.HTTPAddr != "" {
		cfg.Server.Host, cfg.Server.Port = splitAddr(overrides.HTTPAddr)
	}

	return cfg, nil
}

func splitAddr(addr string) (string, int) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			host := addr[:i]
			var port int
			fmt.Sscanf(addr[i+1:], "%d", &port)
			return host, port
		}
	}
	return addr, 0
}
