package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App        AppConfig
	MCP        MCPConfig
	Paths      PathsConfig
	Database   DatabaseConfig
	Valkey     ValkeyConfig
	Scheduler  SchedulerConfig
	Session    SessionConfig
	Mirror     MirrorConfig
	Approval   ApprovalConfig
	Captions   CaptionsConfig
	Meta       MetaConfig
	Twilio     TwilioConfig
	Whatsapp   WhatsappConfig
	AI         AIConfig
	WorkerPool WorkerPoolConfig
	Security   SecurityConfig
	APIKeys    APIKeysConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	BasicAuth          []string
	BasePath           string
	TrustedProxies     []string
	BaseUrl            string
	PublicBaseUrl      string
	CorsAllowedOrigins []string
	ServerID           string
	DefaultTimezone    string
}

type MCPConfig struct {
	Port string
	Host string
}

type PathsConfig struct {
	BaseDir string
	Public  string
	Mirror  string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string // File path for SQLite, DB Name for Postgres
}

type ValkeyConfig struct {
	Enabled   bool
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

type SchedulerConfig struct {
	Enabled            bool
	Interval           time.Duration
	ForcePostNow       bool
	IgnoreWindow       bool
	MaxRecoveryRetries int
	DefaultSpacingMin  int
	DefaultSpacingMax  int
	DistributedLock    bool
}

type SessionConfig struct {
	Backend string // memory | valkey
	TTL     time.Duration
}

type MirrorConfig struct {
	Backend      string // file | valkey | none
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	Retention    time.Duration
}

type ApprovalConfig struct {
	TokenTTL time.Duration
}

type CaptionsConfig struct {
	SecondaryCTA string
	MaxLength    int
}

type MetaConfig struct {
	FacebookGraphVersion  string
	InstagramGraphVersion string
	GraphBaseURL          string
	HTTPTimeout           time.Duration
	ContainerPollInterval time.Duration
	ContainerPollTimeout  time.Duration
}

type TwilioConfig struct {
	AccountSID          string
	AuthToken           string
	FromNumber          string
	MessagingServiceSID string
	BaseURL             string
	ValidateSignature   bool
}

type WhatsappConfig struct {
	Enabled  bool
	LogLevel string
	StoreURI string
}

type AIConfig struct {
	CaptionProvider string // gemini | openai
	GeminiModel     string
	OpenAIModel     string
	Timeout         time.Duration
}

type WorkerPoolConfig struct {
	Size      int
	QueueSize int
}

type SecurityConfig struct {
	SecretKey string
}

type APIKeysConfig struct {
	Gemini string
	OpenAI string
}

// Global provides access to the loaded configuration globally.
var Global *Config

// LoadConfig loads configuration from a local .env file (when present) and the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	baseDir := getEnv("APP_BASE_DIR", "storages")

	debug := getEnvBool("APP_DEBUG", false) || getEnvBool("DEBUG", false)

	var basicAuth []string
	if v := os.Getenv("APP_BASIC_AUTH"); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	corsOrigins := []string{"http://localhost:3000"}
	if v := os.Getenv("APP_CORS_ALLOWED_ORIGINS"); v != "" {
		corsOrigins = strings.Split(v, ",")
	}

	baseURL := getEnv("APP_BASE_URL", getEnv("BASE_URL", "http://localhost:3000"))

	appCfg := AppConfig{
		Version:            "v1.4.0",
		Port:               getEnv("APP_PORT", "3000"),
		Debug:              debug,
		Environment:        getEnv("APP_ENV", "development"),
		BasicAuth:          basicAuth,
		BasePath:           getEnv("APP_BASE_PATH", ""),
		BaseUrl:            strings.TrimSuffix(baseURL, "/"),
		PublicBaseUrl:      strings.TrimSuffix(getEnv("PUBLIC_BASE_URL", baseURL), "/"),
		CorsAllowedOrigins: corsOrigins,
		ServerID:           getEnv("SERVER_ID", ""),
		DefaultTimezone:    getEnv("DEFAULT_TIMEZONE", "America/Indiana/Indianapolis"),
	}
	if v := os.Getenv("APP_TRUSTED_PROXIES"); v != "" {
		appCfg.TrustedProxies = strings.Split(v, ",")
	}

	pathsCfg := PathsConfig{
		BaseDir: baseDir,
		Public:  getEnv("PUBLIC_DIR", filepath.Join(baseDir, "public")),
		Mirror:  getEnv("MIRROR_FILE", filepath.Join(baseDir, "posts.json")),
	}

	dbCfg := DatabaseConfig{
		Driver:   getEnv("DB_DRIVER", "sqlite"),
		Name:     getEnv("DB_NAME", filepath.Join(baseDir, "postly.db")),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
	}

	valkeyCfg := ValkeyConfig{
		Enabled:   getEnvBool("VALKEY_ENABLED", false),
		Address:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		Password:  getEnv("VALKEY_PASSWORD", ""),
		DB:        getEnvInt("VALKEY_DB", 0),
		KeyPrefix: getEnv("VALKEY_KEY_PREFIX", "azpost:"),
	}

	schedCfg := SchedulerConfig{
		Enabled:            getEnvBool("SCHEDULER_ENABLED", true),
		Interval:           time.Duration(getEnvInt("SCHEDULER_INTERVAL_SECONDS", 60)) * time.Second,
		ForcePostNow:       getEnvBool("FORCE_POST_NOW", false),
		IgnoreWindow:       getEnvBool("SCHEDULER_IGNORE_WINDOW", false),
		MaxRecoveryRetries: getEnvInt("SCHEDULER_MAX_RECOVERY_RETRIES", 3),
		DefaultSpacingMin:  getEnvInt("DEFAULT_SPACING_MIN", 20),
		DefaultSpacingMax:  getEnvInt("DEFAULT_SPACING_MAX", 45),
		DistributedLock:    getEnvBool("SCHEDULER_DISTRIBUTED_LOCK", valkeyCfg.Enabled),
	}

	cfg := &Config{
		App:       appCfg,
		MCP:       MCPConfig{Port: getEnv("MCP_PORT", "8080"), Host: getEnv("MCP_HOST", "localhost")},
		Paths:     pathsCfg,
		Database:  dbCfg,
		Valkey:    valkeyCfg,
		Scheduler: schedCfg,
		Session: SessionConfig{
			Backend: getEnv("SESSION_BACKEND", "memory"),
			TTL:     time.Duration(getEnvInt("SESSION_TTL_MINUTES", 1440)) * time.Minute,
		},
		Mirror: MirrorConfig{
			Backend:      getEnv("MIRROR_BACKEND", "file"),
			PollInterval: time.Duration(getEnvInt("MIRROR_POLL_SECONDS", 5)) * time.Second,
			BatchSize:    getEnvInt("MIRROR_BATCH_SIZE", 100),
			MaxAttempts:  getEnvInt("MIRROR_MAX_ATTEMPTS", 10),
			Retention:    time.Duration(getEnvInt("MIRROR_RETENTION_HOURS", 72)) * time.Hour,
		},
		Approval: ApprovalConfig{
			TokenTTL: time.Duration(getEnvInt("APPROVAL_TOKEN_TTL_HOURS", 168)) * time.Hour,
		},
		Captions: CaptionsConfig{
			SecondaryCTA: getEnv("IG_BOOKING_CTA", "Book via link in bio."),
			MaxLength:    getEnvInt("CAPTION_MAX_LENGTH", 2200),
		},
		Meta: MetaConfig{
			FacebookGraphVersion:  getEnv("FACEBOOK_GRAPH_VERSION", "v19.0"),
			InstagramGraphVersion: getEnv("INSTAGRAM_GRAPH_VERSION", "v24.0"),
			GraphBaseURL:          getEnv("META_GRAPH_BASE_URL", "https://graph.facebook.com"),
			HTTPTimeout:           time.Duration(getEnvInt("META_HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
			ContainerPollInterval: time.Duration(getEnvInt("IG_POLL_INTERVAL_MS", 1500)) * time.Millisecond,
			ContainerPollTimeout:  time.Duration(getEnvInt("IG_POLL_TIMEOUT_MS", 30000)) * time.Millisecond,
		},
		Twilio: TwilioConfig{
			AccountSID:          getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:           getEnv("TWILIO_AUTH_TOKEN", ""),
			FromNumber:          getEnv("TWILIO_FROM_NUMBER", getEnv("TWILIO_PHONE_NUMBER", "")),
			MessagingServiceSID: getEnv("TWILIO_MESSAGING_SERVICE_SID", ""),
			BaseURL:             getEnv("TWILIO_API_BASE_URL", "https://api.twilio.com"),
			ValidateSignature:   getEnvBool("TWILIO_VALIDATE_SIGNATURE", false),
		},
		Whatsapp: WhatsappConfig{
			Enabled:  getEnvBool("WHATSAPP_ENABLED", false),
			LogLevel: getEnv("WHATSAPP_LOG_LEVEL", "ERROR"),
			StoreURI: getEnv("WHATSAPP_STORE_URI", "file:"+filepath.Join(baseDir, "whatsapp.db")+"?_foreign_keys=on"),
		},
		AI: AIConfig{
			CaptionProvider: strings.ToLower(getEnv("AI_CAPTION_PROVIDER", "gemini")),
			GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout:         time.Duration(getEnvInt("AI_TIMEOUT_SECONDS", 60)) * time.Second,
		},
		WorkerPool: WorkerPoolConfig{
			Size:      getEnvInt("MESSAGE_WORKER_POOL_SIZE", 8),
			QueueSize: getEnvInt("MESSAGE_WORKER_QUEUE_SIZE", 200),
		},
		Security: SecurityConfig{SecretKey: getEnv("APP_SECRET_KEY", "")},
		APIKeys: APIKeysConfig{
			Gemini: getEnv("GEMINI_API_KEY", ""),
			OpenAI: getEnv("OPENAI_API_KEY", ""),
		},
	}

	if cfg.Scheduler.DefaultSpacingMax < cfg.Scheduler.DefaultSpacingMin {
		cfg.Scheduler.DefaultSpacingMax = cfg.Scheduler.DefaultSpacingMin
	}

	Global = cfg
	return cfg, nil
}
