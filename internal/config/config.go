package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API server and supporting services.
type Config struct {
	ListenAddr      string
	LogLevel        string
	MySQLDSN        string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	ProviderTimeout time.Duration
	OutboundProxy   string

	// Auth
	ClerkJWTPublicKey string
	AuthJWTSecret     string
	AuthIssuer        string

	// Entitlement and billing
	DefaultPoints    int
	GenerationCost   int
	GuestTrialLimit  int
	GuestTrialWindow time.Duration
	StandardPoints   int
	SuperPoints      int

	// Image providers
	ProxyBaseURL     string
	ProxyAPIKey      string
	ProxyModel       string
	ProxyImageSize   string
	VertexProject    string
	VertexLocation   string
	VertexAPIKey     string
	VertexModel      string
	ImagenAPIKey     string
	ImagenModel      string
	ImageAspectRatio string

	// Payments
	CreemAPIKey            string
	CreemBaseURL           string
	CreemWebhookSecret     string
	CreemStandardProductID string
	CreemSuperProductID    string
	CreemSuccessURL        string

	// Object storage
	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string

	// Ops notifications
	TelegramBotToken  string
	TelegramOpsChatID int64
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	const defaultCreemBaseURL = "https://api.creem.io"

	cfg := Config{
		ListenAddr:             getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                getInt("REDIS_DB", 0),
		ProviderTimeout:        time.Second * time.Duration(getInt("PROVIDER_TIMEOUT_SECONDS", 30)),
		OutboundProxy:          firstNonEmpty(os.Getenv("HTTPS_PROXY_URL"), os.Getenv("OUTBOUND_PROXY_URL")),
		ClerkJWTPublicKey:      os.Getenv("CLERK_JWT_PUBLIC_KEY"),
		AuthJWTSecret:          os.Getenv("AUTH_JWT_SECRET"),
		AuthIssuer:             os.Getenv("AUTH_ISSUER"),
		DefaultPoints:          getInt("DEFAULT_POINTS", 3),
		GenerationCost:         getInt("GENERATION_COST", 1),
		GuestTrialLimit:        getInt("GUEST_TRIAL_LIMIT", 1),
		GuestTrialWindow:       getDuration("GUEST_TRIAL_WINDOW", 24*time.Hour),
		StandardPoints:         getInt("STANDARD_PLAN_POINTS", 50),
		SuperPoints:            getInt("SUPER_PLAN_POINTS", 200),
		ProxyBaseURL:           strings.TrimRight(getEnv("TUZI_BASE_URL", "https://api.tu-zi.com"), "/"),
		ProxyAPIKey:            os.Getenv("TUZI_API_KEY"),
		ProxyModel:             getEnv("TUZI_MODEL", "gemini-2.5-flash-image"),
		ProxyImageSize:         getEnv("TUZI_IMAGE_SIZE", "1024x1024"),
		VertexProject:          os.Getenv("GOOGLE_CLOUD_PROJECT"),
		VertexLocation:         getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
		VertexAPIKey:           os.Getenv("VERTEX_API_KEY"),
		VertexModel:            getEnv("VERTEX_IMAGEN_MODEL", "imagen-3.0-generate-002"),
		ImagenAPIKey:           firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY")),
		ImagenModel:            getEnv("IMAGEN_MODEL", "imagen-4.0-generate-001"),
		ImageAspectRatio:       getEnv("IMAGE_ASPECT_RATIO", "1:1"),
		CreemAPIKey:            os.Getenv("CREEM_API_KEY"),
		CreemBaseURL:           normalizeBaseURL(getEnv("CREEM_BASE_URL", defaultCreemBaseURL), defaultCreemBaseURL),
		CreemWebhookSecret:     os.Getenv("CREEM_WEBHOOK_SECRET"),
		CreemStandardProductID: os.Getenv("CREEM_STANDARD_PRODUCT_ID"),
		CreemSuperProductID:    os.Getenv("CREEM_SUPER_PRODUCT_ID"),
		CreemSuccessURL:        os.Getenv("CREEM_SUCCESS_URL"),
		S3Endpoint:             getEnv("S3_ENDPOINT", ""),
		S3Region:               os.Getenv("S3_REGION"),
		S3AccessKey:            os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:            os.Getenv("S3_SECRET_KEY"),
		S3Bucket:               os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:        os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:         getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:               getEnv("S3_PREFIX", "cats"),
		TelegramBotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramOpsChatID:      getInt64("TELEGRAM_OPS_CHAT_ID", 0),
	}

	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every missing required variable at once.
func (c Config) Validate() error {
	var missing []string
	if c.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if c.ClerkJWTPublicKey == "" && c.AuthJWTSecret == "" {
		missing = append(missing, "CLERK_JWT_PUBLIC_KEY|AUTH_JWT_SECRET")
	}
	if c.CreemWebhookSecret == "" {
		missing = append(missing, "CREEM_WEBHOOK_SECRET")
	}
	if c.ProxyAPIKey == "" && c.ImagenAPIKey == "" && c.VertexProject == "" {
		missing = append(missing, "TUZI_API_KEY|GEMINI_API_KEY|GOOGLE_CLOUD_PROJECT")
	}
	if c.S3Bucket != "" {
		if c.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if c.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if c.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if c.S3PublicBaseURL == "" {
			missing = append(missing, "S3_PUBLIC_BASE_URL")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	if c.GenerationCost <= 0 {
		return fmt.Errorf("GENERATION_COST must be positive")
	}
	if c.DefaultPoints < 0 {
		return fmt.Errorf("DEFAULT_POINTS must not be negative")
	}
	return nil
}

// normalizeBaseURL adds a scheme when missing and strips trailing slashes.
func normalizeBaseURL(raw string, fallback string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		host, path, _ := strings.Cut(parsed.Path, "/")
		parsed.Host = host
		parsed.Path = ""
		if path != "" {
			parsed.Path = "/" + path
		}
	}

	return strings.TrimRight(parsed.String(), "/")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// loadEnvFile loads the first env file found. Running without one is fine in
// container deployments where the environment is injected directly.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
