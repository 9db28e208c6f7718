package config

import (
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const minJWTSecretLength = 32

// Config centralises runtime configuration.
type Config struct {
	HTTPPort        string   `yaml:"http_port"`
	StorageDriver   string   `yaml:"storage_driver"`
	DatabaseURL     string   `yaml:"database_url"`
	AllowedOrigins  []string `yaml:"cors_allowed_origins"`
	ReadTimeoutSec  int      `yaml:"http_read_timeout"`
	WriteTimeoutSec int      `yaml:"http_write_timeout"`
	IdleTimeoutSec  int      `yaml:"http_idle_timeout"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	JWTSecret             string        `yaml:"jwt_secret"`
	JWTIssuer             string        `yaml:"jwt_issuer"`
	JWTExpiry             time.Duration `yaml:"jwt_expiry"`
	ConfirmationTokenTTL  time.Duration `yaml:"confirmation_token_ttl"`
	PasswordResetTokenTTL time.Duration `yaml:"password_reset_token_ttl"`
	RequireConfirmedEmail bool          `yaml:"require_confirmed_email"`
	BcryptCost            int           `yaml:"bcrypt_cost"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	ClientURL         string `yaml:"client_url"`
	ConfirmEmailPath  string `yaml:"confirm_email_path"`
	ResetPasswordPath string `yaml:"reset_password_path"`
	ApplicationName   string `yaml:"application_name"`

	Email Email `yaml:"email"`
}

// Email holds outbound mail settings.
type Email struct {
	Provider       string        `yaml:"provider"`
	From           string        `yaml:"from"`
	FromName       string        `yaml:"from_name"`
	SMTPHost       string        `yaml:"smtp_host"`
	SMTPPort       int           `yaml:"smtp_port"`
	SMTPUsername   string        `yaml:"smtp_username"`
	SMTPPassword   string        `yaml:"smtp_password"`
	SendGridAPIKey string        `yaml:"sendgrid_api_key"`
	Timeout        time.Duration `yaml:"timeout"`
}

func defaults() Config {
	return Config{
		HTTPPort:              "8080",
		StorageDriver:         "postgres",
		AllowedOrigins:        []string{"*"},
		ReadTimeoutSec:        15,
		WriteTimeoutSec:       15,
		IdleTimeoutSec:        60,
		LogLevel:              "info",
		LogFormat:             "text",
		JWTIssuer:             "accounts",
		JWTExpiry:             12 * time.Hour,
		ConfirmationTokenTTL:  24 * time.Hour,
		PasswordResetTokenTTL: time.Hour,
		BcryptCost:            10,
		RateLimitRPS:          5,
		RateLimitBurst:        10,
		ClientURL:             "http://localhost:3000",
		ConfirmEmailPath:      "/confirm-email",
		ResetPasswordPath:     "/reset-password",
		ApplicationName:       "Accounts",
		Email: Email{
			SMTPPort: 587,
			Timeout:  10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, a .env file and finally the process environment.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	// Existing environment variables win over .env entries.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	cfg.HTTPPort = getEnv("HTTP_PORT", getEnv("PORT", cfg.HTTPPort))
	cfg.StorageDriver = strings.ToLower(getEnv("STORAGE_DRIVER", cfg.StorageDriver))
	if url := resolveDatabaseURL(); url != "" {
		cfg.DatabaseURL = url
	}
	if origins := getEnv("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.AllowedOrigins = splitCSV(origins)
	}
	cfg.ReadTimeoutSec = getIntEnv("HTTP_READ_TIMEOUT", cfg.ReadTimeoutSec)
	cfg.WriteTimeoutSec = getIntEnv("HTTP_WRITE_TIMEOUT", cfg.WriteTimeoutSec)
	cfg.IdleTimeoutSec = getIntEnv("HTTP_IDLE_TIMEOUT", cfg.IdleTimeoutSec)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTIssuer = getEnv("JWT_ISSUER", cfg.JWTIssuer)
	cfg.JWTExpiry = getDurationEnv("JWT_EXPIRY", cfg.JWTExpiry)
	cfg.ConfirmationTokenTTL = getDurationEnv("CONFIRMATION_TOKEN_TTL", cfg.ConfirmationTokenTTL)
	cfg.PasswordResetTokenTTL = getDurationEnv("PASSWORD_RESET_TOKEN_TTL", cfg.PasswordResetTokenTTL)
	cfg.RequireConfirmedEmail = getBoolEnv("AUTH_REQUIRE_CONFIRMED_EMAIL", cfg.RequireConfirmedEmail)
	cfg.BcryptCost = getIntEnv("BCRYPT_COST", cfg.BcryptCost)

	cfg.RateLimitRPS = getFloatEnv("RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = getIntEnv("RATE_LIMIT_BURST", cfg.RateLimitBurst)

	cfg.ClientURL = getEnv("CLIENT_URL", cfg.ClientURL)
	cfg.ConfirmEmailPath = getEnv("CONFIRM_EMAIL_PATH", cfg.ConfirmEmailPath)
	cfg.ResetPasswordPath = getEnv("RESET_PASSWORD_PATH", cfg.ResetPasswordPath)
	cfg.ApplicationName = getEnv("APPLICATION_NAME", cfg.ApplicationName)

	cfg.Email.Provider = strings.ToLower(getEnv("EMAIL_PROVIDER", cfg.Email.Provider))
	cfg.Email.From = getEnv("EMAIL_FROM", cfg.Email.From)
	cfg.Email.FromName = getEnv("EMAIL_FROM_NAME", cfg.Email.FromName)
	cfg.Email.SMTPHost = getEnv("SMTP_HOST", cfg.Email.SMTPHost)
	cfg.Email.SMTPPort = getIntEnv("SMTP_PORT", cfg.Email.SMTPPort)
	cfg.Email.SMTPUsername = getEnv("SMTP_USERNAME", cfg.Email.SMTPUsername)
	cfg.Email.SMTPPassword = getEnv("SMTP_PASSWORD", cfg.Email.SMTPPassword)
	cfg.Email.SendGridAPIKey = getEnv("SENDGRID_API_KEY", cfg.Email.SendGridAPIKey)
	cfg.Email.Timeout = getDurationEnv("EMAIL_TIMEOUT", cfg.Email.Timeout)
	// The log notifier writes to the process log, so only the throwaway memory
	// store falls back to it.
	if cfg.Email.Provider == "" && cfg.StorageDriver == "memory" {
		cfg.Email.Provider = "log"
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StorageDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database configuration missing: provide DATABASE_URL or PG* env vars")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength)
	}
	if c.JWTExpiry <= 0 {
		return fmt.Errorf("JWT_EXPIRY must be positive")
	}
	if c.ConfirmationTokenTTL <= 0 {
		return fmt.Errorf("CONFIRMATION_TOKEN_TTL must be positive")
	}
	if c.PasswordResetTokenTTL <= 0 {
		return fmt.Errorf("PASSWORD_RESET_TOKEN_TTL must be positive")
	}
	switch c.Email.Provider {
	case "":
		return fmt.Errorf("EMAIL_PROVIDER is required when STORAGE_DRIVER=%s", c.StorageDriver)
	case "log", "smtp", "sendgrid":
	default:
		return fmt.Errorf("unknown EMAIL_PROVIDER %q", c.Email.Provider)
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func splitCSV(value string) []string {
	parts := []string{}
	for _, part := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return []string{"*"}
	}
	return parts
}

func resolveDatabaseURL() string {
	for _, key := range []string{"DATABASE_URL", "POSTGRES_URL", "PGURL"} {
		if url := coerceDatabaseURL(os.Getenv(key)); url != "" {
			return url
		}
	}
	if url := coerceDatabaseURL(readEnvFile("DATABASE_URL_FILE")); url != "" {
		return url
	}

	host := firstNonEmpty(os.Getenv("PGHOST"), os.Getenv("POSTGRES_HOST"))
	user := firstNonEmpty(os.Getenv("PGUSER"), os.Getenv("POSTGRES_USER"))
	if host == "" || user == "" {
		return ""
	}
	password := firstNonEmpty(os.Getenv("PGPASSWORD"), os.Getenv("POSTGRES_PASSWORD"))
	database := firstNonEmpty(os.Getenv("PGDATABASE"), os.Getenv("POSTGRES_DB"), user)
	port := firstNonEmpty(os.Getenv("PGPORT"), os.Getenv("POSTGRES_PORT"), "5432")
	sslMode := firstNonEmpty(os.Getenv("PGSSLMODE"), "require")

	dsn := &neturl.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + database,
		User:   neturl.User(user),
	}
	if password != "" {
		dsn.User = neturl.UserPassword(user, password)
	}
	query := dsn.Query()
	query.Set("sslmode", sslMode)
	dsn.RawQuery = query.Encode()
	return dsn.String()
}

func coerceDatabaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "postgres://"):
		return raw
	case strings.HasPrefix(raw, "postgresql://"):
		return "postgres://" + strings.TrimPrefix(raw, "postgresql://")
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func readEnvFile(key string) string {
	path := os.Getenv(key)
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
