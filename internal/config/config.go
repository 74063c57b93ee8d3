package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	NATS    NATSConfig
	Calls   CallsConfig
	Persist PersistConfig
	WS      WSConfig
}

type AppConfig struct {
	Env  string
	Port int
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DBConfig struct {
	// Driver is postgres or sqlite.
	Driver string

	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	SQLitePath string
}

// RedisConfig is optional. An empty Host disables the presence mirror.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// NATSConfig is optional. An empty URL keeps call events in memory.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type CallsConfig struct {
	// RingTimeout of 0 disables the ringing sweeper.
	RingTimeout time.Duration

	// CancelOutcome is cancelled or missed.
	CancelOutcome string
}

type PersistConfig struct {
	MaxRetries int
	QueueSize  int
}

type WSConfig struct {
	// AllowedOrigins empty means any origin outside production.
	AllowedOrigins []string
	SendQueue      int
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Driver = strings.ToLower(strings.TrimSpace(os.Getenv("DB_DRIVER")))
	if c.DB.Driver == "" {
		c.DB.Driver = DriverPostgres
	}
	c.DB.SQLitePath = strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	if c.DB.Driver == DriverPostgres {
		c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
		{
			n, err := mustInt("DB_PORT")
			n, parseErrs = appendParseErr(parseErrs, n, err)
			c.DB.Port = n
		}
		c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
		c.DB.Password = os.Getenv("DB_PASSWORD")
		c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
		c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	}

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Redis.Host != "" {
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
		c.Redis.Password = os.Getenv("REDIS_PASSWORD")
		c.Redis.DB, parseErrs = optionalInt(parseErrs, "REDIS_DB", 0)
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in applyDefaults.
	c.Auth.AccessTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_REFRESH_TTL")

	c.NATS.URL = strings.TrimSpace(os.Getenv("NATS_URL"))
	c.NATS.SubjectPrefix = strings.TrimSpace(os.Getenv("NATS_SUBJECT_PREFIX"))

	c.Calls.RingTimeout, parseErrs = optionalDuration(parseErrs, "CALL_RING_TIMEOUT")
	c.Calls.CancelOutcome = strings.ToLower(strings.TrimSpace(os.Getenv("CALL_CANCEL_OUTCOME")))

	c.Persist.MaxRetries, parseErrs = optionalInt(parseErrs, "PERSIST_MAX_RETRIES", 3)
	c.Persist.QueueSize, parseErrs = optionalInt(parseErrs, "PERSIST_QUEUE_SIZE", 1024)

	c.WS.AllowedOrigins = splitList(os.Getenv("WS_ALLOWED_ORIGINS"))
	c.WS.SendQueue, parseErrs = optionalInt(parseErrs, "WS_SEND_QUEUE", 64)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.DB.Driver == DriverPostgres && c.DB.SSLMode == "" && !c.IsProduction() {
		// Local-friendly default; production must be explicit.
		c.DB.SSLMode = "disable"
	}
	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		// Default: longer-lived refresh tokens.
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "callhub"
	}
	if c.Calls.CancelOutcome == "" {
		c.Calls.CancelOutcome = "cancelled"
	}
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	switch c.DB.Driver {
	case DriverPostgres:
		errs = append(errs, c.validatePostgres()...)
	case DriverSQLite:
		if c.DB.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required when DB_DRIVER=sqlite"))
		}
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_DRIVER=sqlite is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DB.Driver))
	}

	if c.Redis.Host != "" {
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
		if c.Redis.DB < 0 {
			errs = append(errs, errors.New("REDIS_DB must not be negative"))
		}
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Calls.RingTimeout < 0 {
		errs = append(errs, errors.New("CALL_RING_TIMEOUT must not be negative"))
	}
	if c.Calls.CancelOutcome != "cancelled" && c.Calls.CancelOutcome != "missed" {
		errs = append(errs, fmt.Errorf("CALL_CANCEL_OUTCOME must be cancelled or missed, got %q", c.Calls.CancelOutcome))
	}
	if c.Persist.MaxRetries < 0 {
		errs = append(errs, errors.New("PERSIST_MAX_RETRIES must not be negative"))
	}
	if c.Persist.QueueSize <= 0 {
		errs = append(errs, errors.New("PERSIST_QUEUE_SIZE must be positive"))
	}

	if c.WS.SendQueue <= 0 {
		errs = append(errs, errors.New("WS_SEND_QUEUE must be positive"))
	}
	if c.IsProduction() && len(c.WS.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("WS_ALLOWED_ORIGINS is required in production"))
	}

	return joinErrors(errs)
}

func (c Config) validatePostgres() []error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		errs = append(errs, errors.New("DB_SSLMODE is required in production"))
	} else if !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

// IsLocal reports whether development-only endpoints may be mounted.
func (c Config) IsLocal() bool {
	return c.App.Env == "local" || c.App.Env == "dev"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(errs []error, key string, def int) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalDuration(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
