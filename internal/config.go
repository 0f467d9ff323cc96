package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	GatewayProductionURL = "https://openapi.alipay.com/gateway.do"
	GatewaySandboxURL    = "https://openapi-sandbox.dl.alipaydev.com/gateway.do"
)

type Config struct {
	Env           string              `mapstructure:"env"`
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Admin         AdminConfig         `mapstructure:"admin"`
	Events        EventsConfig        `mapstructure:"events"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	Source          string        `mapstructure:"source"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// GatewayConfig holds the page-pay gateway credentials. Key material may be
// given inline or as a file path; inline wins when both are set.
type GatewayConfig struct {
	AppID                     string `mapstructure:"app_id" validate:"required"`
	Sandbox                   bool   `mapstructure:"sandbox"`
	GatewayURL                string `mapstructure:"gateway_url"`
	AppPrivateKey             string `mapstructure:"app_private_key"`
	AppPrivateKeyPath         string `mapstructure:"app_private_key_path"`
	GatewayPublicKey          string `mapstructure:"gateway_public_key"`
	GatewayPublicKeyPath      string `mapstructure:"gateway_public_key_path"`
	NotifyURL                 string `mapstructure:"notify_url"`
	ReturnURL                 string `mapstructure:"return_url"`
	TimeoutExpress            string `mapstructure:"timeout_express"`
	UnverifiedReturnCallbacks bool   `mapstructure:"unverified_return_callbacks"`
}

type AdminConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	Users      []AdminUser   `mapstructure:"users"`
	AllowClear bool          `mapstructure:"allow_clear"`
}

type AdminUser struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

type EventsConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds the configuration purely from environment
// variables, used for container deployments.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Env: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("HTTP_BASE_URL", ""),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Source:          getEnv("DB_SOURCE", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Gateway: GatewayConfig{
			AppID:                     getEnv("GATEWAY_APP_ID", ""),
			Sandbox:                   getEnvAsBool("GATEWAY_SANDBOX", false),
			GatewayURL:                getEnv("GATEWAY_URL", ""),
			AppPrivateKey:             getEnv("GATEWAY_APP_PRIVATE_KEY", ""),
			AppPrivateKeyPath:         getEnv("GATEWAY_APP_PRIVATE_KEY_PATH", ""),
			GatewayPublicKey:          getEnv("GATEWAY_PUBLIC_KEY", ""),
			GatewayPublicKeyPath:      getEnv("GATEWAY_PUBLIC_KEY_PATH", ""),
			NotifyURL:                 getEnv("GATEWAY_NOTIFY_URL", ""),
			ReturnURL:                 getEnv("GATEWAY_RETURN_URL", ""),
			TimeoutExpress:            getEnv("GATEWAY_TIMEOUT_EXPRESS", "30m"),
			UnverifiedReturnCallbacks: getEnvAsBool("GATEWAY_UNVERIFIED_RETURN_CALLBACKS", false),
		},
		Admin: AdminConfig{
			JWTSecret:  getEnv("ADMIN_JWT_SECRET", ""),
			TokenTTL:   getEnvAsDuration("ADMIN_TOKEN_TTL", time.Hour),
			AllowClear: getEnvAsBool("ADMIN_ALLOW_CLEAR", false),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}

	if username := getEnv("ADMIN_USERNAME", ""); username != "" {
		cfg.Admin.Users = []AdminUser{{
			Username:     username,
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		}}
	}

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Events.Kafka = KafkaConfig{
			Brokers: strings.Split(brokers, ","),
			Topic:   getEnv("KAFKA_TOPIC", "payment-events"),
		}
	}

	return cfg
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gateway config: %v", err))
	}

	if err := c.Admin.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("admin config: %v", err))
	}

	if c.Env == "production" && c.Gateway.UnverifiedReturnCallbacks {
		errs = append(errs, "gateway config: unverified_return_callbacks is not allowed in production")
	}

	if len(errs) > 0 {
		return NewConfigError(strings.Join(errs, "; "), nil)
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
			return fmt.Errorf("invalid base_url %s: %w", c.BaseURL, err)
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *GatewayConfig) Validate() error {
	var errs []string
	if c.AppID == "" {
		errs = append(errs, "app_id is required")
	}
	if c.AppPrivateKey == "" && c.AppPrivateKeyPath == "" {
		errs = append(errs, "app_private_key or app_private_key_path is required")
	}
	if c.GatewayPublicKey == "" && c.GatewayPublicKeyPath == "" {
		errs = append(errs, "gateway_public_key or gateway_public_key_path is required")
	}
	for name, raw := range map[string]string{"gateway_url": c.GatewayURL, "notify_url": c.NotifyURL, "return_url": c.ReturnURL} {
		if raw == "" {
			continue
		}
		if _, err := url.ParseRequestURI(raw); err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", name, err))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, ", "))
	}
	return nil
}

// BaseURL resolves the gateway endpoint: explicit gateway_url, else the
// sandbox or production default.
func (c *GatewayConfig) BaseURL() string {
	if c.GatewayURL != "" {
		return c.GatewayURL
	}
	if c.Sandbox {
		return GatewaySandboxURL
	}
	return GatewayProductionURL
}

func (c *GatewayConfig) PrivateKeyMaterial() (string, error) {
	return keyMaterial("app private key", c.AppPrivateKey, c.AppPrivateKeyPath)
}

func (c *GatewayConfig) PublicKeyMaterial() (string, error) {
	return keyMaterial("gateway public key", c.GatewayPublicKey, c.GatewayPublicKeyPath)
}

func keyMaterial(name, inline, path string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if path == "" {
		return "", NewConfigError(fmt.Sprintf("%s is not configured", name), nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", NewConfigError(fmt.Sprintf("failed to read %s from %s", name, path), err)
	}
	return string(data), nil
}

func (c *AdminConfig) Validate() error {
	if len(c.Users) == 0 {
		return nil
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 characters when admin users are configured")
	}
	for _, u := range c.Users {
		if u.Username == "" || u.PasswordHash == "" {
			return errors.New("admin users need both username and password_hash")
		}
	}
	return nil
}
